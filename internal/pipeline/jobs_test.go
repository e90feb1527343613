package pipeline

import (
	"testing"
	"time"

	"github.com/jbgab/klartext/internal/document"
)

func TestNewJob_Defaults(t *testing.T) {
	job := NewJob("beslut.docx", document.FormatDocx, []byte("data"))
	if job.ID == "" {
		t.Error("expected a generated job ID")
	}
	if job.Status != StatusQueued {
		t.Errorf("expected status %q, got %q", StatusQueued, job.Status)
	}
	if string(job.FileData()) != "data" {
		t.Error("file data not retained")
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := NewJob("beslut.docx", document.FormatDocx, nil)

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusExtracting, "extracting"},
		{StatusSuggesting, "suggesting"},
		{StatusApplying, "applying"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestJob_AddError(t *testing.T) {
	job := NewJob("f.pdf", document.FormatPDF, nil)
	job.AddError("batch 0: malformed generator response")
	job.AddError("batch 2: malformed generator response")

	snap := job.Snapshot()
	if len(snap.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Errors))
	}
	if snap.Errors[0] != "batch 0: malformed generator response" {
		t.Errorf("unexpected first error %q", snap.Errors[0])
	}
}

func TestJob_UpdateReport(t *testing.T) {
	job := NewJob("f.docx", document.FormatDocx, nil)
	job.UpdateReport(func(r *Report) {
		r.Units = 12
		r.Suggestions = 5
	})
	job.UpdateReport(func(r *Report) { r.Applied = 4 })

	snap := job.Snapshot()
	if snap.Report.Units != 12 || snap.Report.Suggestions != 5 || snap.Report.Applied != 4 {
		t.Errorf("report = %+v", snap.Report)
	}
}

func TestJob_ReleaseFileData(t *testing.T) {
	job := NewJob("f.docx", document.FormatDocx, []byte("payload"))
	job.ReleaseFileData()
	if job.FileData() != nil {
		t.Error("expected file data to be released")
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	// Snapshot should always return non-nil errors slice.
	job := NewJob("f.docx", document.FormatDocx, nil)
	snap := job.Snapshot()
	if snap.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
	if len(snap.Errors) != 0 {
		t.Errorf("expected empty errors, got %d", len(snap.Errors))
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := NewJob("f.docx", document.FormatDocx, nil)
	store.Put(job)

	got := store.Get(job.ID)
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != job.ID {
		t.Errorf("expected ID %q, got %q", job.ID, got.ID)
	}
}

func TestJobStore_GetMissing(t *testing.T) {
	store := NewJobStore(time.Hour)
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := NewJob("old.docx", document.FormatDocx, nil)
	store.Put(expired)

	// Wait for the TTL to pass.
	time.Sleep(100 * time.Millisecond)

	fresh := NewJob("new.docx", document.FormatDocx, nil)
	store.Put(fresh)

	store.Cleanup()

	if store.Get(expired.ID) != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get(fresh.ID) == nil {
		t.Error("expected fresh job to survive cleanup")
	}
}

func TestJobStore_CleanupEmpty(t *testing.T) {
	store := NewJobStore(time.Hour)
	// Should not panic on empty store.
	store.Cleanup()
}

func TestOutputFilename(t *testing.T) {
	cases := []struct {
		in     string
		format document.Format
		want   string
	}{
		{"beslut.docx", document.FormatDocx, "beslut_edited.docx"},
		{"rapport.pdf", document.FormatPDF, "rapport_annotated.pdf"},
		{"dir/nested.docx", document.FormatDocx, "nested_edited.docx"},
		{".docx", document.FormatDocx, "document_edited.docx"},
	}
	for _, tc := range cases {
		if got := OutputFilename(tc.in, tc.format); got != tc.want {
			t.Errorf("OutputFilename(%q, %s) = %q, want %q", tc.in, tc.format, got, tc.want)
		}
	}
}

func TestGenerateULID_UniqueAndSorted(t *testing.T) {
	a := generateULID()
	b := generateULID()
	if len(a) != 26 || len(b) != 26 {
		t.Fatalf("unexpected ULID lengths %d, %d", len(a), len(b))
	}
	if a == b {
		t.Error("expected distinct ULIDs")
	}
}
