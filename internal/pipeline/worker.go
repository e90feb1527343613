package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/jbgab/klartext/internal/apply"
	"github.com/jbgab/klartext/internal/artifact"
	"github.com/jbgab/klartext/internal/document"
	"github.com/jbgab/klartext/internal/resolve"
	"github.com/jbgab/klartext/internal/structure"
	"github.com/jbgab/klartext/internal/suggest"
)

// Worker processes a single review job.
type Worker struct {
	generator suggest.Generator
	store     *artifact.Store
	log       *slog.Logger
	extractor *structure.Extractor

	policy           string
	maxTokensPerCall int
	author           string
}

func NewWorker(gen suggest.Generator, store *artifact.Store, log *slog.Logger, extractor *structure.Extractor, policy string, maxTokensPerCall int, author string) *Worker {
	return &Worker{
		generator:        gen,
		store:            store,
		log:              log,
		extractor:        extractor,
		policy:           policy,
		maxTokensPerCall: maxTokensPerCall,
		author:           author,
	}
}

// Process runs the full review pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	defer job.ReleaseFileData()
	log := w.log.With("job_id", job.ID, "filename", job.Filename, "format", string(job.Format))
	data := job.FileData()

	// Phase 1: Extract addressable units.
	job.SetStatus(StatusExtracting, "extracting")
	units, err := w.extractor.Extract(data, job.Format)
	if errors.Is(err, structure.ErrEmptyDocument) {
		log.Info("document has no reviewable text")
		job.SetStatus(StatusNoContent, "extracting")
		return
	}
	if err != nil {
		log.Error("extraction failed", "error", err)
		job.AddError(fmt.Sprintf("extract: %s", err))
		job.SetStatus(StatusFailed, "extracting")
		return
	}
	job.UpdateReport(func(r *Report) { r.Units = len(units) })
	log.Info("extracted units", "units", len(units))

	// Phase 2: Generate suggestions batch by batch.
	job.SetStatus(StatusSuggesting, "suggesting")
	policy := w.policy
	if job.customPrompt != "" {
		policy = policy + "\n\nExtra instruktioner:\n" + job.customPrompt
	}
	suggestions, ok := w.collectSuggestions(ctx, job, log, units, policy)
	if !ok {
		return
	}

	// Phase 3: Match suggestions against the extracted content.
	edits := resolve.Resolve(units, suggestions)
	summary := resolve.Summarize(edits)
	job.UpdateReport(func(r *Report) { r.addSummary(summary) })
	log.Info("resolved suggestions",
		"exact", summary.Exact, "fuzzy", summary.Fuzzy, "unresolved", summary.Unresolved)

	// Phase 4: Write edits into the document.
	job.SetStatus(StatusApplying, "applying")
	opts := apply.Options{
		DocxMode:           job.DocxMode,
		IncludeMotivations: job.IncludeMotivations,
		Author:             w.author,
	}
	res, err := apply.Apply(data, job.Format, units, edits, opts)
	if errors.Is(err, apply.ErrNoEditsApplied) {
		// Matched edits went stale before application; ship the
		// original so the caller still gets a document plus the report.
		log.Warn("no edits could be applied")
		job.AddError("no edits applied")
		res = apply.Result{Output: data}
	} else if err != nil {
		log.Error("application failed", "error", err)
		job.AddError(fmt.Sprintf("apply: %s", err))
		job.SetStatus(StatusFailed, "applying")
		return
	}

	name := OutputFilename(job.Filename, job.Format)
	if err := w.store.Put(job.ID, name, res.Output); err != nil {
		log.Error("artifact store failed", "error", err)
		job.AddError(fmt.Sprintf("store: %s", err))
		job.SetStatus(StatusFailed, "storing")
		return
	}
	job.UpdateReport(func(r *Report) {
		r.Applied = res.Applied
		r.OutputFile = name
	})
	log.Info("review complete", "applied", res.Applied, "output", name)
	job.SetStatus(StatusCompleted, "done")
}

// collectSuggestions calls the generator once per batch and parses the
// replies. A malformed reply fails only its own batch; the job fails
// when not a single batch produced a usable reply.
func (w *Worker) collectSuggestions(ctx context.Context, job *Job, log *slog.Logger, units []document.TextUnit, policy string) ([]suggest.Suggestion, bool) {
	batches := suggest.Batch(units, len(policy), w.maxTokensPerCall)
	var all []suggest.Suggestion
	received, dropped, usable := 0, 0, 0
	for i, batch := range batches {
		user, err := suggest.BuildUserPrompt(batch, job.Format)
		if err != nil {
			log.Error("prompt build failed", "batch", i, "error", err)
			job.AddError(fmt.Sprintf("batch %d: %s", i, err))
			continue
		}
		raw, err := w.callGenerator(ctx, log, policy, user, i)
		if err != nil {
			if ctx.Err() != nil {
				job.AddError("canceled")
				job.SetStatus(StatusFailed, "suggesting")
				return nil, false
			}
			job.AddError(fmt.Sprintf("batch %d: %s", i, err))
			continue
		}
		parsed, stats, err := suggest.Parse([]byte(raw), job.Format)
		if err != nil {
			log.Warn("malformed generator reply", "batch", i, "error", err)
			job.AddError(fmt.Sprintf("batch %d: %s", i, err))
			continue
		}
		usable++
		received += stats.Received
		dropped += stats.Dropped()
		all = append(all, parsed...)
	}
	job.UpdateReport(func(r *Report) {
		r.Suggestions = received
		r.Dropped = dropped
	})
	if len(batches) > 0 && usable == 0 {
		log.Error("every batch failed")
		job.SetStatus(StatusFailed, "suggesting")
		return nil, false
	}
	return all, true
}

func (w *Worker) callGenerator(ctx context.Context, log *slog.Logger, system, user string, batch int) (string, error) {
	var raw string
	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		raw, lastErr = w.generator.Suggest(ctx, system, user)
		if lastErr == nil || !IsRetryable(lastErr) {
			break
		}
		log.Warn("retryable generator error", "batch", batch, "attempt", attempt, "error", lastErr)
		select {
		case <-time.After(Backoff(attempt)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return raw, lastErr
}

// OutputFilename derives the download name from the upload name.
func OutputFilename(filename string, format document.Format) string {
	ext := path.Ext(filename)
	base := strings.TrimSuffix(path.Base(filename), ext)
	if base == "" {
		base = "document"
	}
	switch format {
	case document.FormatPDF:
		return base + "_annotated.pdf"
	default:
		return base + "_edited.docx"
	}
}
