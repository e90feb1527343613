package pipeline

import (
	"sync"
	"time"

	"github.com/jbgab/klartext/internal/apply"
	"github.com/jbgab/klartext/internal/document"
	"github.com/jbgab/klartext/internal/resolve"
)

// JobStatus represents the state of a review job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusExtracting JobStatus = "extracting"
	StatusSuggesting JobStatus = "suggesting"
	StatusApplying   JobStatus = "applying"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	// StatusNoContent means the document opened fine but held no
	// reviewable text, or the generator had nothing to suggest.
	StatusNoContent JobStatus = "no_content"
)

// Report is the outcome summary returned with a finished job. The
// match counts are mandatory: a caller must always be able to see how
// many suggestions were applied exactly, approximately, or not at all.
type Report struct {
	Units       int `json:"units"`
	Suggestions int `json:"suggestions"`
	Dropped     int `json:"dropped"`

	Exact      int      `json:"exact"`
	Fuzzy      int      `json:"fuzzy"`
	Unresolved int      `json:"unresolved"`
	Applied    int      `json:"applied"`
	Hints      []string `json:"hints,omitempty"`

	OutputFile string `json:"output_file,omitempty"`
}

func (r *Report) addSummary(s resolve.Summary) {
	r.Exact = s.Exact
	r.Fuzzy = s.Fuzzy
	r.Unresolved = s.Unresolved
	r.Hints = s.Hints
}

// Job tracks the state of a single document review.
type Job struct {
	mu sync.Mutex

	ID       string          `json:"job_id"`
	Filename string          `json:"filename"`
	Format   document.Format `json:"format"`

	DocxMode           apply.DocxMode `json:"docx_mode,omitempty"`
	IncludeMotivations bool           `json:"include_motivations"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`
	Report Report    `json:"report"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData     []byte
	customPrompt string
	errors       []string
}

// NewJob registers the upload for processing.
func NewJob(filename string, format document.Format, data []byte) *Job {
	now := time.Now()
	return &Job{
		ID:        generateULID(),
		Filename:  filename,
		Format:    format,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
		fileData:  data,
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records a non-fatal processing error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.UpdatedAt = time.Now()
}

// SetCustomPrompt stores extra reviewer instructions for this job.
func (j *Job) SetCustomPrompt(p string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.customPrompt = p
}

// UpdateReport applies fn under the job lock.
func (j *Job) UpdateReport(fn func(*Report)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(&j.Report)
	j.UpdatedAt = time.Now()
}

// FileData returns the raw upload bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// ReleaseFileData drops the upload bytes once processing is done.
func (j *Job) ReleaseFileData() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = nil
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID                 string          `json:"job_id"`
	Filename           string          `json:"filename"`
	Format             document.Format `json:"format"`
	DocxMode           apply.DocxMode  `json:"docx_mode,omitempty"`
	IncludeMotivations bool            `json:"include_motivations"`
	Status             JobStatus       `json:"status"`
	Phase              string          `json:"phase"`
	Report             Report          `json:"report"`
	Errors             []string        `json:"errors"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := j.errors
	if errs == nil {
		errs = []string{}
	}
	report := j.Report
	report.Hints = append([]string(nil), j.Report.Hints...)
	return JobSnapshot{
		ID:                 j.ID,
		Filename:           j.Filename,
		Format:             j.Format,
		DocxMode:           j.DocxMode,
		IncludeMotivations: j.IncludeMotivations,
		Status:             j.Status,
		Phase:              j.Phase,
		Report:             report,
		Errors:             errs,
		CreatedAt:          j.CreatedAt,
		UpdatedAt:          j.UpdatedAt,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if now.Sub(job.UpdatedAt) > s.ttl {
			delete(s.jobs, id)
		}
	}
}
