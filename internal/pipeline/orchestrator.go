package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jbgab/klartext/internal/artifact"
	"github.com/jbgab/klartext/internal/config"
	"github.com/jbgab/klartext/internal/structure"
	"github.com/jbgab/klartext/internal/suggest"
)

// Orchestrator manages the document review pipeline.
type Orchestrator struct {
	jobs      *JobStore
	queue     chan *Job
	generator suggest.Generator
	store     *artifact.Store
	log       *slog.Logger
	cfg       config.Config
	policy    string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline; Start launches its workers.
func NewOrchestrator(cfg config.Config, gen suggest.Generator, store *artifact.Store, policy string, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:      NewJobStore(cfg.JobTTL),
		queue:     make(chan *Job, cfg.MaxQueueSize),
		generator: gen,
		store:     store,
		log:       log,
		cfg:       cfg,
		policy:    policy,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for i := 0; i < o.cfg.WorkerCount; i++ {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			extractor := &structure.Extractor{LineTolerance: o.cfg.LineTolerance}
			w := NewWorker(o.generator, o.store, o.log, extractor, o.policy, o.cfg.MaxTokensPerCall, o.cfg.Author)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Periodic eviction of stale jobs and expired artifacts.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
				if n, err := o.store.Cleanup(); err != nil {
					o.log.Warn("artifact cleanup failed", "error", err)
				} else if n > 0 {
					o.log.Info("evicted artifacts", "count", n)
				}
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// Artifacts returns the artifact store for the download handler.
func (o *Orchestrator) Artifacts() *artifact.Store {
	return o.store
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
