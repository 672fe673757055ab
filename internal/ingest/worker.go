package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/uniguide/internal/storage"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// JobQueue enqueues background jobs.
type JobQueue interface {
	EnqueueJob(job storage.Job) (string, error)
	HasPendingJob(typ string) (bool, error)
}

// Reindexer rebuilds the index from the corpus.
type Reindexer interface {
	ReindexCorpus(ctx context.Context) (Report, error)
}

// PageFetcher downloads a page into the corpus and returns the stored name.
type PageFetcher func(ctx context.Context, url string, keepOld bool) (string, error)

// FetchPayload is the payload of a fetch_url job.
type FetchPayload struct {
	URL         string `json:"url"`
	KeepOldData bool   `json:"keep_old_data"`
}

// Worker processes reindex and fetch_url jobs from the SQLite job queue.
type Worker struct {
	store     JobStore
	reindexer Reindexer
	fetch     PageFetcher
	poll      time.Duration
	logger    *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, reindexer Reindexer, fetch PageFetcher, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:     store,
		reindexer: reindexer,
		fetch:     fetch,
		poll:      pollInterval,
		logger:    slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{storage.JobReindex, storage.JobFetchURL})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "type", job.Type, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	switch job.Type {
	case storage.JobReindex:
		return w.reindex(ctx, job.ID)

	case storage.JobFetchURL:
		var payload FetchPayload
		if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
			return fmt.Errorf("parsing payload: %w", err)
		}
		if payload.URL == "" {
			return fmt.Errorf("fetch job has no url")
		}
		name, err := w.fetch(ctx, payload.URL, payload.KeepOldData)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", payload.URL, err)
		}
		w.logger.Info("page fetched", "job_id", job.ID, "url", payload.URL, "file", name)
		return w.reindex(ctx, job.ID)

	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

func (w *Worker) reindex(ctx context.Context, jobID string) error {
	report, err := w.reindexer.ReindexCorpus(ctx)
	if err != nil {
		return err
	}
	w.logger.Info("reindex job done", "job_id", jobID, "chunks", report.ChunkCount, "documents", report.DocumentCount)
	return nil
}

// EnqueueReindex queues a reindex job unless one is already waiting. It
// returns the job ID, or "" when an existing job covers the request.
func EnqueueReindex(q JobQueue) (string, error) {
	pending, err := q.HasPendingJob(storage.JobReindex)
	if err != nil {
		return "", err
	}
	if pending {
		return "", nil
	}
	return q.EnqueueJob(storage.Job{Type: storage.JobReindex, MaxAttempts: 3})
}

// EnqueueFetch queues a fetch_url job.
func EnqueueFetch(q JobQueue, p FetchPayload) (string, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	return q.EnqueueJob(storage.Job{Type: storage.JobFetchURL, PayloadJSON: string(payload), MaxAttempts: 2})
}
