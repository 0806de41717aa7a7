package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guiyumin/vresolve/internal/core/downloader"
	"github.com/guiyumin/vresolve/internal/core/failure"
	"github.com/guiyumin/vresolve/internal/core/resolver"
)

// JobStatus represents the current state of a transfer job
type JobStatus string

const (
	JobStatusQueued      JobStatus = "queued"
	JobStatusDownloading JobStatus = "downloading"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusFailed      JobStatus = "failed"
	JobStatusCancelled   JobStatus = "cancelled"
)

const (
	queueSize       = 100
	cleanupInterval = 10 * time.Minute
	jobRetention    = time.Hour
)

// Job is one queued transfer of a selected entry
type Job struct {
	ID        string       `json:"id"`
	SessionID int64        `json:"session_id"`
	Index     int          `json:"index"`
	URL       string       `json:"url"`
	Filename  string       `json:"filename,omitempty"`
	Path      string       `json:"path,omitempty"`
	Status    JobStatus    `json:"status"`
	Progress  float64      `json:"progress"`
	Written   int64        `json:"downloaded"`
	Total     int64        `json:"total"` // -1 if unknown
	Error     string       `json:"error,omitempty"`
	ErrorKind failure.Kind `json:"error_kind,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`

	selection *resolver.Selection
	cancel    context.CancelFunc
	ctx       context.Context
}

func (j *Job) finished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed || j.Status == JobStatusCancelled
}

// TransferFunc saves a selection and returns the final path
type TransferFunc func(ctx context.Context, sel *resolver.Selection, progress downloader.ProgressFunc) (string, error)

var (
	// ErrQueueFull is returned by AddJob when no more jobs can be buffered
	ErrQueueFull = errors.New("job queue is full")
	// ErrQueueStopped is returned by AddJob once Stop has been called
	ErrQueueStopped = errors.New("job queue is stopped")
)

// JobQueue runs transfer jobs on a fixed worker pool
type JobQueue struct {
	jobs          map[string]*Job
	mu            sync.RWMutex
	queue         chan *Job
	maxConcurrent int
	transfer      TransferFunc
	wg            sync.WaitGroup
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
	stopped       bool // guarded by mu; queue is closed once set
}

// NewJobQueue creates a job queue with the given concurrency
func NewJobQueue(maxConcurrent int, transfer TransferFunc) *JobQueue {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &JobQueue{
		jobs:          make(map[string]*Job),
		queue:         make(chan *Job, queueSize),
		maxConcurrent: maxConcurrent,
		transfer:      transfer,
		stopCleanup:   make(chan struct{}),
	}
}

// Start begins the worker pool and the cleanup routine
func (jq *JobQueue) Start() {
	for i := 0; i < jq.maxConcurrent; i++ {
		jq.wg.Add(1)
		go jq.worker()
	}

	jq.cleanupTicker = time.NewTicker(cleanupInterval)
	go jq.cleanupLoop()
}

// Stop cancels pending jobs and waits for the workers to exit
func (jq *JobQueue) Stop() {
	jq.stopOnce.Do(func() {
		jq.mu.Lock()
		jq.stopped = true
		for _, job := range jq.jobs {
			if !job.finished() {
				job.cancel()
			}
		}
		close(jq.queue)
		jq.mu.Unlock()

		close(jq.stopCleanup)
		if jq.cleanupTicker != nil {
			jq.cleanupTicker.Stop()
		}
		jq.wg.Wait()
	})
}

func (jq *JobQueue) worker() {
	defer jq.wg.Done()
	for job := range jq.queue {
		jq.processJob(job)
	}
}

func (jq *JobQueue) processJob(job *Job) {
	if job.ctx.Err() != nil {
		jq.finish(job.ID, "", job.ctx.Err())
		return
	}
	jq.updateJobStatus(job.ID, JobStatusDownloading)

	progress := func(written, total int64) {
		jq.updateJobProgressBytes(job.ID, written, total)
	}
	path, err := jq.transfer(job.ctx, job.selection, progress)
	if err != nil && job.ctx.Err() != nil {
		err = context.Canceled
	}
	jq.finish(job.ID, path, err)
}

func (jq *JobQueue) finish(id, path string, err error) {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	job, ok := jq.jobs[id]
	if !ok {
		return
	}
	job.UpdatedAt = time.Now()
	log := slog.With("component", "jobs", "job", id)

	switch {
	case errors.Is(err, context.Canceled):
		job.Status = JobStatusCancelled
		job.Error = "cancelled by user"
		log.Info("job cancelled")
	case err != nil:
		job.Status = JobStatusFailed
		job.Error = err.Error()
		job.ErrorKind = failure.KindOf(err)
		log.Warn("job failed", "kind", job.ErrorKind, "error", err)
	default:
		job.Status = JobStatusCompleted
		job.Progress = 100
		job.Path = path
		log.Info("job completed", "path", path)
	}
}

func (jq *JobQueue) cleanupLoop() {
	for {
		select {
		case <-jq.cleanupTicker.C:
			jq.cleanupOldJobs(time.Now().Add(-jobRetention))
		case <-jq.stopCleanup:
			return
		}
	}
}

func (jq *JobQueue) cleanupOldJobs(cutoff time.Time) {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	for id, job := range jq.jobs {
		if job.finished() && job.UpdatedAt.Before(cutoff) {
			delete(jq.jobs, id)
		}
	}
}

// ClearHistory removes all completed, failed, and cancelled jobs
func (jq *JobQueue) ClearHistory() int {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	count := 0
	for id, job := range jq.jobs {
		if job.finished() {
			delete(jq.jobs, id)
			count++
		}
	}
	return count
}

// RemoveJob removes a single finished job by ID
func (jq *JobQueue) RemoveJob(id string) bool {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	job, ok := jq.jobs[id]
	if !ok || !job.finished() {
		return false
	}
	delete(jq.jobs, id)
	return true
}

// AddJob queues a transfer of sel
func (jq *JobQueue) AddJob(sel *resolver.Selection) (*Job, error) {
	if sel == nil {
		return nil, fmt.Errorf("no selection")
	}
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()

	job := &Job{
		ID:        uuid.NewString(),
		SessionID: sel.SessionID,
		Index:     sel.Index,
		URL:       sel.Entry.URL,
		Filename:  sel.FileName,
		Status:    JobStatusQueued,
		Total:     -1,
		CreatedAt: now,
		UpdatedAt: now,
		selection: sel,
		ctx:       ctx,
		cancel:    cancel,
	}

	jq.mu.Lock()
	defer jq.mu.Unlock()
	if jq.stopped {
		cancel()
		return nil, ErrQueueStopped
	}

	select {
	case jq.queue <- job:
		jq.jobs[job.ID] = job
		slog.Info("job queued", "component", "jobs", "job", job.ID, "session", sel.SessionID, "index", sel.Index)
		snapshot := *job
		return &snapshot, nil
	default:
		cancel()
		return nil, ErrQueueFull
	}
}

// GetJob returns a copy of the job, or nil
func (jq *JobQueue) GetJob(id string) *Job {
	jq.mu.RLock()
	defer jq.mu.RUnlock()

	if job, ok := jq.jobs[id]; ok {
		jobCopy := *job
		return &jobCopy
	}
	return nil
}

// GetAllJobs returns copies of all jobs, oldest first
func (jq *JobQueue) GetAllJobs() []*Job {
	jq.mu.RLock()
	defer jq.mu.RUnlock()

	jobs := make([]*Job, 0, len(jq.jobs))
	for _, job := range jq.jobs {
		jobCopy := *job
		jobs = append(jobs, &jobCopy)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	return jobs
}

// CancelJob cancels a queued or running job
func (jq *JobQueue) CancelJob(id string) bool {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	job, ok := jq.jobs[id]
	if !ok || job.finished() {
		return false
	}
	job.cancel()
	job.Status = JobStatusCancelled
	job.UpdatedAt = time.Now()
	return true
}

func (jq *JobQueue) updateJobStatus(id string, status JobStatus) {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	if job, ok := jq.jobs[id]; ok && !job.finished() {
		job.Status = status
		job.UpdatedAt = time.Now()
	}
}

func (jq *JobQueue) updateJobProgressBytes(id string, written, total int64) {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	if job, ok := jq.jobs[id]; ok {
		job.Written = written
		job.Total = total
		if total > 0 {
			job.Progress = float64(written) / float64(total) * 100
		}
		job.UpdatedAt = time.Now()
	}
}
