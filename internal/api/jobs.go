package api

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"flashgen/internal/services"
)

const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusComplete   = "complete"
	JobStatusFailed     = "failed"

	jobRetention = time.Hour
)

// GenerationJob tracks the background processing of one generation request.
type GenerationJob struct {
	ID         string    `json:"jobId"`
	Status     string    `json:"status"`
	Step       string    `json:"step,omitempty"`
	Message    string    `json:"message,omitempty"`
	Current    int       `json:"current"`
	Total      int       `json:"total"`
	Percent    int       `json:"percent"`
	Candidates int       `json:"candidates"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// JobFunc runs one job and returns the number of stored candidates.
type JobFunc func(ctx context.Context, progress services.ProgressCallback) (int, error)

// JobManager runs generation jobs on a bounded set of goroutines and keeps
// their progress for status polling.
type JobManager struct {
	mu     sync.RWMutex
	jobs   map[string]*GenerationJob
	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

func NewJobManager(workers int, logger *zap.Logger) *JobManager {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &JobManager{
		jobs:   make(map[string]*GenerationJob),
		sem:    make(chan struct{}, workers),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Submit registers a job under id and starts it once a worker slot is free.
func (m *JobManager) Submit(id string, run JobFunc) *GenerationJob {
	now := time.Now().UTC()
	job := &GenerationJob{
		ID:        id,
		Status:    JobStatusQueued,
		Step:      "queued",
		Message:   "Waiting for a free worker",
		Total:     100,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.pruneLocked(now)
	m.jobs[id] = job
	snapshot := job.clone()
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(id, run)

	return snapshot
}

func (m *JobManager) run(id string, run JobFunc) {
	defer m.wg.Done()

	select {
	case m.sem <- struct{}{}:
	case <-m.ctx.Done():
		m.MarkFailed(id, "server is shutting down")
		return
	}
	defer func() { <-m.sem }()

	m.MarkProcessing(id)
	progress := func(step, message string, current, total int) {
		m.UpdateProgress(id, step, message, current, total)
	}

	count, err := run(m.ctx, progress)
	if err != nil {
		m.logger.Warn("generation job failed", zap.String("job_id", id), zap.Error(err))
		m.MarkFailed(id, err.Error())
		return
	}
	m.MarkCompleted(id, count)
}

func (m *JobManager) GetJob(id string) (*GenerationJob, bool) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

func (m *JobManager) MarkProcessing(id string) {
	m.withJob(id, func(job *GenerationJob) {
		job.Status = JobStatusProcessing
		job.Step = "starting"
		job.Message = "Starting"
	})
}

func (m *JobManager) UpdateProgress(id, step, message string, current, total int) {
	m.withJob(id, func(job *GenerationJob) {
		job.Step = step
		job.Message = message
		job.Current = current
		job.Total = total
		job.Percent = percent(current, total)
	})
}

func (m *JobManager) MarkCompleted(id string, candidates int) {
	m.withJob(id, func(job *GenerationJob) {
		job.Status = JobStatusComplete
		job.Step = "complete"
		job.Message = "Generation complete"
		job.Current = 100
		job.Total = 100
		job.Percent = 100
		job.Candidates = candidates
	})
}

func (m *JobManager) MarkFailed(id string, msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "generation failed"
	}
	m.withJob(id, func(job *GenerationJob) {
		job.Status = JobStatusFailed
		job.Step = "failed"
		job.Message = msg
		job.Error = msg
		job.Percent = 100
	})
}

// Wait blocks until every submitted job has finished.
func (m *JobManager) Wait() {
	m.wg.Wait()
}

// Shutdown waits for running jobs until ctx expires, then cancels them.
func (m *JobManager) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		<-done
		return ctx.Err()
	}
}

func (m *JobManager) withJob(id string, fn func(job *GenerationJob)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
}

// pruneLocked drops finished jobs older than jobRetention.
func (m *JobManager) pruneLocked(now time.Time) {
	for id, job := range m.jobs {
		finished := job.Status == JobStatusComplete || job.Status == JobStatusFailed
		if finished && now.Sub(job.UpdatedAt) > jobRetention {
			delete(m.jobs, id)
		}
	}
}

func (job *GenerationJob) clone() *GenerationJob {
	if job == nil {
		return nil
	}
	copyJob := *job
	return &copyJob
}

func percent(current, total int) int {
	if total <= 0 || current <= 0 {
		return 0
	}
	if current >= total {
		return 100
	}
	return int((float64(current) / float64(total)) * 100)
}
