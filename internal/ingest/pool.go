package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/docchat/internal/rag"
)

// ErrQueueFull is returned by Submit when the queue has no room.
var ErrQueueFull = errors.New("ingest queue is full")

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("ingest pool is stopped")

// FileIngester is the part of the orchestrator a worker drives.
type FileIngester interface {
	IngestFile(ctx context.Context, fileName string, data []byte) (rag.IngestResult, error)
}

// Config sizes the pool.
type Config struct {
	Workers       int
	QueueSize     int
	JobTTL        time.Duration
	CleanupPeriod time.Duration // 0 selects 5 minutes
}

// Pool feeds queued uploads to a fixed set of workers.
type Pool struct {
	jobs   *JobStore
	queue  chan *Job
	ingest FileIngester
	log    *slog.Logger
	cfg    Config

	mu      sync.RWMutex
	stopped bool

	cancel  context.CancelFunc
	workers sync.WaitGroup
	cleanup sync.WaitGroup
}

func NewPool(cfg Config, ingester FileIngester, log *slog.Logger) *Pool {
	cfg.Workers = max(1, cfg.Workers)
	cfg.QueueSize = max(1, cfg.QueueSize)
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = 5 * time.Minute
	}
	return &Pool{
		jobs:   NewJobStore(cfg.JobTTL),
		queue:  make(chan *Job, cfg.QueueSize),
		ingest: ingester,
		log:    log,
		cfg:    cfg,
	}
}

// Start launches worker goroutines. Cancelling ctx stops the cleanup loop but
// not queued jobs: a job handed to a worker always runs to completion.
func (p *Pool) Start(ctx context.Context) {
	cleanupCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	jobCtx := context.WithoutCancel(ctx)

	for i := range p.cfg.Workers {
		p.workers.Add(1)
		go func() {
			defer p.workers.Done()
			for job := range p.queue {
				p.process(jobCtx, i, job)
			}
		}()
	}

	p.cleanup.Add(1)
	go func() {
		defer p.cleanup.Done()
		ticker := time.NewTicker(p.cfg.CleanupPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				p.jobs.Cleanup()
			}
		}
	}()
}

// Stop rejects new jobs, lets workers drain the queue and waits for them.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.workers.Wait()
	if p.cancel != nil {
		p.cancel()
	}
	p.cleanup.Wait()
}

// Submit queues one upload and returns its job. A full queue fails the job
// immediately instead of blocking the caller.
func (p *Pool) Submit(fileName string, data []byte) (*Job, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return nil, ErrStopped
	}

	job := p.jobs.NewJob(fileName, data)
	select {
	case p.queue <- job:
		p.log.Info("job queued", "job_id", job.ID, "file_name", fileName)
		return job, nil
	default:
		job.Fail(StatusFailed, "queue", ErrQueueFull.Error())
		return job, ErrQueueFull
	}
}

// Job returns a job by id, or nil once it has expired.
func (p *Pool) Job(id string) *Job {
	return p.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (p *Pool) QueueDepth() int {
	return len(p.queue)
}

func (p *Pool) process(ctx context.Context, worker int, job *Job) {
	log := p.log.With("job_id", job.ID, "file_name", job.FileName, "worker", worker)
	job.SetStatus(StatusRunning)

	// A started document runs to completion; the orchestrator ignores
	// cancellation once it holds the document lock.
	res, err := p.ingest.IngestFile(ctx, job.FileName, job.takeData())
	if err != nil {
		var dup *rag.DuplicateDocumentError
		status := StatusFailed
		if errors.As(err, &dup) {
			status = StatusDuplicate
		}
		job.Fail(status, rag.Stage(err), err.Error())
		log.Warn("job failed", "stage", rag.Stage(err), "error", err)
		return
	}
	job.Complete(res.ChunksIndexed)
	log.Info("job completed", "chunks", res.ChunksIndexed)
}
