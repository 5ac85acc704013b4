// Package ingest runs uploads asynchronously on a bounded worker pool.
package ingest

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// JobStatus represents the state of an ingestion job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusDuplicate JobStatus = "duplicate"
	StatusFailed    JobStatus = "failed"
)

// Job tracks the state of a single queued upload.
type Job struct {
	mu sync.Mutex

	ID       string
	FileName string

	status    JobStatus
	chunks    int
	stage     string
	err       string
	createdAt time.Time
	updatedAt time.Time

	// Raw upload, released once the job finishes.
	data []byte
}

func newJob(id, fileName string, data []byte) *Job {
	now := time.Now()
	return &Job{
		ID:        id,
		FileName:  fileName,
		status:    StatusQueued,
		data:      data,
		createdAt: now,
		updatedAt: now,
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = status
	j.updatedAt = time.Now()
}

// Complete records a committed document.
func (j *Job) Complete(chunks int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = StatusCompleted
	j.chunks = chunks
	j.data = nil
	j.updatedAt = time.Now()
}

// Fail records why the job did not commit anything.
func (j *Job) Fail(status JobStatus, stage, msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = status
	j.stage = stage
	j.err = msg
	j.data = nil
	j.updatedAt = time.Now()
}

func (j *Job) takeData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.data
}

func (j *Job) lastUpdate() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.updatedAt
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID            string    `json:"job_id"`
	FileName      string    `json:"file_name"`
	Status        JobStatus `json:"status"`
	ChunksIndexed int       `json:"chunks_indexed"`
	Stage         string    `json:"stage,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobSnapshot{
		ID:            j.ID,
		FileName:      j.FileName,
		Status:        j.status,
		ChunksIndexed: j.chunks,
		Stage:         j.stage,
		Error:         j.err,
		CreatedAt:     j.createdAt,
		UpdatedAt:     j.updatedAt,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	ttl     time.Duration
	entropy io.Reader
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs:    make(map[string]*Job),
		ttl:     ttl,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewJob registers a queued job under a fresh ULID. Ids sort by creation time.
func (s *JobStore) NewJob(fileName string, data []byte) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
	job := newJob(id, fileName, data)
	s.jobs[id] = job
	return job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes finished jobs that have not changed within the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		snap := job.Snapshot()
		if snap.Status == StatusQueued || snap.Status == StatusRunning {
			continue
		}
		if now.Sub(job.lastUpdate()) > s.ttl {
			delete(s.jobs, id)
		}
	}
}
