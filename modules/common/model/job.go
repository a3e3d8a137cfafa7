package model

import (
	"sync"
	"time"
)

// JobKind - remote generation request type
type JobKind string

const (
	KindImageEdit     JobKind = "image-edit"
	KindVideoGenerate JobKind = "video-generate"
)

// JobStatus - Job lifecycle: pending → running → {succeeded | failed}
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
)

// IsTerminal - succeeded and failed never transition again
func (s JobStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ProgressCap - highest heuristic progress before the remote reports done
const ProgressCap = 90

// PollState - transient poll counter, present only while running
type PollState struct {
	Attempts int `json:"attempts"`
	Progress int `json:"progress"`
}

// Job - one remote generation request
// Safe for concurrent use; the poll goroutine writes while handlers read.
type Job struct {
	mu sync.RWMutex

	id          string
	kind        JobKind
	input       EncodedPayload
	submittedAt time.Time
	updatedAt   time.Time
	handle      string
	status      JobStatus
	poll        *PollState
	progress    int
	result      *Asset
	err         error
}

// NewJob - pending Job for the given payload
func NewJob(id string, kind JobKind, input EncodedPayload, now time.Time) *Job {
	return &Job{
		id:          id,
		kind:        kind,
		input:       input,
		submittedAt: now,
		updatedAt:   now,
		status:      StatusPending,
	}
}

func (j *Job) ID() string { return j.id }

func (j *Job) Kind() JobKind { return j.kind }

func (j *Job) SubmittedAt() time.Time { return j.submittedAt }

// Input - the payload this Job was submitted with
func (j *Job) Input() EncodedPayload { return j.input }

func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

func (j *Job) Handle() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.handle
}

func (j *Job) Progress() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.progress
}

// Err - failure cause; nil unless failed
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

// Result - the produced asset, only once succeeded
func (j *Job) Result() (Asset, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.status != StatusSucceeded || j.result == nil {
		return Asset{}, false
	}
	return *j.result, true
}

// Start - pending → running, recording the remote operation handle if any
func (j *Job) Start(handle string, now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusPending {
		return false
	}
	j.status = StatusRunning
	j.handle = handle
	j.poll = &PollState{}
	j.updatedAt = now
	return true
}

// Advance - record one poll iteration; progress never decreases and stays below 100
func (j *Job) Advance(step int, now time.Time) (PollState, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusRunning || j.poll == nil {
		return PollState{}, false
	}
	j.poll.Attempts++
	next := j.poll.Progress + step
	if next > ProgressCap {
		next = ProgressCap
	}
	if next > j.poll.Progress {
		j.poll.Progress = next
	}
	j.progress = j.poll.Progress
	j.updatedAt = now
	return *j.poll, true
}

// Succeed - running → succeeded with the result asset
func (j *Job) Succeed(result Asset, now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusRunning {
		return false
	}
	j.status = StatusSucceeded
	j.result = &result
	j.progress = 100
	j.poll = nil
	j.updatedAt = now
	return true
}

// Fail - any non-terminal state → failed
func (j *Job) Fail(err error, now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.IsTerminal() {
		return false
	}
	j.status = StatusFailed
	j.err = err
	j.poll = nil
	j.updatedAt = now
	return true
}

// JobSnapshot - immutable view of a Job for rendering and transport
type JobSnapshot struct {
	ID           string    `json:"job_id"`
	Kind         JobKind   `json:"kind"`
	Status       JobStatus `json:"status"`
	Handle       string    `json:"operation,omitempty"`
	Progress     int       `json:"progress"`
	Attempts     int       `json:"attempts,omitempty"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Result       *Asset    `json:"-"`
	SubmittedAt  time.Time `json:"submitted_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Snapshot - consistent copy of the Job's current state
func (j *Job) Snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	snap := JobSnapshot{
		ID:          j.id,
		Kind:        j.kind,
		Status:      j.status,
		Handle:      j.handle,
		Progress:    j.progress,
		SubmittedAt: j.submittedAt,
		UpdatedAt:   j.updatedAt,
	}
	if j.poll != nil {
		snap.Attempts = j.poll.Attempts
	}
	if j.err != nil {
		snap.ErrorKind = KindOf(j.err)
		snap.ErrorMessage = j.err.Error()
	}
	if j.status == StatusSucceeded && j.result != nil {
		result := *j.result
		snap.Result = &result
	}
	return snap
}
