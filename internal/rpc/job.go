package rpc

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one background run owned by a Job.
type Task struct {
	ID      string
	Started time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// Done is closed when the task's goroutine returns.
func (t *Task) Done() <-chan struct{} { return t.done }

// Running reports whether the goroutine is still executing.
func (t *Task) Running() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the task returns or timeout elapses. It reports whether
// the task returned.
func (t *Task) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		<-t.done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	}
}

// Superseded describes the task a Start replaced.
type Superseded struct {
	Task *Task
	// Joined is false when the task did not return within the join timeout.
	Joined bool
}

// Job holds at most one running task. Starting a new task cancels the
// previous one and waits for it up to the join timeout.
type Job struct {
	mu          sync.Mutex
	startMu     sync.Mutex
	current     *Task
	joinTimeout time.Duration
	log         *zap.Logger
	now         func() time.Time
}

// NewJob creates an empty job slot.
func NewJob(joinTimeout time.Duration, log *zap.Logger) *Job {
	if log == nil {
		log = zap.NewNop()
	}
	return &Job{joinTimeout: joinTimeout, log: log.Named("job"), now: time.Now}
}

// Current returns the last started task, running or not.
func (j *Job) Current() (*Task, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.current, j.current != nil
}

// Running reports whether a task is executing.
func (j *Job) Running() bool {
	t, ok := j.Current()
	return ok && t.Running()
}

// Start cancels and joins the running task, calls onSuperseded with it,
// then runs fn on a new goroutine. fn's context is cancelled by Cancel,
// by a later Start or by Close, never by the caller's request.
func (j *Job) Start(id string, fn func(ctx context.Context), onSuperseded func(Superseded)) *Task {
	j.startMu.Lock()
	defer j.startMu.Unlock()

	if prev, ok := j.Current(); ok && prev.Running() {
		prev.cancel()
		joined := prev.Wait(j.joinTimeout)
		if !joined {
			j.log.Warn("previous task did not stop within the join timeout",
				zap.String("task", prev.ID), zap.Duration("timeout", j.joinTimeout))
		}
		if onSuperseded != nil {
			onSuperseded(Superseded{Task: prev, Joined: joined})
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{ID: id, Started: j.now(), cancel: cancel, done: make(chan struct{})}
	j.mu.Lock()
	j.current = t
	j.mu.Unlock()

	go func() {
		defer close(t.done)
		defer cancel()
		defer func() {
			if p := recover(); p != nil {
				j.log.Error("task panicked", zap.String("task", id), zap.Any("panic", p), zap.Stack("stack"))
			}
		}()
		fn(ctx)
	}()
	j.log.Debug("task started", zap.String("task", id))
	return t
}

// Cancel cancels the running task without waiting for it. It reports
// whether a task was running.
func (j *Job) Cancel() (*Task, bool) {
	t, ok := j.Current()
	if !ok || !t.Running() {
		return nil, false
	}
	t.cancel()
	return t, true
}

// Close cancels the running task and waits for it until ctx is done.
func (j *Job) Close(ctx context.Context) error {
	t, ok := j.Cancel()
	if !ok {
		return nil
	}
	select {
	case <-t.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs maps device ids to their job slot.
type Jobs struct {
	mu          sync.Mutex
	jobs        map[string]*Job
	joinTimeout time.Duration
	log         *zap.Logger
}

// NewJobs creates an empty registry whose jobs share joinTimeout.
func NewJobs(joinTimeout time.Duration, log *zap.Logger) *Jobs {
	return &Jobs{jobs: make(map[string]*Job), joinTimeout: joinTimeout, log: log}
}

// For returns the job slot of deviceID, creating it on first use.
func (r *Jobs) For(deviceID string) *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[deviceID]
	if !ok {
		j = NewJob(r.joinTimeout, r.log)
		r.jobs[deviceID] = j
	}
	return j
}

// Close closes every job.
func (r *Jobs) Close(ctx context.Context) error {
	r.mu.Lock()
	jobs := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.Unlock()
	for _, j := range jobs {
		if err := j.Close(ctx); err != nil {
			return err
		}
	}
	return nil
}
