// Package refresh runs dictionary downloads as cancellable background jobs.
//
// A Manager allows one job at a time per destination: starting a new refresh
// cancels the running one and waits for it to clean up before the new
// download opens its own temp file.
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sagerenn/acrodict/internal/fetch"
	"github.com/sagerenn/acrodict/internal/observability"
)

// Fetcher is satisfied by *fetch.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string, onProgress func(fetch.Progress)) error
}

// Sink receives job events from the job goroutine. OnProgress calls arrive
// in transfer order and OnDone is called exactly once, after the last one.
// A nil func is skipped.
type Sink struct {
	OnProgress func(fetch.Progress)
	OnDone     func(err error)
}

type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

type Status struct {
	ID         string         `json:"id"`
	State      State          `json:"state"`
	Progress   fetch.Progress `json:"progress"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
}

type Job struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	state    State
	progress fetch.Progress
	err      error
	started  time.Time
	finished time.Time
}

func (j *Job) ID() string {
	return j.id
}

// Cancel asks the job to stop at its next chunk boundary.
func (j *Job) Cancel() {
	j.cancel()
}

// Done is closed after OnDone has returned.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or ctx is done and returns the job's
// outcome.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		j.mu.Lock()
		defer j.mu.Unlock()
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := Status{
		ID:         j.id,
		State:      j.state,
		Progress:   j.progress,
		StartedAt:  j.started,
		FinishedAt: j.finished,
	}
	if j.err != nil {
		st.Error = j.err.Error()
	}
	return st
}

func (j *Job) setProgress(p fetch.Progress) {
	j.mu.Lock()
	j.progress = p
	j.mu.Unlock()
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

func (j *Job) finish(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.err = err
	j.finished = time.Now()
	switch {
	case err == nil:
		j.state = StateSucceeded
	case canceled(err):
		j.state = StateCanceled
	default:
		j.state = StateFailed
	}
}

type Manager struct {
	fetcher   Fetcher
	url       string
	dest      string
	onSuccess func() error
	log       *observability.Logger

	mu      sync.Mutex
	current *Job
	closed  bool
}

// NewManager downloads url to dest. onSuccess runs after every successful
// download, before the job reports completion; its error fails the job.
func NewManager(f Fetcher, url, dest string, onSuccess func() error, log *observability.Logger) *Manager {
	return &Manager{
		fetcher:   f,
		url:       url,
		dest:      dest,
		onSuccess: onSuccess,
		log:       log,
	}
}

// ErrClosed is the outcome of a job started after Close. Such a job ends in
// StateCanceled without fetching.
var ErrClosed = errors.New("refresh manager closed")

func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed)
}

// Refresh starts a download, superseding any job still in flight.
func (m *Manager) Refresh(sink Sink) *Job {
	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		id:      newJobID(),
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   StatePending,
		started: time.Now(),
	}

	m.mu.Lock()
	prev := m.current
	closed := m.closed
	if !closed {
		m.current = job
	}
	m.mu.Unlock()

	if closed {
		cancel()
		go m.complete(job, sink, ErrClosed)
		return job
	}
	if prev != nil {
		select {
		case <-prev.done:
		default:
			prev.Cancel()
			m.log.Info("refresh superseded", "job", prev.id, "by", job.id)
		}
	}
	go m.run(ctx, job, prev, sink)
	return job
}

// Current returns the most recently started job, if any.
func (m *Manager) Current() (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.current != nil
}

// Close cancels the current job and waits for it.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	job := m.current
	m.mu.Unlock()
	if job != nil {
		job.Cancel()
		<-job.done
	}
}

func (m *Manager) run(ctx context.Context, job *Job, prev *Job, sink Sink) {
	defer job.cancel()
	if prev != nil {
		<-prev.done
	}
	if err := ctx.Err(); err != nil {
		m.complete(job, sink, err)
		return
	}

	job.setState(StateRunning)
	observability.FetchesTotal.Add(1)
	m.log.Info("refresh started", "job", job.id, "url", m.url, "dest", m.dest)

	var transferred int64
	err := m.fetcher.Fetch(ctx, m.url, m.dest, func(p fetch.Progress) {
		transferred = p.Transferred
		job.setProgress(p)
		if sink.OnProgress != nil {
			sink.OnProgress(p)
		}
	})
	observability.FetchBytes.Add(transferred)
	if err == nil && m.onSuccess != nil {
		err = m.onSuccess()
	}
	m.complete(job, sink, err)
}

func (m *Manager) complete(job *Job, sink Sink, err error) {
	job.finish(err)
	switch {
	case err == nil:
		m.log.Info("refresh finished", "job", job.id)
	case canceled(err):
		m.log.Info("refresh canceled", "job", job.id, "reason", err)
	default:
		observability.FetchFailures.Add(1)
		m.log.Error("refresh failed", "job", job.id, "error", err)
	}
	if sink.OnDone != nil {
		sink.OnDone(err)
	}
	close(job.done)
}

func newJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// LogSink logs progress at debug level once per ten percent, or once per MiB
// when the total is unknown.
func LogSink(log *observability.Logger) Sink {
	last := int64(-1)
	return Sink{
		OnProgress: func(p fetch.Progress) {
			step := p.Transferred >> 20
			if !p.Indeterminate() {
				step = int64(p.Percent() / 10)
			}
			if step == last {
				return
			}
			last = step
			if p.Indeterminate() {
				log.Debug("refresh progress", "bytes", p.Transferred)
				return
			}
			log.Debug("refresh progress", "bytes", p.Transferred, "total", p.Total, "percent", p.Percent())
		},
	}
}
