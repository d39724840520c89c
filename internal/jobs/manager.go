// Package jobs runs recommendations asynchronously on a bounded worker pool
// and keeps their outcomes in memory for polling.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/npk-advisor/internal/advisor"
	"github.com/iwvelando/npk-advisor/internal/metrics"
	"github.com/iwvelando/npk-advisor/pkg/constants"
	"github.com/iwvelando/npk-advisor/pkg/validation"
	"go.uber.org/zap"
)

var (
	// ErrJobNotFound is returned for unknown or evicted job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrQueueFull is returned when no queue slot is free.
	ErrQueueFull = errors.New("job queue is full")
	// ErrClosed is returned when submitting to a closed manager.
	ErrClosed = errors.New("job manager is closed")
)

// State is the lifecycle position of a job.
type State string

// Job states. SUCCESS means the pipeline ran; the recommendation itself may
// still report a failed optimization.
const (
	StatePending State = "PENDING"
	StateStarted State = "STARTED"
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
)

// Done reports whether the state is terminal.
func (s State) Done() bool {
	return s == StateSuccess || s == StateFailure
}

// Runner produces a recommendation for a request.
type Runner interface {
	Recommend(ctx context.Context, req advisor.Request) (advisor.Recommendation, error)
}

// Job is a snapshot of one submitted request.
type Job struct {
	ID         string                  `json:"job_id"`
	Request    advisor.Request         `json:"request"`
	State      State                   `json:"status"`
	Result     *advisor.Recommendation `json:"result,omitempty"`
	Error      string                  `json:"error,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
	StartedAt  time.Time               `json:"started_at,omitempty"`
	FinishedAt time.Time               `json:"finished_at,omitempty"`
}

// Options size the pool.
type Options struct {
	Workers   int
	QueueSize int
	Retention int
	Timeout   time.Duration
}

// DefaultOptions returns the built-in pool sizing.
func DefaultOptions() Options {
	return Options{
		Workers:   constants.DefaultJobWorkers,
		QueueSize: constants.DefaultJobQueueSize,
		Retention: constants.DefaultJobRetention,
		Timeout:   time.Minute,
	}
}

// Manager owns the queue, the workers and the job table.
type Manager struct {
	logger  *zap.Logger
	runner  Runner
	metrics *metrics.Metrics
	opts    Options

	mu       sync.Mutex
	jobs     map[string]*Job
	finished []string
	closed   bool

	queue chan string
	wg    sync.WaitGroup
}

// NewManager starts opts.Workers workers.
func NewManager(logger *zap.Logger, runner Runner, m *metrics.Metrics, opts Options) (*Manager, error) {
	if runner == nil {
		return nil, fmt.Errorf("job runner cannot be nil")
	}
	if opts.Workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", opts.Workers)
	}
	if opts.QueueSize <= 0 {
		return nil, fmt.Errorf("queue size must be positive, got %d", opts.QueueSize)
	}
	if opts.Retention <= 0 {
		opts.Retention = constants.DefaultJobRetention
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mgr := &Manager{
		logger:  logger,
		runner:  runner,
		metrics: m,
		opts:    opts,
		jobs:    make(map[string]*Job),
		queue:   make(chan string, opts.QueueSize),
	}
	mgr.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go mgr.worker()
	}
	return mgr, nil
}

// Submit validates and enqueues req, returning the pending job.
func (m *Manager) Submit(req advisor.Request) (Job, error) {
	if strings.TrimSpace(req.FieldID) == "" {
		return Job{}, fmt.Errorf("field id cannot be empty")
	}
	if err := validation.ValidateBudget(req.Budget); err != nil {
		return Job{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Job{}, ErrClosed
	}

	job := &Job{
		ID:        uuid.NewString(),
		Request:   req,
		State:     StatePending,
		CreatedAt: time.Now().UTC(),
	}
	select {
	case m.queue <- job.ID:
	default:
		return Job{}, ErrQueueFull
	}
	m.jobs[job.ID] = job
	m.metrics.JobTransition("", string(StatePending))

	m.logger.Info("job submitted",
		zap.String("op", "jobs.Submit"),
		zap.String("job", job.ID),
		zap.String("field", req.FieldID),
		zap.String("crop", req.Crop),
		zap.Float64("budget", req.Budget),
	)
	return snapshot(job), nil
}

// Get returns the current snapshot of job id.
func (m *Manager) Get(id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %q", ErrJobNotFound, id)
	}
	return snapshot(job), nil
}

// Close stops accepting jobs, lets the workers drain the queue and waits
// for them to exit. It is safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for id := range m.queue {
		m.run(id)
	}
}

func (m *Manager) run(id string) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	job.State = StateStarted
	job.StartedAt = time.Now().UTC()
	req := job.Request
	m.mu.Unlock()
	m.metrics.JobTransition(string(StatePending), string(StateStarted))

	rec, err := m.execute(req)

	m.mu.Lock()
	job.FinishedAt = time.Now().UTC()
	if err != nil {
		job.State = StateFailure
		job.Error = err.Error()
	} else {
		job.State = StateSuccess
		job.Result = &rec
	}
	final := job.State
	m.finished = append(m.finished, id)
	var evicted []State
	for len(m.finished) > m.opts.Retention {
		oldest := m.finished[0]
		m.finished = m.finished[1:]
		if old, ok := m.jobs[oldest]; ok {
			evicted = append(evicted, old.State)
			delete(m.jobs, oldest)
		}
	}
	m.mu.Unlock()

	m.metrics.JobTransition(string(StateStarted), string(final))
	for _, state := range evicted {
		m.metrics.JobTransition(string(state), "")
	}

	if err != nil {
		m.logger.Error("job failed",
			zap.String("op", "jobs.run"),
			zap.String("job", id),
			zap.Error(err),
		)
		return
	}
	m.logger.Info("job completed",
		zap.String("op", "jobs.run"),
		zap.String("job", id),
		zap.String("status", rec.Status),
	)
}

func (m *Manager) execute(req advisor.Request) (rec advisor.Recommendation, err error) {
	ctx := context.Background()
	if m.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recommendation panicked: %v", r)
		}
	}()
	return m.runner.Recommend(ctx, req)
}

func snapshot(job *Job) Job {
	out := *job
	if job.Result != nil {
		rec := *job.Result
		out.Result = &rec
	}
	return out
}
