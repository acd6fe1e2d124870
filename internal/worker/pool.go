package worker

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Job is a unit of background work. Run receives the job's context, which the
// submitter detaches from any client connection so the work survives a
// disconnect.
type Job struct {
	Name string
	Ctx  context.Context
	Run  func(ctx context.Context) error
}

// ErrQueueFull is returned when the job queue cannot accept more work.
var ErrQueueFull = errors.New("worker queue full")

// Pool executes background jobs on a fixed set of workers. Submit hands back
// a buffered error channel so callers can await the result explicitly instead
// of firing and forgetting.
type Pool struct {
	jobs chan submission
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

type submission struct {
	job    Job
	result chan error
}

// NewPool starts size workers over a queue of queueSize pending jobs.
func NewPool(size, queueSize int) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	p := &Pool{jobs: make(chan submission, queueSize)}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for sub := range p.jobs {
		err := sub.job.Run(sub.job.Ctx)
		if err != nil {
			log.WithError(err).WithField("job", sub.job.Name).Error("background job failed")
		}
		sub.result <- err
	}
}

// Submit enqueues the job and returns a channel carrying its eventual error.
// The channel is buffered, so the result is delivered whether or not the
// caller is still listening.
func (p *Pool) Submit(job Job) (<-chan error, error) {
	if job.Run == nil {
		return nil, errors.New("job run function required")
	}
	if job.Ctx == nil {
		job.Ctx = context.Background()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("worker pool stopped")
	}

	result := make(chan error, 1)
	select {
	case p.jobs <- submission{job: job, result: result}:
		return result, nil
	default:
		return nil, ErrQueueFull
	}
}

// Stop drains pending jobs and waits for the workers to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
