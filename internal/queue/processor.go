package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stakevault/backend/internal/logger"
)

// Handler processes one job. A returned error sends the job back for retry.
type Handler func(ctx context.Context, job Job) error

// Processor runs registered handlers over jobs pulled from a Backend
type Processor struct {
	backend     Backend
	handlers    map[JobType]Handler
	workerCount int
	pollTimeout time.Duration
	wg          sync.WaitGroup
	cancel      context.CancelFunc
	log         *logger.Logger
}

// NewProcessor creates a new Processor
func NewProcessor(backend Backend, workerCount int, log *logger.Logger) *Processor {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Processor{
		backend:     backend,
		handlers:    make(map[JobType]Handler),
		workerCount: workerCount,
		pollTimeout: time.Second,
		log:         log.Component("processor"),
	}
}

// Handle registers a handler for a job type. Register before Start.
func (p *Processor) Handle(jobType JobType, handler Handler) {
	p.handlers[jobType] = handler
}

// Start starts the workers. They stop when ctx is cancelled or Stop is called.
func (p *Processor) Start(ctx context.Context) {
	types := make([]JobType, 0, len(p.handlers))
	for t := range p.handlers {
		types = append(types, t)
	}
	if len(types) == 0 {
		p.log.Warn().Msg("No job handlers registered, processor not started")
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.log.Info().Int("workers", p.workerCount).Msg("Starting job processor")
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i, types)
	}
}

// Stop stops the workers and waits for running jobs to finish
func (p *Processor) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.wg.Wait()
	p.log.Info().Msg("Job processor stopped")
}

func (p *Processor) worker(ctx context.Context, id int, types []JobType) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.backend.Dequeue(ctx, p.pollTimeout, types...)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error().Err(err).Int("worker", id).Msg("Error getting job from queue")
			time.Sleep(p.pollTimeout)
			continue
		}
		if job == nil {
			continue
		}

		if err := p.ProcessJob(ctx, job); err != nil {
			p.log.Warn().Err(err).Int("worker", id).Str("job_id", job.ID).Msg("Job failed")
		}
	}
}

// ProcessJob runs the handler for job and records the outcome
func (p *Processor) ProcessJob(ctx context.Context, job *Job) error {
	if job == nil {
		return fmt.Errorf("nil job")
	}

	handler, ok := p.handlers[job.Type]
	if !ok {
		err := fmt.Errorf("no handler registered for job type: %s", job.Type)
		if failErr := p.backend.Fail(ctx, job, err); failErr != nil {
			p.log.Error().Err(failErr).Str("job_id", job.ID).Msg("Error marking job as failed")
		}
		return err
	}

	if err := p.run(ctx, handler, job); err != nil {
		if failErr := p.backend.Fail(ctx, job, err); failErr != nil {
			p.log.Error().Err(failErr).Str("job_id", job.ID).Msg("Error marking job as failed")
		}
		return fmt.Errorf("job processing failed: %w", err)
	}

	if err := p.backend.Complete(ctx, job); err != nil {
		p.log.Error().Err(err).Str("job_id", job.ID).Msg("Error marking job as completed")
	}
	return nil
}

// run turns a handler panic into a job failure
func (p *Processor) run(ctx context.Context, handler Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, *job)
}
