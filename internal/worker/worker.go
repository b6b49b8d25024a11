package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/itstheanurag/snipexec/internal/executor"
	"github.com/itstheanurag/snipexec/internal/metrics"
	"github.com/itstheanurag/snipexec/internal/queue"
)

// Runner executes one request. *executor.Executor implements it.
type Runner interface {
	Execute(ctx context.Context, req executor.Request) executor.Outcome
}

type Worker struct {
	id      int
	runner  Runner
	manager *queue.Manager
	logger  *zerolog.Logger
}

func NewWorker(id int, runner Runner, manager *queue.Manager, logger *zerolog.Logger) *Worker {
	return &Worker{
		id:      id,
		runner:  runner,
		manager: manager,
		logger:  logger,
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.logger.Info().Int("worker_id", w.id).Msg("worker started")
	for {
		select {
		case job := <-w.manager.NextJob():
			w.manager.UpdateQueueMetric()
			metrics.ActiveWorkers.Inc()
			w.processJob(job)
			metrics.ActiveWorkers.Dec()
		case <-ctx.Done():
			w.logger.Info().Int("worker_id", w.id).Msg("worker stopping")
			return
		}
	}
}

func (w *Worker) processJob(job *queue.Job) {
	log := w.logger.With().Int("worker_id", w.id).Str("job_id", job.ID).Str("language", job.Request.Language.Code).Logger()

	// The caller may have given up while the job sat in the queue.
	if err := job.Ctx.Err(); err != nil {
		log.Debug().Err(err).Msg("skipping abandoned job")
		job.Result <- executor.InfrastructureError{Cause: fmt.Errorf("request abandoned: %w", err)}
		return
	}

	log.Info().Msg("processing job")
	job.Result <- w.execute(job)
}

func (w *Worker) execute(job *queue.Job) (out executor.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Int("worker_id", w.id).Str("job_id", job.ID).Interface("panic", r).Msg("job panicked")
			out = executor.InfrastructureError{Cause: fmt.Errorf("execution panicked: %v", r)}
		}
	}()
	return w.runner.Execute(job.Ctx, job.Request)
}
