package scheduler

import (
	"context"
	"fmt"

	"marketplace_quotes_backend/internal/quoting/service"
	"marketplace_quotes_backend/platform/config"
	"marketplace_quotes_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Sweeps runs the two time based sweeps.
type Sweeps interface {
	SweepInvites(ctx context.Context) (int, error)
	SweepQuotations(ctx context.Context) (int, error)
}

// JobMatcher reruns matching for a job.
type JobMatcher interface {
	MatchJob(ctx context.Context, jobID uuid.UUID) (service.MatchResult, error)
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	sweeps  Sweeps
	matcher JobMatcher
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, sweeps Sweeps, matcher JobMatcher, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := &Worker{
		server:  server,
		sweeps:  sweeps,
		matcher: matcher,
		log:     log,
	}
	w.mux = w.routes()

	return w, nil
}

func (w *Worker) routes() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskSweepInvites, w.handleSweepInvites)
	mux.HandleFunc(TaskSweepQuotations, w.handleSweepQuotations)
	mux.HandleFunc(TaskMatchJob, w.handleMatchJob)
	return mux
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleSweepInvites(ctx context.Context, _ *asynq.Task) error {
	_, err := w.sweeps.SweepInvites(ctx)
	return err
}

func (w *Worker) handleSweepQuotations(ctx context.Context, _ *asynq.Task) error {
	_, err := w.sweeps.SweepQuotations(ctx)
	return err
}

func (w *Worker) handleMatchJob(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseMatchJobPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	jobID, err := uuid.Parse(payload.JobID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	res, err := w.matcher.MatchJob(ctx, jobID)
	if err != nil {
		return err
	}
	if res.Degraded && !res.RetryScheduled {
		return fmt.Errorf("matching job %s still degraded", jobID)
	}

	w.log.Info("match retry completed", "job_id", jobID, "invites", len(res.Invites), "degraded", res.Degraded)
	return nil
}
