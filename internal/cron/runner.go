package cronrunner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one scheduled unit of work. A returned error is logged, never retried.
type Job func(ctx context.Context) error

type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context

	mu   sync.Mutex
	jobs map[string]cron.Job
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds(), cron.WithLogger(zapCronLogger{logger.Sugar()})),
		logger:  logger,
		baseCtx: baseCtx,
		jobs:    map[string]cron.Job{},
	}
}

// Add schedules job under name. Runs of the same job never overlap and a
// panic inside one run is recovered and logged.
func (r *Runner) Add(name, spec string, job Job) (cron.EntryID, error) {
	if job == nil {
		return 0, errors.New("cron: nil job")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[name]; ok {
		return 0, fmt.Errorf("cron: job %q already registered", name)
	}
	logger := zapCronLogger{r.logger.Sugar()}
	wrapped := cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(func() {
		r.run(name, job)
	}))
	id, err := r.cron.AddJob(spec, wrapped)
	if err != nil {
		return 0, fmt.Errorf("cron: job %q: %w", name, err)
	}
	r.jobs[name] = wrapped
	return id, nil
}

// RunNow executes a registered job synchronously, subject to the same
// overlap guard as scheduled runs.
func (r *Runner) RunNow(name string) error {
	r.mu.Lock()
	job, ok := r.jobs[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("cron: unknown job %q", name)
	}
	job.Run()
	return nil
}

func (r *Runner) run(name string, job Job) {
	if err := r.baseCtx.Err(); err != nil {
		return
	}
	start := time.Now()
	err := job(r.baseCtx)
	fields := []zap.Field{zap.String("job", name), zap.Duration("took", time.Since(start))}
	if err != nil {
		r.logger.Error("cron job failed", append(fields, zap.Error(err))...)
		return
	}
	r.logger.Info("cron job done", fields...)
}

func (r *Runner) Start() {
	r.logger.Info("cron started", zap.Int("jobs", len(r.cron.Entries())))
	r.cron.Start()
}

// Stop halts scheduling and waits for running jobs to return.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}

type zapCronLogger struct {
	s *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
