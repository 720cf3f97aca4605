package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultJobTimeout = time.Minute

// job adapts a context aware function to cron.Job.
type job struct {
	name    string
	timeout time.Duration
	base    context.Context
	fn      func(ctx context.Context) error
	logger  *slog.Logger
}

func (j *job) Name() string { return j.name }

func (j *job) Run() {
	ctx, cancel := context.WithTimeout(j.base, j.timeout)
	defer cancel()
	if err := j.fn(ctx); err != nil {
		j.logger.Warn("job failed", "job", j.name, "error", err)
	}
}

// Scheduler 封装 cron 实例，负责后台维护任务的注册、启动与停止。
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	base   context.Context
	cancel context.CancelFunc
}

func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("system", "cron")
	c := cron.New(cron.WithChain(
		recoverWrapper(logger),
		loggingWrapper(logger),
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))
	base, cancel := context.WithCancel(context.Background())
	return &Scheduler{cron: c, logger: logger, base: base, cancel: cancel}
}

// Add registers fn under a cron spec such as "@every 10m".
func (s *Scheduler) Add(spec, name string, fn func(ctx context.Context) error) error {
	j := &job{name: name, timeout: defaultJobTimeout, base: s.base, fn: fn, logger: s.logger}
	if _, err := s.cron.AddJob(spec, j); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.logger.Info("job registered", "job", name, "spec", spec)
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}
