package syncclient

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs background sync cycles and other periodic jobs. A job
// still running when its next tick fires is skipped, and a panicking job is
// recovered and logged.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	l := cronLogger{logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddSync runs client.SyncOnce every interval. Errors are logged and never
// stop the loop.
func (s *Scheduler) AddSync(client *Client, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", interval)
	}
	s.cron.Schedule(cron.Every(interval), s.job("sync", client.SyncOnce))
	return nil
}

// AddFunc runs fn on a cron spec such as "@every 1h" or "0 3 * * *".
func (s *Scheduler) AddFunc(name, spec string, fn func(ctx context.Context) error) error {
	if _, err := s.cron.AddJob(spec, s.job(name, fn)); err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	return nil
}

func (s *Scheduler) job(name string, fn func(ctx context.Context) error) cron.Job {
	return cron.FuncJob(func() {
		start := time.Now()
		if err := fn(s.ctx); err != nil {
			s.logger.Warn("scheduled job failed", "job", name, "error", err)
			return
		}
		s.logger.Debug("scheduled job done", "job", name, "duration", time.Since(start))
	})
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling, cancels running jobs' context and waits for them
// to return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Entries reports how many jobs are scheduled.
func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

// cronLogger forwards cron's logging to slog.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, kv ...any) { c.l.Debug("cron: "+msg, kv...) }

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error("cron: "+msg, append(kv, "error", err)...)
}
