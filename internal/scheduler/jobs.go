package scheduler

import (
	"context"
	"time"
)

type SessionRefresher interface {
	RefreshAll(ctx context.Context) error
}

type SessionPurger interface {
	Purge(ctx context.Context, idle time.Duration) (int64, error)
}

type Sweeper interface {
	Sweep() int
}

// Maintenance lists the periodic housekeeping of the admin server.
type Maintenance struct {
	RefreshSpec string
	Refresher   SessionRefresher
	Purger      SessionPurger
	SessionIdle time.Duration
	Editors     Sweeper
	Pollers     Sweeper
}

// Register adds the housekeeping jobs: user refresh on RefreshSpec, session
// purge hourly, editor and poller sweeps every minute.
func (s *Scheduler) Register(m Maintenance) error {
	if m.Refresher != nil && m.RefreshSpec != "" {
		if err := s.Add(m.RefreshSpec, "session-refresh", m.Refresher.RefreshAll); err != nil {
			return err
		}
	}
	if m.Purger != nil {
		idle := m.SessionIdle
		if idle <= 0 {
			idle = 7 * 24 * time.Hour
		}
		err := s.Add("@every 1h", "session-purge", func(ctx context.Context) error {
			n, err := m.Purger.Purge(ctx, idle)
			if n > 0 {
				s.logger.Info("purged admin sessions", "count", n)
			}
			return err
		})
		if err != nil {
			return err
		}
	}
	for name, sweeper := range map[string]Sweeper{"editor-sweep": m.Editors, "poller-sweep": m.Pollers} {
		if sweeper == nil {
			continue
		}
		sw, jobName := sweeper, name
		err := s.Add("@every 1m", jobName, func(context.Context) error {
			if n := sw.Sweep(); n > 0 {
				s.logger.Info("closed idle workers", "job", jobName, "count", n)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
