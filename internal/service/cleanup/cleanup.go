package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	serviceName = "cleanup"

	DefaultInterval = time.Minute
)

type Schedule interface {
	Due(ctx context.Context, now time.Time) ([]string, error)
	Remove(ctx context.Context, path string) error
}

type DirRemover interface {
	RemoveDir(dir string) error
}

// Expirer is a store that cannot expire entries by itself.
type Expirer interface {
	Expire(now time.Time) int
}

type SweeperService struct {
	schedule Schedule
	files    DirRemover
	expirers []Expirer
	sweeping atomic.Bool
	now      func() time.Time
	log      *slog.Logger
}

func NewSweeperService(schedule Schedule, files DirRemover, log *slog.Logger) *SweeperService {
	return &SweeperService{
		schedule: schedule,
		files:    files,
		now:      time.Now,
		log:      log.With(slog.String("service", serviceName)),
	}
}

// WithExpirer makes every sweep drop expired entries of e as well.
func (s *SweeperService) WithExpirer(e Expirer) *SweeperService {
	s.expirers = append(s.expirers, e)

	return s
}

// Sweep deletes every job directory whose retention has passed and returns how many were removed.
// Concurrent calls are collapsed into the running one.
func (s *SweeperService) Sweep(ctx context.Context) (int, error) {
	if !s.sweeping.CompareAndSwap(false, true) {
		s.log.Debug("Sweep is already running")

		return 0, nil
	}
	defer s.sweeping.Store(false)

	now := s.now()
	for _, e := range s.expirers {
		if n := e.Expire(now); n > 0 {
			s.log.Debug("Expired records dropped", slog.Int("count", n))
		}
	}

	paths, err := s.schedule.Due(ctx, now)
	if err != nil {
		s.log.Error("Cannot get due paths", slog.Any("error", err))

		return 0, fmt.Errorf("cannot get due paths: %w", err)
	}

	var removed int
	for _, path := range paths {
		if err := s.files.RemoveDir(path); err != nil {
			// Refused paths are unscheduled as well, otherwise they come back every sweep.
			s.log.Error("Cannot remove dir", slog.String("path", path), slog.Any("error", err))
		} else {
			removed++
		}

		if err := s.schedule.Remove(ctx, path); err != nil {
			s.log.Error("Cannot unschedule path", slog.String("path", path), slog.Any("error", err))
		}
	}

	if len(paths) > 0 {
		s.log.Info("Sweep done", slog.Int("due", len(paths)), slog.Int("removed", removed))
	}

	return removed, nil
}

// Run sweeps every interval until ctx is done.
func (s *SweeperService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.Warn("Sweep failed", slog.Any("error", err))
			}
		}
	}
}
