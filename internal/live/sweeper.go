package live

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically reconciles persisted presence with the registry,
// catching rows left online by an unclean shutdown.
type Sweeper struct {
	registry *Registry
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewSweeper creates a presence sweeper running every five minutes.
func NewSweeper(log *slog.Logger, registry *Registry) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		registry: registry,
		cron:     cron.New(),
		logger:   log.With(slog.String("service", "presence_sweeper")),
	}
}

// Start runs one immediate reconcile pass and schedules the periodic one.
func (s *Sweeper) Start(ctx context.Context) error {
	s.registry.ReconcilePresence(ctx)
	_, err := s.cron.AddFunc("@every 5m", func() {
		s.registry.ReconcilePresence(context.Background())
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("presence sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (s *Sweeper) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}
