package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/identityhub/internal/domain"
	"github.com/aryan0dhankhar/identityhub/internal/observability/metrics"
)

// StatsWorker periodically refreshes directory-level gauges so the
// metrics endpoint reflects the store without a query per scrape.
type StatsWorker struct {
	directory domain.UserDirectory
	logger    *slog.Logger
	interval  time.Duration
}

// NewStatsWorker creates a new stats worker
func NewStatsWorker(directory domain.UserDirectory, logger *slog.Logger, interval time.Duration) *StatsWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsWorker{
		directory: directory,
		logger:    logger,
		interval:  interval,
	}
}

// Start runs the refresh loop until the context is cancelled.
func (w *StatsWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("stats worker started", slog.Duration("interval", w.interval))
	w.refresh()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stats worker stopped")
			return
		case <-ticker.C:
			w.refresh()
		}
	}
}

func (w *StatsWorker) refresh() {
	_, total, err := w.directory.List(domain.ListFilter{}, 1, 0)
	if err != nil {
		w.logger.Warn("failed to refresh user count", slog.String("error", err.Error()))
		return
	}
	metrics.SetRegisteredUsers(total)
}
