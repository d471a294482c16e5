package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/sportmind/intake/internal/database"
)

const maintenanceTimeout = 5 * time.Minute

// NewMaintenanceJob returns the scheduled task that trims old transcripts
// and compacts the database.
func NewMaintenanceJob(store database.Store, retentionDays int, log *slog.Logger) func() {
	log = log.With("task", "db_maintenance")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
		defer cancel()

		startTime := time.Now()
		cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

		removed, err := store.TrimTranscripts(ctx, cutoff)
		if err != nil {
			log.ErrorContext(ctx, "transcript trim failed", "error", err)
			return
		}

		if err := store.RunMaintenance(ctx); err != nil {
			log.ErrorContext(ctx, "database maintenance failed", "error", err)
			return
		}

		log.InfoContext(ctx, "maintenance task completed",
			"removed_transcripts", removed,
			"retention_days", retentionDays,
			"duration_ms", time.Since(startTime).Milliseconds())
	}
}
