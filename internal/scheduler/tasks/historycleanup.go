package tasks

import (
	"context"

	"github.com/riptide/riptide/internal/history"
	"github.com/riptide/riptide/internal/scheduler"
)

const HistoryCleanupTaskID = "history-cleanup"

// RegisterHistoryCleanupTask registers the daily download-history cleanup.
// Entries older than retentionDays are deleted each night at 2 AM.
func RegisterHistoryCleanupTask(sched *scheduler.Scheduler, historyService *history.Service, retentionDays int) error {
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:   HistoryCleanupTaskID,
		Name: "History Cleanup",
		Cron: "0 2 * * *",
		Func: func(ctx context.Context) error {
			_, err := historyService.PruneOlderThan(ctx, retentionDays)
			return err
		},
	})
}
