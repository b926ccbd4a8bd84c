package sandbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// StartReaper runs a background goroutine that periodically force-removes
// leftover run containers. Runs normally remove their own container; the
// reaper covers containers orphaned by a process crash mid-run.
func StartReaper(ctx context.Context, cli *client.Client, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Sandbox reaper started", "interval", interval, "max_age", maxAge)

		for {
			select {
			case <-ticker.C:
				reapStaleContainers(ctx, cli, maxAge)
			case <-ctx.Done():
				slog.Info("Sandbox reaper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func reapStaleContainers(ctx context.Context, cli *client.Client, maxAge time.Duration) {
	listFilters := filters.NewArgs(filters.Arg("label", runLabel+"=1"))
	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: listFilters,
	})
	if err != nil {
		slog.Error("Reaper failed to list run containers", "error", err)
		return
	}

	cutoff := time.Now().Add(-maxAge).Unix()
	reaped := 0
	for _, c := range containers {
		if c.Created >= cutoff {
			continue
		}
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			if errdefs.IsNotFound(err) {
				continue
			}
			slog.Warn("Reaper failed to remove container", "container_id", c.ID, "error", err)
			continue
		}
		reaped++
	}
	if reaped > 0 {
		slog.Info("Reaper removed stale run containers", "count", reaped)
	}
}
