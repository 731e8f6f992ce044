package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pbaille/osintdeck/internal/api"
	"github.com/pbaille/osintdeck/internal/tld"
)

// refreshCheckInterval is how often serve evaluates the refresh schedule
const refreshCheckInterval = time.Hour

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			engine, repo, err := a.engine()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			server := api.New(api.Deps{
				Engine:     engine,
				Extractor:  a.extractor,
				Classifier: a.classifier,
				TLDs:       a.oracle,
				Logger:     a.logger,
			}, addr)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return server.Run(ctx) })
			g.Go(func() error {
				refreshLoop(ctx, a.oracle, a.cfg.TLD.RefreshSchedule, a.logger)
				return nil
			})
			g.Go(func() error {
				syncLoop(ctx, a.cfg.Store.SyncInterval, a.logger, map[string]syncer{
					"tld":        a.oracle,
					"classifier": a.classifier,
				})
				return nil
			})
			if a.cfg.Catalog.Watch {
				g.Go(func() error { return repo.Watch(ctx) })
			}
			return g.Wait()
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "server address (overrides server.addr)")
	return cmd
}

// refreshLoop refreshes the TLD reference whenever the schedule says it is
// due, checking once at start and then every refreshCheckInterval
func refreshLoop(ctx context.Context, o *tld.Oracle, schedule string, logger *slog.Logger) {
	ticker := time.NewTicker(refreshCheckInterval)
	defer ticker.Stop()

	for {
		due, err := o.RefreshDue(schedule, time.Now())
		if err != nil {
			logger.Error("invalid tld refresh schedule", "schedule", schedule, "error", err)
			return
		}
		if due {
			// failures are logged by the oracle; the previous set stays in use
			o.Refresh(ctx)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// syncer reloads in-memory state from the shared store
type syncer interface {
	Sync(ctx context.Context) (bool, error)
}

// syncLoop picks up writes made by other processes sharing the store, such
// as CLI sample edits or a refresh run from another host
func syncLoop(ctx context.Context, interval time.Duration, logger *slog.Logger, syncers map[string]syncer) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for name, s := range syncers {
			if _, err := s.Sync(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("sync from store failed", "component", name, "error", err)
			}
		}
	}
}
