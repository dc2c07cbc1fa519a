package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/tcg-catalog-sync/internal/config"
	"github.com/Sternrassler/tcg-catalog-sync/pkg/catalog"
	"github.com/Sternrassler/tcg-catalog-sync/pkg/logging"
	"github.com/Sternrassler/tcg-catalog-sync/pkg/pagination"
	"github.com/Sternrassler/tcg-catalog-sync/pkg/syncer"
	"github.com/Sternrassler/tcg-catalog-sync/pkg/syncstate"
)

// errSyncFailed is returned when a run ends in Failure.
var errSyncFailed = errors.New("sync failed")

func newSyncCmd() *cobra.Command {
	var clearFirst bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Download the full catalog into the local database",
		Long: `Fetches rarities, printings and conditions, then every card set and every
product with its SKUs. Existing rows are updated in place. Use --clear to
empty the local catalog first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), configFrom(cmd.Context()), clearFirst, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&clearFirst, "clear", false, "clear the local catalog before syncing")
	return cmd
}

func runSync(ctx context.Context, cfg *config.Config, clearFirst bool, out io.Writer) error {
	runID := uuid.NewString()
	logger := logging.WithRun(log.Logger, runID)

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	tracker, closeTracker, err := openTracker(ctx, cfg)
	switch {
	case errors.Is(err, errNoRedis):
		logger.Debug().Msg("Redis not configured, running without lock and snapshots")
	case err != nil:
		return fmt.Errorf("connect redis: %w", err)
	}
	defer closeTracker()

	runCtx, cancelRun := context.WithCancelCause(ctx)
	defer cancelRun(nil)

	if tracker != nil {
		if err := tracker.AcquireLock(ctx, runID, cfg.Redis.LockTTL); err != nil {
			return err
		}
		defer func() {
			if err := tracker.ReleaseLock(context.WithoutCancel(ctx), runID); err != nil {
				logger.Warn().Err(err).Msg("Failed to release sync lock")
			}
		}()
		stopRefresh := tracker.KeepLock(runCtx, runID, cfg.Redis.LockTTL, cancelRun)
		defer stopRefresh()
	}

	if cfg.Metrics.Addr != "" {
		stop := serveMetrics(cfg.Metrics.Addr)
		defer stop()
	}

	if clearFirst {
		if err := db.ClearCatalog(ctx); err != nil {
			return fmt.Errorf("clear catalog: %w", err)
		}
	}

	client, err := catalog.New(catalog.Config{
		BaseURL:      cfg.Catalog.BaseURL,
		CategoryID:   cfg.Catalog.CategoryID,
		ProductTypes: cfg.Catalog.ProductTypes,
		UserAgent:    cfg.Catalog.UserAgent,
		Timeout:      cfg.Catalog.Timeout,
	})
	if err != nil {
		return err
	}

	svc, err := syncer.New(client, db, syncer.Config{
		Pagination: pagination.Config{
			PageSize:      cfg.Sync.PageSize,
			MaxConcurrent: cfg.Sync.MaxConcurrent,
			RoundDelay:    cfg.Sync.RoundDelay,
			RoundTimeout:  cfg.Sync.RoundTimeout,
		},
	})
	if err != nil {
		return err
	}

	var failure *syncer.Progress
	for p := range svc.SyncRun(runCtx, runID) {
		fmt.Fprintln(out, p)
		if tracker != nil {
			snap := syncstate.Snapshot{RunID: runID, Progress: p}
			if err := tracker.Publish(context.WithoutCancel(ctx), snap); err != nil {
				logger.Warn().Err(err).Msg("Failed to publish snapshot")
			}
		}
		if p.State == syncer.StateFailure {
			failure = &p
		}
	}

	if failure != nil {
		return fmt.Errorf("%w: %s", errSyncFailed, failure.Message)
	}
	if runCtx.Err() != nil {
		return context.Cause(runCtx)
	}

	counts, err := db.Counts(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "stored: %d rarities, %d printings, %d conditions, %d sets, %d products, %d skus\n",
		counts.Rarities, counts.Printings, counts.Conditions, counts.CardSets, counts.Products, counts.Skus)
	return nil
}

// serveMetrics exposes Prometheus metrics until the returned stop func runs.
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("Serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}
