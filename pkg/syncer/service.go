// Package syncer runs a full catalog synchronization: lookup tables first,
// then card sets, then products with their SKUs, reporting progress as a lazy
// sequence of Progress values.
package syncer

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/tcg-catalog-sync/pkg/catalog"
	"github.com/Sternrassler/tcg-catalog-sync/pkg/logging"
	"github.com/Sternrassler/tcg-catalog-sync/pkg/metrics"
	"github.com/Sternrassler/tcg-catalog-sync/pkg/pagination"
	"github.com/Sternrassler/tcg-catalog-sync/pkg/store"
)

// Run results used as metric labels.
const (
	resultSuccess   = "success"
	resultFailure   = "failure"
	resultCancelled = "cancelled"
)

// RemoteCatalog is the source of catalog data.
type RemoteCatalog interface {
	Rarities(ctx context.Context) ([]catalog.Rarity, error)
	Printings(ctx context.Context) ([]catalog.Printing, error)
	Conditions(ctx context.Context) ([]catalog.Condition, error)
	Sets(ctx context.Context, offset, limit int) (*catalog.Page[catalog.CardSet], error)
	Products(ctx context.Context, offset, limit int) (*catalog.Page[catalog.Product], error)
}

// LocalStore persists catalog rows. Every method returns the stored ids in
// input order and must be safe for concurrent use.
type LocalStore interface {
	InsertRarities(ctx context.Context, rows []store.CardRarity) ([]int64, error)
	InsertPrintings(ctx context.Context, rows []store.Printing) ([]int64, error)
	InsertConditions(ctx context.Context, rows []store.Condition) ([]int64, error)
	InsertCardSets(ctx context.Context, rows []store.CardSet) ([]int64, error)
	InsertProducts(ctx context.Context, rows []store.Product) ([]int64, error)
	InsertSkus(ctx context.Context, rows []store.Sku) ([]int64, error)
}

// Config holds the sync configuration.
type Config struct {
	// Pagination applies to both sets and products. Name is set per kind.
	Pagination pagination.Config
}

// DefaultConfig returns the default sync configuration.
func DefaultConfig() Config {
	return Config{Pagination: pagination.DefaultConfig()}
}

// Service synchronizes the remote catalog into the local store.
type Service struct {
	remote RemoteCatalog
	local  LocalStore
	config Config
	logger zerolog.Logger
}

// New creates a new sync service.
func New(remote RemoteCatalog, local LocalStore, cfg Config) (*Service, error) {
	if remote == nil {
		return nil, fmt.Errorf("remote catalog is required")
	}
	if local == nil {
		return nil, fmt.Errorf("local store is required")
	}
	if cfg.Pagination.PageSize < 0 || cfg.Pagination.MaxConcurrent < 0 {
		return nil, fmt.Errorf("page size and max concurrent must be >= 0")
	}

	return &Service{
		remote: remote,
		local:  local,
		config: cfg,
		logger: logging.NewLogger("syncer"),
	}, nil
}

// Sync returns a sequence that runs one full synchronization when iterated.
// It yields Loading(0), non-decreasing Loading percentages, then Success or
// Failure, and always Idle last. If ctx is cancelled the run stops without a
// Failure and still ends with Idle. Breaking out of the loop stops the run.
func (s *Service) Sync(ctx context.Context) iter.Seq[Progress] {
	return s.SyncRun(ctx, uuid.NewString())
}

// SyncRun is Sync with a caller-chosen run id for logs and state snapshots.
func (s *Service) SyncRun(ctx context.Context, runID string) iter.Seq[Progress] {
	return func(yield func(Progress) bool) {
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		r := &run{
			Service: s,
			yield:   yield,
			cancel:  cancel,
			logger:  logging.WithRun(s.logger, runID),
		}
		r.execute(runCtx)
	}
}

// run is the state of one iteration of a Sync sequence. It is confined to
// the iterating goroutine.
type run struct {
	*Service

	yield   func(Progress) bool
	cancel  context.CancelFunc
	logger  zerolog.Logger
	stopped bool
	percent int

	// Items handled by earlier phases and by the whole run, for percentages.
	before     int
	phaseTotal int
	grandTotal int
}

// emit yields p unless the consumer has stopped. It returns false once the
// consumer is gone, cancelling the run.
func (r *run) emit(p Progress) bool {
	if r.stopped {
		return false
	}
	if !r.yield(p) {
		r.stopped = true
		r.cancel()
		return false
	}
	return true
}

func (r *run) execute(ctx context.Context) {
	start := time.Now()
	r.logger.Info().Msg("Sync started")
	metrics.ProgressPercent.Set(0)

	if !r.emit(Loading(0)) {
		metrics.RunsTotal.WithLabelValues(resultCancelled).Inc()
		return
	}

	err := r.sync(ctx)

	switch {
	case r.stopped:
		metrics.RunsTotal.WithLabelValues(resultCancelled).Inc()
		r.logger.Info().Msg("Sync abandoned by consumer")
		return
	case err == nil:
		metrics.RunsTotal.WithLabelValues(resultSuccess).Inc()
		r.logger.Info().Dur(logging.FieldDuration, time.Since(start)).Msg("Sync complete")
		if !r.emit(Success()) {
			return
		}
	case ctx.Err() != nil:
		metrics.RunsTotal.WithLabelValues(resultCancelled).Inc()
		r.logger.Info().Err(err).Msg("Sync cancelled")
	default:
		metrics.RunsTotal.WithLabelValues(resultFailure).Inc()
		r.logger.Error().Err(err).Dur(logging.FieldDuration, time.Since(start)).Msg("Sync failed")
		if !r.emit(Failure(err.Error())) {
			return
		}
	}

	r.emit(Idle())
}

func (r *run) sync(ctx context.Context) error {
	var (
		rarities      []catalog.Rarity
		printings     []catalog.Printing
		conditions    []catalog.Condition
		setsTotal     int
		productsTotal int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		rarities, err = fetchLookup(gctx, KindRarities, r.remote.Rarities)
		return err
	})
	g.Go(func() (err error) {
		printings, err = fetchLookup(gctx, KindPrintings, r.remote.Printings)
		return err
	})
	g.Go(func() (err error) {
		conditions, err = fetchLookup(gctx, KindConditions, r.remote.Conditions)
		return err
	})
	g.Go(func() (err error) {
		setsTotal, err = fetchTotal(gctx, KindSets, r.remote.Sets)
		return err
	})
	g.Go(func() (err error) {
		productsTotal, err = fetchTotal(gctx, KindProducts, r.remote.Products)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	r.logger.Info().
		Int("rarities", len(rarities)).
		Int("printings", len(printings)).
		Int("conditions", len(conditions)).
		Int("sets", setsTotal).
		Int("products", productsTotal).
		Msg("Lookups and totals fetched")

	if _, err := persist(ctx, KindRarities, toRarities(rarities), r.local.InsertRarities); err != nil {
		return err
	}
	if _, err := persist(ctx, KindPrintings, toPrintings(printings), r.local.InsertPrintings); err != nil {
		return err
	}
	if _, err := persist(ctx, KindConditions, toConditions(conditions), r.local.InsertConditions); err != nil {
		return err
	}

	r.grandTotal = setsTotal + productsTotal

	r.startPhase(0, setsTotal)
	err := pagination.Paginate(ctx, r.paginationConfig(KindSets), setsTotal,
		pagination.FetchFunc[catalog.CardSet](r.fetchSets),
		pagination.InsertFunc[catalog.CardSet](r.insertSets),
		r.onRound,
	)
	if err != nil {
		return err
	}

	r.startPhase(setsTotal, productsTotal)
	return pagination.Paginate(ctx, r.paginationConfig(KindProducts), productsTotal,
		pagination.FetchFunc[catalog.Product](r.fetchProducts),
		pagination.InsertFunc[catalog.Product](r.insertProducts),
		r.onRound,
	)
}

func (r *run) paginationConfig(kind string) pagination.Config {
	cfg := r.config.Pagination
	cfg.Name = kind
	cfg.Logger = &r.logger
	return cfg
}

func (r *run) startPhase(before, total int) {
	r.before = before
	r.phaseTotal = total
}

// onRound maps a phase percentage onto the whole run and emits it.
func (r *run) onRound(phasePercent int) {
	if r.grandTotal <= 0 {
		return
	}
	overall := (r.before + phasePercent*r.phaseTotal/100) * 100 / r.grandTotal
	overall = max(r.percent, min(overall, 100))
	r.percent = overall
	metrics.ProgressPercent.Set(float64(overall))
	r.logger.Info().Int(logging.FieldPercent, overall).Msg("Sync progress")
	r.emit(Loading(overall))
}

func (r *run) fetchSets(ctx context.Context, offset, limit int) ([]catalog.CardSet, error) {
	page, err := r.remote.Sets(ctx, offset, limit)
	if err != nil {
		return nil, &NetworkError{Kind: KindSets, Offset: offset, Limit: limit, Err: err}
	}
	return itemsOf(page), nil
}

func (r *run) insertSets(ctx context.Context, items []catalog.CardSet) ([]int64, error) {
	return persist(ctx, KindSets, toCardSets(items), r.local.InsertCardSets)
}

func (r *run) fetchProducts(ctx context.Context, offset, limit int) ([]catalog.Product, error) {
	page, err := r.remote.Products(ctx, offset, limit)
	if err != nil {
		return nil, &NetworkError{Kind: KindProducts, Offset: offset, Limit: limit, Err: err}
	}
	return itemsOf(page), nil
}

// insertProducts writes the batch's products, then each product's SKUs as a
// separate write keyed on the parent's stored id.
func (r *run) insertProducts(ctx context.Context, items []catalog.Product) ([]int64, error) {
	ids, err := persist(ctx, KindProducts, toProducts(items), r.local.InsertProducts)
	if err != nil {
		return nil, err
	}
	for i, p := range items {
		if len(p.Skus) == 0 {
			continue
		}
		if _, err := persist(ctx, KindSkus, toSkus(p.Skus, ids[i]), r.local.InsertSkus); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func fetchLookup[T any](ctx context.Context, kind string, fetch func(context.Context) ([]T, error)) ([]T, error) {
	items, err := fetch(ctx)
	if err != nil {
		return nil, &NetworkError{Kind: kind, Err: err}
	}
	return items, nil
}

// itemsOf treats a nil page as empty.
func itemsOf[T any](page *catalog.Page[T]) []T {
	if page == nil {
		return nil
	}
	return page.Items
}

// fetchTotal reads a collection's size from a one-item page.
func fetchTotal[T any](
	ctx context.Context,
	kind string,
	fetch func(context.Context, int, int) (*catalog.Page[T], error),
) (int, error) {
	page, err := fetch(ctx, 0, 1)
	if err != nil {
		return 0, &NetworkError{Kind: kind, Limit: 1, Err: err}
	}
	if page == nil {
		// Nothing to paginate.
		return 0, nil
	}
	if page.TotalCount < 0 {
		return 0, &NetworkError{Kind: kind, Limit: 1, Err: fmt.Errorf("negative total count %d", page.TotalCount)}
	}
	return page.TotalCount, nil
}

// persist writes rows and checks that one id came back per row.
func persist[T any](
	ctx context.Context,
	kind string,
	rows []T,
	insert func(context.Context, []T) ([]int64, error),
) ([]int64, error) {
	ids, err := insert(ctx, rows)
	if err != nil {
		return nil, &PersistenceError{Kind: kind, Err: err}
	}
	if len(ids) != len(rows) {
		return nil, &PersistenceError{
			Kind: kind,
			Err:  fmt.Errorf("%w: got %d for %d rows", ErrIDCountMismatch, len(ids), len(rows)),
		}
	}
	return ids, nil
}
