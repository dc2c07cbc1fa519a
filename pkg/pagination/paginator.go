package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/tcg-catalog-sync/pkg/logging"
	"github.com/Sternrassler/tcg-catalog-sync/pkg/metrics"
)

const (
	defaultPageSize      = 100
	defaultMaxConcurrent = 20
	defaultRoundDelay    = 2 * time.Second
)

// Config holds paginator configuration.
type Config struct {
	// Name labels logs and metrics (e.g. "sets", "products").
	Name string

	// PageSize is the number of items requested per page.
	PageSize int

	// MaxConcurrent is the number of pages fetched in parallel per round.
	MaxConcurrent int

	// RoundDelay is the pause after each round. Zero disables it.
	RoundDelay time.Duration

	// RoundTimeout bounds a single round, delay excluded. Zero means no timeout.
	RoundTimeout time.Duration

	// Logger receives round and page events. Nil means a "paginator"
	// component logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a configuration that keeps the remote API comfortable:
// 20 pages of 100 items per round and a two second pause between rounds.
func DefaultConfig() Config {
	return Config{
		Name:          "items",
		PageSize:      defaultPageSize,
		MaxConcurrent: defaultMaxConcurrent,
		RoundDelay:    defaultRoundDelay,
	}
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "items"
	}
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = defaultMaxConcurrent
	}
	if c.RoundDelay < 0 {
		c.RoundDelay = 0
	}
	return c
}

// logger returns the configured logger tagged with the collection name.
func (c Config) logger() zerolog.Logger {
	base := logging.NewLogger("paginator")
	if c.Logger != nil {
		base = *c.Logger
	}
	return logging.WithKind(base, c.Name)
}

// PageFetcher fetches one page of items starting at offset.
type PageFetcher[T any] interface {
	FetchPage(ctx context.Context, offset, limit int) ([]T, error)
}

// BatchInserter persists a batch and returns the generated identifiers in
// input order.
type BatchInserter[T any] interface {
	InsertBatch(ctx context.Context, items []T) ([]int64, error)
}

// FetchFunc adapts a function to PageFetcher.
type FetchFunc[T any] func(ctx context.Context, offset, limit int) ([]T, error)

// FetchPage calls f(ctx, offset, limit).
func (f FetchFunc[T]) FetchPage(ctx context.Context, offset, limit int) ([]T, error) {
	return f(ctx, offset, limit)
}

// InsertFunc adapts a function to BatchInserter.
type InsertFunc[T any] func(ctx context.Context, items []T) ([]int64, error)

// InsertBatch calls f(ctx, items).
func (f InsertFunc[T]) InsertBatch(ctx context.Context, items []T) ([]int64, error) {
	return f(ctx, items)
}

// RoundFunc receives the percentage reached after a round.
type RoundFunc func(percent int)

// Page is one (offset, limit) window of the paginated range.
type Page struct {
	Offset int
	Limit  int
}

// Round is the set of pages issued concurrently before the next pause.
type Round struct {
	Index int
	Start int
	End   int
	Pages []Page
}

// Plan splits [0, totalCount) into rounds. It returns nil when totalCount is
// zero. Page limits are clipped so that no page reaches past totalCount.
func Plan(totalCount, pageSize, maxConcurrent int) []Round {
	if totalCount <= 0 || pageSize <= 0 || maxConcurrent <= 0 {
		return nil
	}

	roundSpan := min(totalCount, maxConcurrent*pageSize)
	rounds := make([]Round, 0, (totalCount+roundSpan-1)/roundSpan)

	for start := 0; start < totalCount; start += roundSpan {
		end := min(start+roundSpan, totalCount)
		round := Round{Index: len(rounds), Start: start, End: end}
		for offset := start; offset < end; offset += pageSize {
			round.Pages = append(round.Pages, Page{
				Offset: offset,
				Limit:  min(pageSize, end-offset),
			})
		}
		rounds = append(rounds, round)
	}

	return rounds
}

// Paginate fetches and inserts every page of a collection of totalCount items.
// It returns nil when all rounds completed, or the first task error wrapped in
// a *PageError. A cancelled ctx stops scheduling and returns the context error.
func Paginate[T any](
	ctx context.Context,
	cfg Config,
	totalCount int,
	fetcher PageFetcher[T],
	inserter BatchInserter[T],
	onRound RoundFunc,
) error {
	if totalCount < 0 {
		return fmt.Errorf("total count must be >= 0 (got %d)", totalCount)
	}
	if totalCount == 0 {
		return nil
	}
	if fetcher == nil || inserter == nil {
		return errors.New("fetcher and inserter are required")
	}

	cfg = cfg.withDefaults()
	start := time.Now()
	rounds := Plan(totalCount, cfg.PageSize, cfg.MaxConcurrent)
	logger := cfg.logger()

	logger.Info().
		Int("total", totalCount).
		Int("rounds", len(rounds)).
		Int("page_size", cfg.PageSize).
		Int("max_concurrent", cfg.MaxConcurrent).
		Msg("Starting paginated sync")

	for _, round := range rounds {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := runRound(ctx, cfg, logger, round, fetcher, inserter); err != nil {
			return err
		}

		if err := sleep(ctx, cfg.RoundDelay); err != nil {
			return err
		}

		percent := round.Start * 100 / totalCount
		logger.Debug().
			Int(logging.FieldRound, round.Index).
			Int(logging.FieldPercent, percent).
			Msg("Round complete")

		if onRound != nil {
			onRound(percent)
		}
	}

	logger.Info().
		Int("total", totalCount).
		Dur(logging.FieldDuration, time.Since(start)).
		Msg("Paginated sync complete")

	return nil
}

// runRound issues every page of a round concurrently and waits for all of them.
func runRound[T any](
	ctx context.Context,
	cfg Config,
	logger zerolog.Logger,
	round Round,
	fetcher PageFetcher[T],
	inserter BatchInserter[T],
) error {
	roundStart := time.Now()
	defer func() {
		metrics.RoundDuration.WithLabelValues(cfg.Name).Observe(time.Since(roundStart).Seconds())
	}()

	roundCtx := ctx
	if cfg.RoundTimeout > 0 {
		var cancel context.CancelFunc
		roundCtx, cancel = context.WithTimeout(ctx, cfg.RoundTimeout)
		defer cancel()
	}

	logger.Debug().
		Int(logging.FieldRound, round.Index).
		Int("start", round.Start).
		Int("end", round.End).
		Int("pages", len(round.Pages)).
		Msg("Starting round")

	g, gctx := errgroup.WithContext(roundCtx)
	g.SetLimit(cfg.MaxConcurrent)

	for _, page := range round.Pages {
		g.Go(func() error {
			return runPage(gctx, cfg.Name, logger, page, fetcher, inserter)
		})
	}

	if err := g.Wait(); err != nil {
		// Report a caller cancellation as such rather than as a page failure.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	metrics.RoundsTotal.WithLabelValues(cfg.Name).Inc()
	return nil
}

// runPage fetches one page and inserts its batch.
func runPage[T any](
	ctx context.Context,
	kind string,
	logger zerolog.Logger,
	page Page,
	fetcher PageFetcher[T],
	inserter BatchInserter[T],
) error {
	inflight := metrics.InflightFetches.WithLabelValues(kind)
	inflight.Inc()
	items, err := fetcher.FetchPage(ctx, page.Offset, page.Limit)
	inflight.Dec()
	if err != nil {
		metrics.PagesTotal.WithLabelValues(kind, metrics.StageFetch, metrics.ResultError).Inc()
		logger.Warn().
			Err(err).
			Int(logging.FieldOffset, page.Offset).
			Int(logging.FieldLimit, page.Limit).
			Msg("Page fetch failed")
		return &PageError{Stage: StageFetch, Offset: page.Offset, Limit: page.Limit, Err: err}
	}
	metrics.PagesTotal.WithLabelValues(kind, metrics.StageFetch, metrics.ResultOK).Inc()

	if _, err := inserter.InsertBatch(ctx, items); err != nil {
		metrics.PagesTotal.WithLabelValues(kind, metrics.StageInsert, metrics.ResultError).Inc()
		logger.Warn().
			Err(err).
			Int(logging.FieldOffset, page.Offset).
			Int(logging.FieldItems, len(items)).
			Msg("Batch insert failed")
		return &PageError{Stage: StageInsert, Offset: page.Offset, Limit: page.Limit, Err: err}
	}
	metrics.PagesTotal.WithLabelValues(kind, metrics.StageInsert, metrics.ResultOK).Inc()
	metrics.ItemsInserted.WithLabelValues(kind).Add(float64(len(items)))

	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
