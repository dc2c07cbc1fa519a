// Package store is the local catalog database backed by SQLite through gorm.
//
// Every insert is an upsert keyed on the remote identifier, so repeating a
// sync refreshes rows in place. Inserts return the stored identifiers in
// input order.
//
// # Usage
//
//	db, err := store.Open("catalog.db")
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	ids, err := db.InsertCardSets(ctx, sets)
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/Sternrassler/tcg-catalog-sync/pkg/logging"
)

// DefaultBatchSize is the number of rows written per INSERT statement.
const DefaultBatchSize = 200

// Options configures Open.
type Options struct {
	// BatchSize is the number of rows per INSERT statement (default DefaultBatchSize).
	BatchSize int

	// LogSQL enables gorm's SQL logging.
	LogSQL bool
}

// Store is the local catalog database. Inserts are keyed on the remote id:
// a row whose id already exists is replaced by the new values, and rows a
// write does not mention are left alone. ClearCatalog is the only delete.
type Store struct {
	db        *gorm.DB
	batchSize int
	logger    zerolog.Logger
}

// Open opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for a throwaway database.
func Open(path string, opts ...Options) (*Store, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}

	logMode := logger.Silent
	if o.LogSQL {
		logMode = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logMode),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	// SQLite allows a single writer; concurrent batch inserts queue on this
	// connection. An in-memory database also only exists per connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(models()...); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	l := logging.NewLogger("store")
	l.Debug().Str("path", path).Msg("Database initialized")

	return &Store{db: db, batchSize: o.BatchSize, logger: l}, nil
}

// DB returns the underlying gorm handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ClearCatalog deletes every catalog row, children before parents, in one
// transaction.
func (s *Store) ClearCatalog(ctx context.Context) error {
	all := models()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := len(all) - 1; i >= 0; i-- {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(all[i]).Error; err != nil {
				return fmt.Errorf("clear %T: %w", all[i], err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info().Msg("Catalog cleared")
	return nil
}

// Counts returns the number of rows per table.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	db := s.db.WithContext(ctx)
	targets := []struct {
		model any
		dst   *int64
	}{
		{&CardRarity{}, &c.Rarities},
		{&Printing{}, &c.Printings},
		{&Condition{}, &c.Conditions},
		{&CardSet{}, &c.CardSets},
		{&Product{}, &c.Products},
		{&Sku{}, &c.Skus},
	}
	for _, t := range targets {
		if err := db.Model(t.model).Count(t.dst).Error; err != nil {
			return Counts{}, fmt.Errorf("count %T: %w", t.model, err)
		}
	}
	return c, nil
}

// ErrMissingID is returned when a row to insert has no identifier.
var ErrMissingID = errors.New("row has no identifier")

// InsertRarities upserts rarities and returns their ids in input order.
func (s *Store) InsertRarities(ctx context.Context, rows []CardRarity) ([]int64, error) {
	return upsert(ctx, s, rows, func(r CardRarity) int64 { return r.ID })
}

// InsertPrintings upserts printings and returns their ids in input order.
func (s *Store) InsertPrintings(ctx context.Context, rows []Printing) ([]int64, error) {
	return upsert(ctx, s, rows, func(r Printing) int64 { return r.ID })
}

// InsertConditions upserts conditions and returns their ids in input order.
func (s *Store) InsertConditions(ctx context.Context, rows []Condition) ([]int64, error) {
	return upsert(ctx, s, rows, func(r Condition) int64 { return r.ID })
}

// InsertCardSets upserts card sets and returns their ids in input order.
func (s *Store) InsertCardSets(ctx context.Context, rows []CardSet) ([]int64, error) {
	return upsert(ctx, s, rows, func(r CardSet) int64 { return r.ID })
}

// InsertProducts upserts products and returns their ids in input order.
func (s *Store) InsertProducts(ctx context.Context, rows []Product) ([]int64, error) {
	return upsert(ctx, s, rows, func(r Product) int64 { return r.ID })
}

// InsertSkus upserts SKUs and returns their ids in input order.
func (s *Store) InsertSkus(ctx context.Context, rows []Sku) ([]int64, error) {
	return upsert(ctx, s, rows, func(r Sku) int64 { return r.ID })
}

// upsert writes rows in chunks, replacing rows whose primary key exists.
// Duplicate keys within one call are written once, last one wins.
func upsert[T any](ctx context.Context, s *Store, rows []T, id func(T) int64) ([]int64, error) {
	if len(rows) == 0 {
		return []int64{}, nil
	}

	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = id(r)
		if ids[i] == 0 {
			return nil, fmt.Errorf("insert %T at index %d: %w", r, i, ErrMissingID)
		}
	}

	batch := dedupe(rows, ids)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(&batch, s.batchSize).Error
	if err != nil {
		return nil, fmt.Errorf("insert %T: %w", rows[0], err)
	}
	return ids, nil
}

// dedupe keeps the last row per id. A single INSERT ... ON CONFLICT cannot
// touch the same key twice.
func dedupe[T any](rows []T, ids []int64) []T {
	last := make(map[int64]int, len(ids))
	for i, id := range ids {
		last[id] = i
	}
	if len(last) == len(rows) {
		return rows
	}
	out := make([]T, 0, len(last))
	for i, id := range ids {
		if last[id] == i {
			out = append(out, rows[i])
		}
	}
	return out
}
