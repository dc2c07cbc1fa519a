package main

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/tcg-catalog-sync/internal/config"
	"github.com/Sternrassler/tcg-catalog-sync/pkg/logging"
	"github.com/Sternrassler/tcg-catalog-sync/pkg/store"
	"github.com/Sternrassler/tcg-catalog-sync/pkg/syncstate"
)

type configKeyType struct{}

var configKey configKeyType

var errNoRedis = errors.New("redis.addr is not configured")

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "catalog-sync",
		Short: "Mirror a remote trading-card catalog into a local database",
		Long: `catalog-sync downloads the lookup tables, card sets and products of a
trading-card catalog API in bounded concurrent rounds and stores them in a
local SQLite database.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			logging.Setup(logging.Options{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				Output: cmd.ErrOrStderr(),
			})

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./catalog-sync.yaml)")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

func configFrom(ctx context.Context) *config.Config {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok {
		panic("config not loaded")
	}
	return cfg
}

func openStore(cfg *config.Config) (*store.Store, error) {
	return store.Open(cfg.Store.Path, store.Options{
		BatchSize: cfg.Store.BatchSize,
		LogSQL:    cfg.Store.LogSQL,
	})
}

// openTracker connects to Redis. It returns errNoRedis when Redis is not
// configured.
func openTracker(ctx context.Context, cfg *config.Config) (*syncstate.Tracker, func(), error) {
	if cfg.Redis.Addr == "" {
		return nil, func() {}, errNoRedis
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, func() {}, err
	}
	log.Debug().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")

	tracker := syncstate.NewTracker(client, cfg.Redis.Prefix, logging.NewLogger("syncstate"))
	return tracker, func() { client.Close() }, nil
}
