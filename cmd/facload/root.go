package main

import (
	"context"
	"errors"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sigls/facload/internal/config"
	"github.com/sigls/facload/internal/db"
	"github.com/sigls/facload/internal/exitcode"
	"github.com/sigls/facload/internal/logging"
	"github.com/sigls/facload/internal/promote"
	"github.com/sigls/facload/internal/store"
)

var cfg = config.Defaults()

var rootCmd = &cobra.Command{
	Use:   "facload",
	Short: "Health facility staging → production reconciler",
	Long: "Stages raw facility/doctor/specialty extracts into Postgres and promotes " +
		"curated groups into the canonical facility dataset.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfg.ConfigPath == "" {
			return nil
		}
		return cfg.LoadFromFile(cfg.ConfigPath)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfg.DSN, "dsn", os.Getenv("FACLOAD_DB_URL"), "Postgres connection string (or set FACLOAD_DB_URL)")
	pf.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	pf.StringVar(&cfg.ConfigPath, "config", "", "Optional YAML file with tunables")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitcode.UsageError)
	}
}

// connect validates the DSN and opens a pool, exiting on failure.
func connect(ctx context.Context, log zerolog.Logger) *pgxpool.Pool {
	if err := cfg.ValidateDSN(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	pool, err := db.NewPool(ctx, cfg.DSN)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		os.Exit(exitcode.DBConnError)
	}
	return pool
}

func newService(pool *pgxpool.Pool, log zerolog.Logger) *promote.Service {
	return promote.NewService(store.NewPostgres(pool), log, promote.OptionsFromConfig(&cfg))
}

func setupLog() zerolog.Logger {
	return logging.Setup(cfg.LogFormat, cfg.LogLevel)
}

// exitOnError logs err and exits with the code matching its kind.
func exitOnError(log zerolog.Logger, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	os.Exit(exitCodeFor(err))
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, promote.ErrRecordNotFound), errors.Is(err, promote.ErrFacilityNotFound):
		return exitcode.NotFound
	case errors.Is(err, promote.ErrStoreConflict), errors.Is(err, promote.ErrOriginCollision):
		return exitcode.Conflict
	case errors.Is(err, promote.ErrAlreadyPromoted), errors.Is(err, promote.ErrMissingGeocode),
		errors.Is(err, promote.ErrNoGroupKey):
		return exitcode.PreconditionFailed
	case errors.Is(err, promote.ErrInvalidStatus):
		return exitcode.UsageError
	}
	return exitcode.TransformError
}
