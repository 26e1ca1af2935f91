package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/labtranscriber/labtranscriber/internal/config"
	"github.com/labtranscriber/labtranscriber/internal/domain/labreport"
	"github.com/labtranscriber/labtranscriber/internal/extract"
	"github.com/labtranscriber/labtranscriber/internal/paramconfig"
	"github.com/labtranscriber/labtranscriber/internal/platform/blobstore"
	"github.com/labtranscriber/labtranscriber/internal/platform/db"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "labtranscriber",
		Short:         "Extract lab values from report text into a categorized summary",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().String("params", "", "Parameter configuration file (overrides PARAMS_FILE)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (overrides LOG_LEVEL)")

	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(batchCmd())
	rootCmd.AddCommand(diagnoseCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(mcpCmd())
	return rootCmd
}

// loadConfig reads the application configuration and applies the persistent
// flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if p, _ := cmd.Flags().GetString("params"); p != "" {
		cfg.ParamsFile = p
	}
	if l, _ := cmd.Flags().GetString("log-level"); l != "" {
		cfg.LogLevel = l
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger. It writes to w, never stdout, so
// command output and the MCP stream stay clean.
func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(w).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func newService(cfg *config.Config, repo labreport.Repository, logger zerolog.Logger) (*labreport.Service, *paramconfig.Store) {
	configs := paramconfig.NewStore(cfg.ParamsFile, logger)
	svc := labreport.NewService(repo, configs, labreport.Options{
		FuzzyThreshold: cfg.FuzzyThreshold,
		Policy:         cfg.Policy(),
		Order:          cfg.OutputOrder,
		Logger:         logger,
	})
	return svc, configs
}

// storage is the lab report store selected by the configuration.
type storage struct {
	repo    labreport.Repository
	health  db.Pinger
	backend string
	pool    *pgxpool.Pool
	close   func()
}

// openStorage connects to Postgres when DATABASE_URL is set and falls back
// to the local SQLite file otherwise.
func openStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*storage, error) {
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to database")
		return &storage{
			repo:    labreport.NewRepoPG(pool),
			health:  pool,
			backend: "postgres",
			pool:    pool,
			close:   pool.Close,
		}, nil
	}

	path := cfg.SQLitePath()
	repo, err := labreport.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("path", path).Msg("opened local database")
	return &storage{
		repo:    repo,
		health:  repo,
		backend: "sqlite",
		close:   func() { repo.Close() },
	}, nil
}

// documentStore keeps uploaded originals under DATA_DIR/documents.
func documentStore(cfg *config.Config) (*blobstore.DirBlobStore, error) {
	return blobstore.NewDirBlobStore(filepath.Join(cfg.DataDir, "documents"))
}

// saveDocument parses and stores the document at path ("-" is stdin).
func saveDocument(ctx context.Context, svc *labreport.Service, path string, stdin io.Reader) (*labreport.LabReport, error) {
	if path == "-" {
		return svc.CreateFromDocument(ctx, "stdin.txt", stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return svc.CreateFromDocument(ctx, filepath.Base(path), f)
}

// readDocument returns the text of the document at path; "-" reads stdin as
// plain text.
func readDocument(ctx context.Context, path string, stdin io.Reader) (string, error) {
	if path == "-" {
		return extract.Document(ctx, "stdin.txt", stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return extract.Document(ctx, filepath.Base(path), f)
}
