// Command aidledgerd runs the registry node: the program over a LevelDB store
// behind the HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"aidledger/api/server"
	"aidledger/core/audit"
	"aidledger/core/config"
	"aidledger/core/metrics"
	"aidledger/core/notify"
	"aidledger/core/program"
	"aidledger/core/storage"
	"aidledger/core/validation"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:          "aidledgerd",
	Short:        "Run the aidledger registry node",
	Version:      server.NodeVersion(),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg)
	},
}

func init() {
	rootCmd.Flags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "dotenv file loaded before AIDLEDGER_* variables")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339
	var logger zerolog.Logger
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg)

	var (
		store *storage.Storage
		err   error
	)
	if cfg.Ephemeral {
		store, err = storage.NewMemStorage()
	} else {
		store, err = storage.NewStorage(cfg.DBPath)
	}
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	hub := notify.NewHub(logger, m)
	defer hub.Close()

	auditor := audit.NewZerologAuditLogger(logger)
	prog := program.New(store, program.Options{
		ProgramID: cfg.ProgramPubkey(),
		Logger:    logger,
		Metrics:   m,
		Audit:     auditor,
		Publisher: hub,
	})
	v, err := validation.New(auditor)
	if err != nil {
		return fmt.Errorf("compile schemas: %w", err)
	}

	opts := server.Options{
		ListenAddr:      cfg.ListenAddr,
		JWTSecret:       cfg.JWTSecret,
		RateLimitPerMin: cfg.RateLimitPerMin,
		EventBuffer:     cfg.EventBuffer,
		Gatherer:        reg,
		Logger:          logger,
		TrustedProxies:  cfg.TrustedProxies,
	}
	if cfg.TLSEnabled() {
		opts.TLSCertPath, opts.TLSKeyPath = cfg.TLSCertPath, cfg.TLSKeyPath
	}
	srv := server.NewServer(prog, store, hub, v, opts)
	srv.SetReadiness(func() bool { return store.Ping() == nil })

	stats, err := store.Stats()
	if err != nil {
		return fmt.Errorf("read storage: %w", err)
	}
	logger.Info().
		Str("program_id", prog.ProgramID().String()).
		Str("db_path", cfg.DBPath).
		Bool("ephemeral", cfg.Ephemeral).
		Bool("tls", cfg.TLSEnabled()).
		Strs("trusted_proxies", cfg.TrustedProxies).
		Int("accounts", stats.Accounts).
		Uint64("events", stats.Events).
		Str("version", server.NodeVersion()).
		Msg("starting aidledger node")
	if cfg.JWTSecret == "" {
		logger.Warn().Msg("AIDLEDGER_JWT_SECRET unset; transaction submission is open")
	}

	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info().Msg("node stopped")
	return nil
}
