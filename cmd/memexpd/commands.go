package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/meme-cmd/memexp2000/agent"
	"github.com/meme-cmd/memexp2000/api"
	"github.com/meme-cmd/memexp2000/backroom"
	"github.com/meme-cmd/memexp2000/config"
	"github.com/meme-cmd/memexp2000/db"
	"github.com/meme-cmd/memexp2000/errors"
	"github.com/meme-cmd/memexp2000/ledger"
	"github.com/meme-cmd/memexp2000/llm"
	"github.com/meme-cmd/memexp2000/logger"
	"github.com/meme-cmd/memexp2000/payment"
	"github.com/meme-cmd/memexp2000/storage"
)

// Version is set at build time.
var Version = "dev"

const (
	dataSubdir     = "data"
	dbFileName     = "memexp.db"
	shutdownWindow = 10 * time.Second
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the daemon version",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Println(Version)
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the platform daemon",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runStart(cmd.Context())
	},
}

func runStart(ctx context.Context) error {
	cfg, err := config.Load(homeDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.LogSampler)
	log.Info().
		Str("version", Version).
		Str("home", homeDir).
		Msg("starting memexpd")

	database, err := db.OpenFileDB(filepath.Join(homeDir, dataSubdir), dbFileName, true)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}()

	store := storage.NewSQLStore(database, log)
	retry := &errors.RetryConfig{
		MaxAttempts: cfg.MaxRetries,
		Delay:       cfg.RetryDelay(),
	}

	rpcURL := "https://api.mainnet-beta.solana.com"
	if len(cfg.RPCURLs) > 0 {
		rpcURL = cfg.RPCURLs[0]
	}
	reader := ledger.NewReader(rpcURL, cfg.Commitment, retry, log)

	guard := payment.NewReplayGuard(store, retry, log)
	entitlements := payment.NewEntitlements(store, log)
	verifier := payment.NewVerifier(reader, guard, entitlements, cfg.Payment, cfg.ExplorerClusterTag, log)

	generator := llm.NewClient(cfg.LLM, log)
	agents := agent.NewService(agent.NewRepository(store, log), entitlements, generator, log)
	backrooms := backroom.NewService(backroom.NewRepository(store, log), agents, generator, cfg.LLM.TokenModel, log)

	handlers := api.NewHandlers(verifier, entitlements, agents, backrooms, log)
	server := api.NewServer(cfg.APIPort, handlers, log)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	log.Info().Int("port", cfg.APIPort).Msg("memexpd is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
		log.Info().Msg("context cancelled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWindow)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop API server cleanly")
	}
	return nil
}
