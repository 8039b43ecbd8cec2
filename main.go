package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/robalobadob/zoltar/internal/archive"
	"github.com/robalobadob/zoltar/internal/config"
	"github.com/robalobadob/zoltar/internal/httpserver"
	"github.com/robalobadob/zoltar/internal/ledger"
	"github.com/robalobadob/zoltar/internal/play"
	"github.com/robalobadob/zoltar/internal/responder"
	"github.com/robalobadob/zoltar/internal/rotation"
	"github.com/robalobadob/zoltar/internal/store"
	"github.com/robalobadob/zoltar/internal/words"
)

func main() {
	config.LoadDotenv()

	root := &cobra.Command{
		Use:          "zoltar",
		Short:        "Oracle guessing-game server",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
				zerolog.SetGlobalLevel(lvl)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error { return serve(cmd.Context()) },
	}
	root.AddCommand(
		newServeCmd(),
		newTokenCmd(),
		newCommitCmd(),
		newWordsCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the rotation loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireServe(); err != nil {
		return err
	}
	logger := log.Logger

	sel, err := words.Load()
	if err != nil {
		return fmt.Errorf("load word lists: %w", err)
	}
	stats := sel.Stats()
	logger.Info().
		Int("easy", stats[words.Easy]).
		Int("medium", stats[words.Medium]).
		Int("hard", stats[words.Hard]).
		Msg("word lists loaded")

	rounds, err := archive.Open(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer rounds.Close()

	session := store.NewSession(sel,
		store.WithTriesPerEntry(cfg.TriesPerEntry),
		store.WithObserver(rounds),
	)

	chain, err := ledger.Dial(ctx, ledger.Config{
		RPCURL:         cfg.LedgerRPCURL,
		Contract:       cfg.LedgerContract,
		PrivateKey:     cfg.AgentKey,
		ConfirmTimeout: cfg.ConfirmTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	defer chain.Close()

	oracle, err := responder.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
	if err != nil {
		return err
	}
	defer oracle.Close()

	svc := play.New(session, chain, oracle, logger)
	loop := rotation.New(session, chain, cfg.LoopInterval, logger)

	if cfg.OperatorSecret == "" {
		logger.Warn().Msg("OPERATOR_SECRET is not set; operator routes will reject every request")
	}
	srv := httpserver.New(svc, loop, rounds, httpserver.Options{
		ClientOrigin:   cfg.ClientOrigin,
		OperatorSecret: cfg.OperatorSecret,
		Log:            logger,
	})

	err = runAlongside(ctx, loop.Run, func(ctx context.Context) error {
		if cfg.LoopAutostart {
			if err := loop.Start(); err != nil {
				logger.Warn().Err(err).Msg("rotation loop did not autostart")
			}
		}
		logger.Info().Str("addr", cfg.Addr()).Msg("starting zoltar")
		return srv.Start(ctx, cfg.Addr())
	})
	if err != nil {
		return fmt.Errorf("server exited: %w", err)
	}
	logger.Info().Msg("shutdown complete")
	return nil
}

// runAlongside runs background until fg returns, then stops it and waits.
// A foreground failure such as a busy port therefore still ends the process.
func runAlongside(ctx context.Context, background func(context.Context), fg func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		background(ctx)
		close(done)
	}()
	err := fg(ctx)
	cancel()
	<-done
	return err
}
