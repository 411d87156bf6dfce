package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conorfennell/flashstudy/internal/difficulty"
	"github.com/conorfennell/flashstudy/internal/domain"
	"github.com/conorfennell/flashstudy/internal/recorder"
	"github.com/conorfennell/flashstudy/internal/web"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the study API",
		Long: `Start the HTTP API for decks, sources and study sessions.

Examples:
  flashstudy serve --listen :8080
  FLASHSTUDY_DB=cards.db flashstudy serve`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, db, err := setup(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The recorder is drained by Close on shutdown, not cancelled with ctx.
	rec := recorder.New(db, cfg.Recorder.Config(), slog.Default())
	rec.OnError = func(r domain.Review, err error) {
		slog.Error("Review lost", "card_id", r.CardID, "error", err)
	}
	rec.Start(context.WithoutCancel(ctx))

	handler := web.NewServer(db, difficulty.New(cfg.Scheduler.Params()), rec, web.Options{
		ReposDir:   cfg.ReposDir,
		SessionTTL: cfg.SessionTTL,
	})
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "addr", cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		rec.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Shutdown did not complete", "error", err)
	}
	rec.Close()

	counts := rec.Counts()
	slog.Info("Reviews recorded", "saved", counts.Saved, "failed", counts.Failed, "dropped", counts.Dropped)
	return nil
}
