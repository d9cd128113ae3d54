package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/jobposting-crawler/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

// newServeCmd creates the 'serve' subcommand: the scheduler plus the ops HTTP server.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs crawls on a schedule and serves health, metrics, and run endpoints",
		RunE:  withApp(runServeCommand),
	}
}

func runServeCommand(cmd *cobra.Command, appInstance App) error {
	cfg := appInstance.Config()
	logger := appInstance.Logger()

	sched, err := scheduler.New(appInstance, scheduler.Options{
		Spec:       cfg.Schedule.Spec,
		RunOnStart: cfg.Schedule.RunOnStart,
	}, logger)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           appInstance.OpsHandler(sched),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
