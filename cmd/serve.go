package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/placepulse/internal/api"
	"github.com/sells-group/placepulse/internal/maintenance"
	"github.com/sells-group/placepulse/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the place API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if mins := cfg.Maintenance.ScheduleIntervalMin; mins > 0 {
			go runScheduler(ctx, env.Sweep, time.Duration(mins)*time.Minute)
		}

		srv := api.NewServer(api.Config{
			Port:           cfg.Server.Port,
			CORSOrigins:    cfg.Server.CORSOrigins,
			RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second,
		}, api.Deps{
			Ledger:   env.Ledger,
			Sweep:    env.Sweep,
			Resolver: env.Resolver,
		})

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		return srv.ListenAndServe()
	},
}

// sweeper is the part of the maintenance sweep the scheduler drives.
type sweeper interface {
	Run(ctx context.Context, opts maintenance.RunOptions) (*model.MaintenanceReport, error)
}

// runScheduler runs the sweep every interval until ctx is done. Runs that
// land inside the sweep's minimum interval are skipped by the sweep itself.
func runScheduler(ctx context.Context, s sweeper, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	zap.L().Info("maintenance scheduler started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := s.Run(ctx, maintenance.RunOptions{})
			if err != nil {
				zap.L().Error("scheduled maintenance failed", zap.Error(err))
				continue
			}
			zap.L().Info("scheduled maintenance complete",
				zap.String("run_id", report.RunID),
				zap.Bool("skipped", report.Skipped),
				zap.Int("processed", report.PinsProcessed),
			)
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
