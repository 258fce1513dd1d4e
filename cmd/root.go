package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/placepulse/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "placepulse",
	Short: "Community place endorsements with decaying scores",
	Long:  "Records endorsements, renewals, and downvotes on map places, classifies them into recent, trending, and classics tabs, and resolves pins against an external place provider.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
