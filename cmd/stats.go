package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/placepulse/internal/ledger"
	"github.com/sells-group/placepulse/internal/model"
)

// statsOutput is the stats command's report.
type statsOutput struct {
	model.DashboardStats `yaml:",inline"`
	Collections          map[string]int64 `json:"collections,omitempty" yaml:"collections,omitempty"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print dashboard statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("cli"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := collectStats(ctx, env.Ledger)
		if err != nil {
			return err
		}
		if pg, ok := env.postgres(); ok {
			counts, err := pg.CollectionCounts(ctx)
			if err != nil {
				return eris.Wrap(err, "stats: collection counts")
			}
			out.Collections = counts
		}

		format, _ := cmd.Flags().GetString("format")
		return writeReport(cmd.OutOrStdout(), format, out)
	},
}

func collectStats(ctx context.Context, l *ledger.Ledger) (*statsOutput, error) {
	stats, err := l.DashboardStats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "stats")
	}
	return &statsOutput{DashboardStats: *stats}, nil
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().String("format", "yaml", "Output format: yaml or json")
}
