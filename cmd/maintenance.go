package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/placepulse/internal/db"
	"github.com/sells-group/placepulse/internal/docstore"
	"github.com/sells-group/placepulse/internal/maintenance"
	"github.com/sells-group/placepulse/internal/model"
)

// maintenanceOutput is the maintenance command's report.
type maintenanceOutput struct {
	Sweep  *model.MaintenanceReport `json:"sweep" yaml:"sweep"`
	Tables []db.TableStats          `json:"tables,omitempty" yaml:"tables,omitempty"`
}

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Run the place maintenance sweep",
	Long:  "Recomputes scores, recent counters, hiding, and tab snapshots for every place. On Postgres it can also VACUUM ANALYZE the documents table and report table statistics.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("maintenance"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		force, _ := cmd.Flags().GetBool("force")
		vacuum, _ := cmd.Flags().GetBool("vacuum")
		tableStats, _ := cmd.Flags().GetBool("table-stats")
		format, _ := cmd.Flags().GetString("format")

		var pool db.Pool
		if vacuum || tableStats {
			pg, ok := env.postgres()
			if !ok {
				return eris.Errorf("--vacuum and --table-stats need the postgres store (driver is %s)", cfg.Store.Driver)
			}
			pool = pg.Pool()
		}

		out, err := runMaintenance(ctx, env.Sweep, pool, force, vacuum, tableStats)
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), format, out)
	},
}

// runMaintenance runs the sweep, then the optional table maintenance.
func runMaintenance(ctx context.Context, s sweeper, pool db.Pool, force, vacuum, tableStats bool) (*maintenanceOutput, error) {
	report, err := s.Run(ctx, maintenance.RunOptions{Force: force})
	if err != nil {
		return nil, eris.Wrap(err, "maintenance sweep")
	}
	out := &maintenanceOutput{Sweep: report}

	if vacuum {
		zap.L().Info("running VACUUM ANALYZE on the documents table")
		if err := db.VacuumAnalyze(ctx, pool, docstore.DocumentsTable); err != nil {
			return nil, eris.Wrap(err, "maintenance vacuum")
		}
	}
	if tableStats {
		stats, err := db.GetTableStats(ctx, pool, docstore.DocumentsTable)
		if err != nil {
			return nil, eris.Wrap(err, "maintenance table stats")
		}
		out.Tables = stats
	}
	return out, nil
}

func init() {
	rootCmd.AddCommand(maintenanceCmd)
	maintenanceCmd.Flags().Bool("force", false, "Run even if the last sweep finished within the minimum interval")
	maintenanceCmd.Flags().Bool("vacuum", false, "VACUUM ANALYZE the documents table after the sweep (postgres)")
	maintenanceCmd.Flags().Bool("table-stats", false, "Report documents table statistics (postgres)")
	maintenanceCmd.Flags().String("format", "yaml", "Output format: yaml or json")
}
