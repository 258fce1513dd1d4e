package main

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/placepulse/internal/export"
	"github.com/sells-group/placepulse/internal/ledger"
	"github.com/sells-group/placepulse/internal/model"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export tab listings to an xlsx workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("cli"); err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		tabList, _ := cmd.Flags().GetString("tabs")
		bounds, _ := cmd.Flags().GetString("bounds")
		limit, _ := cmd.Flags().GetInt("limit")

		tabs, err := parseTabs(tabList)
		if err != nil {
			return err
		}
		var b *ledger.Bounds
		if bounds != "" {
			if b, err = ledger.ParseBounds(bounds); err != nil {
				return err
			}
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sheets, err := collectSheets(ctx, env.Ledger, tabs, b, limit)
		if err != nil {
			return err
		}
		if err := export.Save(out, sheets...); err != nil {
			return err
		}
		zap.L().Info("export complete", zap.String("path", out), zap.Int("sheets", len(sheets)))
		return nil
	},
}

// parseTabs parses a comma-separated tab list.
func parseTabs(s string) ([]model.Tab, error) {
	var tabs []model.Tab
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tab, ok := model.ParseTab(part)
		if !ok {
			return nil, eris.Errorf("unknown tab %q", part)
		}
		tabs = append(tabs, tab)
	}
	if len(tabs) == 0 {
		return nil, eris.New("no tabs to export")
	}
	return tabs, nil
}

func collectSheets(ctx context.Context, l *ledger.Ledger, tabs []model.Tab, b *ledger.Bounds, limit int) ([]export.Sheet, error) {
	sheets := make([]export.Sheet, 0, len(tabs))
	for _, tab := range tabs {
		list, err := l.ListByTab(ctx, ledger.ListOptions{Tab: tab, Bounds: b, Limit: limit})
		if err != nil {
			return nil, eris.Wrapf(err, "export: list %s", tab)
		}
		sheets = append(sheets, export.Sheet{Tab: tab, Places: list})
	}
	return sheets, nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().String("out", "places.xlsx", "Output workbook path")
	exportCmd.Flags().String("tabs", "recent,trending,classics,all", "Comma-separated tabs, one sheet each")
	exportCmd.Flags().String("bounds", "", "Optional viewport minLat,minLon,maxLat,maxLon")
	exportCmd.Flags().Int("limit", 0, "Max places per sheet (0 = no limit)")
}
