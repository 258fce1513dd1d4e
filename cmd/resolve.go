package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/placepulse/internal/resolver"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a coordinate to an external place",
	Long:  "Looks up the place at a coordinate through the geo cache, then the place provider within the daily quota.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("resolve"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		lat, _ := cmd.Flags().GetFloat64("lat")
		lon, _ := cmd.Flags().GetFloat64("lon")
		hint, _ := cmd.Flags().GetString("hint")
		format, _ := cmd.Flags().GetString("format")

		res, err := env.Resolver.Resolve(ctx, resolver.Request{Lat: lat, Lon: lon, Hint: hint})
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), format, res)
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().Float64("lat", 0, "Latitude")
	resolveCmd.Flags().Float64("lon", 0, "Longitude")
	resolveCmd.Flags().String("hint", "", "Optional name hint for a text search")
	resolveCmd.Flags().String("format", "yaml", "Output format: yaml or json")
	_ = resolveCmd.MarkFlagRequired("lat")
	_ = resolveCmd.MarkFlagRequired("lon")
}
