package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vergilyu/geoai-retail/internal/enrich"
	"github.com/vergilyu/geoai-retail/internal/frame"
)

var (
	normalizeClosest    string
	normalizeSource     string
	normalizeFactorRoot string
	normalizeIDFld      string
	normalizeFld        string
	normalizeOutName    string
	normalizeFill       string
	normalizeDrop       bool
	normalizeOutput     string
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Normalize metric columns by a demographic denominator",
	Long:  "Divides every suffix-numbered column sharing a factor root by a per-origin demographic value, typically total households or total population.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		resolver := newResolver()

		output := outputOrDefault(normalizeOutput)
		result, err := withRun(ctx, "normalize", normalizeClosest, output, func(ctx context.Context) (*frame.Frame, error) {
			closest, err := resolver.Resolve(ctx, normalizeClosest)
			if err != nil {
				return nil, err
			}
			normTable, err := resolver.Resolve(ctx, normalizeSource)
			if err != nil {
				return nil, err
			}

			opts := enrich.NormalizeOptions{DropOriginal: normalizeDrop}
			if normalizeFill != "" {
				opts.FillValue = normalizeFill
			}
			return enrich.AddNormalizedColumns(closest, normTable, normalizeFactorRoot,
				normalizeIDFld, normalizeFld, normalizeOutName, opts)
		})
		if err != nil {
			return err
		}

		logResult(result, output)
		return nil
	},
}

func init() {
	normalizeCmd.Flags().StringVar(&normalizeClosest, "closest", "", "closest table source")
	normalizeCmd.Flags().StringVar(&normalizeSource, "source", "", "table with the demographic denominator")
	normalizeCmd.Flags().StringVar(&normalizeFactorRoot, "factor-root", "", "prefix of the columns to normalize")
	normalizeCmd.Flags().StringVar(&normalizeIDFld, "normalize-id", "", "geographic identifier column in the denominator table")
	normalizeCmd.Flags().StringVar(&normalizeFld, "normalize-field", "", "denominator column")
	normalizeCmd.Flags().StringVar(&normalizeOutName, "out-name", "", "name root for normalized columns")
	normalizeCmd.Flags().StringVar(&normalizeFill, "fill", "", "value to fill null normalized values with")
	normalizeCmd.Flags().BoolVar(&normalizeDrop, "drop-original", false, "drop the gross columns after normalizing")
	normalizeCmd.Flags().StringVarP(&normalizeOutput, "output", "o", "", "output CSV path")

	for _, required := range []string{"closest", "source", "factor-root", "normalize-id", "normalize-field", "out-name"} {
		_ = normalizeCmd.MarkFlagRequired(required)
	}
	rootCmd.AddCommand(normalizeCmd)
}
