package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vergilyu/geoai-retail/internal/frame"
	"github.com/vergilyu/geoai-retail/internal/source"
	"github.com/vergilyu/geoai-retail/internal/store"
)

var ingestOutput string

var ingestCmd = &cobra.Command{
	Use:   "ingest <source>",
	Short: "Load a spatial source into a uniform CSV",
	Long:  "Resolves a CSV export, XLSX workbook, shapefile, feature service URL, ftp URL, or Web GIS item ID into a spatial table and writes it as CSV with SHAPE serialized as Esri JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := withRun(ctx, "ingest", args[0], ingestOutput, func(ctx context.Context) (*frame.Frame, error) {
			return newResolver().Resolve(ctx, args[0])
		})
		if err != nil {
			return err
		}

		zap.L().Info("source ingested",
			zap.String("source", args[0]),
			zap.String("output", ingestOutput),
			zap.Int("rows", f.NumRows()),
			zap.Int("columns", len(f.Columns())),
		)
		return nil
	},
}

// withRun records a run around fn in the configured store. Store failures
// abort the command; an unreachable registry is treated as misconfiguration.
// A non-empty output is written as CSV before the run is marked completed,
// so the run row carries the output path and a failed write fails the run.
func withRun(ctx context.Context, command, src, output string, fn func(context.Context) (*frame.Frame, error)) (*frame.Frame, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open run registry")
	}
	defer func() { _ = st.Close() }()

	if err := st.Migrate(ctx); err != nil {
		return nil, err
	}

	run, err := st.CreateRun(ctx, command, src)
	if err != nil {
		return nil, err
	}

	f, err := fn(ctx)
	if err == nil && output != "" {
		err = source.WriteCSVFile(f, output)
	}
	if err != nil {
		if failErr := st.FailRun(ctx, run.ID, err.Error()); failErr != nil {
			zap.L().Warn("could not record run failure", zap.String("run", run.ID), zap.Error(failErr))
		}
		return nil, err
	}

	if err := st.CompleteRun(ctx, run.ID, f.NumRows(), len(f.Columns()), output); err != nil {
		zap.L().Warn("could not record run completion", zap.String("run", run.ID), zap.Error(err))
	}
	return f, nil
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestOutput, "output", "o", "ingested.csv", "output CSV path")
	rootCmd.AddCommand(ingestCmd)
}
