package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vergilyu/geoai-retail/internal/enrich"
	"github.com/vergilyu/geoai-retail/internal/frame"
	"github.com/vergilyu/geoai-retail/internal/source"
)

var (
	enrichPlanPath string
	enrichClosest  string
	enrichOutput   string

	enrichSource  string
	enrichMetric  string
	enrichJoinID  string
	enrichDummies bool
	enrichFill    string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Join metrics onto an origin-to-destination table",
	Long:  "Applies a YAML enrichment plan, or a single join, to a closest-analysis table with suffix-numbered destination columns.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		resolver := newResolver()

		if enrichPlanPath != "" {
			return runPlan(ctx, resolver)
		}

		if enrichClosest == "" || enrichSource == "" || enrichMetric == "" {
			return eris.New("either --plan or --closest, --source, and --metric are required")
		}

		output := outputOrDefault(enrichOutput)
		result, err := withRun(ctx, "enrich", enrichClosest, output, func(ctx context.Context) (*frame.Frame, error) {
			parent, err := resolver.Resolve(ctx, enrichClosest)
			if err != nil {
				return nil, err
			}
			join, err := resolver.Resolve(ctx, enrichSource)
			if err != nil {
				return nil, err
			}

			opts := enrich.JoinOptions{GetDummies: enrichDummies}
			if enrichFill != "" {
				opts.FillValue = enrichFill
			}

			if enrichJoinID != "" {
				return enrich.AddMetricByDest(parent, join, enrichJoinID, enrichMetric, opts)
			}
			return enrich.AddMetricByOriginDest(parent, join, enrichMetric, opts)
		})
		if err != nil {
			return err
		}

		logResult(result, output)
		return nil
	},
}

func runPlan(ctx context.Context, resolver *source.Resolver) error {
	plan, err := enrich.LoadPlan(enrichPlanPath)
	if err != nil {
		return err
	}

	closest := enrichClosest
	if closest == "" {
		closest = plan.Closest
	}
	if closest == "" {
		return eris.New("plan has no closest table and --closest not given")
	}

	output := enrichOutput
	if output == "" {
		output = plan.Output
	}
	output = outputOrDefault(output)

	result, err := withRun(ctx, "enrich", closest, output, func(ctx context.Context) (*frame.Frame, error) {
		parent, err := resolver.Resolve(ctx, closest)
		if err != nil {
			return nil, err
		}
		return plan.Apply(ctx, parent, resolver.Resolve)
	})
	if err != nil {
		return err
	}

	logResult(result, output)
	return nil
}

func outputOrDefault(output string) string {
	if output == "" {
		return "enriched.csv"
	}
	return output
}

func logResult(f *frame.Frame, output string) {
	zap.L().Info("enrichment complete",
		zap.String("output", output),
		zap.Int("rows", f.NumRows()),
		zap.Int("columns", len(f.Columns())),
	)
}

func init() {
	enrichCmd.Flags().StringVar(&enrichPlanPath, "plan", "", "YAML enrichment plan")
	enrichCmd.Flags().StringVar(&enrichClosest, "closest", "", "closest table source (overrides plan)")
	enrichCmd.Flags().StringVarP(&enrichOutput, "output", "o", "", "output CSV path")
	enrichCmd.Flags().StringVar(&enrichSource, "source", "", "join table source (single join mode)")
	enrichCmd.Flags().StringVar(&enrichMetric, "metric", "", "metric column to join")
	enrichCmd.Flags().StringVar(&enrichJoinID, "join-id", "", "join key column; joins by destination instead of origin+destination")
	enrichCmd.Flags().BoolVar(&enrichDummies, "dummies", false, "explode categorical metric into indicator columns")
	enrichCmd.Flags().StringVar(&enrichFill, "fill", "", "value to fill join misses with")
	rootCmd.AddCommand(enrichCmd)
}
