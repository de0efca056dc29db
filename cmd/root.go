package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vergilyu/geoai-retail/internal/config"
	"github.com/vergilyu/geoai-retail/internal/source"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "geoai-retail",
	Short: "Origin-to-destination retail analysis tooling",
	Long:  "Loads spatial data from CSV exports, shapefiles, feature services, and Web GIS items, then joins and normalizes metrics onto origin-to-multiple-destination tables.",
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

// newResolver builds a source resolver from the loaded configuration.
func newResolver() *source.Resolver {
	return source.NewResolver(source.Options{
		Portal:      cfg.Source.Portal,
		Token:       cfg.Source.Token,
		PageSize:    cfg.Source.PageSize,
		RateLimit:   cfg.Source.RateLimit,
		Concurrency: cfg.Source.Concurrency,
		TempDir:     cfg.Source.TempDir,
		Timeout:     time.Duration(cfg.Source.TimeoutSecs) * time.Second,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
