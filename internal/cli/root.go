// Package cli implements the samarth command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/projectsamarth/samarth/internal/app"
	"github.com/projectsamarth/samarth/internal/config"
	"github.com/projectsamarth/samarth/internal/index"
	"github.com/projectsamarth/samarth/internal/indexer"
	"github.com/projectsamarth/samarth/internal/rag"
)

// Runner builds and saves a fresh index.
type Runner interface {
	Run(ctx context.Context) (*indexer.Report, error)
}

// Asker answers questions and runs raw similarity searches.
type Asker interface {
	Ask(ctx context.Context, question string) (*rag.Answer, error)
	Search(ctx context.Context, query string, k int) ([]index.Hit, error)
}

// Services are what the commands run against.
type Services struct {
	Builder   Runner
	Index     *index.Handle
	IndexPath string
	Pipeline  Asker
	Close     func()
}

// loadServices is replaced in tests.
var loadServices = func(ctx context.Context) (*Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Services{
		Builder:   a.Builder(),
		Index:     a.Index,
		IndexPath: cfg.Index.Path,
		Pipeline:  a.Pipeline,
		Close:     a.Close,
	}, nil
}

var (
	verbose bool
	asJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "samarth",
	Short: "Question answering over Indian crop and rainfall data",
	Long: `samarth answers natural-language questions about district-level crop
production and subdivision rainfall in India. Answers are grounded in
records retrieved from a local embedding index and cite their sources.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print results as JSON")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// withServices loads the services for one command and releases them after.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, s *Services) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := loadServices(ctx)
	if err != nil {
		return err
	}
	if s.Close != nil {
		defer s.Close()
	}
	return fn(ctx, s)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
