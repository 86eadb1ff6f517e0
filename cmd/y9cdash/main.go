// y9cdash — FR Y-9C regulatory filings reconciliation dashboard backend.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/openy9c/y9cdash/api"
	"github.com/openy9c/y9cdash/internal/config"
	"github.com/openy9c/y9cdash/internal/infra"
	"github.com/openy9c/y9cdash/internal/insight"
	"github.com/openy9c/y9cdash/internal/pipeline"
	"github.com/openy9c/y9cdash/internal/postgrest"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "y9cdash",
	Short: "y9cdash — FR Y-9C bank regulatory filings reconciliation",
	Long: `y9cdash reconciles FR Y-9C bank holding company filings from a hosted
table service against the versioned MDRM mnemonic dictionary, and serves
the result as filterable tables, size-bucket summaries, and CSV exports.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real deployments set the environment directly.
		_ = godotenv.Load()

		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(periodsCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}

// newPipeline builds the reconciliation pipeline from the loaded config.
func newPipeline() (*pipeline.Pipeline, error) {
	if cfg.Source.URL == "" || cfg.Source.APIKey == "" {
		return nil, fmt.Errorf("source URL and API key must be configured (Y9CDASH_SOURCE_URL / Y9CDASH_SOURCE_API_KEY)")
	}
	client := postgrest.New(cfg.Source.URL, cfg.Source.APIKey,
		postgrest.WithMaxRetries(cfg.Source.MaxRetries),
		postgrest.WithRateLimit(cfg.Source.RateLimit, time.Second),
	)
	cache := infra.NewCache(time.Duration(cfg.Pipeline.CacheTTL) * time.Second)
	return pipeline.New(client, pipeline.Options{
		FilingsTable:   cfg.Source.FilingsTable,
		DirectoryTable: cfg.Source.DirectoryTable,
		ReportingForms: cfg.Pipeline.ReportingForms,
		PageSize:       cfg.Source.PageSize,
		MaxRows:        cfg.Source.MaxRows,
	}, cache), nil
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("y9cdash %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Periods Command ---

var periodsCmd = &cobra.Command{
	Use:   "periods",
	Short: "List available reporting periods, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		pipe, err := newPipeline()
		if err != nil {
			return err
		}
		periods, err := pipe.Periods(cmd.Context())
		if err != nil {
			return err
		}
		for _, p := range periods {
			fmt.Println(p)
		}
		return nil
	},
}

// --- Report Command ---

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Reconcile filings for a period and print a summary or CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		period, _ := cmd.Flags().GetString("period")
		csvOut, _ := cmd.Flags().GetBool("csv")
		if err := pipeline.CheckPeriod(period); err != nil {
			return err
		}

		pipe, err := newPipeline()
		if err != nil {
			return err
		}
		result, err := pipe.Run(cmd.Context(), period)
		if err != nil {
			return err
		}

		if csvOut {
			w := csv.NewWriter(os.Stdout)
			if err := w.WriteAll(result.Table.CSV()); err != nil {
				return err
			}
			return nil
		}

		fmt.Printf("Records: %d   Columns: %d   Diagnostics: %d\n",
			len(result.Table.Rows), len(result.Table.Columns), len(result.Diagnostics))
		fmt.Println("\nSize buckets:")
		for _, s := range result.Summaries {
			fmt.Printf("  %-10s %5d entities", s.Bucket, s.Count)
			if s.MeanAssets != nil {
				fmt.Printf("   mean assets %.0f", *s.MeanAssets)
			}
			fmt.Println()
		}
		return nil
	},
}

// --- Analyze Command ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze <question>",
	Short: "Ask the analyst a free-text question about the latest data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		period, _ := cmd.Flags().GetString("period")
		if err := pipeline.CheckPeriod(period); err != nil {
			return err
		}

		if cfg.Insight.OpenAIKey == "" {
			return fmt.Errorf("no completion key configured (Y9CDASH_INSIGHT_OPENAI_KEY)")
		}
		opts := []insight.ClientOption{insight.WithModel(cfg.Insight.Model)}
		if cfg.Insight.BaseURL != "" {
			opts = append(opts, insight.WithBaseURL(cfg.Insight.BaseURL))
		}
		client, err := insight.NewClient(cfg.Insight.OpenAIKey, opts...)
		if err != nil {
			return err
		}

		pipe, err := newPipeline()
		if err != nil {
			return err
		}
		result, err := pipe.Run(cmd.Context(), period)
		if err != nil {
			return err
		}

		ictx := insight.BuildContext(result.Table.Rows, nil)
		analyst := insight.NewAnalyst(client,
			insight.WithTemperature(cfg.Insight.Temperature),
			insight.WithMaxTokens(cfg.Insight.MaxTokens),
		)
		ins, err := analyst.Analyze(cmd.Context(), args[0], ictx)
		if err != nil {
			return err
		}
		if ins.Empty() {
			fmt.Println("No analysis available.")
			return nil
		}
		fmt.Println(ins.Analysis)
		if ins.Visualization != "" && ins.Visualization != insight.VizNone {
			fmt.Printf("\nSuggested visualization: %s over %v\n", ins.Visualization, ins.Metrics)
		}
		return nil
	},
}

// --- Serve Command ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := api.NewServer(cfg)
		if err != nil {
			return err
		}
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		return srv.ListenAndServe(addr)
	},
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show credential status and source connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, ks := range config.CheckAPIKeys(cfg) {
			state := "not set"
			if ks.IsSet {
				state = fmt.Sprintf("%s (from %s)", ks.Masked, ks.Source)
			}
			fmt.Printf("  %-16s %s\n", ks.Name+":", state)
		}

		if cfg.Source.URL != "" && cfg.Source.APIKey != "" {
			client := postgrest.New(cfg.Source.URL, cfg.Source.APIKey)
			if err := client.Ping(cmd.Context()); err != nil {
				fmt.Printf("  source:          unreachable (%v)\n", err)
				return nil
			}
			fmt.Println("  source:          ok")
			if total, err := client.Count(cmd.Context(), cfg.Source.FilingsTable); err == nil {
				fmt.Printf("  filings rows:    %d\n", total)
			}
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().String("period", "", "reporting period (YYYY-MM-DD); empty = all periods")
	reportCmd.Flags().Bool("csv", false, "emit the full table as CSV")
	analyzeCmd.Flags().String("period", "", "reporting period (YYYY-MM-DD); empty = all periods")
}
