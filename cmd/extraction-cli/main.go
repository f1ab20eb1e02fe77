// Package main provides the extraction engine CLI entrypoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/doculens/extraction-engine/internal/config"
	"github.com/doculens/extraction-engine/internal/domain"
	"github.com/doculens/extraction-engine/internal/extraction"
	"github.com/doculens/extraction-engine/internal/observability"
)

var (
	cfgFile    string
	outputJSON bool
	verbose    bool

	cfg    *config.Config
	logger *observability.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "extraction-cli",
	Short: "Extraction engine CLI for documents, tables, and entities",
	Long: `Extraction engine CLI runs the document pipeline locally.

Use this tool to:
- Extract text, tables, and entities from PDF, DOCX, XLSX, and plain text
- Inspect the routing decision for a document without extracting
- Check result cache statistics

All commands support --json for automation.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logFormat := "console"
		logLevel := "warn"
		if outputJSON {
			logFormat = "json"
		}
		if verbose {
			logLevel = "debug"
		}

		logger = observability.NewLogger(observability.LogConfig{
			Level:       logLevel,
			Format:      logFormat,
			ServiceName: "extraction-cli",
		})

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newExtractCmd())
	rootCmd.AddCommand(newRouteCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}

func newExtractCmd() *cobra.Command {
	var (
		noTables   bool
		noEntities bool
		noCache    bool
		floor      float64
		engines    []string
		includeLow bool
		outputPath string
		mediaType  string
	)

	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Extract text, tables, and entities from a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}

			doc := domain.Document{
				Content:   content,
				MediaType: mediaType,
				Size:      int64(len(content)),
			}

			opts := domain.DefaultOptions()
			opts.EnableTables = !noTables
			opts.EnableEntities = !noEntities
			opts.UseCache = !noCache
			opts.EngineAllowlist = engines
			opts.IncludeLowConfidence = includeLow
			if floor > 0 {
				opts.ConfidenceFloor = floor
			}

			engine := extraction.New(cfg, logger)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			job, err := engine.Submit(ctx, doc, opts)
			if err != nil {
				return err
			}

			if !outputJSON {
				trackProgress(job, filepath.Base(args[0]))
			}

			result, err := job.Wait(context.Background())
			if err != nil {
				return err
			}

			if outputPath != "" {
				data, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return fmt.Errorf("encode result: %w", err)
				}
				if err := os.WriteFile(outputPath, data, 0o644); err != nil {
					return fmt.Errorf("write result: %w", err)
				}
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(result)
			}

			printResult(result, job.State())
			return nil
		},
	}

	cmd.Flags().BoolVar(&noTables, "no-tables", false, "skip table detection")
	cmd.Flags().BoolVar(&noEntities, "no-entities", false, "skip entity extraction")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the result cache")
	cmd.Flags().Float64Var(&floor, "confidence-floor", 0, "suppress single-engine entities below this confidence")
	cmd.Flags().StringSliceVar(&engines, "engines", nil, "restrict entity engines (pattern, dictionary, statistical)")
	cmd.Flags().BoolVar(&includeLow, "include-low-confidence", false, "report suppressed low-confidence entities")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the full result JSON to a file")
	cmd.Flags().StringVar(&mediaType, "media-type", "", "override media type detection")

	return cmd
}

// trackProgress renders the job's progress stream. Stage changes show a
// spinner message; page-level work drives a progress bar.
func trackProgress(job *extraction.Job, name string) {
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	sp.Suffix = fmt.Sprintf(" extracting %s", name)
	sp.Start()
	defer sp.Stop()

	var bar *progressbar.ProgressBar
	for update := range job.Progress() {
		switch update.Stage {
		case domain.StateTableDetection:
			if bar == nil && update.TotalPages > 1 {
				sp.Stop()
				bar = progressbar.NewOptions(update.TotalPages,
					progressbar.OptionSetDescription("detecting tables"),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionClearOnFinish(),
				)
			}
			if bar != nil && update.CurrentPage > 0 {
				_ = bar.Add(1)
			}
		case domain.StateEntityScanning:
			if bar != nil {
				_ = bar.Finish()
				bar = nil
				sp.Start()
			}
			sp.Suffix = fmt.Sprintf(" scanning entities (%d/%d engines)", update.EnginesDone, update.TotalEngines)
		case domain.StateAggregating:
			sp.Suffix = " aggregating votes"
		case domain.StateFinalizing:
			sp.Suffix = " finalizing"
		}
	}

	if bar != nil {
		_ = bar.Finish()
	}
}

// printResult renders a human-readable summary.
func printResult(result *domain.ExtractionResult, state domain.JobState) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	switch state {
	case domain.StateCompleted:
		if result.FromCache {
			green.Println("✓ Extraction completed (cached)")
		} else {
			green.Println("✓ Extraction completed")
		}
	case domain.StateCancelled:
		yellow.Println("⚠ Extraction cancelled, partial result")
	}

	bold.Printf("\nStrategy: ")
	fmt.Printf("%s", result.Strategy.Primary)
	if result.Strategy.LowConfidence {
		yellow.Printf(" (low confidence)")
	}
	fmt.Println()

	if len(result.Tables) > 0 {
		bold.Printf("\nTables (%d):\n", len(result.Tables))
		for i, table := range result.Tables {
			fmt.Printf("  %d. page %d, %dx%d, %s, confidence %.2f\n",
				i+1, table.PageIndex, table.RowCount, table.ColCount, table.RegionType, table.Confidence)
		}
	}

	if len(result.Entities) > 0 {
		bold.Printf("\nEntities (%d):\n", len(result.Entities))
		for _, entity := range result.Entities {
			fmt.Printf("  %-14s %-40s %.3f (%d engines)\n",
				entity.EntityType, truncate(entity.EntityText, 40), entity.Confidence, entity.AgreementCount)
		}
	}

	bold.Printf("\nQuality: ")
	fmt.Printf("text %.2f, structure %.2f, completeness %.2f, confidence %.2f\n",
		result.Quality.TextQuality, result.Quality.StructureQuality,
		result.Quality.Completeness, result.Quality.Confidence)

	if len(result.Diagnostics) > 0 {
		yellow.Printf("\nDiagnostics (%d):\n", len(result.Diagnostics))
		for _, diag := range result.Diagnostics {
			fmt.Printf("  [%s] %s\n", diag.Stage, diag.Message)
		}
	}

	fmt.Printf("\nTook %s\n", result.Timings.Total.Round(time.Millisecond))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func newRouteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "route <file>",
		Short: "Show the routing decision for a document without extracting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}

			opts := domain.DefaultOptions()
			opts.EnableTables = false
			opts.EnableEntities = false
			opts.UseCache = false

			engine := extraction.New(cfg, logger)
			result, err := engine.Extract(cmd.Context(), domain.Document{Content: content, Size: int64(len(content))}, opts)
			if err != nil {
				return err
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(result.Strategy)
			}

			fmt.Printf("Primary:   %s\n", result.Strategy.Primary)
			if len(result.Strategy.FallbackChain) > 0 {
				chain := make([]string, len(result.Strategy.FallbackChain))
				for i, s := range result.Strategy.FallbackChain {
					chain[i] = string(s)
				}
				fmt.Printf("Fallbacks: %s\n", strings.Join(chain, " → "))
			}
			fmt.Printf("Degraded:  %v\n", result.Strategy.LowConfidence)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("extraction-cli v1.0.0")
		},
	}
}
