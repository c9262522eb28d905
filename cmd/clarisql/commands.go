package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/clarisql/internal/batch"
	"github.com/kalambet/clarisql/internal/config"
	"github.com/kalambet/clarisql/internal/dataset"
	"github.com/kalambet/clarisql/internal/fewshot"
	"github.com/kalambet/clarisql/internal/gateway"
	"github.com/kalambet/clarisql/internal/refine"
	"github.com/kalambet/clarisql/internal/schema"
	"github.com/kalambet/clarisql/internal/sqleval"
)

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run batch refinement over a benchmark CSV",
	Long: `Run batch refinement over a benchmark CSV.

Each row needs a natural-language question, a gold SQL query, and a database
id resolvable under the database root directory.

Examples:
  clarisql run --samples dev.csv
  clarisql run --samples dev.csv --strategy clarify --rounds 5 --output outcomes.jsonl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		initLogging(cfg)

		samplesPath, _ := cmd.Flags().GetString("samples")
		if samplesPath == "" {
			return fmt.Errorf("--samples is required")
		}
		applyRunFlags(cmd, &cfg)

		samples, err := dataset.LoadSamples(samplesPath, slog.Default())
		if err != nil {
			return err
		}
		if len(samples) == 0 {
			return fmt.Errorf("no usable samples in %s", samplesPath)
		}
		printStatus("Samples", "%d from %s", len(samples), samplesPath)

		ctx := cmd.Context()
		client := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey)
		locator := schema.NewLocator(cfg.Data.DBRoot)

		var exemplars refine.ExemplarSearcher
		if cfg.Data.QuestionBankDir != "" {
			entries, err := dataset.LoadExemplars(cfg.Data.QuestionBankDir, slog.Default())
			if err != nil {
				return err
			}
			idx := fewshot.NewIndex(ctx, entries, fewshot.Options{
				Embedder: client,
				Model:    cfg.Gateway.EmbedModel,
			})
			printStatus("Question bank", "%d exemplars (lexical=%v)", idx.Size(), idx.Lexical())
			exemplars = idx
		}

		runner := refine.NewRunner(client, sqleval.New(nil), locator, exemplars)

		if only, _ := cmd.Flags().GetBool("ambiguous-only"); only {
			samples = filterAmbiguous(ctx, runner, locator, samples, cfg.Gateway.AmbiguityModel)
			printStatus("Ambiguity filter", "%d samples kept", len(samples))
			if len(samples) == 0 {
				printWarning("no ambiguous samples; nothing to run")
				return nil
			}
		}

		res := batch.Run(ctx, runner, samples, batch.Options{
			Concurrency: cfg.Refine.Concurrency,
			Refine:      refineOptions(cfg),
		})

		outputPath, _ := cmd.Flags().GetString("output")
		if err := writeOutcomes(outputPath, res.Outcomes); err != nil {
			return err
		}

		printSummary(res)
		if res.Failed > 0 {
			printWarning("%d samples dropped; see log for details", res.Failed)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().String("samples", "", "benchmark CSV with question, gold SQL, and db_id columns")
	runCmd.Flags().String("output", "", "write outcomes as JSONL to this file (default: stdout)")
	runCmd.Flags().String("strategy", "", "refinement strategy: self_debug or clarify")
	runCmd.Flags().Int("rounds", -1, "maximum refinement rounds (0 disables rounds)")
	runCmd.Flags().Int("shots", -1, "few-shot examples per prompt")
	runCmd.Flags().Int("concurrency", 0, "samples processed in parallel")
	runCmd.Flags().String("model", "", "generation model override")
	runCmd.Flags().String("db-root", "", "database root directory override")
	runCmd.Flags().Bool("ambiguous-only", false, "keep only samples the classifier flags as ambiguous")
}

// filterAmbiguous keeps samples whose question the classifier flags as
// ambiguous. Samples with an unresolvable schema pass through so the
// batch runner can report them the usual way.
func filterAmbiguous(ctx context.Context, runner *refine.Runner, schemas *schema.Locator, samples []refine.Sample, model string) []refine.Sample {
	kept := make([]refine.Sample, 0, len(samples))
	for _, s := range samples {
		schemaText := schemas.Schema(ctx, s.DBID)
		if schemaText == "" {
			kept = append(kept, s)
			continue
		}
		if ambiguous, _ := runner.IsAmbiguous(ctx, s.Question, schemaText, model); ambiguous {
			kept = append(kept, s)
		}
	}
	return kept
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("strategy"); v != "" {
		cfg.Refine.Strategy = v
	}
	if v, _ := cmd.Flags().GetInt("rounds"); v >= 0 {
		cfg.Refine.MaxRounds = v
	}
	if v, _ := cmd.Flags().GetInt("shots"); v >= 0 {
		cfg.Refine.Shots = v
	}
	if v, _ := cmd.Flags().GetInt("concurrency"); v > 0 {
		cfg.Refine.Concurrency = v
	}
	if v, _ := cmd.Flags().GetString("model"); v != "" {
		cfg.Gateway.Model = v
	}
	if v, _ := cmd.Flags().GetString("db-root"); v != "" {
		cfg.Data.DBRoot = v
	}
}

func refineOptions(cfg config.Config) refine.Options {
	strategy := refine.StrategySelfDebug
	if strings.EqualFold(cfg.Refine.Strategy, string(refine.StrategyClarify)) {
		strategy = refine.StrategyClarify
	}
	retryDelay, err := time.ParseDuration(cfg.Gateway.RetryDelay)
	if err != nil {
		slog.Warn("invalid retry delay, using gateway default", "value", cfg.Gateway.RetryDelay, "error", err)
		retryDelay = 0
	}
	return refine.Options{
		Strategy:       strategy,
		MaxRounds:      cfg.Refine.MaxRounds,
		Shots:          cfg.Refine.Shots,
		Model:          cfg.Gateway.Model,
		FallbackModels: cfg.Gateway.FallbackModelList(),
		Retries:        cfg.Gateway.Retries,
		RetryDelay:     retryDelay,
	}
}

func writeOutcomes(path string, outcomes []refine.Outcome) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	for _, o := range outcomes {
		if err := enc.Encode(o); err != nil {
			return fmt.Errorf("writing outcome %s: %w", o.SampleID, err)
		}
	}
	if path != "" {
		printSuccess("Outcomes written to %s", path)
	}
	return nil
}

func initLogging(cfg config.Config) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- exec-query ---

// execQueryCmd is the hidden subprocess entry point used to isolate
// candidate SQL execution from the parent process.
var execQueryCmd = &cobra.Command{
	Use:    "exec-query <db-path>",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return sqleval.RunWorker(ctx, args[0], os.Stdin, os.Stdout)
	},
}
