package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyike/CortexDesk/config"
	"github.com/dyike/CortexDesk/consts"
	"github.com/dyike/CortexDesk/internal/display"
	"github.com/dyike/CortexDesk/internal/portfolio"
	"github.com/dyike/CortexDesk/internal/storage"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "cortexdesk",
		Short: "CortexDesk - multi-agent trading analysis",
		Long: `CortexDesk runs a team of LLM agents over a ticker: analysts write reports, researchers and
risk analysts debate, and a portfolio manager issues a BUY, HOLD or SELL decision.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Default behavior: start interactive mode
			return runInteractiveMode(cmd, a)
		},
	}

	rootCmd.AddCommand(newAnalyzeCmd(a))
	rootCmd.AddCommand(newPortfolioCmd(a))
	rootCmd.AddCommand(newHistoryCmd(a))
	rootCmd.AddCommand(newConfigCmd(a))
	rootCmd.AddCommand(newVersionCmd())

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Configuration file path")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.BoolVar(&a.pretty, "pretty", true, "Human readable log output")
	flags.BoolVar(&a.debug, "debug", false, "Enable debug mode")
	flags.BoolVar(&a.einoDebug, "eino-debug", false, "Start the eino visual debug server")

	return rootCmd
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt)
}

func resolveDate(date string) (string, error) {
	if date == "" {
		return time.Now().Format(consts.DateLayout), nil
	}
	if _, err := time.Parse(consts.DateLayout, date); err != nil {
		return "", fmt.Errorf("invalid date format, use YYYY-MM-DD: %w", err)
	}
	return date, nil
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var date, output string
	var full bool
	cmd := &cobra.Command{
		Use:   "analyze SYMBOL",
		Short: "Run the trading pipeline for one ticker",
		Long: `Run the full analyst, debate, trader, risk and portfolio pipeline for a ticker.
Example: cortexdesk analyze SBER --date=2025-01-10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := resolveDate(date)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()
			return runAnalyzeCommand(ctx, a, a.config(), args[0], d, analyzeOptions{full: full, output: output})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Analysis date in YYYY-MM-DD format (today if not provided)")
	cmd.Flags().BoolVar(&full, "full", false, "Print reports without truncation")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Also write the run result as JSON to this file")
	return cmd
}

type analyzeOptions struct {
	full   bool
	output string
}

// runAnalyzeCommand executes one pipeline run and prints its report
func runAnalyzeCommand(ctx context.Context, a *app, cfg *config.Config, symbol, date string, opts analyzeOptions) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	fmt.Fprintln(a.out, display.Title(fmt.Sprintf("Starting analysis for %s on %s", symbol, date)))

	g, cleanup, err := a.pipeline(ctx, cfg)
	if err != nil {
		return err
	}
	res := g.Run(ctx, symbol, date)
	cleanup()

	d := display.NewResultsDisplay(a.out)
	d.Full = opts.full
	d.DisplayAnalysisResults(res)
	if opts.output != "" {
		if err := display.SaveResultsToFile(res, opts.output); err != nil {
			a.log.Warn().Err(err).Str("path", opts.output).Msg("save results")
		}
	}
	if !res.Done() {
		if res.Failure == nil {
			return errors.New("analysis failed")
		}
		return res.Failure
	}
	fmt.Fprintln(a.out, display.Success("Analysis completed successfully"))
	return nil
}

func newPortfolioCmd(a *app) *cobra.Command {
	var date, file string
	var workers int
	cmd := &cobra.Command{
		Use:   "portfolio [SYMBOL...]",
		Short: "Run the pipeline over several tickers",
		Long: `Run the pipeline for each ticker with bounded concurrency and write a markdown summary.
Example: cortexdesk portfolio SBER GAZP LKOH --workers 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := resolveDate(date)
			if err != nil {
				return err
			}
			tickers := args
			if file != "" {
				fromFile, err := loadTickersFromFile(file)
				if err != nil {
					return err
				}
				tickers = append(tickers, fromFile...)
			}
			tickers = portfolio.NormalizeTickers(tickers)
			if len(tickers) == 0 {
				return errors.New("at least one ticker is required")
			}
			cfg := a.config()
			if cmd.Flags().Changed("workers") {
				cfg.PortfolioWorkers = workers
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()
			return runPortfolioCommand(ctx, a, cfg, tickers, d)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Analysis date in YYYY-MM-DD format (today if not provided)")
	cmd.Flags().IntVar(&workers, "workers", portfolio.DefaultWorkers, "Tickers analysed concurrently")
	cmd.Flags().StringVar(&file, "file", "", "File with one ticker per line")
	return cmd
}

func runPortfolioCommand(ctx context.Context, a *app, cfg *config.Config, tickers []string, date string) error {
	fmt.Fprintln(a.out, display.Title(fmt.Sprintf("Portfolio analysis of %d tickers on %s", len(tickers), date)))

	g, cleanup, err := a.pipeline(ctx, cfg)
	if err != nil {
		return err
	}
	runner := portfolio.NewRunner(g,
		portfolio.WithWorkers(cfg.PortfolioWorkers),
		portfolio.WithLogger(a.log),
		portfolio.WithProgress(func(p portfolio.Progress) {
			fmt.Fprintf(a.out, "%s %d/%d done, %d failed, %d running (%s)\n",
				display.Muted("progress:"), p.Completed, p.Total, p.Failed, p.InProgress, p.Elapsed.Round(time.Second))
		}),
	)
	res := runner.Run(ctx, tickers, date)
	cleanup()

	display.NewResultsDisplay(a.out).DisplayPortfolio(res)
	path, err := portfolio.WriteSummary(res, cfg)
	if err != nil {
		a.log.Warn().Err(err).Msg("write portfolio summary")
	} else {
		fmt.Fprintln(a.out, display.Success("Summary written to "+path))
	}
	if res.Summary.Succeeded == 0 {
		return fmt.Errorf("all %d tickers failed", res.Summary.Total)
	}
	return nil
}

// loadTickersFromFile reads one ticker per line; blank lines and # comments are skipped.
func loadTickersFromFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ticker file: %w", err)
	}
	defer f.Close()

	var tickers []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tickers = append(tickers, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ticker file: %w", err)
	}
	return tickers, nil
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [RUN_ID]",
		Short: "List recorded runs, or the stages of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.OpenForConfig(a.config())
			if err != nil {
				return err
			}
			defer store.Close()
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			if len(args) == 1 {
				run, err := store.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				if run == nil {
					return fmt.Errorf("run %s not found", args[0])
				}
				events, err := store.ListStageEvents(ctx, run.RunID)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s %s %s %s\n", run.RunID, run.Symbol, run.TradeDate, run.Status)
				for _, ev := range events {
					fmt.Fprintf(a.out, "%3d %-16s %-22s %-8s %6dms\n", ev.Seq, ev.Phase, ev.Agent, ev.Status, ev.DurationMs)
				}
				return nil
			}

			runs, err := store.ListRuns(ctx, 0, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(a.out, display.Muted("no runs recorded"))
				return nil
			}
			for _, run := range runs {
				outcome := run.Action
				if run.FailureKind != "" {
					outcome = run.FailureKind + " in " + run.Phase
				}
				fmt.Fprintf(a.out, "%s  %-6s %s  %-7s %s\n",
					run.RunID, run.Symbol, run.TradeDate, run.Status, outcome)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to list")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "CortexDesk %s\n", Version)
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(a, a.config())
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(a, a.config())
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set one configuration key, e.g. set max_debate_rounds 3",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.mgr.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintln(a.out, display.Success(fmt.Sprintf("%s updated in %s", args[0], a.mgr.Path())))
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Report edits to the configuration file as they happen",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()
			return watchConfig(ctx, a)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(a.out, a.mgr.Path())
		},
	})

	return configCmd
}

// showConfig prints the effective configuration as JSON with credentials masked.
func showConfig(a *app, cfg *config.Config) error {
	masked := *cfg.Clone()
	masked.DeepSeekAPIKey = maskSecret(masked.DeepSeekAPIKey)
	masked.OpenAIAPIKey = maskSecret(masked.OpenAIAPIKey)
	masked.GeminiAPIKey = maskSecret(masked.GeminiAPIKey)

	data, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	fmt.Fprintln(a.out, display.Muted("# "+a.mgr.Path()))
	fmt.Fprintln(a.out, string(data))
	return nil
}

// watchConfig prints the keys of every accepted config change until ctx is done.
// Rejected edits only show up in the log.
func watchConfig(ctx context.Context, a *app) error {
	changes := make(chan config.Config, 8)
	err := a.mgr.Watch(ctx, func(cfg config.Config) {
		select {
		case changes <- cfg:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	prev := a.mgr.Get()
	fmt.Fprintln(a.out, display.Muted("watching "+a.mgr.Path()+", press Ctrl-C to stop"))
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg := <-changes:
			keys := config.ChangedKeys(prev, cfg)
			prev = cfg
			if len(keys) == 0 {
				continue
			}
			fmt.Fprintf(a.out, "%s %s\n", display.Success("config reloaded:"), strings.Join(keys, ", "))
		}
	}
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// validateConfig checks the settings a run depends on and reports every problem found.
func validateConfig(a *app, cfg *config.Config) error {
	var problems []string
	if err := cfg.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if cfg.APIKey() == "" {
		problems = append(problems, fmt.Sprintf("no API key configured for provider %s", cfg.LLMProvider))
	}
	if err := cfg.EnsureDirectories(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := os.Stat(filepath.Dir(cfg.DBPath)); cfg.DBPath != "" && err != nil {
		problems = append(problems, fmt.Sprintf("db directory: %v", err))
	}

	if len(problems) == 0 {
		fmt.Fprintln(a.out, display.Success("Configuration is valid"))
		return nil
	}
	for _, p := range problems {
		fmt.Fprintln(a.out, display.Error("- "+p))
	}
	return fmt.Errorf("%d configuration problem(s)", len(problems))
}
