package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyike/agenttrader/config"
	"github.com/dyike/agenttrader/internal/service"
	"github.com/dyike/agenttrader/models"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	o := &options{}

	rootCmd := &cobra.Command{
		Use:   "agenttrader",
		Short: "agenttrader - multi-agent LLM trading analysis",
		Long: `agenttrader runs a team of LLM agents (analysts, researchers, a trader and a risk
committee) over market data and produces a trade recommendation for a ticker and date.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().BoolVar(&o.debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&o.configPath, "config", "", "Configuration file path")

	rootCmd.AddCommand(newServeCmd(o))
	rootCmd.AddCommand(newAnalyzeCmd(o))
	rootCmd.AddCommand(newReflectCmd(o))
	rootCmd.AddCommand(newHistoryCmd(o))
	rootCmd.AddCommand(newConfigCmd(o))
	rootCmd.AddCommand(newGraphCmd(o))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// analysisRunner is the part of the analyzer the analyze command drives.
type analysisRunner interface {
	Analyze(ctx context.Context, req models.AnalyzeRequest) (*models.AnalyzeResponse, error)
	Stream(ctx context.Context, req models.AnalyzeRequest, emit func(models.StreamEvent)) error
}

func newAnalyzeCmd(o *options) *cobra.Command {
	var (
		date   string
		depth  string
		stream bool
	)
	cmd := &cobra.Command{
		Use:   "analyze [TICKER]",
		Short: "Run a trading analysis for a ticker",
		Long: `Run the full agent pipeline for a ticker and print the reports and the final decision.
Without a ticker the command asks for one interactively.
Example: agenttrader analyze NVDA --date 2024-05-01 --stream`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ticker string
			if len(args) == 1 {
				ticker = args[0]
			} else {
				var err error
				if ticker, err = PromptForTicker(); err != nil {
					return err
				}
				if date == "" {
					if date, err = PromptForAnalysisDate(service.DefaultTradeDate(time.Now())); err != nil {
						return err
					}
				}
				if depth == "" {
					d, err := PromptForResearchDepth()
					if err != nil {
						return err
					}
					depth = string(d)
				}
			}

			cfg, err := o.config()
			if err != nil {
				return err
			}
			if depth != "" {
				rounds, err := ParseResearchDepth(depth)
				if err != nil {
					return err
				}
				cfg.MaxDebateRounds = rounds
				cfg.MaxRiskDiscussRounds = rounds
			}

			engine, err := o.builder()(cfg)
			if err != nil {
				return err
			}
			defer engine.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			req := models.AnalyzeRequest{Ticker: ticker, TradeDate: date}
			runErr := runAnalysis(ctx, cmd.OutOrStdout(), engine.Analyzer, req, stream)
			calls, prompt, completion := engine.Usage.Totals()
			fmt.Fprintln(cmd.OutOrStdout(), renderUsage(calls, prompt, completion))
			return runErr
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Trade date in YYYY-MM-DD format (two days ago if not provided)")
	cmd.Flags().StringVar(&depth, "depth", "", "Research depth: shallow, medium or deep (config rounds if not provided)")
	cmd.Flags().BoolVar(&stream, "stream", false, "Print each agent step as it completes")

	return cmd
}

// runAnalysis runs one analysis and renders it to w. The partial result is
// printed even when the run fails.
func runAnalysis(ctx context.Context, w io.Writer, runner analysisRunner, req models.AnalyzeRequest, stream bool) error {
	fmt.Fprintln(w, renderHeader(strings.ToUpper(strings.TrimSpace(req.Ticker)), req.TradeDate))

	if !stream {
		resp, err := runner.Analyze(ctx, req)
		if resp != nil && resp.Ticker != "" {
			fmt.Fprintln(w, renderResponse(resp))
		}
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}
		fmt.Fprintln(w, completedStyle.Render("Analysis completed"))
		return nil
	}

	step := 0
	err := runner.Stream(ctx, req, func(ev models.StreamEvent) {
		if !ev.Done {
			step++
			fmt.Fprintln(w, renderStep(step, ev.Node))
			return
		}
		if ev.AnalyzeResponse != nil && ev.Ticker != "" {
			fmt.Fprintln(w, renderResponse(ev.AnalyzeResponse))
		}
	})
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	fmt.Fprintln(w, completedStyle.Render(fmt.Sprintf("Analysis completed in %d steps", step)))
	return nil
}

func newReflectCmd(o *options) *cobra.Command {
	var returns float64
	cmd := &cobra.Command{
		Use:   "reflect SESSION_ID",
		Short: "Store lessons from a finished run once its return is known",
		Long: `Ask the deep model to reflect on every decision of a completed run given the realised
return (in percent) and store the lessons in each role's memory.
Example: agenttrader reflect 6f1c... --returns -3.5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := o.engine()
			if err != nil {
				return err
			}
			defer engine.Close()

			reflections, err := engine.Analyzer.Reflect(cmd.Context(), args[0], returns)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderReflections(reflections))
			return nil
		},
	}
	cmd.Flags().Float64Var(&returns, "returns", 0, "Realised return of the position in percent")
	_ = cmd.MarkFlagRequired("returns")
	return cmd
}

func newGraphCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the agent graph as a Mermaid flowchart",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := o.engine()
			if err != nil {
				return err
			}
			defer engine.Close()
			fmt.Fprint(cmd.OutOrStdout(), engine.Graph.Graph().DrawMermaid())
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render("agenttrader "+Version))
			fmt.Fprintln(cmd.OutOrStdout(), "Multi-agent LLM trading analysis")
		},
	}
}

func newConfigCmd(o *options) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := o.manager()
			if err != nil {
				return err
			}
			cfg, _ := o.config()
			fmt.Fprintln(cmd.OutOrStdout(), renderConfig(mgr.Path(), &cfg))
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.config()
			if err != nil {
				return err
			}
			return validateConfig(cmd.OutOrStdout(), &cfg)
		},
	})

	return configCmd
}

// validateConfig checks values, directories and credentials. Missing optional
// credentials are warnings; a missing LLM key is an error.
func validateConfig(w io.Writer, cfg *config.Config) error {
	fmt.Fprintln(w, titleStyle.Render("Validating configuration"))

	check := func(name string, err error) error {
		if err != nil {
			fmt.Fprintf(w, "%s %s: %v\n", errorStyle.Render("✗"), name, err)
			return err
		}
		fmt.Fprintf(w, "%s %s\n", completedStyle.Render("✓"), name)
		return nil
	}

	if err := check("values", cfg.Validate()); err != nil {
		return err
	}
	if err := check("directories", cfg.EnsureDirectories()); err != nil {
		return err
	}
	var keyErr error
	if cfg.LLMAPIKey() == "" {
		keyErr = fmt.Errorf("no API key for provider %s", cfg.LLMProvider)
	}
	if err := check("llm credentials", keyErr); err != nil {
		return err
	}

	var warnings []string
	if cfg.FinnhubAPIKey == "" {
		warnings = append(warnings, "FINNHUB_API_KEY not set, company news is unavailable")
	}
	if cfg.TavilyAPIKey == "" {
		warnings = append(warnings, "TAVILY_API_KEY not set, web search falls back to Google News")
	}
	if cfg.MarketDataProvider == config.MarketDataLongport &&
		(cfg.LongportAppKey == "" || cfg.LongportAppSecret == "" || cfg.LongportAccessToken == "") {
		warnings = append(warnings, "longport credentials not set")
	}
	for _, warning := range warnings {
		fmt.Fprintf(w, "%s %s\n", inProgressStyle.Render("!"), warning)
	}

	if len(warnings) == 0 {
		fmt.Fprintln(w, completedStyle.Render("Configuration is valid"))
	} else {
		fmt.Fprintln(w, inProgressStyle.Render(fmt.Sprintf("Configuration is valid with %d warnings", len(warnings))))
	}
	return nil
}
