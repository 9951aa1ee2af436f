package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"crossbot/api"
	"crossbot/config"
	"crossbot/journal"
	"crossbot/logs"
	"crossbot/profit"
	"crossbot/report"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "crossbot",
		Short: "Moving average crossover trading bot",
		Long: `crossbot trades a short/long simple moving average crossover with
stop-loss and take-profit levels, either live against a paper or Binance ledger
or as a backtest over historical bars.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "Path to the config.yaml file")

	rootCmd.AddCommand(liveCmd())
	rootCmd.AddCommand(backtestCmd())
	rootCmd.AddCommand(positionsCmd())
	rootCmd.AddCommand(reportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads .env, the YAML config and the logger. The returned func flushes logs.
func setup(logName string) (*config.Config, *config.EnvConfig, func(), error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Note: .env file not found, will continue using system environment variables.")
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("unable to load config file '%s': %w", configPath, err)
	}
	logFile := filepath.Join(cfg.Normal.LogDirectory, logName)
	if err := logs.Init(&cfg.Logs, logFile); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logging system: %w", err)
	}
	logs.Infof("Configuration loaded successfully, logs will be written to: %s", logFile)
	return cfg, config.LoadEnvConfig(), logs.Close, nil
}

func liveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "live",
		Short: "Run the live trading loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, env, closeLogs, err := setup("live.log")
			if err != nil {
				return err
			}
			defer closeLogs()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			a, err := buildApp(ctx, cfg, env, true)
			if err != nil {
				return err
			}
			defer a.close()
			a.validateSymbols(ctx, cfg.Symbols)

			if cfg.HTTP.Listen != "" {
				srv := api.NewServer(cfg.HTTP.Listen, a.orchestrator)
				go func() {
					if err := srv.Start(ctx); err != nil {
						logs.Errorf("[API] Server stopped: %v", err)
					}
				}()
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)
			go func() {
				select {
				case <-quit:
					a.orchestrator.Stop()
				case <-ctx.Done():
				}
			}()

			return a.orchestrator.RunLive(ctx)
		},
	}
}

func backtestCmd() *cobra.Command {
	var startDate, endDate, output string
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay historical signals through a paper ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, env, closeLogs, err := setup("backtest.log")
			if err != nil {
				return err
			}
			defer closeLogs()

			if startDate != "" {
				cfg.Backtest.StartDate = startDate
			}
			if endDate != "" {
				cfg.Backtest.EndDate = endDate
			}
			start, end, err := cfg.Backtest.Window()
			if err != nil {
				return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
			}

			a, err := buildApp(cmd.Context(), cfg, env, false)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.orchestrator.RunBacktest(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			printBacktest(result)

			if output == "" {
				output = cfg.Report.OutputPath
			}
			if output != "" {
				if err := report.WriteFile(output, result.RoundTrips, cfg.Capital.InitialBalance, result.Metrics); err != nil {
					return err
				}
				fmt.Printf("Report written to %s\n", output)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&startDate, "start-date", "", "Backtest start date (YYYY-MM-DD), overrides config")
	cmd.Flags().StringVar(&endDate, "end-date", "", "Backtest end date (YYYY-MM-DD), overrides config")
	cmd.Flags().StringVarP(&output, "output", "o", "", "HTML report path, defaults to report.output_path")
	return cmd
}

func positionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "positions",
		Short: "Show open positions with current P&L",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, env, closeLogs, err := setup("positions.log")
			if err != nil {
				return err
			}
			defer closeLogs()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			a, err := buildApp(ctx, cfg, env, true)
			if err != nil {
				return err
			}
			defer a.close()

			positions, err := a.orchestrator.PositionsSnapshot(ctx)
			if err != nil {
				return err
			}
			if len(positions) == 0 {
				fmt.Println("No open positions")
				return nil
			}
			fmt.Printf("%-12s %14s %14s %14s %14s\n", "SYMBOL", "QUANTITY", "AVG PRICE", "VALUE", "UNREALIZED")
			for _, p := range positions {
				fmt.Printf("%-12s %14.6f %14.4f %14.2f %14.2f\n", p.Symbol, p.Quantity, p.AvgPrice, p.MarketValue, p.UnrealizedPNL)
			}
			return nil
		},
	}
}

func reportCmd() *cobra.Command {
	var output, mode string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render an HTML performance report from the trade journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, closeLogs, err := setup("report.log")
			if err != nil {
				return err
			}
			defer closeLogs()

			j, err := journal.Open(cfg.Normal.JournalPath, cfg.Capital.InitialBalance, cfg.Metrics.RiskFreeRate)
			if err != nil {
				return err
			}
			defer j.Close()

			trips, err := j.ForRun(mode).ModeRoundTrips()
			if err != nil {
				return fmt.Errorf("failed to read round trips: %w", err)
			}
			m := profit.ComputeMetrics(trips, cfg.Capital.InitialBalance, cfg.Metrics.RiskFreeRate)
			if output == "" {
				output = cfg.Report.OutputPath
			}
			if err := report.WriteFile(output, trips, cfg.Capital.InitialBalance, m); err != nil {
				return err
			}
			fmt.Printf("Report for %d %s round trips written to %s\n", len(trips), mode, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "HTML report path, defaults to report.output_path")
	cmd.Flags().StringVar(&mode, "mode", journal.ModeLive, "Journal mode to report on (live or backtest)")
	return cmd
}

func printBacktest(r BacktestResult) {
	summary := struct {
		Trades         int      `json:"trades"`
		RoundTrips     int      `json:"round_trips"`
		FinalCash      float64  `json:"final_cash"`
		FinalEquity    float64  `json:"final_equity"`
		OpenPositions  int      `json:"open_positions"`
		SkippedSymbols []string `json:"skipped_symbols,omitempty"`
		Metrics        any      `json:"metrics"`
		Signals        any      `json:"signals"`
	}{
		Trades:         len(r.Trades),
		RoundTrips:     len(r.RoundTrips),
		FinalCash:      r.FinalAccount.Cash,
		FinalEquity:    r.FinalAccount.Equity,
		OpenPositions:  len(r.OpenPositions),
		SkippedSymbols: r.SkippedSymbols,
		Metrics:        r.Metrics,
		Signals:        r.SignalStats,
	}
	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
}
