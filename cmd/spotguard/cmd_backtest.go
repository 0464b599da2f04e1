package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"spotguard/internal/app"

	"github.com/spf13/cobra"
)

var (
	btPair      string
	btTimeframe string
	btCandles   int
	btReportDir string
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Walk-forward backtest of the strategy on historical candles",
	RunE: func(cmd *cobra.Command, args []string) error {
		if btPair != "" {
			cfg.Trading.Pair = btPair
		}
		if btTimeframe != "" {
			cfg.Trading.Timeframe = btTimeframe
		}
		if btCandles > 0 {
			cfg.Backtest.CandleLimit = btCandles
		}
		if btReportDir != "" {
			cfg.Backtest.ReportDir = btReportDir
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := app.NewBacktestService(cfg, nil)
		if err != nil {
			return err
		}
		defer svc.Close()
		res, err := svc.Run(ctx)
		if err != nil {
			return fmt.Errorf("backtest failed: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "run %s: %s\n", res.Run.ID, res.Run.Verdict)
		if res.Run.Warning != "" {
			fmt.Fprintf(out, "warning: %s\n", res.Run.Warning)
		}
		if res.Run.ReportPath != "" {
			fmt.Fprintf(out, "report: %s\n", res.Run.ReportPath)
		}
		if res.Run.ChartPath != "" {
			fmt.Fprintf(out, "chart:  %s\n", res.Run.ChartPath)
		}
		return nil
	},
}

func init() {
	backtestCmd.Flags().StringVar(&btPair, "pair", "", "override trading.pair")
	backtestCmd.Flags().StringVar(&btTimeframe, "timeframe", "", "override trading.timeframe")
	backtestCmd.Flags().IntVar(&btCandles, "candles", 0, "override backtest.candle_limit")
	backtestCmd.Flags().StringVar(&btReportDir, "out", "", "override backtest.report_dir")
}
