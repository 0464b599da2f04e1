package main

import (
	"fmt"

	"spotguard/internal/app"
	"spotguard/internal/risk"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print persisted risk state, position and trade summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := app.LoadStatus(cfg)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(rep)
	},
}

var (
	resetLatch    bool
	resetCooldown bool
	resetPeak     bool
)

var resetRiskCmd = &cobra.Command{
	Use:   "reset-risk",
	Short: "Manually clear the drawdown latch and/or cooldown (instance must be stopped)",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := risk.ResetOptions{ClearLatch: resetLatch, ClearCooldown: resetCooldown, RebasePeak: resetPeak}
		if !opts.ClearLatch && !opts.ClearCooldown && !opts.RebasePeak {
			return fmt.Errorf("nothing to reset: pass --clear-latch, --clear-cooldown and/or --rebase-peak")
		}
		st, err := app.ResetRisk(cfg, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "risk state updated: live_trading_disabled=%v consecutive_losses=%d peak_equity=%.2f\n",
			st.LiveTradingDisabled, st.ConsecutiveLosses, st.PeakEquity)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "spotguard %s (%s)\n", version, commit)
	},
}

func init() {
	resetRiskCmd.Flags().BoolVar(&resetLatch, "clear-latch", false, "clear the max drawdown latch")
	resetRiskCmd.Flags().BoolVar(&resetCooldown, "clear-cooldown", false, "clear cooldown and the consecutive loss counter")
	resetRiskCmd.Flags().BoolVar(&resetPeak, "rebase-peak", false, "set peak equity to current equity")
}
