package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"spotguard/internal/app"
	"spotguard/internal/logger"

	"github.com/spf13/cobra"
)

const riskPhrase = "YES I ACCEPT THE RISK"

var (
	runLive       bool
	runUnderstand bool
	runConfirm    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the trading loop (paper mode unless --live)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runLive {
			if err := confirmLive(cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
				return err
			}
			logger.Warnf("LIVE TRADING MODE: real orders will be placed")
			logger.Audit("live_start", "live trading confirmed by operator")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.NewApp(ctx, cfg, app.WithLive(runLive))
		if err != nil {
			return fmt.Errorf("init app failed: %w", err)
		}
		defer a.Close()
		if err := a.Run(ctx); err != nil {
			return err
		}
		logger.Infof("spotguard stopped")
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runLive, "live", false, "place real orders on the exchange")
	runCmd.Flags().BoolVar(&runUnderstand, "i-understand-risks", false, "required together with --live")
	runCmd.Flags().BoolVar(&runConfirm, "confirm", false, "skip the interactive live confirmation")
}

// confirmLive 实盘需要 --i-understand-risks，并且输入确认短语或传 --confirm。
func confirmLive(in io.Reader, out io.Writer) error {
	if !runUnderstand {
		return fmt.Errorf("live trading requires --i-understand-risks")
	}
	if runConfirm {
		return nil
	}
	fmt.Fprintf(out, "You are about to trade with real funds.\nType '%s' to continue: ", riskPhrase)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return err
	}
	if strings.TrimSpace(line) != riskPhrase {
		return fmt.Errorf("live trading not confirmed")
	}
	return nil
}
