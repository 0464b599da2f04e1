package main

import (
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"spotguard/internal/config"
	"spotguard/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// 通过 -ldflags "-X main.version=..." 注入。
var (
	version = "dev"
	commit  = "none"
)

var (
	cfgPath  string
	cfg      *config.Config
	logFiles []*os.File
)

var rootCmd = &cobra.Command{
	Use:           "spotguard",
	Short:         "Risk-gated single-pair spot trading bot",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return bootstrap(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		for _, f := range logFiles {
			_ = f.Close()
		}
		logFiles = nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default $SPOTGUARD_CONFIG or configs/config.yaml)")
	rootCmd.AddCommand(runCmd, backtestCmd, statusCmd, resetRiskCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Printf("spotguard: %v", err)
		os.Exit(1)
	}
}

// bootstrap 加载 .env 与配置，并把日志同时写到 stdout 和文件。
func bootstrap(cmd *cobra.Command) error {
	// 已存在的环境变量优先于 .env。
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	loaded, err := loadConfig(cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	cfg = loaded
	logger.SetLevel(cfg.App.LogLevel)

	if f, err := setupLogOutput(cfg.App.LogPath); err != nil {
		return err
	} else if f != nil {
		logFiles = append(logFiles, f)
	}
	if f, err := openAppend(cfg.App.AuditLogPath); err != nil {
		return err
	} else if f != nil {
		logger.SetAuditWriter(f)
		logFiles = append(logFiles, f)
	}
	return nil
}

func loadConfig(explicit bool) (*config.Config, error) {
	path := strings.TrimSpace(cfgPath)
	if path == "" {
		path = os.Getenv("SPOTGUARD_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = "configs/config.yaml"
	}
	if _, err := os.Stat(path); err != nil && errors.Is(err, os.ErrNotExist) && !explicit {
		logger.Warnf("config %s not found, using built-in defaults", path)
		return config.Default()
	}
	c, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Infof("config loaded from %s (env=%s)", path, c.App.Env)
	return c, nil
}

func setupLogOutput(path string) (*os.File, error) {
	file, err := openAppend(path)
	if err != nil || file == nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}

func openAppend(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	if dir := filepath.Dir(trimmed); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}
