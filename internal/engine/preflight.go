package engine

import (
	"fmt"
	"os"
	"strings"

	"spotguard/internal/config"
	"spotguard/internal/risk"
)

// PreflightError 汇总所有未通过的启动检查。
type PreflightError struct {
	Reasons []string
}

func (e *PreflightError) Error() string {
	return "live mode blocked: " + strings.Join(e.Reasons, "; ")
}

// LookupEnv 便于测试替换环境变量读取。
type LookupEnv func(key string) (string, bool)

// Preflight 在实盘启动前检查凭证、告警通道、kill switch 配置与回撤锁定，
// 任一失败都返回 *PreflightError 并列出全部原因。模拟盘只检查 kill switch。
func Preflight(cfg *config.Config, status risk.Status, live bool, lookup LookupEnv) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var reasons []string
	if live {
		if !cfg.Exchange.HasCredentials() {
			reasons = append(reasons, fmt.Sprintf("missing %s or %s", config.EnvBinanceAPIKey, config.EnvBinanceSecretKey))
		}
		if !cfg.Notify.Telegram.Configured() {
			reasons = append(reasons, fmt.Sprintf("missing %s or %s, alerts are required for live mode", config.EnvTelegramToken, config.EnvTelegramChatID))
		}
		if _, ok := lookup(config.EnvKillSwitch); !ok {
			reasons = append(reasons, fmt.Sprintf("%s not set in environment, required for live mode", config.EnvKillSwitch))
		}
		if status.LiveTradingDisabled {
			reasons = append(reasons, "live trading is disabled after a max drawdown breach, manual reset required")
		}
	}
	if status.KillSwitch {
		reasons = append(reasons, "kill switch is active")
	}
	if len(reasons) == 0 {
		return nil
	}
	return &PreflightError{Reasons: reasons}
}
