package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearSecrets(t *testing.T) {
	for _, key := range []string{EnvBinanceAPIKey, EnvBinanceSecretKey, EnvTelegramToken, EnvTelegramChatID} {
		t.Setenv(key, "")
	}
}

func TestDefaultMatchesReferenceSettings(t *testing.T) {
	clearSecrets(t)
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", cfg.Trading.Pair)
	assert.Equal(t, "15m", cfg.Trading.Timeframe)
	assert.Equal(t, 100.0, cfg.Trading.CapitalLimitUSDT)
	assert.Equal(t, 5.0, cfg.Trading.MinOrderUSDT)

	assert.Equal(t, 15.0, cfg.Risk.RiskPerTradePct)
	assert.Equal(t, 50.0, cfg.Risk.MaxTotalExposurePct)
	assert.Equal(t, 1, cfg.Risk.MaxConcurrentPositions)
	assert.Equal(t, 2.0, cfg.Risk.DailyLossCapPct)
	assert.Equal(t, 8.0, cfg.Risk.MaxDrawdownCapPct)
	assert.Equal(t, 3, cfg.Risk.ConsecutiveLossLimit)
	assert.Equal(t, 120, cfg.Risk.CooldownMinutes)
	assert.Equal(t, 0.55, cfg.Risk.MinSignalConfidence)

	assert.Equal(t, 0.5, cfg.Execution.MaxSpreadPct)
	assert.Equal(t, 30, cfg.Execution.StalePriceSeconds)
	assert.Equal(t, 1.5, cfg.Exit.StopLossPct)
	assert.Equal(t, 3.0, cfg.Exit.TakeProfitPct)
	assert.Equal(t, 48.0, cfg.Exit.MaxHoldingHours)

	assert.True(t, cfg.Backtest.IncludeFees)
	assert.True(t, cfg.Backtest.IncludeSlippage)
	assert.False(t, cfg.Notify.Telegram.Enabled)
}

func TestLoadMergesIncludesAndKeepsExplicitValues(t *testing.T) {
	clearSecrets(t)
	dir := t.TempDir()
	writeFile(t, dir, "risk.yaml", `
risk:
  daily_loss_cap_pct: 3
  cooldown_minutes: 0
`)
	path := writeFile(t, dir, "config.yaml", `
include:
  - risk.yaml
trading:
  pair: eth/usdt
  timeframe: 1H
backtest:
  include_fees: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", cfg.Trading.Pair)
	assert.Equal(t, "1h", cfg.Trading.Timeframe)
	assert.Equal(t, 3.0, cfg.Risk.DailyLossCapPct)
	assert.Equal(t, 0, cfg.Risk.CooldownMinutes, "explicit zero must not be replaced by the default")
	assert.False(t, cfg.Backtest.IncludeFees)
	assert.True(t, cfg.Backtest.IncludeSlippage)
}

func TestLoadRejectsUnsupportedTimeframe(t *testing.T) {
	clearSecrets(t)
	path := writeFile(t, t.TempDir(), "config.yaml", "trading:\n  timeframe: 10m\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported timeframe")
}

func TestLoadRejectsOutOfRangeRisk(t *testing.T) {
	clearSecrets(t)
	path := writeFile(t, t.TempDir(), "config.yaml", "risk:\n  max_drawdown_cap_pct: 120\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSecretsResolvedFromEnvironment(t *testing.T) {
	t.Setenv(EnvBinanceAPIKey, "key")
	t.Setenv(EnvBinanceSecretKey, "secret")
	t.Setenv(EnvTelegramToken, "123:abc")
	t.Setenv(EnvTelegramChatID, "42")

	cfg, err := Default()
	require.NoError(t, err)
	assert.True(t, cfg.Exchange.HasCredentials())
	assert.True(t, cfg.Notify.Telegram.Enabled)
	assert.Equal(t, "42", cfg.Notify.Telegram.ChatID)
}

func TestTelegramExplicitlyDisabledStaysDisabled(t *testing.T) {
	t.Setenv(EnvTelegramToken, "123:abc")
	t.Setenv(EnvTelegramChatID, "42")
	path := writeFile(t, t.TempDir(), "config.yaml", "notify:\n  telegram:\n    enabled: false\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Notify.Telegram.Enabled)
}

func TestIncludeCycleDetected(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	path := writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestExampleConfigLoads(t *testing.T) {
	clearSecrets(t)
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", cfg.Trading.Pair)
	assert.Equal(t, "15m", cfg.Trading.Timeframe)
	assert.False(t, cfg.Notify.Telegram.Enabled)
	assert.Equal(t, 8.0, cfg.Risk.MaxDrawdownCapPct)
}

func TestIncludeAcceptsSingleString(t *testing.T) {
	clearSecrets(t)
	dir := t.TempDir()
	writeFile(t, dir, "exit.yaml", "exit:\n  stop_loss_pct: 2.5\n")
	path := writeFile(t, dir, "config.yaml", "include: exit.yaml\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2.5, cfg.Exit.StopLossPct)
}
