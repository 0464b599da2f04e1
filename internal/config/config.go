package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// 凭证只从环境变量读取（配置文件中的同名字段优先）。
const (
	EnvBinanceAPIKey    = "BINANCE_API_KEY"
	EnvBinanceSecretKey = "BINANCE_SECRET_KEY"
	EnvTelegramToken    = "TELEGRAM_TOKEN"
	EnvTelegramChatID   = "TELEGRAM_CHAT_ID"
	EnvKillSwitch       = "KILL_SWITCH"
)

// Load 读取配置文件及其 include 链。被 include 的文件先合并，主文件最后覆盖。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	chain := &includeChain{done: map[string]bool{}, visiting: map[string]bool{}}
	if err := chain.walk(abs); err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	for _, layer := range chain.layers {
		if err := v.MergeConfigMap(layer.AllSettings()); err != nil {
			return nil, fmt.Errorf("merge config %s failed: %w", layer.ConfigFileUsed(), err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	keys := make(keySet)
	for _, key := range v.AllKeys() {
		keys.mark(key)
	}
	return finalize(&cfg, keys)
}

// Default 返回只包含默认值（以及环境变量凭证）的配置，用于无配置文件启动与测试。
func Default() (*Config, error) {
	return finalize(&Config{}, make(keySet))
}

func finalize(cfg *Config, keys keySet) (*Config, error) {
	cfg.applyDefaults(keys)
	cfg.resolveEnv(keys)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolveEnv(keys keySet) {
	if strings.TrimSpace(c.Exchange.APIKey) == "" {
		c.Exchange.APIKey = strings.TrimSpace(os.Getenv(EnvBinanceAPIKey))
	}
	if strings.TrimSpace(c.Exchange.SecretKey) == "" {
		c.Exchange.SecretKey = strings.TrimSpace(os.Getenv(EnvBinanceSecretKey))
	}
	tg := &c.Notify.Telegram
	if strings.TrimSpace(tg.BotToken) == "" {
		tg.BotToken = strings.TrimSpace(os.Getenv(EnvTelegramToken))
	}
	if strings.TrimSpace(tg.ChatID) == "" {
		tg.ChatID = strings.TrimSpace(os.Getenv(EnvTelegramChatID))
	}
	if !keys.isSet("notify.telegram.enabled") && tg.Configured() {
		tg.Enabled = true
	}
}

// includeChain 按深度优先展开 include，layers 中依赖在前、引用方在后。
type includeChain struct {
	done     map[string]bool
	visiting map[string]bool
	layers   []*viper.Viper
}

func (c *includeChain) walk(path string) error {
	path = filepath.Clean(path)
	if c.visiting[path] {
		return fmt.Errorf("include cycle detected: %s", path)
	}
	if c.done[path] {
		return nil
	}
	layer := viper.New()
	layer.SetConfigFile(path)
	if err := layer.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	c.visiting[path] = true
	for _, inc := range layer.GetStringSlice("include") {
		inc = strings.TrimSpace(inc)
		if inc == "" {
			continue
		}
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := c.walk(inc); err != nil {
			return err
		}
	}
	delete(c.visiting, path)
	c.done[path] = true
	c.layers = append(c.layers, layer)
	return nil
}
