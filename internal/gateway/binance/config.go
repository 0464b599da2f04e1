package binance

import (
	"strings"
	"time"

	"spotguard/internal/config"
)

const defaultStepSize = 0.00001

type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
	APIKey      string
	SecretKey   string

	BreakerThreshold int
	BreakerCooldown  time.Duration
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		RESTBaseURL:      cfg.Exchange.RESTBaseURL,
		HTTPTimeout:      time.Duration(cfg.Exchange.TimeoutSeconds) * time.Second,
		APIKey:           cfg.Exchange.APIKey,
		SecretKey:        cfg.Exchange.SecretKey,
		BreakerThreshold: cfg.Exchange.BreakerThreshold,
		BreakerCooldown:  time.Duration(cfg.Exchange.BreakerCooldownSeconds) * time.Second,
	}
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimRight(strings.TrimSpace(out.RESTBaseURL), "/")
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://api.binance.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 10 * time.Second
	}
	if out.BreakerThreshold <= 0 {
		out.BreakerThreshold = 5
	}
	if out.BreakerCooldown <= 0 {
		out.BreakerCooldown = time.Minute
	}
	out.APIKey = strings.TrimSpace(out.APIKey)
	out.SecretKey = strings.TrimSpace(out.SecretKey)
	return out
}
