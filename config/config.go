// Package config loads and validates bot configuration from YAML or CLI flags.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/avgdown/dcabot/internal/domain"
)

const (
	defaultShares         = 10
	defaultOrderDelayTime = 10 * time.Second
	defaultStepRatio      = "0.02"
	defaultMinProfit      = "0.001"
)

// Config is one validated bot instance configuration, immutable per run.
type Config struct {
	// Platform exchange identifier: binance, bybit, hyperliquid, simulate.
	Platform string
	// User identifier used in the position storage key.
	User string
	Pair domain.Pair
	// Shares integer divisor for position sizing.
	Shares int64
	// MinSize and MaxSize order-size bounds; zero means no limit.
	MinSize decimal.Decimal
	MaxSize decimal.Decimal
	// MinProfitPercent minimal fractional profit required to reduce the
	// position.
	MinProfitPercent decimal.Decimal
	// AddPositionStepRatio fractional price-move threshold that triggers a
	// rebalance.
	AddPositionStepRatio decimal.Decimal
	// OrderDelayTime minimum time between ticks.
	OrderDelayTime time.Duration
}

type ConfigTmp struct {
	Platform                string        `yaml:"platform"`
	User                    string        `yaml:"user,omitempty"`
	Pair                    string        `yaml:"pair"`
	Shares                  int64         `yaml:"shares"`
	MinSizeStr              string        `yaml:"min_size,omitempty"`
	MaxSizeStr              string        `yaml:"max_size,omitempty"`
	MinProfitPercentStr     string        `yaml:"min_profit_percent,omitempty"`
	AddPositionStepRatioStr string        `yaml:"add_position_step_ratio,omitempty"`
	OrderDelayTime          time.Duration `yaml:"order_delay_time,omitempty"`
}

// Get loads configuration from --config YAML when provided, otherwise from
// CLI flags.
func Get() ([]Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	platform := flag.String("platform", "simulate", "exchange platform: binance, bybit, hyperliquid, simulate")
	user := flag.String("user", "default", "user id used in the position storage key")
	pairFlag := flag.String("pair", "BTC_USDT", "trade pair, example: BTC_USDT")
	shares := flag.Int64("shares", defaultShares, "portions the total portfolio value is divided into")
	minSize := flag.String("minsize", "0", "minimal order size in base currency, 0 means no limit")
	maxSize := flag.String("maxsize", "0", "maximum order size in base currency, 0 means no limit")
	minProfit := flag.String("minprofit", defaultMinProfit, "minimal fractional profit for position reduction, example: 0.001")
	stepRatio := flag.String("stepratio", defaultStepRatio, "fractional price move that triggers a rebalance, example: 0.02")
	orderDelay := flag.Duration("orderdelay", defaultOrderDelayTime, "delay between order ticks")
	flag.Parse()

	if *configPath != "" {
		return getYaml(*configPath)
	}

	tmp := ConfigTmp{
		Platform:                *platform,
		User:                    *user,
		Pair:                    *pairFlag,
		Shares:                  *shares,
		MinSizeStr:              *minSize,
		MaxSizeStr:              *maxSize,
		MinProfitPercentStr:     *minProfit,
		AddPositionStepRatioStr: *stepRatio,
		OrderDelayTime:          *orderDelay,
	}

	conf, err := tmp.build()
	if err != nil {
		return nil, err
	}
	return []Config{conf}, nil
}

func getYaml(path string) ([]Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var configsTmp []ConfigTmp
	if err := yaml.Unmarshal(f, &configsTmp); err != nil {
		return nil, err
	}

	configs := make([]Config, 0, len(configsTmp))
	for _, tmp := range configsTmp {
		conf, err := tmp.build()
		if err != nil {
			return nil, err
		}
		configs = append(configs, conf)
	}

	if len(configs) == 0 {
		return nil, fmt.Errorf("config file %s contains no bot configurations", path)
	}

	return configs, nil
}

func (t ConfigTmp) build() (Config, error) {
	pair, err := domain.PairFromString(t.Pair)
	if err != nil {
		return Config{}, err
	}

	switch t.Platform {
	case "binance", "bybit", "hyperliquid", "simulate":
	default:
		return Config{}, fmt.Errorf("unknown platform %q", t.Platform)
	}

	user := t.User
	if user == "" {
		user = "default"
	}

	if t.Shares < 1 {
		return Config{}, fmt.Errorf("shares must be >= 1, got %d", t.Shares)
	}

	minSize, err := parseDecimalOrZero(t.MinSizeStr, "min_size")
	if err != nil {
		return Config{}, err
	}
	maxSize, err := parseDecimalOrZero(t.MaxSizeStr, "max_size")
	if err != nil {
		return Config{}, err
	}
	if minSize.GreaterThan(decimal.Zero) && maxSize.GreaterThan(decimal.Zero) && minSize.GreaterThan(maxSize) {
		return Config{}, fmt.Errorf("min_size %s exceeds max_size %s", minSize.String(), maxSize.String())
	}

	minProfit, err := parseDecimalOrDefault(t.MinProfitPercentStr, defaultMinProfit, "min_profit_percent")
	if err != nil {
		return Config{}, err
	}
	if minProfit.IsNegative() {
		return Config{}, fmt.Errorf("min_profit_percent must not be negative, got %s", minProfit.String())
	}

	stepRatio, err := parseDecimalOrDefault(t.AddPositionStepRatioStr, defaultStepRatio, "add_position_step_ratio")
	if err != nil {
		return Config{}, err
	}
	if stepRatio.LessThanOrEqual(decimal.Zero) {
		return Config{}, fmt.Errorf("add_position_step_ratio must be positive, got %s", stepRatio.String())
	}

	orderDelay := t.OrderDelayTime
	if orderDelay <= 0 {
		orderDelay = defaultOrderDelayTime
	}

	return Config{
		Platform:             t.Platform,
		User:                 user,
		Pair:                 pair,
		Shares:               t.Shares,
		MinSize:              minSize,
		MaxSize:              maxSize,
		MinProfitPercent:     minProfit,
		AddPositionStepRatio: stepRatio,
		OrderDelayTime:       orderDelay,
	}, nil
}

func parseDecimalOrZero(s, field string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return d, nil
}

func parseDecimalOrDefault(s, def, field string) (decimal.Decimal, error) {
	if s == "" {
		s = def
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return d, nil
}
