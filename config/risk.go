package config

import (
	"io/ioutil"
	"time"

	"github.com/shopspring/decimal"
	yaml "gopkg.in/yaml.v2"
)

// RiskLimits holds the per-pair configurable bounds enforced by the
// RiskGate before an order is admitted, per spec section 4.4.
type RiskLimits struct {
	MaxOrderSize       decimal.Decimal `yaml:"max_order_size"`
	MaxDailyVolume     decimal.Decimal `yaml:"max_daily_volume"`
	MaxOpenOrders      int             `yaml:"max_open_orders"`
	MaxPositionSize    decimal.Decimal `yaml:"max_position_size"`
	MinPriceDeviation  decimal.Decimal `yaml:"min_price_deviation"`
	MaxPriceDeviation  decimal.Decimal `yaml:"max_price_deviation"`
	SlippageBufferBps  decimal.Decimal `yaml:"slippage_buffer_bps"`
}

// EngineConfig holds the runtime-tunable, admin-editable keys enumerated
// in spec section 6.
type EngineConfig struct {
	FeeRate            decimal.Decimal      `yaml:"fee_rate"`
	FeeVIPDiscount     decimal.Decimal      `yaml:"fee_vip_discount"`
	SelfTradePolicy    string               `yaml:"self_trade_policy"`
	MinOrderIntervalMS int64                `yaml:"min_order_interval_ms"`
	WarnOrderIntervalMS int64               `yaml:"warn_order_interval_ms"`
	Risk               map[string]RiskLimits `yaml:"risk"`
}

// MinOrderInterval and WarnOrderInterval are convenience accessors used
// by internal/risk so callers don't juggle raw milliseconds.
func (c *EngineConfig) MinOrderInterval() time.Duration {
	return time.Duration(c.MinOrderIntervalMS) * time.Millisecond
}

func (c *EngineConfig) WarnOrderInterval() time.Duration {
	if c.WarnOrderIntervalMS == 0 {
		return 5 * time.Second
	}
	return time.Duration(c.WarnOrderIntervalMS) * time.Millisecond
}

func (c *EngineConfig) LimitsFor(pair string) RiskLimits {
	if l, ok := c.Risk[pair]; ok {
		return l
	}
	return RiskLimits{}
}

// LoadEngineConfig reads engine.yml the way the teacher's mq_client
// config loader reads amqp.yml: a flat YAML file unmarshalled straight
// into a typed struct, no defaults framework.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c := &EngineConfig{
		FeeRate:            decimal.NewFromFloat(0.002),
		FeeVIPDiscount:     decimal.NewFromFloat(0.5),
		SelfTradePolicy:    "skip",
		MinOrderIntervalMS: 1000,
	}

	if err := yaml.Unmarshal(buf, c); err != nil {
		return nil, err
	}

	return c, nil
}
