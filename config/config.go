package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/hedgesim/book"
	"github.com/rustyeddy/hedgesim/hedge"
	"github.com/rustyeddy/hedgesim/internal/logging"
	"github.com/rustyeddy/hedgesim/position"
	"github.com/rustyeddy/hedgesim/risk"
)

// Environment overrides applied after the file is loaded.
const (
	EnvLogLevel  = "HEDGESIM_LOG_LEVEL"
	EnvJournalDB = "HEDGESIM_JOURNAL_DB"
)

// Config represents the complete simulation configuration
type Config struct {
	Account       AccountConfig       `json:"account" yaml:"account"`
	Underlying    UnderlyingConfig    `json:"underlying" yaml:"underlying"`
	Hedge         HedgeConfig         `json:"hedge_instrument" yaml:"hedge_instrument"`
	Strategy      StrategyConfig      `json:"strategy" yaml:"strategy"`
	LossHedge     LossHedgeConfig     `json:"loss_hedge" yaml:"loss_hedge"`
	MomentumHedge MomentumHedgeConfig `json:"momentum_hedge" yaml:"momentum_hedge"`
	Data          DataConfig          `json:"data" yaml:"data"`
	Simulation    SimulationConfig    `json:"simulation" yaml:"simulation"`
	Journal       JournalConfig       `json:"journal" yaml:"journal"`
	Log           LogConfig           `json:"log" yaml:"log"`
}

// AccountConfig holds the opening balance of each capital pool
type AccountConfig struct {
	UnderlyingBalance float64 `json:"underlying_balance" yaml:"underlying_balance"`
	HedgeBalance      float64 `json:"hedge_balance" yaml:"hedge_balance"`
}

// UnderlyingConfig describes the equity-like instrument
type UnderlyingConfig struct {
	Code        string  `json:"code" yaml:"code"`
	LotSize     int64   `json:"lot_size" yaml:"lot_size"`
	FeeRate     float64 `json:"fee_rate" yaml:"fee_rate"`
	CostBuffer  float64 `json:"cost_buffer" yaml:"cost_buffer"`
	CashReserve float64 `json:"cash_reserve" yaml:"cash_reserve"`
}

// HedgeConfig describes the futures instrument
type HedgeConfig struct {
	Code               string  `json:"code" yaml:"code"`
	ContractMultiplier float64 `json:"contract_multiplier" yaml:"contract_multiplier"`
	MarginRate         float64 `json:"margin_rate" yaml:"margin_rate"`
	FeePerLot          float64 `json:"fee_per_lot" yaml:"fee_per_lot"`
}

// StrategyConfig contains the primary position parameters
type StrategyConfig struct {
	FastPeriod         int     `json:"fast_period" yaml:"fast_period"`
	SlowPeriod         int     `json:"slow_period" yaml:"slow_period"`
	CrossoverThreshold float64 `json:"crossover_threshold" yaml:"crossover_threshold"`
	TrailPercent       float64 `json:"trail_percent" yaml:"trail_percent"`
	EnableTrailingStop bool    `json:"enable_trailing_stop" yaml:"enable_trailing_stop"`
	RiskRatio          float64 `json:"risk_ratio" yaml:"risk_ratio"`
	LossMultiplier     float64 `json:"loss_multiplier" yaml:"loss_multiplier"`
	MaxDrawdown        float64 `json:"max_drawdown" yaml:"max_drawdown"`
	PriceLimit         float64 `json:"price_limit" yaml:"price_limit"`
	ATRPeriod          int     `json:"atr_period" yaml:"atr_period"`
	ATRMultiplier      float64 `json:"atr_multiplier" yaml:"atr_multiplier"`
	EnableDeathCross   bool    `json:"enable_death_cross" yaml:"enable_death_cross"`
}

type LossHedgeConfig struct {
	Enabled          bool    `json:"enabled" yaml:"enabled"`
	Lots             int64   `json:"lots" yaml:"lots"`
	ProfitMultiplier float64 `json:"profit_multiplier" yaml:"profit_multiplier"`
}

type MomentumHedgeConfig struct {
	Enabled       bool    `json:"enabled" yaml:"enabled"`
	FastPeriod    int     `json:"fast_period" yaml:"fast_period"`
	SlowPeriod    int     `json:"slow_period" yaml:"slow_period"`
	SignalPeriod  int     `json:"signal_period" yaml:"signal_period"`
	Lots          int64   `json:"lots" yaml:"lots"`
	ATRMultiplier float64 `json:"atr_multiplier" yaml:"atr_multiplier"`
}

// DataConfig points at the bar files of both instruments
type DataConfig struct {
	Dataset        string `json:"dataset,omitempty" yaml:"dataset,omitempty"`
	UnderlyingFile string `json:"underlying_file" yaml:"underlying_file"`
	HedgeFile      string `json:"hedge_file" yaml:"hedge_file"`
}

// SimulationConfig contains simulation parameters
type SimulationConfig struct {
	FillDelay  int  `json:"fill_delay" yaml:"fill_delay"`
	CloseAtEnd bool `json:"close_at_end" yaml:"close_at_end"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	FillsFile  string `json:"fills_file,omitempty" yaml:"fills_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty" yaml:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty" yaml:"compress,omitempty"`
}

// LoadFromFile loads configuration from a file (YAML, falling back to
// JSON), applies environment overrides and validates the result. Keys
// missing from the file keep their default values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	cfg.ApplyEnv()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from a .env file if there is one.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overrides the log level and the SQLite journal path from the
// environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvJournalDB); v != "" {
		c.Journal.Type = "sqlite"
		c.Journal.DBPath = v
	}
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.UnderlyingBalance <= 0 || c.Account.HedgeBalance <= 0 {
		return fmt.Errorf("account balances must be positive")
	}

	u := c.Underlying
	if u.Code == "" {
		return fmt.Errorf("underlying.code is required")
	}
	if u.LotSize <= 0 {
		return fmt.Errorf("underlying.lot_size must be positive")
	}
	if u.FeeRate < 0 || u.FeeRate >= 1 {
		return fmt.Errorf("underlying.fee_rate must be between 0 and 1")
	}
	if u.CostBuffer < 0 {
		return fmt.Errorf("underlying.cost_buffer must not be negative")
	}
	if u.CashReserve < 0 || u.CashReserve >= 1 {
		return fmt.Errorf("underlying.cash_reserve must be between 0 and 1")
	}

	h := c.Hedge
	if h.Code == "" {
		return fmt.Errorf("hedge_instrument.code is required")
	}
	if h.ContractMultiplier <= 0 {
		return fmt.Errorf("hedge_instrument.contract_multiplier must be positive")
	}
	if h.MarginRate <= 0 || h.MarginRate > 1 {
		return fmt.Errorf("hedge_instrument.margin_rate must be in (0, 1]")
	}
	if h.FeePerLot < 0 {
		return fmt.Errorf("hedge_instrument.fee_per_lot must not be negative")
	}

	s := c.Strategy
	if s.FastPeriod <= 0 || s.SlowPeriod <= s.FastPeriod {
		return fmt.Errorf("strategy periods must satisfy 0 < fast_period < slow_period")
	}
	if s.CrossoverThreshold < 0 {
		return fmt.Errorf("strategy.crossover_threshold must not be negative")
	}
	if s.TrailPercent <= 0 || s.TrailPercent >= 100 {
		return fmt.Errorf("strategy.trail_percent must be between 0 and 100")
	}
	if s.RiskRatio <= 0 || s.RiskRatio > 1 {
		return fmt.Errorf("strategy.risk_ratio must be between 0 and 1")
	}
	if s.LossMultiplier <= 0 {
		return fmt.Errorf("strategy.loss_multiplier must be positive")
	}
	if s.MaxDrawdown < 0 || s.MaxDrawdown > 1 {
		return fmt.Errorf("strategy.max_drawdown must be between 0 and 1")
	}
	if s.PriceLimit < 0 || s.PriceLimit >= 1 {
		return fmt.Errorf("strategy.price_limit must be between 0 and 1")
	}
	if s.ATRPeriod <= 0 || s.ATRMultiplier <= 0 {
		return fmt.Errorf("strategy.atr_period and atr_multiplier must be positive")
	}

	if lh := c.LossHedge; lh.Enabled {
		if lh.Lots <= 0 {
			return fmt.Errorf("loss_hedge.lots must be positive")
		}
		if lh.ProfitMultiplier < 0 {
			return fmt.Errorf("loss_hedge.profit_multiplier must not be negative")
		}
	}
	if mh := c.MomentumHedge; mh.Enabled {
		if mh.FastPeriod <= 0 || mh.SlowPeriod <= mh.FastPeriod || mh.SignalPeriod <= 0 {
			return fmt.Errorf("momentum_hedge periods must satisfy 0 < fast_period < slow_period and signal_period > 0")
		}
		if mh.Lots <= 0 {
			return fmt.Errorf("momentum_hedge.lots must be positive")
		}
		if mh.ATRMultiplier <= 0 {
			return fmt.Errorf("momentum_hedge.atr_multiplier must be positive")
		}
	}

	if c.Simulation.FillDelay < 0 {
		return fmt.Errorf("simulation.fill_delay must not be negative")
	}

	switch c.Journal.Type {
	case "csv":
		if c.Journal.FillsFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal fills_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case "none", "":
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			UnderlyingBalance: 100000,
			HedgeBalance:      100000,
		},
		Underlying: UnderlyingConfig{
			Code:        "159985",
			LotSize:     100,
			FeeRate:     0.00025,
			CostBuffer:  0.0003,
			CashReserve: 0.05,
		},
		Hedge: HedgeConfig{
			Code:               "M",
			ContractMultiplier: 10,
			MarginRate:         0.10,
			FeePerLot:          1.51,
		},
		Strategy: StrategyConfig{
			FastPeriod:         5,
			SlowPeriod:         13,
			CrossoverThreshold: 0.003,
			TrailPercent:       2.0,
			EnableTrailingStop: true,
			RiskRatio:          0.02,
			LossMultiplier:     1.5,
			MaxDrawdown:        0.15,
			PriceLimit:         0.10,
			ATRPeriod:          14,
			ATRMultiplier:      1.0,
			EnableDeathCross:   true,
		},
		LossHedge: LossHedgeConfig{
			Enabled:          true,
			Lots:             10,
			ProfitMultiplier: 1.0,
		},
		MomentumHedge: MomentumHedgeConfig{
			Enabled:       true,
			FastPeriod:    12,
			SlowPeriod:    26,
			SignalPeriod:  9,
			Lots:          10,
			ATRMultiplier: 2.0,
		},
		Data: DataConfig{
			UnderlyingFile: "./data/underlying.csv",
			HedgeFile:      "./data/hedge.csv",
		},
		Simulation: SimulationConfig{
			CloseAtEnd: true,
		},
		Journal: JournalConfig{
			Type:       "csv",
			FillsFile:  "./fills.csv",
			EquityFile: "./equity.csv",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// Policy converts the strategy sections into risk engine thresholds.
func (c *Config) Policy() risk.Policy {
	s := c.Strategy
	return risk.Policy{
		CrossoverThreshold: dec(s.CrossoverThreshold),
		RiskRatio:          dec(s.RiskRatio),
		LossMultiplier:     dec(s.LossMultiplier),
		CashReserve:        dec(c.Underlying.CashReserve),
		CostBuffer:         dec(c.Underlying.CostBuffer),
		ATRMultiplier:      dec(s.ATRMultiplier),
		TrailPercent:       dec(s.TrailPercent),
		EnableTrailingStop: s.EnableTrailingStop,
		EnableDeathCross:   s.EnableDeathCross,
		MaxDrawdown:        dec(s.MaxDrawdown),
		PriceLimit:         dec(s.PriceLimit),
		LossHedge: risk.LossHedgePolicy{
			Enabled:          c.LossHedge.Enabled,
			Lots:             c.LossHedge.Lots,
			ProfitMultiplier: dec(c.LossHedge.ProfitMultiplier),
		},
		MomentumHedge: risk.MomentumHedgePolicy{
			Enabled:       c.MomentumHedge.Enabled,
			Lots:          c.MomentumHedge.Lots,
			ATRMultiplier: dec(c.MomentumHedge.ATRMultiplier),
		},
	}
}

// Contract is the hedge instrument as the legs see it.
func (c *Config) Contract() hedge.Contract {
	return hedge.Contract{
		Code:       c.Hedge.Code,
		Multiplier: dec(c.Hedge.ContractMultiplier),
		MarginRate: dec(c.Hedge.MarginRate),
		FeePerLot:  dec(c.Hedge.FeePerLot),
	}
}

// BookParams resolves the instrument facts a book is built with.
func (c *Config) BookParams() book.Params {
	return book.Params{
		UnderlyingCode:    c.Underlying.Code,
		UnderlyingBalance: dec(c.Account.UnderlyingBalance),
		HedgeBalance:      dec(c.Account.HedgeBalance),
		LotSize:           c.Underlying.LotSize,
		Fees:              position.FeeModel{Rate: dec(c.Underlying.FeeRate)},
		Contract:          c.Contract(),
		TrailPercent:      c.Strategy.TrailPercent,
	}
}

func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:      c.Log.Level,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}
