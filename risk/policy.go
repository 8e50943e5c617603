// Package risk decides, once per step, what each slot should do: enter,
// exit or hold. It reads the book and the step and never mutates either.
package risk

import "github.com/shopspring/decimal"

// Policy holds every threshold the engine applies.
type Policy struct {
	// Primary entry
	CrossoverThreshold decimal.Decimal // 0.003: relative fast/slow gap
	RiskRatio          decimal.Decimal // 0.02 of account value at risk
	LossMultiplier     decimal.Decimal // 1.5: ATR stop distance used for sizing
	CashReserve        decimal.Decimal // 0.05 of cash kept back
	CostBuffer         decimal.Decimal // 0.0003 headroom for fees

	// Primary exit
	ATRMultiplier      decimal.Decimal // 1.0
	TrailPercent       decimal.Decimal // 2.0 (percent)
	EnableTrailingStop bool
	EnableDeathCross   bool

	// Circuit breakers
	MaxDrawdown decimal.Decimal // 0.15
	PriceLimit  decimal.Decimal // 0.10

	LossHedge     LossHedgePolicy
	MomentumHedge MomentumHedgePolicy
}

type LossHedgePolicy struct {
	Enabled          bool
	Lots             int64
	ProfitMultiplier decimal.Decimal // target = max loss * (1 + m)
}

type MomentumHedgePolicy struct {
	Enabled       bool
	Lots          int64
	ATRMultiplier decimal.Decimal // 2.0
}

// DefaultPolicy matches the shipped configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		CrossoverThreshold: decimal.RequireFromString("0.003"),
		RiskRatio:          decimal.RequireFromString("0.02"),
		LossMultiplier:     decimal.RequireFromString("1.5"),
		CashReserve:        decimal.RequireFromString("0.05"),
		CostBuffer:         decimal.RequireFromString("0.0003"),
		ATRMultiplier:      decimal.NewFromInt(1),
		TrailPercent:       decimal.NewFromInt(2),
		EnableTrailingStop: true,
		EnableDeathCross:   true,
		MaxDrawdown:        decimal.RequireFromString("0.15"),
		PriceLimit:         decimal.RequireFromString("0.10"),
		LossHedge: LossHedgePolicy{
			Enabled:          true,
			Lots:             10,
			ProfitMultiplier: decimal.NewFromInt(1),
		},
		MomentumHedge: MomentumHedgePolicy{
			Enabled:       true,
			Lots:          10,
			ATRMultiplier: decimal.NewFromInt(2),
		},
	}
}
