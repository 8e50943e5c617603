package risk

import (
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/hedgesim/hedge"
)

var one = decimal.NewFromInt(1)

// SizeInputs is everything primary sizing reads.
type SizeInputs struct {
	Cash          decimal.Decimal
	PositionValue decimal.Decimal
	Price         decimal.Decimal
	ATR           decimal.Decimal
	LotSize       int64
}

// SizeResult explains how a share count was reached.
type SizeResult struct {
	Shares       int64
	Available    decimal.Decimal
	AccountValue decimal.Decimal
	RiskBudget   decimal.Decimal
	PerShareRisk decimal.Decimal
	Code         string // violation code when Shares == 0
}

// SizeEntry computes the primary entry size in whole lots:
//
//	available      = cash * (1 - reserve)
//	risk budget    = (available + position value) * risk ratio
//	per-share risk = max(ATR * loss multiplier, price * trail%)
//	shares         = floor(min(budget/per-share, available/price) / lot) * lot
//
// then shrinks it so shares * price * (1 + cost buffer) fits in cash.
func SizeEntry(p Policy, in SizeInputs) SizeResult {
	var r SizeResult
	lot := decimal.NewFromInt(in.LotSize)
	if in.LotSize <= 0 || !in.Price.IsPositive() {
		r.Code = BelowMinLot
		return r
	}

	r.Available = in.Cash.Mul(one.Sub(p.CashReserve))
	r.AccountValue = r.Available.Add(in.PositionValue)
	r.RiskBudget = r.AccountValue.Mul(p.RiskRatio)
	r.PerShareRisk = decimal.Max(
		in.ATR.Mul(p.LossMultiplier),
		in.Price.Mul(p.TrailPercent).Div(hundred),
	)

	byCash := r.Available.Div(in.Price)
	want := byCash
	if r.PerShareRisk.IsPositive() {
		want = decimal.Min(r.RiskBudget.Div(r.PerShareRisk), byCash)
	}
	shares := want.Div(lot).Floor().Mul(lot)

	withCosts := one.Add(p.CostBuffer)
	if shares.Mul(in.Price).Mul(withCosts).GreaterThan(in.Cash) {
		shares = in.Cash.Div(in.Price).Div(withCosts).Div(lot).Floor().Mul(lot)
		if shares.LessThan(lot) {
			r.Code = InsufficientCash
			return r
		}
	}
	if shares.LessThan(lot) {
		r.Code = BelowMinLot
		return r
	}
	r.Shares = shares.IntPart()
	return r
}

var hundred = decimal.NewFromInt(100)

// HedgeLots sizes a hedge entry: the configured lots, shrunk to what free
// hedge cash can margin. Zero means no entry.
func HedgeLots(c hedge.Contract, want int64, price, cash decimal.Decimal) int64 {
	return c.AffordableLots(want, price, cash)
}
