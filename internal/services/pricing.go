package services

import (
	"context"
	"log"
	"math/big"

	"github.com/shopspring/decimal"
)

// PriceFeed returns how many USD one unit of the native currency is worth
type PriceFeed func(ctx context.Context) (decimal.Decimal, error)

// StaticPriceFeed always returns rate
func StaticPriceFeed(rate decimal.Decimal) PriceFeed {
	return func(context.Context) (decimal.Decimal, error) { return rate, nil }
}

var weiPerEth = decimal.New(1, 18)

// PricingService converts USD prices and computes marketplace fees
type PricingService struct {
	feed     PriceFeed
	fallback decimal.Decimal
	feeRate  decimal.Decimal
}

// NewPricingService creates a pricing service. fallback is used when feed fails.
func NewPricingService(feed PriceFeed, fallback, feeRate decimal.Decimal) *PricingService {
	return &PricingService{feed: feed, fallback: fallback, feeRate: feeRate}
}

// Rate returns the native/USD rate, falling back on feed errors
func (p *PricingService) Rate(ctx context.Context) decimal.Decimal {
	if p.feed == nil {
		return p.fallback
	}
	rate, err := p.feed(ctx)
	if err != nil || !rate.IsPositive() {
		log.Printf("⚠️ [Pricing] Price feed unavailable, using fallback rate %s: %v", p.fallback, err)
		return p.fallback
	}
	return rate
}

// USDToNative converts a USD amount at the current rate
func (p *PricingService) USDToNative(ctx context.Context, usd decimal.Decimal) decimal.Decimal {
	rate := p.Rate(ctx)
	if !rate.IsPositive() {
		return decimal.Zero
	}
	return usd.DivRound(rate, 18)
}

// FeeBreakdown splits a sale price into the marketplace fee and the seller's proceeds.
// fee + proceeds always equals price exactly.
func (p *PricingService) FeeBreakdown(price decimal.Decimal) (fee, proceeds decimal.Decimal) {
	return FeeBreakdown(price, p.feeRate)
}

// FeeBreakdown computes fee = price*rate (18 decimals) and proceeds = price - fee
func FeeBreakdown(price, feeRate decimal.Decimal) (fee, proceeds decimal.Decimal) {
	fee = price.Mul(feeRate).Round(18)
	return fee, price.Sub(fee)
}

// EthToWei converts an ETH amount to wei, truncating below 1 wei
func EthToWei(eth decimal.Decimal) *big.Int {
	return eth.Mul(weiPerEth).Truncate(0).BigInt()
}

// WeiToEth converts wei to ETH
func WeiToEth(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -18)
}
