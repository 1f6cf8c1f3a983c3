// Package fees splits a winning amount between the platform and the seller.
package fees

import (
	"errors"
	"fmt"

	"github.com/iliyamo/auction-settlement/internal/model"
)

// ErrInvalidAmount is returned for negative prices or a final price below
// the starting price.
var ErrInvalidAmount = errors.New("invalid amount")

// Split is the outcome of CalculateFees.  PlatformFeeCents +
// SellerEarningsCents == the final price.
type Split struct {
	PlatformFeeCents    int64
	SellerEarningsCents int64
}

// tierRates holds platform fee rates in basis points (1/100 of a percent).
var tierRates = map[model.SellerTier]int64{
	model.TierFree:    1000,
	model.TierStarter: 800,
	model.TierPro:     600,
	model.TierPremium: 400,
}

// RateBasisPoints returns the platform fee rate for a tier.
func RateBasisPoints(tier model.SellerTier) (int64, error) {
	bp, ok := tierRates[tier]
	if !ok {
		return 0, fmt.Errorf("fee rate for tier %q: %w", tier, ErrInvalidAmount)
	}
	return bp, nil
}

// CalculateFees computes the platform fee by percentage, rounded half up to
// the cent, and derives seller earnings by subtraction so no cent is lost.
func CalculateFees(finalPriceCents, startingPriceCents int64, tier model.SellerTier) (Split, error) {
	if finalPriceCents < 0 || startingPriceCents < 0 {
		return Split{}, fmt.Errorf("negative price: %w", ErrInvalidAmount)
	}
	if finalPriceCents < startingPriceCents {
		return Split{}, fmt.Errorf("final price %d below starting price %d: %w", finalPriceCents, startingPriceCents, ErrInvalidAmount)
	}
	bp, err := RateBasisPoints(tier)
	if err != nil {
		return Split{}, err
	}
	fee := (finalPriceCents*bp + 5000) / 10000
	return Split{
		PlatformFeeCents:    fee,
		SellerEarningsCents: finalPriceCents - fee,
	}, nil
}
