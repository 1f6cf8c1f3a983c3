package fees

import (
	"errors"
	"testing"

	"github.com/iliyamo/auction-settlement/internal/model"
)

func TestCalculateFees(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name          string
		final, start  int64
		tier          model.SellerTier
		fee, earnings int64
	}{
		{"free tier 500.00", 50000, 10000, model.TierFree, 5000, 45000},
		{"starter tier", 50000, 10000, model.TierStarter, 4000, 46000},
		{"pro tier", 50000, 10000, model.TierPro, 3000, 47000},
		{"premium tier", 50000, 10000, model.TierPremium, 2000, 48000},
		{"rounds half up", 5, 0, model.TierFree, 1, 4},
		{"rounds down below half", 4, 0, model.TierFree, 0, 4},
		{"odd cents", 12345, 100, model.TierPro, 741, 11604},
		{"zero price", 0, 0, model.TierFree, 0, 0},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := CalculateFees(tc.final, tc.start, tc.tier)
			if err != nil {
				t.Fatalf("CalculateFees returned error: %v", err)
			}
			if got.PlatformFeeCents != tc.fee || got.SellerEarningsCents != tc.earnings {
				t.Errorf("got fee=%d earnings=%d, want fee=%d earnings=%d",
					got.PlatformFeeCents, got.SellerEarningsCents, tc.fee, tc.earnings)
			}
		})
	}
}

func TestCalculateFeesConservesEveryCent(t *testing.T) {
	t.Parallel()
	tiers := []model.SellerTier{model.TierFree, model.TierStarter, model.TierPro, model.TierPremium}
	for _, tier := range tiers {
		for price := int64(0); price <= 20000; price += 7 {
			s, err := CalculateFees(price, 0, tier)
			if err != nil {
				t.Fatalf("CalculateFees(%d, %s): %v", price, tier, err)
			}
			if s.PlatformFeeCents+s.SellerEarningsCents != price {
				t.Fatalf("tier %s price %d: %d + %d != %d", tier, price, s.PlatformFeeCents, s.SellerEarningsCents, price)
			}
			if s.PlatformFeeCents < 0 || s.SellerEarningsCents < 0 {
				t.Fatalf("tier %s price %d: negative component %+v", tier, price, s)
			}
		}
	}
}

func TestCalculateFeesRejectsInvalidInput(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name         string
		final, start int64
		tier         model.SellerTier
	}{
		{"negative final", -1, 0, model.TierFree},
		{"negative start", 100, -1, model.TierFree},
		{"below starting price", 99, 100, model.TierFree},
		{"unknown tier", 100, 0, model.SellerTier("gold")},
	}
	for _, tc := range cases {
		if _, err := CalculateFees(tc.final, tc.start, tc.tier); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("%s: expected ErrInvalidAmount, got %v", tc.name, err)
		}
	}
}

func TestHigherTiersPayLess(t *testing.T) {
	t.Parallel()
	order := []model.SellerTier{model.TierFree, model.TierStarter, model.TierPro, model.TierPremium}
	prev := int64(1 << 62)
	for _, tier := range order {
		bp, err := RateBasisPoints(tier)
		if err != nil {
			t.Fatalf("RateBasisPoints(%s): %v", tier, err)
		}
		if bp >= prev {
			t.Errorf("tier %s rate %d not lower than previous %d", tier, bp, prev)
		}
		prev = bp
	}
}
