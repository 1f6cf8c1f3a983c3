package model

import "time"

// Bid is a claim placed on a listing.  Bids are immutable once written
// except for IsWinning, which marks the single current maximum.
//
// Fields:
//  HoldRef – payment pre-authorization created when the bid was placed;
//            nil for legacy bids that never received one.
type Bid struct {
	ID          uint64    // bids.id
	ListingID   uint64    // bids.listing_id
	BidderID    uint64    // bids.bidder_id
	AmountCents int64     // bids.amount_cents
	IsWinning   bool      // bids.is_winning
	HoldRef     *string   // bids.hold_ref (nullable)
	CreatedAt   time.Time // bids.created_at
}
