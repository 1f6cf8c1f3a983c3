package model

import "time"

// Listing is a timed auction created by a curator.  It corresponds to a row
// in the `listings` table.  Amounts are integer cents.
//
// Fields:
//  ID                  – primary key identifier.
//  SellerID            – curator who owns the listing.
//  SellerTier          – fee tier of the seller at completion time.
//  StartingPriceCents  – opening price.
//  CurrentHighBidCents – highest accepted bid so far (0 when none).
//  HighBidderID        – current high bidder (nil when no bids).
//  AuctionEnd          – when the timer elapses (UTC).
//  ExtensionsUsed      – number of anti-sniping extensions applied.
//  Status              – lifecycle state.
type Listing struct {
	ID                  uint64        // listings.id
	SellerID            uint64        // listings.seller_id
	SellerTier          SellerTier    // listings.seller_tier
	Title               string        // listings.title
	StartingPriceCents  int64         // listings.starting_price_cents
	CurrentHighBidCents int64         // listings.current_high_bid_cents
	HighBidderID        *uint64       // listings.high_bidder_id (nullable)
	AuctionEnd          time.Time     // listings.auction_end
	ExtensionsUsed      uint32        // listings.extensions_used
	Status              ListingStatus // listings.status
	CreatedAt           time.Time     // listings.created_at
	UpdatedAt           time.Time     // listings.updated_at
}
