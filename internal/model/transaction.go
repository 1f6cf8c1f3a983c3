package model

import "time"

// Transaction is the settlement record of a sold listing.  There is at most
// one per listing.  PlatformFeeCents + SellerEarningsCents always equals
// FinalPriceCents.
//
// Fields:
//  PaymentRef  – hold/capture reference copied from the winning bid.
//  TransferRef – seller payout reference, set once the payout executes.
type Transaction struct {
	ID                  uint64            // transactions.id
	ListingID           uint64            // transactions.listing_id (unique)
	BuyerID             uint64            // transactions.buyer_id
	SellerID            uint64            // transactions.seller_id
	FinalPriceCents     int64             // transactions.final_price_cents
	PlatformFeeCents    int64             // transactions.platform_fee_cents
	SellerEarningsCents int64             // transactions.seller_earnings_cents
	Status              TransactionStatus // transactions.status
	PaymentRef          *string           // transactions.payment_ref (nullable)
	TransferRef         *string           // transactions.transfer_ref (nullable)
	ShippedAt           *time.Time        // transactions.shipped_at (nullable)
	DeliveredAt         *time.Time        // transactions.delivered_at (nullable)
	CreatedAt           time.Time         // transactions.created_at
	UpdatedAt           time.Time         // transactions.updated_at
}
