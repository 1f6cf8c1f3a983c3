// Package dispatch runs settlement side effects after commit.  Tasks are
// attempted at most once; a failed or dropped task is logged and never
// affects the settlement that produced it.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/auction-settlement/internal/notify"
)

// Kind selects the outbound call a task performs.
type Kind string

const (
	KindNotifySeller    Kind = "notify_seller"
	KindNotifyBuyer     Kind = "notify_buyer"
	KindAwardMilestones Kind = "award_milestones"
)

// Event names carried by notification tasks.
const (
	EventPaymentReceived = "payment_received"
	EventPaymentFailed   = "payment_failed"
	EventPaymentRequired = "payment_required"
	EventAuctionWon      = "auction_won"
	EventAuctionExpired  = "auction_expired"
)

// Task is one side effect.  It is also the JSON body published to the
// side-effect queue.
type Task struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	UserID    uint64            `json:"user_id"`
	Event     string            `json:"event,omitempty"`
	ListingID uint64            `json:"listing_id"`
	Payload   map[string]string `json:"payload,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewTask stamps a task with a fresh id and creation time.
func NewTask(kind Kind, userID, listingID uint64, event string, payload map[string]string) Task {
	return Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		UserID:    userID,
		Event:     event,
		ListingID: listingID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// Apply performs t against n.  It is shared by the in-process sink and the
// queue consumer.
func Apply(ctx context.Context, n notify.Notifier, t Task) error {
	switch t.Kind {
	case KindNotifySeller:
		return n.NotifySeller(ctx, t.UserID, t.Event, t.Payload)
	case KindNotifyBuyer:
		return n.NotifyBuyer(ctx, t.UserID, t.Event, t.Payload)
	case KindAwardMilestones:
		return n.AwardMilestones(ctx, t.UserID)
	}
	return fmt.Errorf("unknown task kind %q", t.Kind)
}
