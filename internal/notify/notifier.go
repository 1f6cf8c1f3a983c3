// Package notify is the boundary to push-notification delivery and the
// milestone service.  Delivery mechanics live outside this repository; the
// implementation here records every call in the structured log.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Notifier is the outbound contract used after a settlement commits.
// Implementations are best effort: an error is logged by the caller and
// never retried synchronously.
type Notifier interface {
	NotifySeller(ctx context.Context, sellerID uint64, event string, payload map[string]string) error
	NotifyBuyer(ctx context.Context, buyerID uint64, event string, payload map[string]string) error
	AwardMilestones(ctx context.Context, userID uint64) error
}

// LogNotifier writes each notification as a structured log line.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier returns a Notifier that logs through l.
func NewLogNotifier(l *zap.Logger) *LogNotifier {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogNotifier{log: l.Named("notify")}
}

func (n *LogNotifier) NotifySeller(_ context.Context, sellerID uint64, event string, payload map[string]string) error {
	n.log.Info("seller notification",
		zap.Uint64("seller_id", sellerID),
		zap.String("event", event),
		zap.Any("payload", payload))
	return nil
}

func (n *LogNotifier) NotifyBuyer(_ context.Context, buyerID uint64, event string, payload map[string]string) error {
	n.log.Info("buyer notification",
		zap.Uint64("buyer_id", buyerID),
		zap.String("event", event),
		zap.Any("payload", payload))
	return nil
}

func (n *LogNotifier) AwardMilestones(_ context.Context, userID uint64) error {
	n.log.Info("milestone evaluation", zap.Uint64("user_id", userID))
	return nil
}
