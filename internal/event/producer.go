package event

import (
	"context"
	"log/slog"
	"time"

	"github.com/Milly-Sporty/sportypredict-frontend-sub000/pkg/kafka"
)

const (
	TopicVipTransition = "session.vip-transition"
	TopicStatusUpdate  = "session.status-update"

	source        = "sportypredict-frontend"
	aggregateType = "session"
)

// VipTransitionPayload is the body of a session.vip-transition event.
type VipTransitionPayload struct {
	NewStatus bool      `json:"new_status"`
	OldStatus bool      `json:"old_status"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusUpdatePayload is the body of a session.status-update event.
type StatusUpdatePayload struct {
	Changes map[string]any `json:"changes"`
}

// Publisher is the subset of the Kafka producer the broadcaster needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *kafka.Event) error
}

// Broadcaster publishes entitlement events to Kafka. Delivery is best
// effort: failures are logged and never fed back into session state.
type Broadcaster struct {
	producer Publisher
	userID   func() string
	logger   *slog.Logger
}

// NewBroadcaster creates the Kafka-backed session broadcaster. userID
// supplies the aggregate ID at publish time so events emitted during a
// logout still carry the user they belong to.
func NewBroadcaster(producer Publisher, userID func() string, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{producer: producer, userID: userID, logger: logger}
}

// VipTransition publishes a VIP entitlement flip.
func (b *Broadcaster) VipTransition(ctx context.Context, newActive, oldActive bool, at time.Time) {
	payload := VipTransitionPayload{NewStatus: newActive, OldStatus: oldActive, Timestamp: at}
	b.publish(ctx, TopicVipTransition, "session.vip_transitioned", payload)
}

// StatusUpdate publishes the field-level diff from an account status poll.
func (b *Broadcaster) StatusUpdate(ctx context.Context, changes map[string]any) {
	payload := StatusUpdatePayload{Changes: changes}
	b.publish(ctx, TopicStatusUpdate, "session.status_updated", payload)
}

func (b *Broadcaster) publish(ctx context.Context, topic, eventType string, payload any) {
	evt, err := kafka.NewEvent(eventType, b.userID(), aggregateType, source, payload)
	if err != nil {
		b.logger.Error("build session event",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := b.producer.Publish(ctx, topic, evt); err != nil {
		b.logger.Warn("publish session event",
			slog.String("topic", topic),
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
	}
}
