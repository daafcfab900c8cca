package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/junhyuklee/mocktrade/internal/domain"
)

// PubSubSender publishes execution notices on a per-user channel of the
// notification bus. The websocket gateway fronting user sessions subscribes
// to "notify:user:{id}"; with no subscriber the message evaporates, which is
// the intended fire-and-forget semantic.
type PubSubSender struct {
	bus domain.NotificationBus
}

// NewPubSubSender creates a PubSubSender over the given bus.
func NewPubSubSender(bus domain.NotificationBus) *PubSubSender {
	return &PubSubSender{bus: bus}
}

// SendToUser publishes the notice as JSON on the user's channel.
func (p *PubSubSender) SendToUser(ctx context.Context, userID string, notice domain.ExecutionNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("pubsub: marshal notice %s: %w", notice.OrderID, err)
	}
	return p.bus.Publish(ctx, "notify:user:"+userID, payload)
}

// Name returns the sender identifier.
func (p *PubSubSender) Name() string {
	return "pubsub"
}

// Compile-time interface check.
var _ Sender = (*PubSubSender)(nil)
