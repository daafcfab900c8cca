// Package notify delivers execution notices to users over one or more
// channels. Delivery is strictly best-effort: a sender failure is logged and
// reported, but the caller treats it as advisory.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/junhyuklee/mocktrade/internal/domain"
)

// Sender is the interface each notification channel must implement.
type Sender interface {
	// SendToUser delivers a notice to the given user.
	SendToUser(ctx context.Context, userID string, notice domain.ExecutionNotice) error
	// Name returns a human-readable identifier for the sender (e.g. "pubsub").
	Name() string
}

// Notifier fans an execution notice out to all registered senders. One
// sender failing does not prevent delivery through the rest.
type Notifier struct {
	senders []Sender
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering through the given senders.
func NewNotifier(senders []Sender, logger *slog.Logger) *Notifier {
	return &Notifier{
		senders: senders,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// NotifyExecution dispatches the notice to every sender. Errors from
// individual senders are collected and returned combined.
func (n *Notifier) NotifyExecution(ctx context.Context, userID string, notice domain.ExecutionNotice) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.SendToUser(ctx, userID, notice); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("user_id", userID),
			slog.String("order_id", notice.OrderID),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
