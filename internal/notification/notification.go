package notification

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
)

const (
	KindOrderCreated   = "order_created"
	KindOrderAccepted  = "order_accepted"
	KindOrderCompleted = "order_completed"
	KindOrderCancelled = "order_cancelled"
	KindOrderEvaluated = "order_evaluated"
	KindRefundApplied  = "refund_applied"
	KindRefundApproved = "refund_approved"
	KindRefundRejected = "refund_rejected"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// ToUser builds a message addressed to a user id.
func ToUser(kind string, userID int64, body string) Message {
	return Message{Kind: kind, Destination: strconv.FormatInt(userID, 10), Body: body}
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}

// Recorder keeps sent messages in memory. It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Send records message.
func (r *Recorder) Send(_ context.Context, message Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Kinds lists the kinds recorded so far, in send order.
func (r *Recorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.messages))
	for _, m := range r.messages {
		out = append(out, m.Kind)
	}
	return out
}
