package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
)

// Notifier delivers one message to the destination resolved from a product's owner.
// Delivery is best effort; there is no acknowledgement.
type Notifier interface {
	Notify(ctx context.Context, destination string, msg Message) error
}

type NotifierFunc func(ctx context.Context, destination string, msg Message) error

func (f NotifierFunc) Notify(ctx context.Context, destination string, msg Message) error {
	return f(ctx, destination, msg)
}

// LogNotifier writes every message to the structured log.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{log: logger}
}

func (n *LogNotifier) Notify(_ context.Context, destination string, msg Message) error {
	n.log.Info("notification",
		"destination", destination,
		"kind", msg.Kind,
		"code", msg.Code,
		"sequence", msg.Sequence,
		"text", msg.Text())
	return nil
}

// Multi delivers to every notifier, even after one of them fails.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, destination string, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, destination, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps delivered messages in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Delivered
}

type Delivered struct {
	Destination string
	Message     Message
}

func (r *Recorder) Notify(_ context.Context, destination string, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Delivered{Destination: destination, Message: msg})
	return nil
}

func (r *Recorder) Messages() []Delivered {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivered(nil), r.messages...)
}
