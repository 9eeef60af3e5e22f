package services

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"marketanalytics/webclient/internal/models"
	"marketanalytics/webclient/internal/result"
	"marketanalytics/webclient/internal/store"
)

// Publisher sends a notification to the broker.
type Publisher interface {
	PublishNotification(ctx context.Context, n *models.Notification) error
}

// notifiedSlots are the mutating actions whose outcome is broadcast.
var notifiedSlots = map[string]bool{
	store.SlotParsing:       true,
	store.SlotAnalyze:       true,
	store.SlotCreateProduct: true,
	store.SlotDeleteProduct: true,
}

// Notifier turns settled mutating actions into broker notifications. It is a
// store.Observer; publishing happens on the Run goroutine so a slow broker
// never holds up a store transition.
type Notifier struct {
	pub     Publisher
	logger  *zap.Logger
	queue   chan models.Notification
	timeout time.Duration
	now     func() time.Time
	dropped atomic.Int64
}

// NewNotifier buffers up to buffer pending notifications.
func NewNotifier(pub Publisher, buffer int, logger *zap.Logger) *Notifier {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		pub:     pub,
		logger:  logger,
		queue:   make(chan models.Notification, buffer),
		timeout: 5 * time.Second,
		now:     time.Now,
	}
}

// Observe implements store.Observer.
func (n *Notifier) Observe(e store.Event) {
	if e.Kind != store.KindTransition || !notifiedSlots[e.Slot] {
		return
	}
	if e.Status != result.StatusSuccess && e.Status != result.StatusError {
		return
	}

	msg := models.Notification{
		Workspace: e.Workspace,
		UserID:    e.UserID,
		Action:    e.Slot,
		Status:    e.Status.String(),
		Subject:   e.Subject,
		Message:   outcomeMessage(e.Result),
		At:        n.now().UTC(),
	}
	select {
	case n.queue <- msg:
	default:
		n.dropped.Add(1)
		n.logger.Warn("notification buffer full, dropping",
			zap.String("workspace", e.Workspace),
			zap.String("action", e.Slot),
		)
	}
}

// Dropped returns how many notifications were discarded on a full buffer.
func (n *Notifier) Dropped() int64 { return n.dropped.Load() }

// Run publishes queued notifications until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.queue:
			n.publish(ctx, &msg)
		}
	}
}

func (n *Notifier) publish(ctx context.Context, msg *models.Notification) {
	pubCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.pub.PublishNotification(pubCtx, msg); err != nil {
		n.logger.Warn("failed to publish notification",
			zap.String("workspace", msg.Workspace),
			zap.String("action", msg.Action),
			zap.Error(err),
		)
	}
}

func outcomeMessage(v any) string {
	if r, ok := v.(interface{ Failure() (result.Failure, bool) }); ok {
		if f, failed := r.Failure(); failed {
			return f.Message
		}
	}
	switch r := v.(type) {
	case result.Result[models.ParseResult]:
		if d, ok := r.Data(); ok {
			return d.Message
		}
	case result.Result[models.AnalyzeResult]:
		if d, ok := r.Data(); ok {
			return d.Message
		}
	case result.Result[models.DeleteResult]:
		if d, ok := r.Data(); ok {
			return d.Message
		}
	case result.Result[models.Product]:
		if d, ok := r.Data(); ok {
			return d.Name
		}
	}
	return ""
}
