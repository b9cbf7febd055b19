// Package notify tracks per-session queue subscriptions and pushes
// MessageQueueNotification envelopes when queue events fire.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chris-fellows/cf-message-queue-sub000/internal/domain/entity"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/wire"
	"github.com/chris-fellows/cf-message-queue-sub000/pkg/logger"
)

// MinSizeFrequency is the lowest accepted periodic queue-size frequency.
const MinSizeFrequency = 10 * time.Second

// Sender delivers one notification to a subscription's reply address.
type Sender interface {
	SendNotification(ctx context.Context, addr string, n *wire.MessageQueueNotification) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, addr string, n *wire.MessageQueueNotification) error

func (f SenderFunc) SendNotification(ctx context.Context, addr string, n *wire.MessageQueueNotification) error {
	return f(ctx, addr, n)
}

// Notifier owns the subscription state for every queue. All flag
// transitions happen under its lock; delivery happens on the queue engines'
// periodic ticks via Flush.
type Notifier struct {
	sender Sender
	logger *logger.Logger
	now    func() time.Time

	mu sync.Mutex
	// subscriptions keyed by queue id then session id.
	subs map[string]map[string]*entity.Subscription
}

func NewNotifier(sender Sender, log *logger.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		logger: log,
		now:    time.Now,
		subs:   make(map[string]map[string]*entity.Subscription),
	}
}

// Subscribe upserts the subscription for (queueID, sessionID) and returns
// its id. A sizeFrequency of 0 disables periodic size pushes.
func (n *Notifier) Subscribe(queueID, sessionID, clientID, replyAddress string, sizeFrequency time.Duration) (string, error) {
	if sizeFrequency != 0 && sizeFrequency < MinSizeFrequency {
		return "", entity.NewError(entity.ErrorInvalidParameters,
			"queue size frequency must be 0 or at least %s", MinSizeFrequency)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	bySession := n.subs[queueID]
	if bySession == nil {
		bySession = make(map[string]*entity.Subscription)
		n.subs[queueID] = bySession
	}

	if sub, ok := bySession[sessionID]; ok {
		sub.ClientID = clientID
		sub.ReplyAddress = replyAddress
		sub.SizeFrequency = sizeFrequency
		return sub.ID, nil
	}

	sub := &entity.Subscription{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		ClientID:      clientID,
		QueueID:       queueID,
		ReplyAddress:  replyAddress,
		SizeFrequency: sizeFrequency,
	}
	bySession[sessionID] = sub
	n.logger.Debug("Subscription added",
		logger.String("queue_id", queueID),
		logger.String("session_id", sessionID),
	)
	return sub.ID, nil
}

// Unsubscribe removes the subscription for (queueID, sessionID).
func (n *Notifier) Unsubscribe(queueID, sessionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if bySession := n.subs[queueID]; bySession != nil {
		delete(bySession, sessionID)
	}
}

// ArmWaitForAdded marks the session's subscription so the next enqueue on
// the queue raises exactly one message-added push. Called when a lease
// request came up empty.
func (n *Notifier) ArmWaitForAdded(queueID, sessionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if sub := n.lookup(queueID, sessionID); sub != nil {
		sub.ArmedWaitForAdded = true
	}
}

// MessageAdded fires the edge for every armed subscription on the queue.
// The arm is consumed; it does not re-fire for later enqueues.
func (n *Notifier) MessageAdded(queueID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, sub := range n.subs[queueID] {
		if sub.ArmedWaitForAdded {
			sub.ArmedWaitForAdded = false
			sub.PendingAddedNotification = true
		}
	}
}

// QueueCleared flags every subscription on the queue.
func (n *Notifier) QueueCleared(queueID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, sub := range n.subs[queueID] {
		sub.PendingClearedNotification = true
	}
}

// DropQueue removes all subscriptions of a deleted queue.
func (n *Notifier) DropQueue(queueID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.subs, queueID)
}

// DropSession removes every subscription held by the session, across all
// queues.
func (n *Notifier) DropSession(sessionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, bySession := range n.subs {
		delete(bySession, sessionID)
	}
}

// Flush delivers due notifications for the queue: pending edge flags plus
// periodic size pushes. Flags are cleared only after a successful send so a
// failed delivery retries on the next tick.
func (n *Notifier) Flush(ctx context.Context, queueID string, queueSize int) {
	type delivery struct {
		sub *entity.Subscription
		msg *wire.MessageQueueNotification
	}

	now := n.now()
	var due []delivery

	n.mu.Lock()
	for _, sub := range n.subs[queueID] {
		if sub.PendingClearedNotification {
			due = append(due, delivery{sub, &wire.MessageQueueNotification{
				QueueID:   queueID,
				EventName: wire.EventQueueCleared,
				QueueSize: queueSize,
			}})
		}
		if sub.PendingAddedNotification {
			due = append(due, delivery{sub, &wire.MessageQueueNotification{
				QueueID:   queueID,
				EventName: wire.EventMessageAdded,
				QueueSize: queueSize,
			}})
		}
		if sub.SizeFrequency > 0 && now.Sub(sub.LastSizeNotify) >= sub.SizeFrequency {
			sub.PendingSizeNotification = true
		}
		if sub.PendingSizeNotification {
			due = append(due, delivery{sub, &wire.MessageQueueNotification{
				QueueID:   queueID,
				EventName: wire.EventQueueSize,
				QueueSize: queueSize,
			}})
		}
	}
	n.mu.Unlock()

	for _, d := range due {
		if err := n.sender.SendNotification(ctx, d.sub.ReplyAddress, d.msg); err != nil {
			n.logger.Warn("Failed to push notification",
				logger.String("queue_id", queueID),
				logger.String("event", d.msg.EventName),
				logger.String("reply_address", d.sub.ReplyAddress),
				logger.Error(err),
			)
			continue
		}

		n.mu.Lock()
		switch d.msg.EventName {
		case wire.EventQueueCleared:
			d.sub.PendingClearedNotification = false
		case wire.EventMessageAdded:
			d.sub.PendingAddedNotification = false
		case wire.EventQueueSize:
			d.sub.PendingSizeNotification = false
			d.sub.LastSizeNotify = now
		}
		n.mu.Unlock()
	}
}

// lookup must be called with the lock held.
func (n *Notifier) lookup(queueID, sessionID string) *entity.Subscription {
	if bySession := n.subs[queueID]; bySession != nil {
		return bySession[sessionID]
	}
	return nil
}
