package queue

import (
	"context"
	"fmt"

	"github.com/chris-fellows/cf-message-queue-sub000/internal/audit"
	"github.com/chris-fellows/cf-message-queue-sub000/pkg/logger"
)

// Sweep deletes expired pending messages and recovers stuck leases: a
// leased message whose lease TTL has elapsed reverts to pending exactly as
// an implicit nack, so a crashed consumer cannot remove a message's
// availability for good.
func (e *Engine) Sweep(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}

	now := e.now()

	expired, err := e.messages.GetExpired(ctx, e.queueID, now)
	if err != nil {
		return fmt.Errorf("failed to query expired messages: %w", err)
	}
	for _, msg := range expired {
		if err := e.deleteLocked(ctx, msg); err != nil {
			return err
		}
		e.audit.Record(audit.Event{
			Kind:      audit.KindMessageExpired,
			QueueID:   e.queueID,
			MessageID: msg.ID,
		})
	}

	msgs, err := e.messages.GetByQueue(ctx, e.queueID)
	if err != nil {
		return fmt.Errorf("failed to list messages for lease recovery: %w", err)
	}
	recovered := 0
	for _, msg := range msgs {
		if !msg.LeaseTimedOut(now) {
			continue
		}
		holder := msg.LeaseHolderClientID
		msg.ResetLease()
		if err := e.messages.Update(ctx, msg); err != nil {
			return fmt.Errorf("failed to recover lease: %w", err)
		}
		recovered++
		e.audit.Record(audit.Event{
			Kind:      audit.KindLeaseRecovered,
			QueueID:   e.queueID,
			MessageID: msg.ID,
			ClientID:  holder,
		})
	}

	if len(expired) > 0 || recovered > 0 {
		e.logger.Info("Sweep completed",
			logger.Int("expired", len(expired)),
			logger.Int("leases_recovered", recovered),
		)
	}
	return nil
}

// Clear removes every message of the queue under the administrative lock
// and raises the queue-cleared event.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.closedLocked(); err != nil {
		return err
	}

	if err := e.purgeLocked(ctx); err != nil {
		return err
	}

	e.audit.Record(audit.Event{Kind: audit.KindQueueCleared, QueueID: e.queueID})
	e.notifier.QueueCleared(e.queueID)
	e.logger.Info("Queue cleared")
	return nil
}

// Shutdown closes the engine and deletes its content. Used by the DELETE
// queue action; the queue record itself is the control plane's to remove.
// The closed mark goes in under the lock before the purge so an enqueue or
// lease racing the delete is refused instead of writing an orphan record.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	if err := e.purgeLocked(ctx); err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	e.Stop()
	e.notifier.DropQueue(e.queueID)
	e.audit.Record(audit.Event{Kind: audit.KindQueueDeleted, QueueID: e.queueID})
	return nil
}

// purgeLocked deletes every message and any offloaded content. Caller
// holds the lock.
func (e *Engine) purgeLocked(ctx context.Context) error {
	msgs, err := e.messages.GetByQueue(ctx, e.queueID)
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}
	for _, msg := range msgs {
		if msg.ObjectName != "" && e.content != nil {
			if err := e.content.Delete(ctx, msg.ObjectName); err != nil {
				e.logger.Warn("Failed to delete offloaded content",
					logger.String("object_name", msg.ObjectName),
					logger.Error(err),
				)
			}
		}
	}
	if err := e.messages.DeleteByQueue(ctx, e.queueID); err != nil {
		return fmt.Errorf("failed to delete queue messages: %w", err)
	}
	return nil
}
