// Package queue implements the per-queue message-lease state machine:
// enqueue, bounded long-poll lease acquisition, acknowledge/release, expiry
// and lease-timeout recovery, clear and delete.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chris-fellows/cf-message-queue-sub000/internal/audit"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/domain/entity"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/domain/repository"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/notify"
	"github.com/chris-fellows/cf-message-queue-sub000/pkg/logger"
)

// DefaultPollInterval is the retry interval of a long-polling lease request.
const DefaultPollInterval = 250 * time.Millisecond

// DefaultSweepInterval is how often the expiry sweep runs.
const DefaultSweepInterval = 10 * time.Second

// DefaultFlushInterval is how often pending notifications are drained.
const DefaultFlushInterval = time.Second

// MaxPageSize bounds one page of a message listing.
const MaxPageSize = 1000

// Config tunes an engine's timers. Zero values select the defaults.
type Config struct {
	PollInterval  time.Duration
	SweepInterval time.Duration
	FlushInterval time.Duration

	// OffloadThreshold is the payload size in bytes at or above which the
	// content moves to the blob store. 0 disables offload.
	OffloadThreshold int
}

// Engine owns one queue's message lifecycle. The mutex serializes every
// state transition for the queue; it is held only for in-memory
// check-and-mutate plus the repository call, never across a long-poll
// sleep.
type Engine struct {
	queueID             string
	queueName           string
	maxConcurrentLeases int
	maxSize             int

	messages repository.MessageRepository
	content  repository.ContentStore
	notifier *notify.Notifier
	audit    audit.Sink
	logger   *logger.Logger
	cfg      Config
	now      func() time.Time

	mu     sync.Mutex
	closed bool
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewEngine creates the lease engine for one queue. content may be nil when
// blob offload is disabled.
func NewEngine(
	q *entity.Queue,
	messages repository.MessageRepository,
	content repository.ContentStore,
	notifier *notify.Notifier,
	sink audit.Sink,
	cfg Config,
	log *logger.Logger,
) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	return &Engine{
		queueID:             q.ID,
		queueName:           q.Name,
		maxConcurrentLeases: q.MaxConcurrentLeases,
		maxSize:             q.MaxSize,
		messages:            messages,
		content:             content,
		notifier:            notifier,
		audit:               sink,
		logger:              log.WithField("queue", q.Name),
		cfg:                 cfg,
		now:                 time.Now,
		stopCh:              make(chan struct{}),
	}
}

// QueueID returns the id of the queue this engine owns.
func (e *Engine) QueueID() string { return e.queueID }

// Start launches the background sweep and notification loop.
func (e *Engine) Start() {
	e.wg.Add(1)
	go e.backgroundLoop()
}

// Stop halts the background loop and waits for it.
func (e *Engine) Stop() {
	e.once.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}

func (e *Engine) backgroundLoop() {
	defer e.wg.Done()

	flush := time.NewTicker(e.cfg.FlushInterval)
	defer flush.Stop()
	sweep := time.NewTicker(e.cfg.SweepInterval)
	defer sweep.Stop()

	ctx := context.Background()
	for {
		select {
		case <-e.stopCh:
			return
		case <-flush.C:
			size, err := e.LiveCount(ctx)
			if err != nil {
				e.logger.Error("Failed to count live messages", logger.Error(err))
				continue
			}
			e.notifier.Flush(ctx, e.queueID, size)
		case <-sweep.C:
			if err := e.Sweep(ctx); err != nil {
				e.logger.Error("Expiry sweep failed", logger.Error(err))
			}
		}
	}
}

// Enqueue adds a pending message to the queue. The capacity check and the
// insert happen under the queue lock; the message-added edge fires after.
func (e *Engine) Enqueue(
	ctx context.Context,
	sender *entity.Client,
	typeID, name string,
	priority int,
	expirySeconds int,
	content []byte,
	contentType string,
) (*entity.Message, error) {
	if typeID == "" {
		return nil, entity.NewError(entity.ErrorInvalidParameters, "message type id must not be empty")
	}
	if expirySeconds < 0 {
		return nil, entity.NewError(entity.ErrorInvalidParameters, "expiry seconds must not be negative")
	}
	if priority < entity.PriorityHighest || priority > entity.PriorityLowest {
		return nil, entity.NewError(entity.ErrorInvalidParameters,
			"priority must be between %d and %d", entity.PriorityHighest, entity.PriorityLowest)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.closedLocked(); err != nil {
		return nil, err
	}

	now := e.now()
	if e.maxSize > 0 {
		live, _, err := e.countLocked(ctx, now)
		if err != nil {
			return nil, err
		}
		if live >= e.maxSize {
			return nil, entity.NewError(entity.ErrorQueueFull,
				"queue %s is full (%d messages)", e.queueName, live)
		}
	}

	msg := &entity.Message{
		ID:             uuid.NewString(),
		TypeID:         typeID,
		Name:           name,
		Priority:       priority,
		SenderClientID: sender.ID,
		QueueID:        e.queueID,
		CreatedAt:      now,
		Status:         entity.StatusPending,
		Content:        content,
		ContentType:    contentType,
	}
	if expirySeconds > 0 {
		msg.ExpiresAt = now.Add(time.Duration(expirySeconds) * time.Second)
	}

	if e.content != nil && e.cfg.OffloadThreshold > 0 && len(content) >= e.cfg.OffloadThreshold {
		objectName := fmt.Sprintf("%s/%s", e.queueID, msg.ID)
		if err := e.content.Put(ctx, objectName, content, contentType); err != nil {
			return nil, fmt.Errorf("failed to offload message content: %w", err)
		}
		msg.ObjectName = objectName
		msg.Content = nil
	}

	if err := e.messages.Add(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	e.audit.Record(audit.Event{
		Kind:      audit.KindMessageEnqueued,
		QueueID:   e.queueID,
		MessageID: msg.ID,
		ClientID:  sender.ID,
	})
	e.notifier.MessageAdded(e.queueID)

	e.logger.Debug("Message enqueued",
		logger.String("message_id", msg.ID),
		logger.Int("priority", msg.Priority),
	)
	return msg, nil
}

// LeaseNext hands the requesting client an exclusive lease on the next
// eligible message. With maxWait 0 it returns immediately; otherwise it
// polls until a message appears or maxWait elapses. The queue lock is held
// only for the check-and-mark step, never across the sleep. When a nonzero
// wait ends empty the caller's subscription, if any, is armed for a
// message-added push; immediate returns do not arm.
func (e *Engine) LeaseNext(
	ctx context.Context,
	client *entity.Client,
	sessionID string,
	maxWait time.Duration,
	leaseTTL time.Duration,
) (*entity.Message, error) {
	if leaseTTL < time.Second {
		return nil, entity.NewError(entity.ErrorInvalidParameters, "lease TTL must be at least 1 second")
	}
	if maxWait < 0 {
		return nil, entity.NewError(entity.ErrorInvalidParameters, "max wait must not be negative")
	}

	deadline := e.now().Add(maxWait)
	for {
		msg, err := e.tryLease(ctx, client, leaseTTL)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}

		if maxWait == 0 || !e.now().Before(deadline) {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.cfg.PollInterval):
		}
	}

	if sessionID != "" && maxWait > 0 {
		e.notifier.ArmWaitForAdded(e.queueID, sessionID)
	}
	return nil, nil
}

// tryLease performs one locked check-and-mark attempt.
func (e *Engine) tryLease(ctx context.Context, client *entity.Client, leaseTTL time.Duration) (*entity.Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.closedLocked(); err != nil {
		return nil, err
	}

	now := e.now()
	if e.maxConcurrentLeases > 0 {
		_, leased, err := e.countLocked(ctx, now)
		if err != nil {
			return nil, err
		}
		if leased >= e.maxConcurrentLeases {
			return nil, nil
		}
	}

	msg, err := e.messages.NextEligible(ctx, e.queueID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query next eligible message: %w", err)
	}
	if msg == nil {
		return nil, nil
	}

	msg.Status = entity.StatusLeased
	msg.LeaseHolderClientID = client.ID
	msg.LeaseStartAt = now
	msg.LeaseTTL = leaseTTL
	if err := e.messages.Update(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to mark message leased: %w", err)
	}

	if msg.ObjectName != "" && e.content != nil {
		data, contentType, err := e.content.Get(ctx, msg.ObjectName)
		if err != nil {
			e.logger.Warn("Failed to load offloaded content",
				logger.String("message_id", msg.ID),
				logger.String("object_name", msg.ObjectName),
				logger.Error(err),
			)
		} else {
			msg.Content = data
			if msg.ContentType == "" {
				msg.ContentType = contentType
			}
		}
	}

	e.audit.Record(audit.Event{
		Kind:      audit.KindMessageLeased,
		QueueID:   e.queueID,
		MessageID: msg.ID,
		ClientID:  client.ID,
	})
	return msg, nil
}

// Acknowledge completes or releases a lease held by the given client.
// processed=true deletes the message; processed=false reverts it to pending
// so it is immediately leasable again.
func (e *Engine) Acknowledge(ctx context.Context, client *entity.Client, messageID string, processed bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.closedLocked(); err != nil {
		return err
	}

	msg, err := e.messages.GetByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("failed to load message: %w", err)
	}
	if msg == nil || msg.QueueID != e.queueID {
		return entity.NewError(entity.ErrorInvalidParameters, "message %s does not exist", messageID)
	}
	if msg.Status != entity.StatusLeased {
		return entity.NewError(entity.ErrorInvalidParameters, "message %s is not being processed", messageID)
	}
	if msg.LeaseHolderClientID != client.ID {
		return entity.NewError(entity.ErrorInvalidParameters, "message %s is being processed by another client", messageID)
	}

	if processed {
		if err := e.deleteLocked(ctx, msg); err != nil {
			return err
		}
		e.audit.Record(audit.Event{
			Kind:      audit.KindMessageAcknowledged,
			QueueID:   e.queueID,
			MessageID: msg.ID,
			ClientID:  client.ID,
		})
		return nil
	}

	msg.ResetLease()
	if err := e.messages.Update(ctx, msg); err != nil {
		return fmt.Errorf("failed to requeue message: %w", err)
	}
	e.audit.Record(audit.Event{
		Kind:      audit.KindMessageRequeued,
		QueueID:   e.queueID,
		MessageID: msg.ID,
		ClientID:  client.ID,
	})
	return nil
}

// Messages returns one page of the queue's messages ordered by
// eligibility. Offloaded content is not attached to listings.
func (e *Engine) Messages(ctx context.Context, pageIndex, pageSize int) ([]*entity.Message, error) {
	if pageIndex < 0 {
		return nil, entity.NewError(entity.ErrorInvalidParameters, "page index must not be negative")
	}
	if pageSize <= 0 || pageSize > MaxPageSize {
		return nil, entity.NewError(entity.ErrorInvalidParameters,
			"page size must be between 1 and %d", MaxPageSize)
	}

	msgs, err := e.messages.GetByQueue(ctx, e.queueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	start := pageIndex * pageSize
	if start >= len(msgs) {
		return []*entity.Message{}, nil
	}
	end := start + pageSize
	if end > len(msgs) {
		end = len(msgs)
	}
	return msgs[start:end], nil
}

// LiveCount returns the number of unexpired messages (pending + leased).
func (e *Engine) LiveCount(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	live, _, err := e.countLocked(ctx, e.now())
	return live, err
}

// countLocked tallies live and leased messages. Live means unexpired,
// leased or not; an expired leased message still holds its lease slot until
// the sweep reclaims it. Caller holds the lock.
func (e *Engine) countLocked(ctx context.Context, now time.Time) (live, leased int, err error) {
	msgs, err := e.messages.GetByQueue(ctx, e.queueID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count messages: %w", err)
	}
	for _, m := range msgs {
		if m.Status == entity.StatusLeased {
			leased++
		}
		if !m.Expired(now) {
			live++
		}
	}
	return live, leased, nil
}

// closedLocked reports a deleted queue as gone. Caller holds the lock.
func (e *Engine) closedLocked() error {
	if e.closed {
		return entity.NewError(entity.ErrorQueueDoesNotExist, "queue %s does not exist", e.queueName)
	}
	return nil
}

// deleteLocked removes the message record and any offloaded content.
// Caller holds the lock.
func (e *Engine) deleteLocked(ctx context.Context, msg *entity.Message) error {
	if err := e.messages.DeleteByID(ctx, msg.ID); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if msg.ObjectName != "" && e.content != nil {
		if err := e.content.Delete(ctx, msg.ObjectName); err != nil {
			e.logger.Warn("Failed to delete offloaded content",
				logger.String("object_name", msg.ObjectName),
				logger.Error(err),
			)
		}
	}
	return nil
}
