package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chris-fellows/cf-message-queue-sub000/internal/domain/entity"
)

// MessageRepository is an in-memory message store.
type MessageRepository struct {
	mu       sync.RWMutex
	messages map[string]*entity.Message
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{messages: make(map[string]*entity.Message)}
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.messages[id]
	if !ok {
		return nil, nil
	}
	return cloneMessage(m), nil
}

func (r *MessageRepository) GetByQueue(ctx context.Context, queueID string) ([]*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.Message, 0)
	for _, m := range r.messages {
		if m.QueueID == queueID {
			out = append(out, cloneMessage(m))
		}
	}
	sortByEligibility(out)
	return out, nil
}

func (r *MessageRepository) GetExpired(ctx context.Context, queueID string, asOf time.Time) ([]*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.Message, 0)
	for _, m := range r.messages {
		if m.QueueID == queueID && m.Status == entity.StatusPending && m.Expired(asOf) {
			out = append(out, cloneMessage(m))
		}
	}
	return out, nil
}

func (r *MessageRepository) NextEligible(ctx context.Context, queueID string, asOf time.Time) (*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *entity.Message
	for _, m := range r.messages {
		if m.QueueID != queueID || m.Status != entity.StatusPending || m.Expired(asOf) {
			continue
		}
		if best == nil || eligibleBefore(m, best) {
			best = m
		}
	}
	if best == nil {
		return nil, nil
	}
	return cloneMessage(best), nil
}

func (r *MessageRepository) Add(ctx context.Context, msg *entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.messages[msg.ID]; ok {
		return fmt.Errorf("message %s already exists", msg.ID)
	}
	r.messages[msg.ID] = cloneMessage(msg)
	return nil
}

func (r *MessageRepository) Update(ctx context.Context, msg *entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.messages[msg.ID]; !ok {
		return fmt.Errorf("message %s does not exist", msg.ID)
	}
	r.messages[msg.ID] = cloneMessage(msg)
	return nil
}

func (r *MessageRepository) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.messages, id)
	return nil
}

func (r *MessageRepository) DeleteByQueue(ctx context.Context, queueID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, m := range r.messages {
		if m.QueueID == queueID {
			delete(r.messages, id)
		}
	}
	return nil
}

// eligibleBefore orders by priority ascending then creation time ascending.
func eligibleBefore(a, b *entity.Message) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func sortByEligibility(msgs []*entity.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		return eligibleBefore(msgs[i], msgs[j])
	})
}
