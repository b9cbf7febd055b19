package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chris-fellows/cf-message-queue-sub000/internal/domain/entity"
)

// QueueRepository is an in-memory queue store.
type QueueRepository struct {
	mu     sync.RWMutex
	queues map[string]*entity.Queue
}

func NewQueueRepository() *QueueRepository {
	return &QueueRepository{queues: make(map[string]*entity.Queue)}
}

func (r *QueueRepository) GetAll(ctx context.Context) ([]*entity.Queue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.Queue, 0, len(r.queues))
	for _, q := range r.queues {
		out = append(out, cloneQueue(q))
	}
	return out, nil
}

func (r *QueueRepository) GetByID(ctx context.Context, id string) (*entity.Queue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.queues[id]
	if !ok {
		return nil, nil
	}
	return cloneQueue(q), nil
}

func (r *QueueRepository) GetByName(ctx context.Context, name string) (*entity.Queue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, q := range r.queues {
		if strings.EqualFold(q.Name, name) {
			return cloneQueue(q), nil
		}
	}
	return nil, nil
}

func (r *QueueRepository) Add(ctx context.Context, queue *entity.Queue) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.queues[queue.ID]; ok {
		return fmt.Errorf("queue %s already exists", queue.ID)
	}
	r.queues[queue.ID] = cloneQueue(queue)
	return nil
}

func (r *QueueRepository) Update(ctx context.Context, queue *entity.Queue) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.queues[queue.ID]; !ok {
		return fmt.Errorf("queue %s does not exist", queue.ID)
	}
	r.queues[queue.ID] = cloneQueue(queue)
	return nil
}

func (r *QueueRepository) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.queues, id)
	return nil
}
