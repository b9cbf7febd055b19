package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/chris-fellows/cf-message-queue-sub000/internal/domain/entity"
)

// HubRepository is an in-memory hub store.
type HubRepository struct {
	mu   sync.RWMutex
	hubs map[string]*entity.Hub
}

func NewHubRepository() *HubRepository {
	return &HubRepository{hubs: make(map[string]*entity.Hub)}
}

func (r *HubRepository) GetAll(ctx context.Context) ([]*entity.Hub, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.Hub, 0, len(r.hubs))
	for _, h := range r.hubs {
		out = append(out, cloneHub(h))
	}
	return out, nil
}

func (r *HubRepository) GetByID(ctx context.Context, id string) (*entity.Hub, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.hubs[id]
	if !ok {
		return nil, nil
	}
	return cloneHub(h), nil
}

func (r *HubRepository) Add(ctx context.Context, hub *entity.Hub) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.hubs[hub.ID]; ok {
		return fmt.Errorf("hub %s already exists", hub.ID)
	}
	r.hubs[hub.ID] = cloneHub(hub)
	return nil
}

func (r *HubRepository) Update(ctx context.Context, hub *entity.Hub) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.hubs[hub.ID]; !ok {
		return fmt.Errorf("hub %s does not exist", hub.ID)
	}
	r.hubs[hub.ID] = cloneHub(hub)
	return nil
}
