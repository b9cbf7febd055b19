package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/chris-fellows/cf-message-queue-sub000/internal/domain/entity"
)

// ClientRepository is an in-memory client store.
type ClientRepository struct {
	mu      sync.RWMutex
	clients map[string]*entity.Client
}

func NewClientRepository() *ClientRepository {
	return &ClientRepository{clients: make(map[string]*entity.Client)}
}

func (r *ClientRepository) GetAll(ctx context.Context) ([]*entity.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, cloneClient(c))
	}
	return out, nil
}

func (r *ClientRepository) GetByID(ctx context.Context, id string) (*entity.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[id]
	if !ok {
		return nil, nil
	}
	return cloneClient(c), nil
}

func (r *ClientRepository) Add(ctx context.Context, client *entity.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[client.ID]; ok {
		return fmt.Errorf("client %s already exists", client.ID)
	}
	r.clients[client.ID] = cloneClient(client)
	return nil
}

func (r *ClientRepository) Update(ctx context.Context, client *entity.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[client.ID]; !ok {
		return fmt.Errorf("client %s does not exist", client.ID)
	}
	r.clients[client.ID] = cloneClient(client)
	return nil
}

func (r *ClientRepository) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.clients, id)
	return nil
}
