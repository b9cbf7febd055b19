package repository

import (
	"context"
	"time"

	"github.com/chris-fellows/cf-message-queue-sub000/internal/domain/entity"
)

// HubRepository stores the hub record. There is one hub per process,
// created on first run.
type HubRepository interface {
	GetAll(ctx context.Context) ([]*entity.Hub, error)
	GetByID(ctx context.Context, id string) (*entity.Hub, error)
	Add(ctx context.Context, hub *entity.Hub) error
	Update(ctx context.Context, hub *entity.Hub) error
}

// ClientRepository stores client identities. Lookups by id return
// (nil, nil) when the client does not exist.
type ClientRepository interface {
	GetAll(ctx context.Context) ([]*entity.Client, error)
	GetByID(ctx context.Context, id string) (*entity.Client, error)
	Add(ctx context.Context, client *entity.Client) error
	Update(ctx context.Context, client *entity.Client) error
	DeleteByID(ctx context.Context, id string) error
}

// QueueRepository stores queue records.
type QueueRepository interface {
	GetAll(ctx context.Context) ([]*entity.Queue, error)
	GetByID(ctx context.Context, id string) (*entity.Queue, error)
	GetByName(ctx context.Context, name string) (*entity.Queue, error)
	Add(ctx context.Context, queue *entity.Queue) error
	Update(ctx context.Context, queue *entity.Queue) error
	DeleteByID(ctx context.Context, id string) error
}

// MessageRepository stores queue messages and answers the queue engine's
// eligibility queries.
type MessageRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Message, error)
	GetByQueue(ctx context.Context, queueID string) ([]*entity.Message, error)

	// GetExpired returns pending messages of the queue whose expiry has
	// passed as of the given instant.
	GetExpired(ctx context.Context, queueID string, asOf time.Time) ([]*entity.Message, error)

	// NextEligible returns the pending, unexpired message with the best
	// (priority asc, createdAt asc) order, or (nil, nil) when none.
	NextEligible(ctx context.Context, queueID string, asOf time.Time) (*entity.Message, error)

	Add(ctx context.Context, msg *entity.Message) error
	Update(ctx context.Context, msg *entity.Message) error
	DeleteByID(ctx context.Context, id string) error
	DeleteByQueue(ctx context.Context, queueID string) error
}

// ContentStore holds message payloads that are kept out of the message
// record (blob offload).
type ContentStore interface {
	Put(ctx context.Context, objectName string, data []byte, contentType string) error
	Get(ctx context.Context, objectName string) ([]byte, string, error)
	Delete(ctx context.Context, objectName string) error
}
