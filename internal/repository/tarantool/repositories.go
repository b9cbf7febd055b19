package tarantool

import (
	"context"
	"fmt"
	"time"

	"github.com/chris-fellows/cf-message-queue-sub000/internal/domain/entity"
)

// HubRepository stores hub records through stored procedures.
type HubRepository struct {
	conn *Conn
}

func NewHubRepository(conn *Conn) *HubRepository {
	return &HubRepository{conn: conn}
}

func (r *HubRepository) GetAll(ctx context.Context) ([]*entity.Hub, error) {
	resp, err := r.conn.call("hub_get_all", []interface{}{})
	if err != nil {
		return nil, fmt.Errorf("failed to get hubs: %w", err)
	}
	out := []*entity.Hub{}
	if len(resp) > 0 {
		if tuples, ok := resp[0].([]interface{}); ok {
			for _, t := range tuples {
				if h := decodeHub(t); h != nil {
					out = append(out, h)
				}
			}
		}
	}
	return out, nil
}

func (r *HubRepository) GetByID(ctx context.Context, id string) (*entity.Hub, error) {
	resp, err := r.conn.call("hub_get_by_id", []interface{}{id})
	if err != nil {
		return nil, fmt.Errorf("failed to get hub: %w", err)
	}
	if len(resp) == 0 || resp[0] == nil {
		return nil, nil
	}
	return decodeHub(resp[0]), nil
}

func (r *HubRepository) Add(ctx context.Context, hub *entity.Hub) error {
	if _, err := r.conn.call("hub_add", encodeHub(hub)); err != nil {
		return fmt.Errorf("failed to add hub: %w", err)
	}
	return nil
}

func (r *HubRepository) Update(ctx context.Context, hub *entity.Hub) error {
	if _, err := r.conn.call("hub_update", encodeHub(hub)); err != nil {
		return fmt.Errorf("failed to update hub: %w", err)
	}
	return nil
}

// ClientRepository stores client records through stored procedures.
type ClientRepository struct {
	conn *Conn
}

func NewClientRepository(conn *Conn) *ClientRepository {
	return &ClientRepository{conn: conn}
}

func (r *ClientRepository) GetAll(ctx context.Context) ([]*entity.Client, error) {
	resp, err := r.conn.call("client_get_all", []interface{}{})
	if err != nil {
		return nil, fmt.Errorf("failed to get clients: %w", err)
	}
	out := []*entity.Client{}
	if len(resp) > 0 {
		if tuples, ok := resp[0].([]interface{}); ok {
			for _, t := range tuples {
				if c := decodeClient(t); c != nil {
					out = append(out, c)
				}
			}
		}
	}
	return out, nil
}

func (r *ClientRepository) GetByID(ctx context.Context, id string) (*entity.Client, error) {
	resp, err := r.conn.call("client_get_by_id", []interface{}{id})
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	if len(resp) == 0 || resp[0] == nil {
		return nil, nil
	}
	return decodeClient(resp[0]), nil
}

func (r *ClientRepository) Add(ctx context.Context, client *entity.Client) error {
	if _, err := r.conn.call("client_add", encodeClient(client)); err != nil {
		return fmt.Errorf("failed to add client: %w", err)
	}
	return nil
}

func (r *ClientRepository) Update(ctx context.Context, client *entity.Client) error {
	if _, err := r.conn.call("client_update", encodeClient(client)); err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	return nil
}

func (r *ClientRepository) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.conn.call("client_delete", []interface{}{id}); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return nil
}

// QueueRepository stores queue records through stored procedures.
type QueueRepository struct {
	conn *Conn
}

func NewQueueRepository(conn *Conn) *QueueRepository {
	return &QueueRepository{conn: conn}
}

func (r *QueueRepository) GetAll(ctx context.Context) ([]*entity.Queue, error) {
	resp, err := r.conn.call("queue_get_all", []interface{}{})
	if err != nil {
		return nil, fmt.Errorf("failed to get queues: %w", err)
	}
	out := []*entity.Queue{}
	if len(resp) > 0 {
		if tuples, ok := resp[0].([]interface{}); ok {
			for _, t := range tuples {
				if q := decodeQueue(t); q != nil {
					out = append(out, q)
				}
			}
		}
	}
	return out, nil
}

func (r *QueueRepository) GetByID(ctx context.Context, id string) (*entity.Queue, error) {
	resp, err := r.conn.call("queue_get_by_id", []interface{}{id})
	if err != nil {
		return nil, fmt.Errorf("failed to get queue: %w", err)
	}
	if len(resp) == 0 || resp[0] == nil {
		return nil, nil
	}
	return decodeQueue(resp[0]), nil
}

func (r *QueueRepository) GetByName(ctx context.Context, name string) (*entity.Queue, error) {
	resp, err := r.conn.call("queue_get_by_name", []interface{}{name})
	if err != nil {
		return nil, fmt.Errorf("failed to get queue by name: %w", err)
	}
	if len(resp) == 0 || resp[0] == nil {
		return nil, nil
	}
	return decodeQueue(resp[0]), nil
}

func (r *QueueRepository) Add(ctx context.Context, queue *entity.Queue) error {
	if _, err := r.conn.call("queue_add", encodeQueue(queue)); err != nil {
		return fmt.Errorf("failed to add queue: %w", err)
	}
	return nil
}

func (r *QueueRepository) Update(ctx context.Context, queue *entity.Queue) error {
	if _, err := r.conn.call("queue_update", encodeQueue(queue)); err != nil {
		return fmt.Errorf("failed to update queue: %w", err)
	}
	return nil
}

func (r *QueueRepository) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.conn.call("queue_delete", []interface{}{id}); err != nil {
		return fmt.Errorf("failed to delete queue: %w", err)
	}
	return nil
}

// MessageRepository stores messages through stored procedures. The eligibility
// ordering (priority asc, created_at asc) lives in the next_eligible
// procedure's index scan.
type MessageRepository struct {
	conn *Conn
}

func NewMessageRepository(conn *Conn) *MessageRepository {
	return &MessageRepository{conn: conn}
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*entity.Message, error) {
	resp, err := r.conn.call("message_get_by_id", []interface{}{id})
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if len(resp) == 0 || resp[0] == nil {
		return nil, nil
	}
	return decodeMessage(resp[0]), nil
}

func (r *MessageRepository) GetByQueue(ctx context.Context, queueID string) ([]*entity.Message, error) {
	resp, err := r.conn.call("message_get_by_queue", []interface{}{queueID})
	if err != nil {
		return nil, fmt.Errorf("failed to get queue messages: %w", err)
	}
	return decodeMessages(resp), nil
}

func (r *MessageRepository) GetExpired(ctx context.Context, queueID string, asOf time.Time) ([]*entity.Message, error) {
	resp, err := r.conn.call("message_get_expired", []interface{}{queueID, fromTime(asOf)})
	if err != nil {
		return nil, fmt.Errorf("failed to get expired messages: %w", err)
	}
	return decodeMessages(resp), nil
}

func (r *MessageRepository) NextEligible(ctx context.Context, queueID string, asOf time.Time) (*entity.Message, error) {
	resp, err := r.conn.call("message_next_eligible", []interface{}{queueID, fromTime(asOf)})
	if err != nil {
		return nil, fmt.Errorf("failed to get next eligible message: %w", err)
	}
	if len(resp) == 0 || resp[0] == nil {
		return nil, nil
	}
	return decodeMessage(resp[0]), nil
}

func (r *MessageRepository) Add(ctx context.Context, msg *entity.Message) error {
	if _, err := r.conn.call("message_add", encodeMessage(msg)); err != nil {
		return fmt.Errorf("failed to add message: %w", err)
	}
	return nil
}

func (r *MessageRepository) Update(ctx context.Context, msg *entity.Message) error {
	if _, err := r.conn.call("message_update", encodeMessage(msg)); err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return nil
}

func (r *MessageRepository) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.conn.call("message_delete", []interface{}{id}); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func (r *MessageRepository) DeleteByQueue(ctx context.Context, queueID string) error {
	if _, err := r.conn.call("message_delete_by_queue", []interface{}{queueID}); err != nil {
		return fmt.Errorf("failed to delete queue messages: %w", err)
	}
	return nil
}
