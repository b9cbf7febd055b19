package tarantool

import (
	"time"

	"github.com/chris-fellows/cf-message-queue-sub000/internal/domain/entity"
)

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toInt(v interface{}) int {
	return int(toInt64(v))
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case uint64:
		return int64(n)
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toBytes(v interface{}) []byte {
	switch b := v.(type) {
	case []byte:
		return b
	case string:
		return []byte(b)
	default:
		return nil
	}
}

// Times cross the wire as unix seconds; 0 means the zero time.
func toTime(v interface{}) time.Time {
	secs := toInt64(v)
	if secs == 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

func fromTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// Security items travel as [[client_id, [role, ...]], ...].
func encodeSecurityItems(items []entity.SecurityItem) []interface{} {
	out := make([]interface{}, 0, len(items))
	for _, it := range items {
		roles := make([]interface{}, 0, len(it.Roles))
		for _, r := range it.Roles {
			roles = append(roles, string(r))
		}
		out = append(out, []interface{}{it.ClientID, roles})
	}
	return out
}

func decodeSecurityItems(v interface{}) []entity.SecurityItem {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]entity.SecurityItem, 0, len(raw))
	for _, itemRaw := range raw {
		tuple, ok := itemRaw.([]interface{})
		if !ok || len(tuple) < 2 {
			continue
		}
		item := entity.SecurityItem{ClientID: toString(tuple[0])}
		if rolesRaw, ok := tuple[1].([]interface{}); ok {
			for _, r := range rolesRaw {
				item.Roles = append(item.Roles, entity.Role(toString(r)))
			}
		}
		out = append(out, item)
	}
	return out
}

// Message tuple layout:
// [id, type_id, name, priority, sender_client_id, queue_id, created_at,
//  status, lease_holder, lease_start_at, lease_ttl_secs, expires_at,
//  content, content_type, object_name]
func encodeMessage(m *entity.Message) []interface{} {
	return []interface{}{
		m.ID,
		m.TypeID,
		m.Name,
		m.Priority,
		m.SenderClientID,
		m.QueueID,
		fromTime(m.CreatedAt),
		int(m.Status),
		m.LeaseHolderClientID,
		fromTime(m.LeaseStartAt),
		int64(m.LeaseTTL / time.Second),
		fromTime(m.ExpiresAt),
		m.Content,
		m.ContentType,
		m.ObjectName,
	}
}

func decodeMessage(v interface{}) *entity.Message {
	tuple, ok := v.([]interface{})
	if !ok || len(tuple) < 15 {
		return nil
	}
	return &entity.Message{
		ID:                  toString(tuple[0]),
		TypeID:              toString(tuple[1]),
		Name:                toString(tuple[2]),
		Priority:            toInt(tuple[3]),
		SenderClientID:      toString(tuple[4]),
		QueueID:             toString(tuple[5]),
		CreatedAt:           toTime(tuple[6]),
		Status:              entity.MessageStatus(toInt(tuple[7])),
		LeaseHolderClientID: toString(tuple[8]),
		LeaseStartAt:        toTime(tuple[9]),
		LeaseTTL:            time.Duration(toInt64(tuple[10])) * time.Second,
		ExpiresAt:           toTime(tuple[11]),
		Content:             toBytes(tuple[12]),
		ContentType:         toString(tuple[13]),
		ObjectName:          toString(tuple[14]),
	}
}

func decodeMessages(resp []interface{}) []*entity.Message {
	if len(resp) == 0 {
		return []*entity.Message{}
	}
	tuples, ok := resp[0].([]interface{})
	if !ok {
		return []*entity.Message{}
	}
	out := make([]*entity.Message, 0, len(tuples))
	for _, t := range tuples {
		if m := decodeMessage(t); m != nil {
			out = append(out, m)
		}
	}
	return out
}

// Queue tuple layout:
// [id, name, address, port, max_concurrent_leases, max_size, security_items]
func encodeQueue(q *entity.Queue) []interface{} {
	return []interface{}{
		q.ID,
		q.Name,
		q.Address,
		q.Port,
		q.MaxConcurrentLeases,
		q.MaxSize,
		encodeSecurityItems(q.SecurityItems),
	}
}

func decodeQueue(v interface{}) *entity.Queue {
	tuple, ok := v.([]interface{})
	if !ok || len(tuple) < 7 {
		return nil
	}
	return &entity.Queue{
		ID:                  toString(tuple[0]),
		Name:                toString(tuple[1]),
		Address:             toString(tuple[2]),
		Port:                toInt(tuple[3]),
		MaxConcurrentLeases: toInt(tuple[4]),
		MaxSize:             toInt(tuple[5]),
		SecurityItems:       decodeSecurityItems(tuple[6]),
	}
}

// Client tuple layout: [id, name, secret_key]
func encodeClient(c *entity.Client) []interface{} {
	return []interface{}{c.ID, c.Name, c.SecretKey}
}

func decodeClient(v interface{}) *entity.Client {
	tuple, ok := v.([]interface{})
	if !ok || len(tuple) < 3 {
		return nil
	}
	return &entity.Client{
		ID:        toString(tuple[0]),
		Name:      toString(tuple[1]),
		SecretKey: toString(tuple[2]),
	}
}

// Hub tuple layout: [id, address, security_items]
func encodeHub(h *entity.Hub) []interface{} {
	return []interface{}{h.ID, h.Address, encodeSecurityItems(h.SecurityItems)}
}

func decodeHub(v interface{}) *entity.Hub {
	tuple, ok := v.([]interface{})
	if !ok || len(tuple) < 3 {
		return nil
	}
	return &entity.Hub{
		ID:            toString(tuple[0]),
		Address:       toString(tuple[1]),
		SecurityItems: decodeSecurityItems(tuple[2]),
	}
}
