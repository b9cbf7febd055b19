package tarantool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chris-fellows/cf-message-queue-sub000/internal/domain/entity"
)

func TestMessageCodec_RoundTrip(t *testing.T) {
	created := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	msg := &entity.Message{
		ID:                  "m1",
		TypeID:              "order-created",
		Name:                "order 42",
		Priority:            entity.PriorityHighest,
		SenderClientID:      "c1",
		QueueID:             "q1",
		CreatedAt:           created,
		Status:              entity.StatusLeased,
		LeaseHolderClientID: "c2",
		LeaseStartAt:        created.Add(time.Minute),
		LeaseTTL:            30 * time.Second,
		ExpiresAt:           created.Add(time.Hour),
		Content:             []byte("payload"),
		ContentType:         "text/plain",
		ObjectName:          "q1/m1",
	}

	got := decodeMessage(encodeMessage(msg))
	assert.NotNil(t, got)
	assert.Equal(t, msg, got)
}

func TestMessageCodec_CoercesTarantoolValues(t *testing.T) {
	// Numbers come back as uint64 and binary strings come back as string
	// depending on how the stored procedure built the tuple.
	tuple := []interface{}{
		"m1", "t", "n",
		uint64(50),
		"c1", "q1",
		uint64(1767100000),
		uint64(0),
		"",
		int64(0),
		uint64(30),
		int64(0),
		"payload",
		"text/plain",
		"",
	}

	got := decodeMessage(tuple)
	assert.NotNil(t, got)
	assert.Equal(t, entity.PriorityDefault, got.Priority)
	assert.Equal(t, entity.StatusPending, got.Status)
	assert.Equal(t, 30*time.Second, got.LeaseTTL)
	assert.Equal(t, []byte("payload"), got.Content)
	assert.True(t, got.LeaseStartAt.IsZero())
	assert.True(t, got.ExpiresAt.IsZero())
}

func TestMessageCodec_RejectsShortTuple(t *testing.T) {
	assert.Nil(t, decodeMessage([]interface{}{"m1", "t"}))
	assert.Nil(t, decodeMessage("not a tuple"))
}

func TestQueueCodec_RoundTripWithSecurityItems(t *testing.T) {
	q := &entity.Queue{
		ID:                  "q1",
		Name:                "orders",
		Address:             "127.0.0.1",
		Port:                11000,
		MaxConcurrentLeases: 4,
		MaxSize:             1000,
		SecurityItems: []entity.SecurityItem{
			{ClientID: "c1", Roles: []entity.Role{entity.RoleRead, entity.RoleWrite}},
			{ClientID: "c2", Roles: []entity.Role{entity.RoleSubscribe}},
		},
	}

	// Emulate the msgpack round trip, which turns typed slices into
	// []interface{}.
	encoded := encodeQueue(q)
	encoded[6] = genericSlice(encoded[6].([]interface{}))

	got := decodeQueue(encoded)
	assert.NotNil(t, got)
	assert.Equal(t, q, got)
}

func TestHubCodec_RoundTrip(t *testing.T) {
	h := &entity.Hub{
		ID:      "hub-1",
		Address: "127.0.0.1:10010",
		SecurityItems: []entity.SecurityItem{
			{ClientID: "c1", Roles: []entity.Role{entity.RoleAdmin}},
		},
	}

	encoded := encodeHub(h)
	encoded[2] = genericSlice(encoded[2].([]interface{}))

	got := decodeHub(encoded)
	assert.NotNil(t, got)
	assert.Equal(t, h, got)
}

func TestClientCodec_RoundTrip(t *testing.T) {
	c := &entity.Client{ID: "c1", Name: "ingest-worker", SecretKey: "supersecret"}
	got := decodeClient(encodeClient(c))
	assert.NotNil(t, got)
	assert.Equal(t, c, got)
}

func TestDecodeMessages_EmptyAndMalformed(t *testing.T) {
	assert.Empty(t, decodeMessages(nil))
	assert.Empty(t, decodeMessages([]interface{}{"garbage"}))

	msgs := decodeMessages([]interface{}{[]interface{}{
		encodeMessage(&entity.Message{ID: "m1", QueueID: "q1"}),
		[]interface{}{"short"},
	}})
	assert.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
}

// genericSlice rebuilds nested []interface{} values the way msgpack decoding
// hands them back.
func genericSlice(in []interface{}) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		if nested, ok := v.([]interface{}); ok {
			out[i] = genericSlice(nested)
			continue
		}
		out[i] = v
	}
	return out
}
