package hub

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chris-fellows/cf-message-queue-sub000/internal/domain/entity"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/transport"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/wire"
	"github.com/chris-fellows/cf-message-queue-sub000/pkg/connector"
	"github.com/chris-fellows/cf-message-queue-sub000/pkg/logger"
)

// These tests drive the full request path over TCP: connector, framing,
// router, control plane and lease engine.

func TestRouter_EndToEnd(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	admin := connector.New(s.Addr(), adminKey, logger.Nop())

	workerID, err := admin.AddClient(ctx, "worker", "worker-secret-1")
	if err != nil {
		t.Fatalf("add client failed: %v", err)
	}

	queueID, _, err := admin.CreateQueue(ctx, "orders", 0, 0)
	if err != nil {
		t.Fatalf("create queue failed: %v", err)
	}

	msgID, err := admin.Enqueue(ctx, connector.EnqueueParams{
		QueueID:     queueID,
		TypeID:      "order",
		Name:        "first order",
		Priority:    entity.PriorityDefault,
		ContentType: "text/plain",
		Content:     []byte("hello"),
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	msg, err := admin.LeaseNext(ctx, queueID, 0, 5*time.Second)
	if err != nil {
		t.Fatalf("lease failed: %v", err)
	}
	if msg == nil || msg.ID != msgID {
		t.Fatalf("expected to lease %s, got %+v", msgID, msg)
	}
	if string(msg.Content) != "hello" {
		t.Fatalf("payload corrupted in transit: %q", msg.Content)
	}

	if err := admin.Acknowledge(ctx, queueID, msg.ID, true); err != nil {
		t.Fatalf("ack failed: %v", err)
	}
	empty, err := admin.LeaseNext(ctx, queueID, 0, 5*time.Second)
	if err != nil {
		t.Fatalf("lease failed: %v", err)
	}
	if empty != nil {
		t.Fatalf("expected an empty queue after ack, got %s", empty.ID)
	}

	// A worker without queue roles is refused, then granted Write and
	// admitted.
	worker := connector.New(s.Addr(), "worker-secret-1", logger.Nop())
	_, err = worker.Enqueue(ctx, connector.EnqueueParams{QueueID: queueID, TypeID: "order"})
	if entity.CodeOf(err) != entity.ErrorPermissionDenied {
		t.Fatalf("expected PermissionDenied for roleless worker, got %v", err)
	}
	if err := admin.ConfigurePermissions(ctx, workerID, queueID, []string{"Write"}); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	if _, err := worker.Enqueue(ctx, connector.EnqueueParams{QueueID: queueID, TypeID: "order"}); err != nil {
		t.Fatalf("enqueue after grant failed: %v", err)
	}

	// Listings honor the default discovery roles.
	queues, err := worker.Queues(ctx)
	if err != nil {
		t.Fatalf("queue listing failed: %v", err)
	}
	if len(queues) != 1 || queues[0].ID != queueID {
		t.Fatalf("unexpected queue listing: %+v", queues)
	}
	if _, err := worker.Clients(ctx); entity.CodeOf(err) != entity.ErrorPermissionDenied {
		t.Fatalf("expected PermissionDenied for client listing, got %v", err)
	}

	clients, err := admin.Clients(ctx)
	if err != nil {
		t.Fatalf("client listing failed: %v", err)
	}
	if len(clients) != 2 {
		t.Fatalf("expected 2 clients, got %d", len(clients))
	}
}

func TestRouter_ReadOnlyClientLeases(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	admin := connector.New(s.Addr(), adminKey, logger.Nop())

	readerID, err := admin.AddClient(ctx, "reader", "reader-secret-1")
	if err != nil {
		t.Fatalf("add client failed: %v", err)
	}
	queueID, _, err := admin.CreateQueue(ctx, "orders", 0, 0)
	if err != nil {
		t.Fatalf("create queue failed: %v", err)
	}
	if err := admin.ConfigurePermissions(ctx, readerID, queueID, []string{"Read"}); err != nil {
		t.Fatalf("grant failed: %v", err)
	}

	msgID, err := admin.Enqueue(ctx, connector.EnqueueParams{
		QueueID:  queueID,
		TypeID:   "order",
		Priority: entity.PriorityDefault,
		Content:  []byte("payload"),
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	// Read alone covers the whole consume path: lease and ack.
	reader := connector.New(s.Addr(), "reader-secret-1", logger.Nop())
	msg, err := reader.LeaseNext(ctx, queueID, 0, 5*time.Second)
	if err != nil {
		t.Fatalf("lease as reader failed: %v", err)
	}
	if msg == nil || msg.ID != msgID {
		t.Fatalf("expected to lease %s, got %+v", msgID, msg)
	}
	if err := reader.Acknowledge(ctx, queueID, msg.ID, true); err != nil {
		t.Fatalf("ack as reader failed: %v", err)
	}

	// It does not grant producing.
	_, err = reader.Enqueue(ctx, connector.EnqueueParams{QueueID: queueID, TypeID: "order"})
	if entity.CodeOf(err) != entity.ErrorPermissionDenied {
		t.Fatalf("expected PermissionDenied for read-only enqueue, got %v", err)
	}
}

func TestRouter_UnknownSecretKey(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	stranger := connector.New(s.Addr(), "not-a-real-key", logger.Nop())
	_, err := stranger.Queues(ctx)
	if entity.CodeOf(err) != entity.ErrorPermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
}

func TestRouter_UnknownMessageType(t *testing.T) {
	s := newTestService(t)

	env, err := wire.NewEnvelope(uuid.NewString(), "BogusRequest", &wire.GetMessageQueuesRequest{})
	if err != nil {
		t.Fatalf("envelope failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := transport.Send(ctx, env, s.Addr())
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	var h wire.ResponseHeader
	if err := resp.DecodePayload(&h); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if h.ErrorCode != entity.ErrorInvalidParameters {
		t.Fatalf("expected InvalidParameters, got %s", h.ErrorCode)
	}
	if h.RequestID != env.ID {
		t.Fatalf("response not correlated: %s != %s", h.RequestID, env.ID)
	}
}

func TestRouter_MalformedPayload(t *testing.T) {
	s := newTestService(t)

	env := &wire.Envelope{
		ID:      uuid.NewString(),
		Type:    wire.TypeAddMessageHubClientRequest,
		Payload: []byte{0xc1}, // never a valid msgpack value
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := transport.Send(ctx, env, s.Addr())
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	var out wire.AddMessageHubClientResponse
	if err := resp.DecodePayload(&out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out.ErrorCode != entity.ErrorInvalidParameters {
		t.Fatalf("expected InvalidParameters, got %s", out.ErrorCode)
	}
}

func TestRouter_SubscribeLifecycle(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	admin := connector.New(s.Addr(), adminKey, logger.Nop())
	queueID, _, err := admin.CreateQueue(ctx, "orders", 0, 0)
	if err != nil {
		t.Fatalf("create queue failed: %v", err)
	}

	sub, err := admin.Subscribe(ctx, queueID, 0, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if sub.ID() == "" {
		t.Fatal("expected a subscription id")
	}
	if err := sub.Close(ctx); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
}
