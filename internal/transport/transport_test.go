package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chris-fellows/cf-message-queue-sub000/internal/wire"
	"github.com/chris-fellows/cf-message-queue-sub000/pkg/logger"
)

func startServer(t *testing.T, handler Handler) *Server {
	t.Helper()
	s := NewServer("127.0.0.1:0", handler, logger.Nop())
	if err := s.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestSend_RoundTrip(t *testing.T) {
	s := startServer(t, func(ctx context.Context, env *wire.Envelope, remoteAddr string) *wire.Envelope {
		out, err := wire.NewEnvelope(env.ID, wire.TypeGetMessageQueuesResponse, &wire.GetMessageQueuesResponse{
			ResponseHeader: wire.ResponseHeader{RequestID: env.ID, Sequence: 1},
		})
		if err != nil {
			t.Errorf("failed to build response: %v", err)
			return nil
		}
		return out
	})

	env, err := wire.NewEnvelope("req-1", wire.TypeGetMessageQueuesRequest, &wire.GetMessageQueuesRequest{})
	if err != nil {
		t.Fatalf("envelope failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := Send(ctx, env, s.Addr())
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if resp.Type != wire.TypeGetMessageQueuesResponse {
		t.Fatalf("unexpected response type %s", resp.Type)
	}

	var body wire.GetMessageQueuesResponse
	if err := resp.DecodePayload(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.RequestID != "req-1" {
		t.Fatalf("response not correlated: %s", body.RequestID)
	}
}

func TestSendOneWay_DeliversWithoutResponse(t *testing.T) {
	received := make(chan *wire.Envelope, 1)
	s := startServer(t, func(ctx context.Context, env *wire.Envelope, remoteAddr string) *wire.Envelope {
		received <- env
		return nil
	})

	env, err := wire.NewEnvelope("n-1", wire.TypeMessageQueueNotification, &wire.MessageQueueNotification{
		QueueID:   "q1",
		EventName: wire.EventMessageAdded,
	})
	if err != nil {
		t.Fatalf("envelope failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := SendOneWay(ctx, env, s.Addr()); err != nil {
		t.Fatalf("one-way send failed: %v", err)
	}

	select {
	case got := <-received:
		if got.Type != wire.TypeMessageQueueNotification {
			t.Fatalf("unexpected type %s", got.Type)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("notification never arrived")
	}
}

func TestServer_ConcurrentRequests(t *testing.T) {
	s := startServer(t, func(ctx context.Context, env *wire.Envelope, remoteAddr string) *wire.Envelope {
		// A slow handler must not serialize other requests.
		if env.ID == "slow" {
			time.Sleep(100 * time.Millisecond)
		}
		out, _ := wire.NewEnvelope(env.ID, wire.TypeGetMessageHubsResponse, &wire.GetMessageHubsResponse{
			ResponseHeader: wire.ResponseHeader{RequestID: env.ID, Sequence: 1},
		})
		return out
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	start := time.Now()
	for _, id := range []string{"slow", "fast-1", "fast-2", "fast-3"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			env, _ := wire.NewEnvelope(id, wire.TypeGetMessageHubsRequest, &wire.GetMessageHubsRequest{})
			if _, err := Send(ctx, env, s.Addr()); err != nil {
				t.Errorf("send %s failed: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("concurrent requests took too long: %v", elapsed)
	}
}

func TestServer_StopUnblocksAccept(t *testing.T) {
	s := NewServer("127.0.0.1:0", func(ctx context.Context, env *wire.Envelope, remoteAddr string) *wire.Envelope {
		return nil
	}, logger.Nop())
	if err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Stop() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("stop failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stop never returned")
	}

	// Stopping twice is harmless.
	if err := s.Stop(); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
}
