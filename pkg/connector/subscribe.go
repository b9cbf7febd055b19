package connector

import (
	"context"
	"net"
	"time"

	"github.com/chris-fellows/cf-message-queue-sub000/internal/transport"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/wire"
	"github.com/chris-fellows/cf-message-queue-sub000/pkg/logger"
)

// notificationBuffer bounds how many undrained notifications a subscription
// holds before new ones are dropped.
const notificationBuffer = 64

// Subscription is a live subscription to one queue's notifications. Drain
// Notifications until Close is called.
type Subscription struct {
	id        string
	queueID   string
	connector *Connector
	server    *transport.Server
	ch        chan wire.MessageQueueNotification
}

// ID returns the hub-assigned subscription id.
func (s *Subscription) ID() string {
	return s.id
}

// Notifications returns the channel queue events arrive on.
func (s *Subscription) Notifications() <-chan wire.MessageQueueNotification {
	return s.ch
}

// Close unsubscribes from the hub and stops the reply listener.
func (s *Subscription) Close(ctx context.Context) error {
	req := &wire.MessageQueueSubscribeRequest{
		RequestHeader: s.connector.header(),
		QueueID:       s.queueID,
		Action:        wire.SubscribeActionUnsubscribe,
	}
	resp := &wire.MessageQueueSubscribeResponse{}
	err := s.connector.call(ctx, wire.TypeMessageQueueSubscribeRequest, wire.TypeMessageQueueSubscribeResponse, req, resp)

	if stopErr := s.server.Stop(); err == nil {
		err = stopErr
	}
	close(s.ch)
	return err
}

// Subscribe registers for a queue's notifications. listenAddr is the local
// address the hub pushes to; ":0" picks a free port. sizeFrequency of zero
// disables periodic size notifications, otherwise it must be at least ten
// seconds.
func (c *Connector) Subscribe(ctx context.Context, queueID string, sizeFrequency time.Duration, listenAddr string) (*Subscription, error) {
	if listenAddr == "" {
		listenAddr = ":0"
	}

	sub := &Subscription{
		queueID:   queueID,
		connector: c,
		ch:        make(chan wire.MessageQueueNotification, notificationBuffer),
	}

	sub.server = transport.NewServer(listenAddr, func(ctx context.Context, env *wire.Envelope, remoteAddr string) *wire.Envelope {
		if env.Type != wire.TypeMessageQueueNotification {
			return nil
		}
		var n wire.MessageQueueNotification
		if err := env.DecodePayload(&n); err != nil {
			c.logger.Warn("Failed to decode notification", logger.Error(err))
			return nil
		}
		select {
		case sub.ch <- n:
		default:
			c.logger.Warn("Dropping notification, subscriber not draining",
				logger.String("queue_id", n.QueueID),
				logger.String("event", n.EventName),
			)
		}
		return nil
	}, c.logger)

	if err := sub.server.Start(); err != nil {
		return nil, err
	}

	req := &wire.MessageQueueSubscribeRequest{
		RequestHeader:     c.header(),
		QueueID:           queueID,
		Action:            wire.SubscribeActionSubscribe,
		SizeFrequencySecs: int(sizeFrequency / time.Second),
		ReplyAddress:      replyAddress(sub.server.Addr()),
	}
	resp := &wire.MessageQueueSubscribeResponse{}
	if err := c.call(ctx, wire.TypeMessageQueueSubscribeRequest, wire.TypeMessageQueueSubscribeResponse, req, resp); err != nil {
		_ = sub.server.Stop()
		return nil, err
	}
	sub.id = resp.SubscriptionID
	return sub, nil
}

// replyAddress makes a bound listener address dialable by the hub. Wildcard
// hosts are rewritten to loopback.
func replyAddress(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "::" || host == "0.0.0.0" {
		return net.JoinHostPort("127.0.0.1", port)
	}
	return addr
}
