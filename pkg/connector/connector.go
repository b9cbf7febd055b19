// Package connector is the client library for talking to a message hub. It
// wraps the envelope exchange behind typed methods, so callers deal in queue
// ids and messages rather than frames.
package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chris-fellows/cf-message-queue-sub000/internal/transport"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/wire"
	"github.com/chris-fellows/cf-message-queue-sub000/pkg/logger"
)

// Connector issues requests to one hub endpoint on behalf of one client.
// Every hub listener serves the full request surface, so queue operations may
// go to the hub port or straight to the queue's own port.
type Connector struct {
	address   string
	secretKey string
	sessionID string
	logger    *logger.Logger
}

// New creates a connector for the hub at address, authenticating with
// secretKey. Each connector carries its own session id, which scopes
// subscriptions and long-poll wakeups.
func New(address, secretKey string, log *logger.Logger) *Connector {
	if log == nil {
		log = logger.Nop()
	}
	return &Connector{
		address:   address,
		secretKey: secretKey,
		sessionID: uuid.NewString(),
		logger:    log,
	}
}

// SessionID returns the connector's session id.
func (c *Connector) SessionID() string {
	return c.sessionID
}

// WithAddress returns a connector for another endpoint sharing this
// connector's credentials and session.
func (c *Connector) WithAddress(address string) *Connector {
	clone := *c
	clone.address = address
	return &clone
}

func (c *Connector) header() wire.RequestHeader {
	return wire.RequestHeader{SecurityKey: c.secretKey, SessionID: c.sessionID}
}

// call performs one request/response exchange and surfaces the coded error
// from the response header, if any.
func (c *Connector) call(ctx context.Context, reqType, respType wire.MessageType, req interface{}, resp interface{ Err() error }) error {
	env, err := wire.NewEnvelope(uuid.NewString(), reqType, req)
	if err != nil {
		return err
	}

	got, err := transport.Send(ctx, env, c.address)
	if err != nil {
		return err
	}
	if got.Type != respType {
		return fmt.Errorf("unexpected response type %s to %s", got.Type, reqType)
	}
	if err := got.DecodePayload(resp); err != nil {
		return err
	}
	return resp.Err()
}

// AddClient registers a new client on the hub and returns its id. Requires
// the hub ADMIN role.
func (c *Connector) AddClient(ctx context.Context, name, secretKey string) (string, error) {
	req := &wire.AddMessageHubClientRequest{RequestHeader: c.header(), Name: name, SecretKey: secretKey}
	resp := &wire.AddMessageHubClientResponse{}
	if err := c.call(ctx, wire.TypeAddMessageHubClientRequest, wire.TypeAddMessageHubClientResponse, req, resp); err != nil {
		return "", err
	}
	return resp.ClientID, nil
}

// ConfigurePermissions replaces a client's role set. An empty queueID targets
// the hub scope; an empty role list removes the grant.
func (c *Connector) ConfigurePermissions(ctx context.Context, clientID, queueID string, roles []string) error {
	req := &wire.ConfigureMessageHubClientRequest{
		RequestHeader: c.header(),
		ClientID:      clientID,
		QueueID:       queueID,
		Roles:         roles,
	}
	resp := &wire.ConfigureMessageHubClientResponse{}
	return c.call(ctx, wire.TypeConfigureMessageHubClientRequest, wire.TypeConfigureMessageHubClientResponse, req, resp)
}

// CreateQueue creates a queue and returns its id and listening address.
func (c *Connector) CreateQueue(ctx context.Context, name string, maxConcurrentLeases, maxSize int) (id, address string, err error) {
	req := &wire.AddMessageQueueRequest{
		RequestHeader:       c.header(),
		Name:                name,
		MaxConcurrentLeases: maxConcurrentLeases,
		MaxSize:             maxSize,
	}
	resp := &wire.AddMessageQueueResponse{}
	if err := c.call(ctx, wire.TypeAddMessageQueueRequest, wire.TypeAddMessageQueueResponse, req, resp); err != nil {
		return "", "", err
	}
	return resp.QueueID, resp.Address, nil
}

// ExecuteQueueAction runs a named action (CLEAR, DELETE) against a queue.
func (c *Connector) ExecuteQueueAction(ctx context.Context, queueID, action string) error {
	req := &wire.ExecuteMessageQueueActionRequest{RequestHeader: c.header(), QueueID: queueID, Action: action}
	resp := &wire.ExecuteMessageQueueActionResponse{}
	return c.call(ctx, wire.TypeExecuteMessageQueueActionRequest, wire.TypeExecuteMessageQueueActionResponse, req, resp)
}

// Hubs lists the hubs visible to this client.
func (c *Connector) Hubs(ctx context.Context) ([]wire.HubInfo, error) {
	req := &wire.GetMessageHubsRequest{RequestHeader: c.header()}
	resp := &wire.GetMessageHubsResponse{}
	if err := c.call(ctx, wire.TypeGetMessageHubsRequest, wire.TypeGetMessageHubsResponse, req, resp); err != nil {
		return nil, err
	}
	return resp.Hubs, nil
}

// Clients lists registered clients. Secret keys are never returned.
func (c *Connector) Clients(ctx context.Context) ([]wire.HubClientInfo, error) {
	req := &wire.GetMessageHubClientsRequest{RequestHeader: c.header()}
	resp := &wire.GetMessageHubClientsResponse{}
	if err := c.call(ctx, wire.TypeGetMessageHubClientsRequest, wire.TypeGetMessageHubClientsResponse, req, resp); err != nil {
		return nil, err
	}
	return resp.Clients, nil
}

// Queues lists the hub's queues.
func (c *Connector) Queues(ctx context.Context) ([]wire.QueueInfo, error) {
	req := &wire.GetMessageQueuesRequest{RequestHeader: c.header()}
	resp := &wire.GetMessageQueuesResponse{}
	if err := c.call(ctx, wire.TypeGetMessageQueuesRequest, wire.TypeGetMessageQueuesResponse, req, resp); err != nil {
		return nil, err
	}
	return resp.Queues, nil
}

// EnqueueParams describes one message to enqueue.
type EnqueueParams struct {
	QueueID     string
	TypeID      string
	Name        string
	Priority    int
	Expiry      time.Duration
	ContentType string
	Content     []byte
}

// Enqueue adds a message to a queue and returns its id.
func (c *Connector) Enqueue(ctx context.Context, p EnqueueParams) (string, error) {
	req := &wire.AddQueueMessageRequest{
		RequestHeader: c.header(),
		QueueID:       p.QueueID,
		TypeID:        p.TypeID,
		Name:          p.Name,
		Priority:      p.Priority,
		ExpirySeconds: int(p.Expiry / time.Second),
		ContentType:   p.ContentType,
		Content:       p.Content,
	}
	resp := &wire.AddQueueMessageResponse{}
	if err := c.call(ctx, wire.TypeAddQueueMessageRequest, wire.TypeAddQueueMessageResponse, req, resp); err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

// LeaseNext leases the next eligible message, waiting up to maxWait for one
// to appear. It returns nil when the wait elapsed with nothing to lease. The
// lease must be settled with Acknowledge before leaseTTL expires or the hub
// returns the message to the queue.
func (c *Connector) LeaseNext(ctx context.Context, queueID string, maxWait, leaseTTL time.Duration) (*wire.QueueMessageInfo, error) {
	if _, ok := ctx.Deadline(); !ok {
		// Leave the hub room to answer after a full wait.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxWait+10*time.Second)
		defer cancel()
	}

	req := &wire.GetNextQueueMessageRequest{
		RequestHeader:   c.header(),
		QueueID:         queueID,
		MaxWaitMs:       maxWait.Milliseconds(),
		LeaseTTLSeconds: int(leaseTTL / time.Second),
	}
	resp := &wire.GetNextQueueMessageResponse{}
	if err := c.call(ctx, wire.TypeGetNextQueueMessageRequest, wire.TypeGetNextQueueMessageResponse, req, resp); err != nil {
		return nil, err
	}
	return resp.Message, nil
}

// Acknowledge settles a leased message: processed deletes it, otherwise it
// returns to the queue for another lease.
func (c *Connector) Acknowledge(ctx context.Context, queueID, messageID string, processed bool) error {
	req := &wire.QueueMessageProcessedRequest{
		RequestHeader: c.header(),
		QueueID:       queueID,
		MessageID:     messageID,
		Processed:     processed,
	}
	resp := &wire.QueueMessageProcessedResponse{}
	return c.call(ctx, wire.TypeQueueMessageProcessedRequest, wire.TypeQueueMessageProcessedResponse, req, resp)
}

// Messages pages through a queue's messages without leasing them.
func (c *Connector) Messages(ctx context.Context, queueID string, pageIndex, pageSize int) ([]wire.QueueMessageInfo, error) {
	req := &wire.GetQueueMessagesRequest{
		RequestHeader: c.header(),
		QueueID:       queueID,
		PageIndex:     pageIndex,
		PageSize:      pageSize,
	}
	resp := &wire.GetQueueMessagesResponse{}
	if err := c.call(ctx, wire.TypeGetQueueMessagesRequest, wire.TypeGetQueueMessagesResponse, req, resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}
