package wire

import (
	"errors"
	"time"

	"github.com/chris-fellows/cf-message-queue-sub000/internal/domain/entity"
)

// Queue action names accepted by ExecuteMessageQueueAction.
const (
	ActionClear  = "CLEAR"
	ActionDelete = "DELETE"
)

// Subscribe action names.
const (
	SubscribeActionSubscribe   = "SUBSCRIBE"
	SubscribeActionUnsubscribe = "UNSUBSCRIBE"
)

// Notification event names.
const (
	EventMessageAdded = "MESSAGE_ADDED"
	EventQueueCleared = "QUEUE_CLEARED"
	EventQueueSize    = "QUEUE_SIZE"
)

// RequestHeader rides at the front of every request body.
type RequestHeader struct {
	SecurityKey string `msgpack:"security_key"`
	SessionID   string `msgpack:"session_id"`
}

// ResponseHeader rides at the front of every response body. RequestID echoes
// the request envelope id; IsMore is reserved for multi-part responses.
type ResponseHeader struct {
	RequestID    string           `msgpack:"request_id"`
	Sequence     int              `msgpack:"sequence"`
	IsMore       bool             `msgpack:"is_more"`
	ErrorCode    entity.ErrorCode `msgpack:"error_code"`
	ErrorMessage string           `msgpack:"error_message"`
}

// SetError stamps the header with err's code and message.
func (h *ResponseHeader) SetError(err error) {
	if err == nil {
		return
	}
	h.ErrorCode = entity.CodeOf(err)
	if h.ErrorCode == entity.ErrorUnknown {
		// Detail stays server-side for unexpected failures.
		h.ErrorMessage = "internal error"
		return
	}
	var de *entity.Error
	if errors.As(err, &de) {
		h.ErrorMessage = de.Message
		return
	}
	h.ErrorMessage = err.Error()
}

// Err converts a received header back into a coded error, or nil.
func (h *ResponseHeader) Err() error {
	if h.ErrorCode == entity.ErrorNone {
		return nil
	}
	return &entity.Error{Code: h.ErrorCode, Message: h.ErrorMessage}
}

type AddMessageHubClientRequest struct {
	RequestHeader
	Name      string `msgpack:"name"`
	SecretKey string `msgpack:"secret_key"`
}

type AddMessageHubClientResponse struct {
	ResponseHeader
	ClientID string `msgpack:"client_id"`
}

type AddMessageQueueRequest struct {
	RequestHeader
	Name                string `msgpack:"name"`
	MaxConcurrentLeases int    `msgpack:"max_concurrent_leases"`
	MaxSize             int    `msgpack:"max_size"`
}

type AddMessageQueueResponse struct {
	ResponseHeader
	QueueID string `msgpack:"queue_id"`
	Address string `msgpack:"address"`
}

type AddQueueMessageRequest struct {
	RequestHeader
	QueueID       string `msgpack:"queue_id"`
	TypeID        string `msgpack:"type_id"`
	Name          string `msgpack:"name"`
	Priority      int    `msgpack:"priority"`
	ExpirySeconds int    `msgpack:"expiry_seconds"`
	ContentType   string `msgpack:"content_type"`
	Content       []byte `msgpack:"content"`
}

type AddQueueMessageResponse struct {
	ResponseHeader
	MessageID string `msgpack:"message_id"`
}

// ConfigureMessageHubClientRequest edits the hub-scoped security item when
// QueueID is empty, else the queue-scoped one. An empty role list removes
// the item.
type ConfigureMessageHubClientRequest struct {
	RequestHeader
	ClientID string   `msgpack:"client_id"`
	QueueID  string   `msgpack:"queue_id"`
	Roles    []string `msgpack:"roles"`
}

type ConfigureMessageHubClientResponse struct {
	ResponseHeader
}

type ExecuteMessageQueueActionRequest struct {
	RequestHeader
	QueueID string `msgpack:"queue_id"`
	Action  string `msgpack:"action"`
}

type ExecuteMessageQueueActionResponse struct {
	ResponseHeader
}

type GetMessageHubClientsRequest struct {
	RequestHeader
}

type GetMessageHubClientsResponse struct {
	ResponseHeader
	Clients []HubClientInfo `msgpack:"clients"`
}

type GetMessageHubsRequest struct {
	RequestHeader
}

type GetMessageHubsResponse struct {
	ResponseHeader
	Hubs []HubInfo `msgpack:"hubs"`
}

type GetMessageQueuesRequest struct {
	RequestHeader
}

type GetMessageQueuesResponse struct {
	ResponseHeader
	Queues []QueueInfo `msgpack:"queues"`
}

type GetNextQueueMessageRequest struct {
	RequestHeader
	QueueID         string `msgpack:"queue_id"`
	MaxWaitMs       int64  `msgpack:"max_wait_ms"`
	LeaseTTLSeconds int    `msgpack:"lease_ttl_seconds"`
}

// GetNextQueueMessageResponse carries a nil Message when the wait elapsed
// with nothing to lease.
type GetNextQueueMessageResponse struct {
	ResponseHeader
	Message *QueueMessageInfo `msgpack:"message"`
}

type GetQueueMessagesRequest struct {
	RequestHeader
	QueueID   string `msgpack:"queue_id"`
	PageIndex int    `msgpack:"page_index"`
	PageSize  int    `msgpack:"page_size"`
}

type GetQueueMessagesResponse struct {
	ResponseHeader
	Messages []QueueMessageInfo `msgpack:"messages"`
}

type MessageQueueSubscribeRequest struct {
	RequestHeader
	QueueID           string `msgpack:"queue_id"`
	Action            string `msgpack:"action"`
	SizeFrequencySecs int    `msgpack:"size_frequency_secs"`
	ReplyAddress      string `msgpack:"reply_address"`
}

type MessageQueueSubscribeResponse struct {
	ResponseHeader
	SubscriptionID string `msgpack:"subscription_id"`
}

type QueueMessageProcessedRequest struct {
	RequestHeader
	QueueID   string `msgpack:"queue_id"`
	MessageID string `msgpack:"message_id"`
	Processed bool   `msgpack:"processed"`
}

type QueueMessageProcessedResponse struct {
	ResponseHeader
}

// MessageQueueNotification is the unsolicited push sent to a subscription's
// reply address.
type MessageQueueNotification struct {
	QueueID   string `msgpack:"queue_id"`
	EventName string `msgpack:"event_name"`
	QueueSize int    `msgpack:"queue_size"`
}

// HubInfo is the listing DTO for hubs.
type HubInfo struct {
	ID      string `msgpack:"id"`
	Address string `msgpack:"address"`
}

// HubClientInfo is the listing DTO for clients. Secret keys never leave the
// hub.
type HubClientInfo struct {
	ID   string `msgpack:"id"`
	Name string `msgpack:"name"`
}

// QueueInfo is the listing DTO for queues.
type QueueInfo struct {
	ID                  string `msgpack:"id"`
	Name                string `msgpack:"name"`
	Address             string `msgpack:"address"`
	MaxConcurrentLeases int    `msgpack:"max_concurrent_leases"`
	MaxSize             int    `msgpack:"max_size"`
}

// QueueMessageInfo is the wire form of a queue message.
type QueueMessageInfo struct {
	ID             string    `msgpack:"id"`
	TypeID         string    `msgpack:"type_id"`
	Name           string    `msgpack:"name"`
	Priority       int       `msgpack:"priority"`
	SenderClientID string    `msgpack:"sender_client_id"`
	QueueID        string    `msgpack:"queue_id"`
	CreatedAt      time.Time `msgpack:"created_at"`
	Status         string    `msgpack:"status"`
	LeaseHolder    string    `msgpack:"lease_holder"`
	ExpiresAt      time.Time `msgpack:"expires_at"`
	ContentType    string    `msgpack:"content_type"`
	Content        []byte    `msgpack:"content"`
}

// ToQueueMessageInfo converts a domain message for the wire.
func ToQueueMessageInfo(m *entity.Message) *QueueMessageInfo {
	if m == nil {
		return nil
	}
	return &QueueMessageInfo{
		ID:             m.ID,
		TypeID:         m.TypeID,
		Name:           m.Name,
		Priority:       m.Priority,
		SenderClientID: m.SenderClientID,
		QueueID:        m.QueueID,
		CreatedAt:      m.CreatedAt,
		Status:         m.Status.String(),
		LeaseHolder:    m.LeaseHolderClientID,
		ExpiresAt:      m.ExpiresAt,
		ContentType:    m.ContentType,
		Content:        m.Content,
	}
}
