// Package wire defines the typed envelopes exchanged between connectors and
// the hub, and the msgpack framing that carries them over TCP.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// MessageType tags an envelope with the request, response or notification
// kind it carries.
type MessageType string

const (
	TypeAddMessageHubClientRequest        MessageType = "AddMessageHubClientRequest"
	TypeAddMessageHubClientResponse       MessageType = "AddMessageHubClientResponse"
	TypeAddMessageQueueRequest            MessageType = "AddMessageQueueRequest"
	TypeAddMessageQueueResponse           MessageType = "AddMessageQueueResponse"
	TypeAddQueueMessageRequest            MessageType = "AddQueueMessageRequest"
	TypeAddQueueMessageResponse           MessageType = "AddQueueMessageResponse"
	TypeConfigureMessageHubClientRequest  MessageType = "ConfigureMessageHubClientRequest"
	TypeConfigureMessageHubClientResponse MessageType = "ConfigureMessageHubClientResponse"
	TypeExecuteMessageQueueActionRequest  MessageType = "ExecuteMessageQueueActionRequest"
	TypeExecuteMessageQueueActionResponse MessageType = "ExecuteMessageQueueActionResponse"
	TypeGetMessageHubClientsRequest       MessageType = "GetMessageHubClientsRequest"
	TypeGetMessageHubClientsResponse      MessageType = "GetMessageHubClientsResponse"
	TypeGetMessageHubsRequest             MessageType = "GetMessageHubsRequest"
	TypeGetMessageHubsResponse            MessageType = "GetMessageHubsResponse"
	TypeGetMessageQueuesRequest           MessageType = "GetMessageQueuesRequest"
	TypeGetMessageQueuesResponse          MessageType = "GetMessageQueuesResponse"
	TypeGetNextQueueMessageRequest        MessageType = "GetNextQueueMessageRequest"
	TypeGetNextQueueMessageResponse       MessageType = "GetNextQueueMessageResponse"
	TypeGetQueueMessagesRequest           MessageType = "GetQueueMessagesRequest"
	TypeGetQueueMessagesResponse          MessageType = "GetQueueMessagesResponse"
	TypeMessageQueueSubscribeRequest      MessageType = "MessageQueueSubscribeRequest"
	TypeMessageQueueSubscribeResponse     MessageType = "MessageQueueSubscribeResponse"
	TypeQueueMessageProcessedRequest      MessageType = "QueueMessageProcessedRequest"
	TypeQueueMessageProcessedResponse     MessageType = "QueueMessageProcessedResponse"
	TypeMessageQueueNotification          MessageType = "MessageQueueNotification"
)

// Envelope is the unit the transport moves: a correlation id, a type tag and
// an opaque msgpack payload.
type Envelope struct {
	ID      string      `msgpack:"id"`
	Type    MessageType `msgpack:"type"`
	Payload []byte      `msgpack:"payload"`
}

// NewEnvelope encodes body into a fresh envelope.
func NewEnvelope(id string, typ MessageType, body interface{}) (*Envelope, error) {
	payload, err := msgpack.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", typ, err)
	}
	return &Envelope{ID: id, Type: typ, Payload: payload}, nil
}

// DecodePayload decodes the envelope payload into out.
func (e *Envelope) DecodePayload(out interface{}) error {
	if err := msgpack.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// maxFrameSize bounds a single envelope on the wire.
const maxFrameSize = 64 << 20

// WriteEnvelope writes one length-prefixed envelope frame.
func WriteEnvelope(w io.Writer, env *Envelope) error {
	body, err := msgpack.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	if len(body) > maxFrameSize {
		return fmt.Errorf("envelope of %d bytes exceeds frame limit", len(body))
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("failed to write frame prefix: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("failed to write frame body: %w", err)
	}
	return nil
}

// ReadEnvelope reads one length-prefixed envelope frame.
func ReadEnvelope(r io.Reader) (*Envelope, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(prefix[:])
	if size > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("failed to read frame body: %w", err)
	}

	env := &Envelope{}
	if err := msgpack.Unmarshal(body, env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return env, nil
}
