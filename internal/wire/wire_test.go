package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chris-fellows/cf-message-queue-sub000/internal/domain/entity"
)

func TestEnvelope_FrameRoundTrip(t *testing.T) {
	env, err := NewEnvelope("req-1", TypeAddQueueMessageRequest, &AddQueueMessageRequest{
		RequestHeader: RequestHeader{SecurityKey: "key", SessionID: "session"},
		QueueID:       "q1",
		TypeID:        "order-created",
		Content:       []byte("payload"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteEnvelope(&buf, env); err != nil {
		t.Fatalf("failed to write envelope: %v", err)
	}

	got, err := ReadEnvelope(&buf)
	if err != nil {
		t.Fatalf("failed to read envelope: %v", err)
	}
	if got.ID != "req-1" || got.Type != TypeAddQueueMessageRequest {
		t.Fatalf("unexpected envelope %s/%s", got.ID, got.Type)
	}

	var req AddQueueMessageRequest
	if err := got.DecodePayload(&req); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if req.SecurityKey != "key" || req.QueueID != "q1" || string(req.Content) != "payload" {
		t.Errorf("payload did not survive the round trip: %+v", req)
	}
}

func TestReadEnvelope_RejectsOversizeFrame(t *testing.T) {
	var buf bytes.Buffer
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], maxFrameSize+1)
	buf.Write(prefix[:])

	if _, err := ReadEnvelope(&buf); err == nil {
		t.Fatal("expected oversize frame to be rejected")
	}
}

// Failed requests come back as a bare ResponseHeader, so header fields must
// land in the same positions whether or not the caller decodes into the
// typed response struct.
func TestResponseHeader_DecodesIntoTypedResponse(t *testing.T) {
	header := &ResponseHeader{RequestID: "req-9"}
	header.SetError(entity.NewError(entity.ErrorQueueDoesNotExist, "no such queue"))

	raw, err := msgpack.Marshal(header)
	if err != nil {
		t.Fatalf("failed to encode header: %v", err)
	}

	var resp AddQueueMessageResponse
	if err := msgpack.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("failed to decode into typed response: %v", err)
	}
	if resp.RequestID != "req-9" {
		t.Errorf("expected request id req-9, got %q", resp.RequestID)
	}
	if entity.CodeOf(resp.Err()) != entity.ErrorQueueDoesNotExist {
		t.Errorf("expected queue-does-not-exist error, got %v", resp.Err())
	}
	if resp.MessageID != "" {
		t.Errorf("expected empty message id, got %q", resp.MessageID)
	}
}

func TestResponseHeader_SetError(t *testing.T) {
	var h ResponseHeader
	h.SetError(nil)
	if h.ErrorCode != entity.ErrorNone {
		t.Errorf("expected no error code, got %s", h.ErrorCode)
	}

	h = ResponseHeader{}
	h.SetError(entity.NewError(entity.ErrorPermissionDenied, "missing role Write"))
	if h.ErrorCode != entity.ErrorPermissionDenied || h.ErrorMessage != "missing role Write" {
		t.Errorf("expected coded error to keep its message, got %s/%q", h.ErrorCode, h.ErrorMessage)
	}

	h = ResponseHeader{}
	h.SetError(errors.New("tarantool connection reset"))
	if h.ErrorCode != entity.ErrorUnknown {
		t.Errorf("expected unknown error code, got %s", h.ErrorCode)
	}
	if h.ErrorMessage != "internal error" {
		t.Errorf("expected internal detail to be masked, got %q", h.ErrorMessage)
	}
}

func TestResponseHeader_Err(t *testing.T) {
	h := ResponseHeader{}
	if err := h.Err(); err != nil {
		t.Fatalf("expected nil error for clean header, got %v", err)
	}

	h = ResponseHeader{ErrorCode: entity.ErrorInvalidParameters, ErrorMessage: "priority out of range"}
	err := h.Err()
	if entity.CodeOf(err) != entity.ErrorInvalidParameters {
		t.Fatalf("expected invalid-parameters error, got %v", err)
	}
	if err.Error() == "" {
		t.Error("expected a non-empty error message")
	}
}
