// Package audit is the append-only sink for queue and message lifecycle
// events.
package audit

import (
	"github.com/chris-fellows/cf-message-queue-sub000/pkg/logger"
)

// Event kinds recorded by the hub.
const (
	KindClientCreated       = "client.created"
	KindQueueCreated        = "queue.created"
	KindQueueCleared        = "queue.cleared"
	KindQueueDeleted        = "queue.deleted"
	KindMessageEnqueued     = "message.enqueued"
	KindMessageLeased       = "message.leased"
	KindMessageAcknowledged = "message.acknowledged"
	KindMessageRequeued     = "message.requeued"
	KindMessageExpired      = "message.expired"
	KindLeaseRecovered      = "lease.recovered"
)

// Event is one audit record.
type Event struct {
	Kind      string
	QueueID   string
	MessageID string
	ClientID  string
	Detail    string
}

// Sink appends audit events.
type Sink interface {
	Record(e Event)
}

// Log writes events as structured JSON lines through the application
// logger stack.
type Log struct {
	logger *logger.Logger
}

// NewLog creates a sink writing to the given output path ("stdout",
// "stderr" or a file).
func NewLog(outputPath string) (*Log, error) {
	l, err := logger.New(logger.Config{Level: "info", Format: "json", OutputPath: outputPath})
	if err != nil {
		return nil, err
	}
	return &Log{logger: l}, nil
}

func (s *Log) Record(e Event) {
	s.logger.Info("audit",
		logger.String("kind", e.Kind),
		logger.String("queue_id", e.QueueID),
		logger.String("message_id", e.MessageID),
		logger.String("client_id", e.ClientID),
		logger.String("detail", e.Detail),
	)
}

// Nop discards events. Used in tests.
type Nop struct{}

func (Nop) Record(Event) {}
