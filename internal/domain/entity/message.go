package entity

import "time"

// MessageStatus is the lease state of a queued message.
type MessageStatus uint8

const (
	StatusPending MessageStatus = iota
	StatusLeased
)

func (s MessageStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusLeased:
		return "leased"
	default:
		return "unknown"
	}
}

// Priority bounds: 0 is the highest priority, 100 the lowest.
const (
	PriorityHighest = 0
	PriorityDefault = 50
	PriorityLowest  = 100
)

// Message is a queued message. While Status is StatusLeased the holder and
// lease fields are set; a pending message has them cleared.
type Message struct {
	ID             string
	TypeID         string
	Name           string
	Priority       int
	SenderClientID string
	QueueID        string
	CreatedAt      time.Time

	Status              MessageStatus
	LeaseHolderClientID string
	LeaseStartAt        time.Time
	LeaseTTL            time.Duration

	// ExpiresAt zero means the message never expires.
	ExpiresAt time.Time

	Content     []byte
	ContentType string

	// ObjectName is set when the content lives in the blob store instead
	// of the message record.
	ObjectName string
}

// Expired reports whether the message's own expiry has passed.
func (m *Message) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && now.After(m.ExpiresAt)
}

// LeaseTimedOut reports whether a leased message's lease TTL has elapsed.
func (m *Message) LeaseTimedOut(now time.Time) bool {
	return m.Status == StatusLeased && now.After(m.LeaseStartAt.Add(m.LeaseTTL))
}

// ResetLease reverts the message to pending and clears the holder fields.
func (m *Message) ResetLease() {
	m.Status = StatusPending
	m.LeaseHolderClientID = ""
	m.LeaseStartAt = time.Time{}
	m.LeaseTTL = 0
}
