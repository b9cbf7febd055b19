package entity

import "time"

// Hub is the broker process identity and the root of hub-scoped permissions.
type Hub struct {
	ID            string
	Address       string
	SecurityItems []SecurityItem
}

// Client is the identity principal behind every request. The secret key is
// globally unique, compared case-insensitively.
type Client struct {
	ID        string
	Name      string
	SecretKey string
}

// Queue is a named, independently addressable message channel.
// MaxConcurrentLeases and MaxSize use 0 to mean unlimited.
type Queue struct {
	ID                  string
	Name                string
	Address             string
	Port                int
	MaxConcurrentLeases int
	MaxSize             int
	SecurityItems       []SecurityItem
}

// FindSecurityItem returns the item for clientID, or nil.
func FindSecurityItem(items []SecurityItem, clientID string) *SecurityItem {
	for i := range items {
		if items[i].ClientID == clientID {
			return &items[i]
		}
	}
	return nil
}

// UpsertSecurityItem replaces the item for clientID, removing it entirely
// when the new role set is empty.
func UpsertSecurityItem(items []SecurityItem, clientID string, roles []Role) []SecurityItem {
	out := make([]SecurityItem, 0, len(items)+1)
	for _, it := range items {
		if it.ClientID != clientID {
			out = append(out, it)
		}
	}
	if len(roles) > 0 {
		out = append(out, SecurityItem{ClientID: clientID, Roles: roles})
	}
	return out
}

// Subscription tracks one client session's interest in a queue's events.
type Subscription struct {
	ID           string
	SessionID    string
	ClientID     string
	QueueID      string
	ReplyAddress string

	// SizeFrequency of 0 disables periodic size pushes; otherwise >= 10s.
	SizeFrequency  time.Duration
	LastSizeNotify time.Time

	PendingSizeNotification    bool
	PendingAddedNotification   bool
	ArmedWaitForAdded          bool
	PendingClearedNotification bool
}
