// Package memory provides map-backed repositories. They are the default
// storage backend and the one the tests run against.
package memory

import (
	"github.com/chris-fellows/cf-message-queue-sub000/internal/domain/entity"
)

func cloneHub(h *entity.Hub) *entity.Hub {
	c := *h
	c.SecurityItems = cloneSecurityItems(h.SecurityItems)
	return &c
}

func cloneClient(cl *entity.Client) *entity.Client {
	c := *cl
	return &c
}

func cloneQueue(q *entity.Queue) *entity.Queue {
	c := *q
	c.SecurityItems = cloneSecurityItems(q.SecurityItems)
	return &c
}

func cloneMessage(m *entity.Message) *entity.Message {
	c := *m
	if m.Content != nil {
		c.Content = append([]byte(nil), m.Content...)
	}
	return &c
}

func cloneSecurityItems(items []entity.SecurityItem) []entity.SecurityItem {
	if items == nil {
		return nil
	}
	out := make([]entity.SecurityItem, len(items))
	for i, it := range items {
		out[i] = entity.SecurityItem{
			ClientID: it.ClientID,
			Roles:    append([]entity.Role(nil), it.Roles...),
		}
	}
	return out
}
