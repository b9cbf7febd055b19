// Package security resolves presented secret keys to client identities and
// evaluates role permissions against hub- or queue-scoped security items.
package security

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chris-fellows/cf-message-queue-sub000/internal/domain/entity"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/domain/repository"
	"github.com/chris-fellows/cf-message-queue-sub000/pkg/logger"
)

// DefaultRefreshInterval is how long the identity cache is trusted before a
// wholesale reload.
const DefaultRefreshInterval = 5 * time.Minute

// Authority owns the secret-key identity cache and role checks.
type Authority struct {
	clients         repository.ClientRepository
	logger          *logger.Logger
	refreshInterval time.Duration
	now             func() time.Time

	mu          sync.RWMutex
	bySecret    map[string]*entity.Client
	refreshedAt time.Time
}

// NewAuthority creates an authority over the client repository. A
// refreshInterval of 0 selects the default.
func NewAuthority(clients repository.ClientRepository, refreshInterval time.Duration, log *logger.Logger) *Authority {
	if refreshInterval <= 0 {
		refreshInterval = DefaultRefreshInterval
	}
	return &Authority{
		clients:         clients,
		logger:          log,
		refreshInterval: refreshInterval,
		now:             time.Now,
		bySecret:        make(map[string]*entity.Client),
	}
}

// Authenticate resolves a secret key to a client. A nil client with nil
// error means the key is unknown. The cache is refreshed wholesale when
// stale or empty; a lookup miss forces one refresh before the key is
// declared unknown, so clients created after the last refresh still
// authenticate.
func (a *Authority) Authenticate(ctx context.Context, secretKey string) (*entity.Client, error) {
	key := normalizeSecret(secretKey)
	if key == "" {
		return nil, nil
	}

	a.mu.RLock()
	stale := len(a.bySecret) == 0 || a.now().Sub(a.refreshedAt) >= a.refreshInterval
	client := a.bySecret[key]
	a.mu.RUnlock()

	if client != nil && !stale {
		return client, nil
	}

	if err := a.refresh(ctx); err != nil {
		return nil, err
	}

	a.mu.RLock()
	client = a.bySecret[key]
	a.mu.RUnlock()
	return client, nil
}

// Authorize reports whether the client holds the required role within the
// scope's security items.
func (a *Authority) Authorize(client *entity.Client, items []entity.SecurityItem, role entity.Role) bool {
	if client == nil {
		return false
	}
	item := entity.FindSecurityItem(items, client.ID)
	return item != nil && item.HasRole(role)
}

// ValidateHubRoles rejects role names outside the hub role set.
func ValidateHubRoles(roles []entity.Role) error {
	for _, r := range roles {
		if !entity.ValidHubRole(r) {
			return entity.NewError(entity.ErrorInvalidParameters, "role %q is not a hub role", r)
		}
	}
	return nil
}

// ValidateQueueRoles rejects role names outside the queue role set.
func ValidateQueueRoles(roles []entity.Role) error {
	for _, r := range roles {
		if !entity.ValidQueueRole(r) {
			return entity.NewError(entity.ErrorInvalidParameters, "role %q is not a queue role", r)
		}
	}
	return nil
}

// refresh reloads the whole secret-key index. The cache is never partially
// invalidated.
func (a *Authority) refresh(ctx context.Context) error {
	clients, err := a.clients.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load clients for identity cache: %w", err)
	}

	next := make(map[string]*entity.Client, len(clients))
	for _, c := range clients {
		next[normalizeSecret(c.SecretKey)] = c
	}

	a.mu.Lock()
	a.bySecret = next
	a.refreshedAt = a.now()
	a.mu.Unlock()

	a.logger.Debug("Identity cache refreshed", logger.Int("clients", len(next)))
	return nil
}

// normalizeSecret makes secret comparison case-insensitive.
func normalizeSecret(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
