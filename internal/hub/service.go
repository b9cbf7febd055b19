// Package hub is the broker control plane: client and queue lifecycle,
// permission configuration, queue actions and the request router that
// front-ends every engine.
package hub

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/chris-fellows/cf-message-queue-sub000/internal/audit"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/domain/entity"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/domain/repository"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/netutil"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/notify"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/queue"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/security"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/transport"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/wire"
	"github.com/chris-fellows/cf-message-queue-sub000/pkg/logger"
)

// Secret key length bounds for new clients.
const (
	MinSecretKeyLength = 11
	MaxSecretKeyLength = 1024
)

// Default hub roles granted to a freshly added client so it can discover
// resources without a follow-up permission call.
var defaultClientRoles = []entity.Role{entity.RoleReadHubs, entity.RoleReadQueues}

// Config holds the hub's network identity and the queue engine tuning.
type Config struct {
	Address        string
	Port           int
	PortRangeStart int
	PortRangeEnd   int
	Engine         queue.Config

	// AdminName/AdminSecretKey seed the first admin client when the hub
	// starts with an empty client store. Without them a fresh hub would
	// have no principal able to issue administrative requests.
	AdminName      string
	AdminSecretKey string
}

// Repositories bundles the storage collaborators the hub needs. Content may
// be nil when payload offload is disabled.
type Repositories struct {
	Hubs     repository.HubRepository
	Clients  repository.ClientRepository
	Queues   repository.QueueRepository
	Messages repository.MessageRepository
	Content  repository.ContentStore
}

// Service is the hub control plane. The engines registry and the hub server
// handle are guarded independently of any queue's own lock.
type Service struct {
	cfg       Config
	repos     Repositories
	authority *security.Authority
	notifier  *notify.Notifier
	audit     audit.Sink
	logger    *logger.Logger

	// adminMu serializes control-plane mutations. Requests arrive on
	// concurrent transport goroutines, and AddClient, permission changes and
	// queue creation all read-modify-write the shared hub record; without
	// serialization concurrent updates drop each other's security items.
	adminMu sync.Mutex

	mu        sync.RWMutex
	hubID     string
	engines   map[string]*queue.Engine
	listeners map[string]*transport.Server
	server    *transport.Server
}

// NewService wires the control plane. Call Start to bring up listeners.
func NewService(
	cfg Config,
	repos Repositories,
	authority *security.Authority,
	notifier *notify.Notifier,
	sink audit.Sink,
	log *logger.Logger,
) *Service {
	return &Service{
		cfg:       cfg,
		repos:     repos,
		authority: authority,
		notifier:  notifier,
		audit:     sink,
		logger:    log,
		engines:   make(map[string]*queue.Engine),
		listeners: make(map[string]*transport.Server),
	}
}

// Start ensures the hub record exists, revives engines for stored queues
// and begins serving the hub endpoint.
func (s *Service) Start(ctx context.Context) error {
	if err := s.ensureHub(ctx); err != nil {
		return err
	}
	if err := s.bootstrapAdmin(ctx); err != nil {
		return err
	}

	queues, err := s.repos.Queues.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load queues: %w", err)
	}
	for _, q := range queues {
		if err := s.startEngine(q); err != nil {
			return err
		}
	}

	s.server = transport.NewServer(net.JoinHostPort(s.cfg.Address, strconv.Itoa(s.cfg.Port)), s.HandleEnvelope, s.logger)
	if err := s.server.Start(); err != nil {
		return err
	}

	s.logger.Info("Hub started",
		logger.String("address", s.server.Addr()),
		logger.Int("queues", len(queues)),
	)
	return nil
}

// Stop halts the hub endpoint, queue listeners and engines.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	listeners := s.listeners
	engines := s.engines
	s.listeners = make(map[string]*transport.Server)
	s.engines = make(map[string]*queue.Engine)
	s.mu.Unlock()

	if server != nil {
		if err := server.Stop(); err != nil {
			s.logger.Warn("Failed to stop hub listener", logger.Error(err))
		}
	}
	for id, ln := range listeners {
		if err := ln.Stop(); err != nil {
			s.logger.Warn("Failed to stop queue listener", logger.String("queue_id", id), logger.Error(err))
		}
	}
	for _, eng := range engines {
		eng.Stop()
	}
	s.logger.Info("Hub stopped")
	return nil
}

// Addr returns the hub endpoint address once started.
func (s *Service) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.server == nil {
		return ""
	}
	return s.server.Addr()
}

// ensureHub creates the hub record on first run.
func (s *Service) ensureHub(ctx context.Context) error {
	hubs, err := s.repos.Hubs.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load hub record: %w", err)
	}
	if len(hubs) > 0 {
		s.hubID = hubs[0].ID
		return nil
	}

	hub := &entity.Hub{
		ID:      uuid.NewString(),
		Address: net.JoinHostPort(s.cfg.Address, strconv.Itoa(s.cfg.Port)),
	}
	if err := s.repos.Hubs.Add(ctx, hub); err != nil {
		return fmt.Errorf("failed to create hub record: %w", err)
	}
	s.hubID = hub.ID
	s.logger.Info("Hub record created", logger.String("hub_id", hub.ID))
	return nil
}

// bootstrapAdmin seeds the first admin client on an empty client store.
func (s *Service) bootstrapAdmin(ctx context.Context) error {
	if s.cfg.AdminSecretKey == "" {
		return nil
	}
	existing, err := s.repos.Clients.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load clients: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	name := s.cfg.AdminName
	if name == "" {
		name = "admin"
	}
	admin := &entity.Client{
		ID:        uuid.NewString(),
		Name:      name,
		SecretKey: s.cfg.AdminSecretKey,
	}
	if err := s.repos.Clients.Add(ctx, admin); err != nil {
		return fmt.Errorf("failed to seed admin client: %w", err)
	}

	hub, err := s.hub(ctx)
	if err != nil {
		return err
	}
	hub.SecurityItems = entity.UpsertSecurityItem(hub.SecurityItems, admin.ID,
		[]entity.Role{entity.RoleAdmin, entity.RoleReadClients, entity.RoleReadHubs, entity.RoleReadQueues})
	if err := s.repos.Hubs.Update(ctx, hub); err != nil {
		return fmt.Errorf("failed to grant admin roles: %w", err)
	}

	s.audit.Record(audit.Event{Kind: audit.KindClientCreated, ClientID: admin.ID, Detail: name})
	s.logger.Info("Admin client seeded", logger.String("client_id", admin.ID))
	return nil
}

// AddClient registers a new client and grants it the default discovery
// roles on the hub.
func (s *Service) AddClient(ctx context.Context, name, secretKey string) (*entity.Client, error) {
	s.adminMu.Lock()
	defer s.adminMu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, entity.NewError(entity.ErrorInvalidParameters, "client name must not be empty")
	}
	if len(secretKey) < MinSecretKeyLength || len(secretKey) > MaxSecretKeyLength {
		return nil, entity.NewError(entity.ErrorInvalidParameters,
			"secret key must be between %d and %d characters", MinSecretKeyLength, MaxSecretKeyLength)
	}

	existing, err := s.repos.Clients.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load clients: %w", err)
	}
	for _, c := range existing {
		if strings.EqualFold(c.Name, name) {
			return nil, entity.NewError(entity.ErrorInvalidParameters, "client name %q is already in use", name)
		}
		if strings.EqualFold(c.SecretKey, secretKey) {
			return nil, entity.NewError(entity.ErrorInvalidParameters, "secret key is already in use")
		}
	}

	client := &entity.Client{
		ID:        uuid.NewString(),
		Name:      name,
		SecretKey: secretKey,
	}
	if err := s.repos.Clients.Add(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to persist client: %w", err)
	}

	hub, err := s.hub(ctx)
	if err != nil {
		return nil, err
	}
	hub.SecurityItems = entity.UpsertSecurityItem(hub.SecurityItems, client.ID, defaultClientRoles)
	if err := s.repos.Hubs.Update(ctx, hub); err != nil {
		return nil, fmt.Errorf("failed to grant default roles: %w", err)
	}

	s.audit.Record(audit.Event{Kind: audit.KindClientCreated, ClientID: client.ID, Detail: name})
	s.logger.Info("Client added", logger.String("client_id", client.ID), logger.String("name", name))
	return client, nil
}

// ConfigureClientPermissions edits the hub-scoped security item when
// queueID is empty, else the target queue's. An empty role list removes the
// item.
func (s *Service) ConfigureClientPermissions(ctx context.Context, clientID, queueID string, roles []entity.Role) error {
	s.adminMu.Lock()
	defer s.adminMu.Unlock()

	client, err := s.repos.Clients.GetByID(ctx, clientID)
	if err != nil {
		return fmt.Errorf("failed to load client: %w", err)
	}
	if client == nil {
		return entity.NewError(entity.ErrorInvalidParameters, "client %s does not exist", clientID)
	}

	if queueID == "" {
		if err := security.ValidateHubRoles(roles); err != nil {
			return err
		}
		hub, err := s.hub(ctx)
		if err != nil {
			return err
		}
		hub.SecurityItems = entity.UpsertSecurityItem(hub.SecurityItems, clientID, roles)
		if err := s.repos.Hubs.Update(ctx, hub); err != nil {
			return fmt.Errorf("failed to update hub permissions: %w", err)
		}
		return nil
	}

	if err := security.ValidateQueueRoles(roles); err != nil {
		return err
	}
	q, err := s.queueByID(ctx, queueID)
	if err != nil {
		return err
	}
	q.SecurityItems = entity.UpsertSecurityItem(q.SecurityItems, clientID, roles)
	if err := s.repos.Queues.Update(ctx, q); err != nil {
		return fmt.Errorf("failed to update queue permissions: %w", err)
	}
	return nil
}

// CreateQueue allocates a port, persists the queue and starts its engine
// and listener. Every existing hub admin is granted full queue roles.
func (s *Service) CreateQueue(ctx context.Context, name string, maxConcurrentLeases, maxSize int) (*entity.Queue, error) {
	s.adminMu.Lock()
	defer s.adminMu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, entity.NewError(entity.ErrorInvalidParameters, "queue name must not be empty")
	}
	if maxConcurrentLeases < 0 || maxSize < 0 {
		return nil, entity.NewError(entity.ErrorInvalidParameters, "queue limits must not be negative")
	}

	if existing, err := s.repos.Queues.GetByName(ctx, name); err != nil {
		return nil, fmt.Errorf("failed to check queue name: %w", err)
	} else if existing != nil {
		return nil, entity.NewError(entity.ErrorInvalidParameters, "queue name %q is already in use", name)
	}

	port, err := s.allocatePort(ctx)
	if err != nil {
		return nil, err
	}

	q := &entity.Queue{
		ID:                  uuid.NewString(),
		Name:                name,
		Address:             net.JoinHostPort(s.cfg.Address, strconv.Itoa(port)),
		Port:                port,
		MaxConcurrentLeases: maxConcurrentLeases,
		MaxSize:             maxSize,
	}

	hub, err := s.hub(ctx)
	if err != nil {
		return nil, err
	}
	fullRoles := []entity.Role{entity.RoleRead, entity.RoleWrite, entity.RoleSubscribe}
	for _, item := range hub.SecurityItems {
		if item.HasRole(entity.RoleAdmin) {
			q.SecurityItems = entity.UpsertSecurityItem(q.SecurityItems, item.ClientID, fullRoles)
		}
	}

	if err := s.repos.Queues.Add(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to persist queue: %w", err)
	}
	if err := s.startEngine(q); err != nil {
		return nil, err
	}

	s.audit.Record(audit.Event{Kind: audit.KindQueueCreated, QueueID: q.ID, Detail: name})
	s.logger.Info("Queue created",
		logger.String("queue_id", q.ID),
		logger.String("name", name),
		logger.Int("port", port),
	)
	return q, nil
}

// ExecuteQueueAction runs CLEAR or DELETE against the target queue.
func (s *Service) ExecuteQueueAction(ctx context.Context, queueID, action string) error {
	s.adminMu.Lock()
	defer s.adminMu.Unlock()

	eng, err := s.engine(queueID)
	if err != nil {
		return err
	}

	switch action {
	case wire.ActionClear:
		return eng.Clear(ctx)

	case wire.ActionDelete:
		// Unregister first so no new request can reach the engine while it
		// purges; the engine itself also rejects operations once closed.
		s.mu.Lock()
		listener := s.listeners[queueID]
		delete(s.listeners, queueID)
		delete(s.engines, queueID)
		s.mu.Unlock()

		if err := eng.Shutdown(ctx); err != nil {
			return err
		}

		if listener != nil {
			if err := listener.Stop(); err != nil {
				s.logger.Warn("Failed to stop queue listener", logger.String("queue_id", queueID), logger.Error(err))
			}
		}
		if err := s.repos.Queues.DeleteByID(ctx, queueID); err != nil {
			return fmt.Errorf("failed to delete queue record: %w", err)
		}
		s.logger.Info("Queue deleted", logger.String("queue_id", queueID))
		return nil

	default:
		return entity.NewError(entity.ErrorInvalidParameters, "unknown queue action %q", action)
	}
}

// Hubs lists hub records.
func (s *Service) Hubs(ctx context.Context) ([]*entity.Hub, error) {
	return s.repos.Hubs.GetAll(ctx)
}

// Queues lists queue records.
func (s *Service) Queues(ctx context.Context) ([]*entity.Queue, error) {
	return s.repos.Queues.GetAll(ctx)
}

// Clients lists client records.
func (s *Service) Clients(ctx context.Context) ([]*entity.Client, error) {
	return s.repos.Clients.GetAll(ctx)
}

// hub loads the hub record.
func (s *Service) hub(ctx context.Context) (*entity.Hub, error) {
	hub, err := s.repos.Hubs.GetByID(ctx, s.hubID)
	if err != nil {
		return nil, fmt.Errorf("failed to load hub record: %w", err)
	}
	if hub == nil {
		return nil, fmt.Errorf("hub record %s is missing", s.hubID)
	}
	return hub, nil
}

// queueByID resolves a queue record or reports it missing.
func (s *Service) queueByID(ctx context.Context, queueID string) (*entity.Queue, error) {
	q, err := s.repos.Queues.GetByID(ctx, queueID)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}
	if q == nil {
		return nil, entity.NewError(entity.ErrorQueueDoesNotExist, "queue %s does not exist", queueID)
	}
	return q, nil
}

// engine resolves a running engine or reports the queue missing.
func (s *Service) engine(queueID string) (*queue.Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	eng, ok := s.engines[queueID]
	if !ok {
		return nil, entity.NewError(entity.ErrorQueueDoesNotExist, "queue %s does not exist", queueID)
	}
	return eng, nil
}

// allocatePort picks a free port from the configured range, skipping ports
// already assigned to queues and ports bound on the host.
func (s *Service) allocatePort(ctx context.Context) (int, error) {
	queues, err := s.repos.Queues.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load queues for port allocation: %w", err)
	}
	taken := map[int]bool{s.cfg.Port: true}
	for _, q := range queues {
		taken[q.Port] = true
	}

	port, err := netutil.FreePort(s.cfg.PortRangeStart, s.cfg.PortRangeEnd, taken)
	if err != nil {
		s.logger.Error("Port allocation failed", logger.Error(err))
		return 0, entity.NewError(entity.ErrorUnknown, "no queue port available")
	}
	return port, nil
}

// startEngine launches the lease engine and the queue's own listener.
func (s *Service) startEngine(q *entity.Queue) error {
	eng := queue.NewEngine(q, s.repos.Messages, s.repos.Content, s.notifier, s.audit, s.cfg.Engine, s.logger)
	eng.Start()

	listener := transport.NewServer(net.JoinHostPort(s.cfg.Address, strconv.Itoa(q.Port)), s.HandleEnvelope, s.logger)
	if err := listener.Start(); err != nil {
		eng.Stop()
		return fmt.Errorf("failed to start queue listener: %w", err)
	}

	s.mu.Lock()
	s.engines[q.ID] = eng
	s.listeners[q.ID] = listener
	s.mu.Unlock()
	return nil
}
