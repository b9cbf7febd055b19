package hub

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/chris-fellows/cf-message-queue-sub000/internal/domain/entity"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/wire"
	"github.com/chris-fellows/cf-message-queue-sub000/pkg/logger"
)

// HandleEnvelope is the request router: it demultiplexes an inbound
// envelope by message type, runs authentication, authorization and the
// handler, and always produces exactly one response envelope. Unexpected
// failures are logged in detail server-side and reported generically.
func (s *Service) HandleEnvelope(ctx context.Context, env *wire.Envelope, remoteAddr string) (resp *wire.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Request handler panicked",
				logger.String("type", string(env.Type)),
				logger.String("remote", remoteAddr),
				logger.String("panic", describePanic(r)),
			)
			resp = s.errorResponse(env, entity.NewError(entity.ErrorUnknown, "internal error"))
		}
	}()

	switch env.Type {
	case wire.TypeAddMessageHubClientRequest:
		return s.handleAddClient(ctx, env)
	case wire.TypeAddMessageQueueRequest:
		return s.handleAddQueue(ctx, env)
	case wire.TypeAddQueueMessageRequest:
		return s.handleAddQueueMessage(ctx, env)
	case wire.TypeConfigureMessageHubClientRequest:
		return s.handleConfigureClient(ctx, env)
	case wire.TypeExecuteMessageQueueActionRequest:
		return s.handleQueueAction(ctx, env)
	case wire.TypeGetMessageHubClientsRequest:
		return s.handleGetClients(ctx, env)
	case wire.TypeGetMessageHubsRequest:
		return s.handleGetHubs(ctx, env)
	case wire.TypeGetMessageQueuesRequest:
		return s.handleGetQueues(ctx, env)
	case wire.TypeGetNextQueueMessageRequest:
		return s.handleGetNextMessage(ctx, env)
	case wire.TypeGetQueueMessagesRequest:
		return s.handleGetQueueMessages(ctx, env)
	case wire.TypeMessageQueueSubscribeRequest:
		return s.handleSubscribe(ctx, env)
	case wire.TypeQueueMessageProcessedRequest:
		return s.handleMessageProcessed(ctx, env)
	default:
		s.logger.Warn("Unhandled message type",
			logger.String("type", string(env.Type)),
			logger.String("remote", remoteAddr),
		)
		return s.errorResponse(env, entity.NewError(entity.ErrorInvalidParameters,
			"unhandled message type %q", env.Type))
	}
}

func describePanic(r interface{}) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	if s, ok := r.(string); ok {
		return s
	}
	return "unknown panic"
}

// responseType maps a request type to its response type.
func responseType(req wire.MessageType) wire.MessageType {
	switch req {
	case wire.TypeAddMessageHubClientRequest:
		return wire.TypeAddMessageHubClientResponse
	case wire.TypeAddMessageQueueRequest:
		return wire.TypeAddMessageQueueResponse
	case wire.TypeAddQueueMessageRequest:
		return wire.TypeAddQueueMessageResponse
	case wire.TypeConfigureMessageHubClientRequest:
		return wire.TypeConfigureMessageHubClientResponse
	case wire.TypeExecuteMessageQueueActionRequest:
		return wire.TypeExecuteMessageQueueActionResponse
	case wire.TypeGetMessageHubClientsRequest:
		return wire.TypeGetMessageHubClientsResponse
	case wire.TypeGetMessageHubsRequest:
		return wire.TypeGetMessageHubsResponse
	case wire.TypeGetMessageQueuesRequest:
		return wire.TypeGetMessageQueuesResponse
	case wire.TypeGetNextQueueMessageRequest:
		return wire.TypeGetNextQueueMessageResponse
	case wire.TypeGetQueueMessagesRequest:
		return wire.TypeGetQueueMessagesResponse
	case wire.TypeMessageQueueSubscribeRequest:
		return wire.TypeMessageQueueSubscribeResponse
	case wire.TypeQueueMessageProcessedRequest:
		return wire.TypeQueueMessageProcessedResponse
	default:
		return req
	}
}

// header builds the standard single-part response header.
func header(env *wire.Envelope) wire.ResponseHeader {
	return wire.ResponseHeader{RequestID: env.ID, Sequence: 1}
}

// respond encodes a response body into an envelope correlated to the
// request.
func (s *Service) respond(env *wire.Envelope, body interface{}) *wire.Envelope {
	out, err := wire.NewEnvelope(uuid.NewString(), responseType(env.Type), body)
	if err != nil {
		s.logger.Error("Failed to encode response", logger.String("type", string(env.Type)), logger.Error(err))
		fallback := header(env)
		fallback.SetError(entity.NewError(entity.ErrorUnknown, "internal error"))
		out, _ = wire.NewEnvelope(uuid.NewString(), responseType(env.Type), &fallback)
	}
	return out
}

// errorResponse answers a request with only a coded header.
func (s *Service) errorResponse(env *wire.Envelope, err error) *wire.Envelope {
	h := header(env)
	h.SetError(err)
	if entity.CodeOf(err) == entity.ErrorUnknown {
		s.logger.Error("Request failed",
			logger.String("type", string(env.Type)),
			logger.Error(err),
		)
	}
	return s.respond(env, &h)
}

// authenticate resolves the caller or produces a PermissionDenied error.
func (s *Service) authenticate(ctx context.Context, secretKey string) (*entity.Client, error) {
	client, err := s.authority.Authenticate(ctx, secretKey)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, entity.NewError(entity.ErrorPermissionDenied, "unknown secret key")
	}
	return client, nil
}

// requireHubRole authenticates and checks a hub-scoped role.
func (s *Service) requireHubRole(ctx context.Context, secretKey string, role entity.Role) (*entity.Client, error) {
	client, err := s.authenticate(ctx, secretKey)
	if err != nil {
		return nil, err
	}
	hub, err := s.hub(ctx)
	if err != nil {
		return nil, err
	}
	if !s.authority.Authorize(client, hub.SecurityItems, role) {
		return nil, entity.NewError(entity.ErrorPermissionDenied,
			"client %s lacks hub role %s", client.Name, role)
	}
	return client, nil
}

// requireQueueRole authenticates and checks a queue-scoped role.
func (s *Service) requireQueueRole(ctx context.Context, secretKey, queueID string, role entity.Role) (*entity.Client, error) {
	client, err := s.authenticate(ctx, secretKey)
	if err != nil {
		return nil, err
	}
	q, err := s.queueByID(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if !s.authority.Authorize(client, q.SecurityItems, role) {
		return nil, entity.NewError(entity.ErrorPermissionDenied,
			"client %s lacks role %s on queue %s", client.Name, role, q.Name)
	}
	return client, nil
}

func (s *Service) handleAddClient(ctx context.Context, env *wire.Envelope) *wire.Envelope {
	var req wire.AddMessageHubClientRequest
	if err := env.DecodePayload(&req); err != nil {
		return s.errorResponse(env, entity.NewError(entity.ErrorInvalidParameters, "malformed request"))
	}
	if _, err := s.requireHubRole(ctx, req.SecurityKey, entity.RoleAdmin); err != nil {
		return s.errorResponse(env, err)
	}

	client, err := s.AddClient(ctx, req.Name, req.SecretKey)
	if err != nil {
		return s.errorResponse(env, err)
	}
	return s.respond(env, &wire.AddMessageHubClientResponse{
		ResponseHeader: header(env),
		ClientID:       client.ID,
	})
}

func (s *Service) handleAddQueue(ctx context.Context, env *wire.Envelope) *wire.Envelope {
	var req wire.AddMessageQueueRequest
	if err := env.DecodePayload(&req); err != nil {
		return s.errorResponse(env, entity.NewError(entity.ErrorInvalidParameters, "malformed request"))
	}
	if _, err := s.requireHubRole(ctx, req.SecurityKey, entity.RoleAdmin); err != nil {
		return s.errorResponse(env, err)
	}

	q, err := s.CreateQueue(ctx, req.Name, req.MaxConcurrentLeases, req.MaxSize)
	if err != nil {
		return s.errorResponse(env, err)
	}
	return s.respond(env, &wire.AddMessageQueueResponse{
		ResponseHeader: header(env),
		QueueID:        q.ID,
		Address:        q.Address,
	})
}

func (s *Service) handleAddQueueMessage(ctx context.Context, env *wire.Envelope) *wire.Envelope {
	var req wire.AddQueueMessageRequest
	if err := env.DecodePayload(&req); err != nil {
		return s.errorResponse(env, entity.NewError(entity.ErrorInvalidParameters, "malformed request"))
	}
	client, err := s.requireQueueRole(ctx, req.SecurityKey, req.QueueID, entity.RoleWrite)
	if err != nil {
		return s.errorResponse(env, err)
	}
	eng, err := s.engine(req.QueueID)
	if err != nil {
		return s.errorResponse(env, err)
	}

	msg, err := eng.Enqueue(ctx, client, req.TypeID, req.Name, req.Priority, req.ExpirySeconds, req.Content, req.ContentType)
	if err != nil {
		return s.errorResponse(env, err)
	}
	return s.respond(env, &wire.AddQueueMessageResponse{
		ResponseHeader: header(env),
		MessageID:      msg.ID,
	})
}

func (s *Service) handleConfigureClient(ctx context.Context, env *wire.Envelope) *wire.Envelope {
	var req wire.ConfigureMessageHubClientRequest
	if err := env.DecodePayload(&req); err != nil {
		return s.errorResponse(env, entity.NewError(entity.ErrorInvalidParameters, "malformed request"))
	}
	if _, err := s.requireHubRole(ctx, req.SecurityKey, entity.RoleAdmin); err != nil {
		return s.errorResponse(env, err)
	}

	roles := make([]entity.Role, 0, len(req.Roles))
	for _, r := range req.Roles {
		roles = append(roles, entity.Role(r))
	}
	if err := s.ConfigureClientPermissions(ctx, req.ClientID, req.QueueID, roles); err != nil {
		return s.errorResponse(env, err)
	}
	return s.respond(env, &wire.ConfigureMessageHubClientResponse{ResponseHeader: header(env)})
}

func (s *Service) handleQueueAction(ctx context.Context, env *wire.Envelope) *wire.Envelope {
	var req wire.ExecuteMessageQueueActionRequest
	if err := env.DecodePayload(&req); err != nil {
		return s.errorResponse(env, entity.NewError(entity.ErrorInvalidParameters, "malformed request"))
	}
	if _, err := s.requireHubRole(ctx, req.SecurityKey, entity.RoleAdmin); err != nil {
		return s.errorResponse(env, err)
	}

	if err := s.ExecuteQueueAction(ctx, req.QueueID, req.Action); err != nil {
		return s.errorResponse(env, err)
	}
	return s.respond(env, &wire.ExecuteMessageQueueActionResponse{ResponseHeader: header(env)})
}

func (s *Service) handleGetClients(ctx context.Context, env *wire.Envelope) *wire.Envelope {
	var req wire.GetMessageHubClientsRequest
	if err := env.DecodePayload(&req); err != nil {
		return s.errorResponse(env, entity.NewError(entity.ErrorInvalidParameters, "malformed request"))
	}
	if _, err := s.requireHubRole(ctx, req.SecurityKey, entity.RoleReadClients); err != nil {
		return s.errorResponse(env, err)
	}

	clients, err := s.Clients(ctx)
	if err != nil {
		return s.errorResponse(env, err)
	}
	infos := make([]wire.HubClientInfo, 0, len(clients))
	for _, c := range clients {
		infos = append(infos, wire.HubClientInfo{ID: c.ID, Name: c.Name})
	}
	return s.respond(env, &wire.GetMessageHubClientsResponse{
		ResponseHeader: header(env),
		Clients:        infos,
	})
}

func (s *Service) handleGetHubs(ctx context.Context, env *wire.Envelope) *wire.Envelope {
	var req wire.GetMessageHubsRequest
	if err := env.DecodePayload(&req); err != nil {
		return s.errorResponse(env, entity.NewError(entity.ErrorInvalidParameters, "malformed request"))
	}
	if _, err := s.requireHubRole(ctx, req.SecurityKey, entity.RoleReadHubs); err != nil {
		return s.errorResponse(env, err)
	}

	hubs, err := s.Hubs(ctx)
	if err != nil {
		return s.errorResponse(env, err)
	}
	infos := make([]wire.HubInfo, 0, len(hubs))
	for _, h := range hubs {
		infos = append(infos, wire.HubInfo{ID: h.ID, Address: h.Address})
	}
	return s.respond(env, &wire.GetMessageHubsResponse{
		ResponseHeader: header(env),
		Hubs:           infos,
	})
}

func (s *Service) handleGetQueues(ctx context.Context, env *wire.Envelope) *wire.Envelope {
	var req wire.GetMessageQueuesRequest
	if err := env.DecodePayload(&req); err != nil {
		return s.errorResponse(env, entity.NewError(entity.ErrorInvalidParameters, "malformed request"))
	}
	if _, err := s.requireHubRole(ctx, req.SecurityKey, entity.RoleReadQueues); err != nil {
		return s.errorResponse(env, err)
	}

	queues, err := s.Queues(ctx)
	if err != nil {
		return s.errorResponse(env, err)
	}
	infos := make([]wire.QueueInfo, 0, len(queues))
	for _, q := range queues {
		infos = append(infos, wire.QueueInfo{
			ID:                  q.ID,
			Name:                q.Name,
			Address:             q.Address,
			MaxConcurrentLeases: q.MaxConcurrentLeases,
			MaxSize:             q.MaxSize,
		})
	}
	return s.respond(env, &wire.GetMessageQueuesResponse{
		ResponseHeader: header(env),
		Queues:         infos,
	})
}

func (s *Service) handleGetNextMessage(ctx context.Context, env *wire.Envelope) *wire.Envelope {
	var req wire.GetNextQueueMessageRequest
	if err := env.DecodePayload(&req); err != nil {
		return s.errorResponse(env, entity.NewError(entity.ErrorInvalidParameters, "malformed request"))
	}
	client, err := s.requireQueueRole(ctx, req.SecurityKey, req.QueueID, entity.RoleRead)
	if err != nil {
		return s.errorResponse(env, err)
	}
	eng, err := s.engine(req.QueueID)
	if err != nil {
		return s.errorResponse(env, err)
	}

	msg, err := eng.LeaseNext(ctx, client, req.SessionID,
		time.Duration(req.MaxWaitMs)*time.Millisecond,
		time.Duration(req.LeaseTTLSeconds)*time.Second,
	)
	if err != nil {
		return s.errorResponse(env, err)
	}
	return s.respond(env, &wire.GetNextQueueMessageResponse{
		ResponseHeader: header(env),
		Message:        wire.ToQueueMessageInfo(msg),
	})
}

func (s *Service) handleGetQueueMessages(ctx context.Context, env *wire.Envelope) *wire.Envelope {
	var req wire.GetQueueMessagesRequest
	if err := env.DecodePayload(&req); err != nil {
		return s.errorResponse(env, entity.NewError(entity.ErrorInvalidParameters, "malformed request"))
	}
	if _, err := s.requireQueueRole(ctx, req.SecurityKey, req.QueueID, entity.RoleRead); err != nil {
		return s.errorResponse(env, err)
	}
	eng, err := s.engine(req.QueueID)
	if err != nil {
		return s.errorResponse(env, err)
	}

	msgs, err := eng.Messages(ctx, req.PageIndex, req.PageSize)
	if err != nil {
		return s.errorResponse(env, err)
	}
	infos := make([]wire.QueueMessageInfo, 0, len(msgs))
	for _, m := range msgs {
		infos = append(infos, *wire.ToQueueMessageInfo(m))
	}
	return s.respond(env, &wire.GetQueueMessagesResponse{
		ResponseHeader: header(env),
		Messages:       infos,
	})
}

func (s *Service) handleSubscribe(ctx context.Context, env *wire.Envelope) *wire.Envelope {
	var req wire.MessageQueueSubscribeRequest
	if err := env.DecodePayload(&req); err != nil {
		return s.errorResponse(env, entity.NewError(entity.ErrorInvalidParameters, "malformed request"))
	}
	client, err := s.requireQueueRole(ctx, req.SecurityKey, req.QueueID, entity.RoleSubscribe)
	if err != nil {
		return s.errorResponse(env, err)
	}

	switch req.Action {
	case wire.SubscribeActionSubscribe:
		if req.SessionID == "" {
			return s.errorResponse(env, entity.NewError(entity.ErrorInvalidParameters, "session id is required"))
		}
		if req.ReplyAddress == "" {
			return s.errorResponse(env, entity.NewError(entity.ErrorInvalidParameters, "reply address is required"))
		}
		subID, err := s.notifier.Subscribe(req.QueueID, req.SessionID, client.ID, req.ReplyAddress,
			time.Duration(req.SizeFrequencySecs)*time.Second)
		if err != nil {
			return s.errorResponse(env, err)
		}
		return s.respond(env, &wire.MessageQueueSubscribeResponse{
			ResponseHeader: header(env),
			SubscriptionID: subID,
		})

	case wire.SubscribeActionUnsubscribe:
		s.notifier.Unsubscribe(req.QueueID, req.SessionID)
		return s.respond(env, &wire.MessageQueueSubscribeResponse{ResponseHeader: header(env)})

	default:
		return s.errorResponse(env, entity.NewError(entity.ErrorInvalidParameters,
			"unknown subscribe action %q", req.Action))
	}
}

func (s *Service) handleMessageProcessed(ctx context.Context, env *wire.Envelope) *wire.Envelope {
	var req wire.QueueMessageProcessedRequest
	if err := env.DecodePayload(&req); err != nil {
		return s.errorResponse(env, entity.NewError(entity.ErrorInvalidParameters, "malformed request"))
	}
	client, err := s.requireQueueRole(ctx, req.SecurityKey, req.QueueID, entity.RoleRead)
	if err != nil {
		return s.errorResponse(env, err)
	}
	eng, err := s.engine(req.QueueID)
	if err != nil {
		return s.errorResponse(env, err)
	}

	if err := eng.Acknowledge(ctx, client, req.MessageID, req.Processed); err != nil {
		return s.errorResponse(env, err)
	}
	return s.respond(env, &wire.QueueMessageProcessedResponse{ResponseHeader: header(env)})
}
