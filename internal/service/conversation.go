// Package service hosts conversations for the HTTP API. Each conversation
// lives in a session whose turns run one at a time.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-orchestrator/internal/contextmgr"
	"github.com/capitalize-ai/chat-orchestrator/internal/conversation"
	"github.com/capitalize-ai/chat-orchestrator/internal/function"
	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/pkg/logger"
	"github.com/capitalize-ai/chat-orchestrator/pkg/metrics"
)

// ErrConversationNotFound is returned for unknown, deleted or foreign conversations.
var ErrConversationNotFound = errors.New("conversation not found")

// Blueprint holds the collaborators shared by every hosted conversation.
type Blueprint struct {
	Agent             conversation.Responder
	ContextManagers   []contextmgr.Manager
	Generators        []function.Generator
	Cache             conversation.FunctionCache
	MaxAutoCallRounds int
	OpeningPrompt     string
}

// TranscriptStore persists transcripts outside the process.
// *nats.StreamManager implements it.
type TranscriptStore interface {
	PublishMessages(ctx context.Context, tenantID, conversationID string, messages ...model.Message) (uint64, error)
	LoadTranscript(ctx context.Context, tenantID, conversationID string) (model.MessageQueue, error)
}

// ConversationService handles conversation lifecycle operations.
type ConversationService struct {
	blueprint   Blueprint
	transcripts TranscriptStore
	observer    conversation.Observer
	logger      *logger.Logger

	sessions map[string]*session
	mu       sync.RWMutex
}

// NewConversationService creates a new conversation service. transcripts may
// be nil, in which case transcripts only live in memory.
func NewConversationService(bp Blueprint, transcripts TranscriptStore, observer conversation.Observer, log *logger.Logger) (*ConversationService, error) {
	if bp.Agent == nil {
		return nil, model.Validationf("conversation service needs an agent")
	}
	return &ConversationService{
		blueprint:   bp,
		transcripts: transcripts,
		observer:    observer,
		logger:      logger.OrNop(log).Named("service"),
		sessions:    make(map[string]*session),
	}, nil
}

// Create starts a new conversation.
func (s *ConversationService) Create(ctx context.Context, tenantID, userID string, req *model.CreateConversationRequest) (*model.ConversationInfo, error) {
	id := uuid.Must(uuid.NewV7()).String()

	prompt := req.OpeningPrompt
	if prompt == "" {
		prompt = s.blueprint.OpeningPrompt
	}

	conv, err := s.newConversation(id, tenantID, conversation.Options{
		OpeningPrompt: prompt,
		Context:       req.Context,
	})
	if err != nil {
		return nil, err
	}

	if s.transcripts != nil {
		if _, err := s.transcripts.PublishMessages(ctx, tenantID, id, conv.History()...); err != nil {
			return nil, fmt.Errorf("failed to publish opening message: %w", err)
		}
	}

	now := time.Now().UTC()
	sess := newSession(model.ConversationInfo{
		ID:        id,
		TenantID:  tenantID,
		UserID:    userID,
		Title:     req.Title,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  req.Metadata,
	}, conv)
	s.register(sess)

	metrics.ConversationsTotal.WithLabelValues(tenantID).Inc()
	s.logger.Info("conversation created",
		zap.String("conversation_id", id),
		zap.String("tenant_id", tenantID),
	)

	info := sess.snapshot()
	return &info, nil
}

// Get retrieves a conversation by ID.
func (s *ConversationService) Get(ctx context.Context, tenantID, conversationID string) (*model.ConversationInfo, error) {
	sess, err := s.session(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}
	info := sess.snapshot()
	return &info, nil
}

// List retrieves a tenant's conversations, oldest first.
func (s *ConversationService) List(ctx context.Context, tenantID string, limit, offset int) (*model.ListConversationsResponse, error) {
	s.mu.RLock()
	convs := make([]model.ConversationInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		info := sess.snapshot()
		if info.TenantID == tenantID {
			convs = append(convs, info)
		}
	}
	s.mu.RUnlock()

	sort.Slice(convs, func(i, j int) bool {
		if convs[i].CreatedAt.Equal(convs[j].CreatedAt) {
			return convs[i].ID < convs[j].ID
		}
		return convs[i].CreatedAt.Before(convs[j].CreatedAt)
	})

	total := len(convs)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &model.ListConversationsResponse{
		Conversations: convs[start:end],
		Total:         total,
		HasMore:       end < total,
	}, nil
}

// Update changes a conversation's title or metadata.
func (s *ConversationService) Update(ctx context.Context, tenantID, conversationID string, req *model.UpdateConversationRequest) (*model.ConversationInfo, error) {
	sess, err := s.session(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}

	sess.update(func(info *model.ConversationInfo) {
		if req.Title != "" {
			info.Title = req.Title
		}
		if req.Metadata != nil {
			info.Metadata = req.Metadata
		}
		info.UpdatedAt = time.Now().UTC()
	})

	info := sess.snapshot()
	return &info, nil
}

// Delete stops a conversation's session and forgets it. A persisted
// transcript is kept.
func (s *ConversationService) Delete(ctx context.Context, tenantID, conversationID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[conversationID]
	if !ok || sess.snapshot().TenantID != tenantID {
		s.mu.Unlock()
		return ErrConversationNotFound
	}
	delete(s.sessions, conversationID)
	s.mu.Unlock()

	sess.stop()
	metrics.SessionsActive.Dec()
	s.logger.Info("conversation deleted", zap.String("conversation_id", conversationID))
	return nil
}

// Close stops every session.
func (s *ConversationService) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.stop()
		metrics.SessionsActive.Dec()
	}
}

// session returns the live session, restoring it from the transcript store
// when the process does not host it.
func (s *ConversationService) session(ctx context.Context, tenantID, conversationID string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[conversationID]
	s.mu.RUnlock()

	if ok {
		if sess.snapshot().TenantID != tenantID {
			return nil, ErrConversationNotFound
		}
		return sess, nil
	}
	if s.transcripts == nil {
		return nil, ErrConversationNotFound
	}
	return s.restore(ctx, tenantID, conversationID)
}

func (s *ConversationService) restore(ctx context.Context, tenantID, conversationID string) (*session, error) {
	history, err := s.transcripts.LoadTranscript(ctx, tenantID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	if len(history) == 0 {
		return nil, ErrConversationNotFound
	}

	conv, err := s.newConversation(conversationID, tenantID, conversation.Options{History: history})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sess := newSession(model.ConversationInfo{
		ID:        conversationID,
		TenantID:  tenantID,
		CreatedAt: now,
		UpdatedAt: now,
	}, conv)

	s.mu.Lock()
	if existing, ok := s.sessions[conversationID]; ok {
		s.mu.Unlock()
		sess.stop()
		return existing, nil
	}
	s.sessions[conversationID] = sess
	s.mu.Unlock()
	metrics.SessionsActive.Inc()

	s.logger.Info("conversation restored",
		zap.String("conversation_id", conversationID),
		zap.Int("messages", len(history)),
	)
	return sess, nil
}

func (s *ConversationService) register(sess *session) {
	s.mu.Lock()
	s.sessions[sess.info.ID] = sess
	s.mu.Unlock()
	metrics.SessionsActive.Inc()
}

func (s *ConversationService) newConversation(id, tenantID string, opts conversation.Options) (*conversation.Conversation, error) {
	opts.ID = id
	opts.TenantID = tenantID
	opts.ContextManagers = s.blueprint.ContextManagers
	opts.Generators = s.blueprint.Generators
	opts.Cache = s.blueprint.Cache
	opts.MaxAutoCallRounds = s.blueprint.MaxAutoCallRounds
	opts.Observer = s.observer
	opts.Logger = s.logger
	return conversation.New(s.blueprint.Agent, opts)
}
