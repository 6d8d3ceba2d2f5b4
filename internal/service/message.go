package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-orchestrator/internal/conversation"
	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/pkg/logger"
	"github.com/capitalize-ai/chat-orchestrator/pkg/metrics"
)

var tracer = otel.Tracer("conversation")

// Turn outcomes recorded in metrics and spans.
const (
	outcomeSuccess = "success"
	outcomePending = "pending"
	outcomeLimit   = "limit"
	outcomeError   = "error"
)

// MessageService runs turns against hosted conversations.
type MessageService struct {
	conversations *ConversationService
	logger        *logger.Logger
}

// NewMessageService creates a new message service.
func NewMessageService(conversations *ConversationService, log *logger.Logger) *MessageService {
	return &MessageService{
		conversations: conversations,
		logger:        logger.OrNop(log).Named("messages"),
	}
}

// Send runs a turn for a user message.
func (s *MessageService) Send(ctx context.Context, tenantID, conversationID string, req *model.SendMessageRequest) (*model.TurnResponse, error) {
	return s.runTurn(ctx, tenantID, conversationID, "send", func(ctx context.Context, conv *conversation.Conversation) (model.Message, error) {
		return conv.Ask(ctx, req.Content)
	})
}

// Approve answers the conversation's pending function request.
func (s *MessageService) Approve(ctx context.Context, tenantID, conversationID string, req *model.ApproveRequest) (*model.TurnResponse, error) {
	return s.runTurn(ctx, tenantID, conversationID, "approve", func(ctx context.Context, conv *conversation.Conversation) (model.Message, error) {
		return conv.Approve(ctx, req.ApprovedIDs...)
	})
}

// GetMessages returns a conversation's transcript.
func (s *MessageService) GetMessages(ctx context.Context, tenantID, conversationID string) (*model.ListMessagesResponse, error) {
	sess, err := s.conversations.session(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}

	var history model.MessageQueue
	if err := sess.do(ctx, func() { history = sess.conv.History() }); err != nil {
		return nil, err
	}

	return &model.ListMessagesResponse{
		Messages:   history,
		TokenCount: history.TokenCount(),
	}, nil
}

type turnFunc func(ctx context.Context, conv *conversation.Conversation) (model.Message, error)

func (s *MessageService) runTurn(ctx context.Context, tenantID, conversationID, kind string, fn turnFunc) (*model.TurnResponse, error) {
	sess, err := s.conversations.session(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "conversation."+kind, trace.WithAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.String("tenant.id", tenantID),
	))
	defer span.End()

	var (
		response model.Message
		turnErr  error
		outcome  string
	)
	start := time.Now()
	err = sess.do(ctx, func() {
		before := len(sess.conv.History())
		response, turnErr = fn(ctx, sess.conv)

		var added model.MessageQueue
		if hist := sess.conv.History(); len(hist) > before {
			added = hist[before:]
		}
		sess.refresh()
		sess.update(func(info *model.ConversationInfo) { info.UpdatedAt = time.Now().UTC() })

		outcome = turnOutcome(response, turnErr)
		metrics.RecordTurn(outcome, time.Since(start).Seconds())
		span.SetAttributes(
			attribute.String("turn.outcome", outcome),
			attribute.Int("turn.messages", len(added)),
			attribute.Int("turn.pending", len(response.ApprovalsRequired())),
		)
		s.persist(context.WithoutCancel(ctx), tenantID, conversationID, added)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if outcome == outcomeError {
		span.RecordError(turnErr)
		span.SetStatus(codes.Error, turnErr.Error())
		s.logger.Warn("turn failed",
			zap.String("conversation_id", conversationID),
			zap.String("kind", kind),
			zap.Error(turnErr),
		)
		return nil, turnErr
	}

	return &model.TurnResponse{
		Message:      response,
		Pending:      response.ApprovalsRequired(),
		LimitReached: outcome == outcomeLimit,
	}, nil
}

func turnOutcome(response model.Message, err error) string {
	switch {
	case errors.Is(err, conversation.ErrAutoCallLimit):
		return outcomeLimit
	case err != nil:
		return outcomeError
	case len(response.ApprovalsRequired()) > 0:
		return outcomePending
	}
	return outcomeSuccess
}

// persist publishes the messages a turn committed. The turn has already
// happened, so failures are logged rather than returned.
func (s *MessageService) persist(ctx context.Context, tenantID, conversationID string, added model.MessageQueue) {
	for _, m := range added {
		metrics.MessagesTotal.WithLabelValues(tenantID, string(m.Role)).Inc()
	}
	if s.conversations.transcripts == nil || len(added) == 0 {
		return
	}
	if _, err := s.conversations.transcripts.PublishMessages(ctx, tenantID, conversationID, added...); err != nil {
		s.logger.Warn("failed to persist transcript",
			zap.String("conversation_id", conversationID),
			zap.Int("messages", len(added)),
			zap.Error(err),
		)
	}
}
