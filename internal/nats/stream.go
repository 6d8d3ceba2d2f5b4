package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/pkg/metrics"
)

const (
	// StreamName is the name of the conversations stream.
	StreamName = "CONVERSATIONS"

	// SubjectPrefix is the prefix for all conversation subjects.
	SubjectPrefix = "conv"
)

// TranscriptEntry is one published transcript message.
type TranscriptEntry struct {
	TenantID       string        `json:"tenant_id"`
	ConversationID string        `json:"conversation_id"`
	Sequence       uint64        `json:"sequence,omitempty"`
	Message        model.Message `json:"message"`
	CreatedAt      time.Time     `json:"created_at"`
}

// StreamManager publishes transcripts and turn events to JetStream.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the conversations stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      365 * 24 * time.Hour,
		MaxBytes:    100 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Conversation transcripts and turn events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// MessageSubject returns the subject for a transcript message.
func MessageSubject(tenantID, conversationID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.%s.msg.%s", SubjectPrefix, tenantID, conversationID, role)
}

// EventSubject returns the subject for a turn event.
func EventSubject(tenantID, conversationID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s.event.%s", SubjectPrefix, tenantID, conversationID, eventType)
}

// ConversationFilter returns the filter subject for a conversation's transcript.
func ConversationFilter(tenantID, conversationID string) string {
	return fmt.Sprintf("%s.%s.%s.msg.>", SubjectPrefix, tenantID, conversationID)
}

// PublishMessages appends messages to a conversation's transcript in order.
func (m *StreamManager) PublishMessages(ctx context.Context, tenantID, conversationID string, messages ...model.Message) (uint64, error) {
	var last uint64
	for _, msg := range messages {
		entry := TranscriptEntry{
			TenantID:       tenantID,
			ConversationID: conversationID,
			Message:        msg,
			CreatedAt:      time.Now().UTC(),
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return last, fmt.Errorf("failed to marshal message: %w", err)
		}

		ack, err := m.client.JetStream().Publish(ctx, MessageSubject(tenantID, conversationID, msg.Role), data)
		metrics.RecordPublish("message", err)
		if err != nil {
			return last, fmt.Errorf("failed to publish message: %w", err)
		}
		last = ack.Sequence
	}
	return last, nil
}

// OnEvent publishes a turn event without waiting for the acknowledgement.
func (m *StreamManager) OnEvent(_ context.Context, event model.TurnEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		m.client.logger.Warn("failed to marshal turn event", zap.Error(err))
		return
	}
	_, err = m.client.JetStream().PublishAsync(EventSubject(event.TenantID, event.ConversationID, event.Type), data)
	metrics.RecordPublish("event", err)
	if err != nil {
		m.client.logger.Warn("failed to publish turn event", zap.String("event", string(event.Type)), zap.Error(err))
	}
}

// GetMessages replays a conversation's transcript starting after a sequence.
func (m *StreamManager) GetMessages(ctx context.Context, tenantID, conversationID string, afterSequence uint64, limit int) ([]TranscriptEntry, uint64, bool, error) {
	js := m.client.JetStream()

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: ConversationFilter(tenantID, conversationID),
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	}

	if afterSequence > 0 {
		consumerConfig.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		consumerConfig.OptStartSeq = afterSequence + 1
	}

	consumer, err := js.CreateConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to fetch messages: %w", err)
	}

	var entries []TranscriptEntry
	var lastSequence uint64
	for msg := range batch.Messages() {
		var entry TranscriptEntry
		if err := json.Unmarshal(msg.Data(), &entry); err != nil {
			m.client.logger.Warn("skipping malformed transcript entry", zap.Error(err))
			continue
		}

		meta, err := msg.Metadata()
		if err == nil {
			entry.Sequence = meta.Sequence.Stream
			lastSequence = meta.Sequence.Stream
		}

		entries = append(entries, entry)
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
		return nil, 0, false, fmt.Errorf("batch error: %w", err)
	}

	hasMore := len(entries) == limit
	return entries, lastSequence, hasMore, nil
}

// LoadTranscript replays a whole transcript as a message queue.
func (m *StreamManager) LoadTranscript(ctx context.Context, tenantID, conversationID string) (model.MessageQueue, error) {
	const pageSize = 256

	history := model.NewMessageQueue()
	var after uint64
	for {
		entries, last, more, err := m.GetMessages(ctx, tenantID, conversationID, after, pageSize)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			history.Append(e.Message)
		}
		if !more || last == 0 {
			return history, nil
		}
		after = last
	}
}
