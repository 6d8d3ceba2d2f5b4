// Package conversation runs the turn protocol: context updates, function
// generation, the agent request and function-request resolution, repeated
// while every requested function can run without approval.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-orchestrator/internal/contextmgr"
	"github.com/capitalize-ai/chat-orchestrator/internal/function"
	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/pkg/logger"
)

const (
	// DefaultOpeningPrompt seeds new conversations.
	DefaultOpeningPrompt = "Hello!"

	// DefaultMaxAutoCallRounds bounds the follow-up requests of one turn.
	DefaultMaxAutoCallRounds = 10
)

var (
	// ErrAutoCallLimit is returned when a turn keeps requesting auto-call
	// functions past the configured round limit.
	ErrAutoCallLimit = errors.New("auto-call round limit reached")

	// ErrNoPendingRequest is returned by Approve when nothing awaits approval.
	ErrNoPendingRequest = errors.New("no pending function request")
)

// Responder produces the next message of a turn. *agent.Agent satisfies it.
type Responder interface {
	GetResponseMessage(ctx context.Context, input, history model.MessageQueue, c model.Context, candidates []model.FunctionItem) (model.Message, error)
	Tokenizer() model.Tokenizer
	Name() string
}

// FunctionCache stores generated functions by generator cache key.
type FunctionCache interface {
	Get(ctx context.Context, key string) ([]model.FunctionItem, bool, error)
	Set(ctx context.Context, key string, functions []model.FunctionItem) error
}

// Options configures a Conversation.
type Options struct {
	// ID defaults to a random UUID.
	ID       string
	TenantID string

	// OpeningPrompt seeds the history as an agent message when History is
	// nil. Defaults to DefaultOpeningPrompt.
	OpeningPrompt string

	// History and Context restore a previous conversation.
	History model.MessageQueue
	Context model.Context

	ContextManagers []contextmgr.Manager
	Generators      []function.Generator
	Cache           FunctionCache

	// MaxAutoCallRounds bounds auto-call follow-ups per turn. Zero means
	// DefaultMaxAutoCallRounds.
	MaxAutoCallRounds int

	Observer Observer
	Logger   *logger.Logger
}

// Conversation owns a dialogue's history and context. It is not safe for
// concurrent use; callers serialize turns.
type Conversation struct {
	id        string
	tenantID  string
	agent     Responder
	managers  []contextmgr.Manager
	gens      []function.Generator
	cache     FunctionCache
	maxRounds int
	observer  Observer
	log       *logger.Logger

	history model.MessageQueue
	context model.Context

	// pending is the request message awaiting approval, with the results
	// of its auto-call requests keyed by request id.
	pending *pendingRequest
}

type pendingRequest struct {
	message  model.Message
	executed map[string]model.Message
}

// New validates opts and creates a Conversation.
func New(agent Responder, opts Options) (*Conversation, error) {
	if agent == nil {
		return nil, model.Validationf("conversation needs an agent")
	}
	if opts.MaxAutoCallRounds < 0 {
		return nil, model.Validationf("max auto-call rounds must not be negative, got %d", opts.MaxAutoCallRounds)
	}
	for i, m := range opts.ContextManagers {
		if m == nil {
			return nil, model.Validationf("context manager %d is nil", i)
		}
	}
	for i, g := range opts.Generators {
		if g == nil {
			return nil, model.Validationf("function generator %d is nil", i)
		}
	}

	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}
	if opts.MaxAutoCallRounds == 0 {
		opts.MaxAutoCallRounds = DefaultMaxAutoCallRounds
	}

	history := opts.History.Copy()
	if opts.History == nil {
		prompt := opts.OpeningPrompt
		if prompt == "" {
			prompt = DefaultOpeningPrompt
		}
		history = model.NewMessageQueue(model.NewAgentMessage(agent.Tokenizer(), prompt, model.WithAgentName(agent.Name())))
	}

	c := model.Context{}
	if opts.Context != nil {
		c = opts.Context.Clone()
	}

	observer := opts.Observer
	if observer == nil {
		observer = Observers{}
	}

	return &Conversation{
		id:        opts.ID,
		tenantID:  opts.TenantID,
		agent:     agent,
		managers:  append([]contextmgr.Manager(nil), opts.ContextManagers...),
		gens:      append([]function.Generator(nil), opts.Generators...),
		cache:     opts.Cache,
		maxRounds: opts.MaxAutoCallRounds,
		observer:  observer,
		log:       logger.OrNop(opts.Logger).Named("conversation").With(zap.String("conversation_id", opts.ID)),
		history:   history,
		context:   c,
	}, nil
}

// ID returns the conversation id.
func (c *Conversation) ID() string { return c.id }

// History returns a copy of the transcript.
func (c *Conversation) History() model.MessageQueue { return c.history.Copy() }

// Context returns a copy of the current context.
func (c *Conversation) Context() model.Context { return c.context.Clone() }

// Pending returns the request message awaiting approval, if any.
func (c *Conversation) Pending() (model.Message, bool) {
	if c.pending == nil {
		return model.Message{}, false
	}
	return c.pending.message, true
}

// Ask sends text as a user message.
func (c *Conversation) Ask(ctx context.Context, text string) (model.Message, error) {
	return c.SendMessage(ctx, model.NewUserMessage(c.agent.Tokenizer(), text))
}

// SendMessage runs a turn for message. A request still awaiting approval is
// answered first: its auto-call results are kept and the rest are denied.
//
// The returned message is either a final reply or a function request whose
// ApprovalsRequired lists what needs approval. On error the conversation is
// left as it was, except for ErrAutoCallLimit, which keeps the transcript so
// far and returns the last response.
func (c *Conversation) SendMessage(ctx context.Context, message model.Message) (model.Message, error) {
	input := model.NewMessageQueue()
	if c.pending != nil {
		input.Extend(c.answerPending(ctx, nil)...)
	}
	input.Append(message)
	return c.Send(ctx, input)
}

// Approve answers the pending request: auto-call and approved requests run,
// the rest are denied. The responses are then sent as a new turn.
func (c *Conversation) Approve(ctx context.Context, approvedIDs ...string) (model.Message, error) {
	if c.pending == nil {
		return model.Message{}, ErrNoPendingRequest
	}
	approved := make(map[string]bool, len(approvedIDs))
	for _, id := range approvedIDs {
		approved[id] = true
	}

	return c.Send(ctx, c.answerPending(ctx, approved))
}

// Send runs a turn for an arbitrary outgoing queue, such as several function
// responses.
func (c *Conversation) Send(ctx context.Context, input model.MessageQueue) (model.Message, error) {
	if len(input) == 0 {
		return model.Message{}, model.Validationf("nothing to send")
	}

	snapshot := c.snapshot()
	response, err := c.turn(ctx, input)
	if err != nil && !errors.Is(err, ErrAutoCallLimit) {
		c.restore(snapshot)
		c.emit(ctx, model.TurnEvent{Type: model.EventTurnFailed, Reason: err.Error()})
		return model.Message{}, err
	}
	return response, err
}

type snapshot struct {
	historyLen int
	context    model.Context
	pending    *pendingRequest
}

func (c *Conversation) snapshot() snapshot {
	return snapshot{historyLen: len(c.history), context: c.context.Clone(), pending: c.pending}
}

func (c *Conversation) restore(s snapshot) {
	c.history = c.history[:s.historyLen]
	c.context = s.context
	c.pending = s.pending
}

func (c *Conversation) turn(ctx context.Context, input model.MessageQueue) (model.Message, error) {
	c.pending = nil
	if err := c.updateContext(ctx, input); err != nil {
		return model.Message{}, err
	}

	for round := 0; ; round++ {
		functions, err := c.createFunctions(ctx, input, round)
		if err != nil {
			return model.Message{}, err
		}

		response, err := c.agent.GetResponseMessage(ctx, input, c.history.Copy(), c.context.Clone(), functions)
		if err != nil {
			return model.Message{}, err
		}
		c.emit(ctx, model.TurnEvent{Type: model.EventResponse, Round: round, Count: response.TokenCount,
			Source: c.agent.Name(), Outcome: responseKind(response)})

		if !response.IsFunctionRequest() {
			c.history.Extend(input...)
			c.history.Append(response)
			c.log.Info("turn complete", zap.Int("rounds", round+1), zap.Int("response_tokens", response.TokenCount))
			return response, nil
		}

		resolved, responses, pending := c.resolve(ctx, response, functions, round)
		c.history.Extend(input...)
		c.history.Append(resolved)

		if pending != nil {
			c.pending = pending
			c.emit(ctx, model.TurnEvent{Type: model.EventApprovalRequired, Round: round, Count: len(resolved.ApprovalsRequired())})
			return resolved, nil
		}

		if round >= c.maxRounds {
			c.history.Extend(responses...)
			c.emit(ctx, model.TurnEvent{Type: model.EventAutoCallLimit, Round: round, Count: c.maxRounds})
			c.log.Warn("auto-call round limit reached", zap.Int("max_rounds", c.maxRounds))
			return resolved, fmt.Errorf("%w: %d rounds", ErrAutoCallLimit, c.maxRounds)
		}
		input = responses
	}
}

func responseKind(m model.Message) string {
	if m.IsFunctionRequest() {
		return "function_request"
	}
	return "message"
}

// updateContext runs every manager in order over history plus input. Later
// managers overwrite keys written by earlier ones.
func (c *Conversation) updateContext(ctx context.Context, input model.MessageQueue) error {
	if len(c.managers) == 0 {
		return nil
	}
	hist := c.history.Concat(input)
	for _, m := range c.managers {
		updates, err := m.ContextUpdates(ctx, hist.Copy(), c.context.Clone())
		if err != nil {
			return fmt.Errorf("context manager %s: %w", m.Name(), err)
		}
		c.context.Merge(updates)
		c.emit(ctx, model.TurnEvent{Type: model.EventContextUpdated, Source: m.Name(), Count: len(updates)})
	}
	return nil
}

// createFunctions concatenates every generator's output in order, using the
// cache when one is configured.
func (c *Conversation) createFunctions(ctx context.Context, input model.MessageQueue, round int) ([]model.FunctionItem, error) {
	var functions []model.FunctionItem
	hist := c.history.Copy()

	for i, g := range c.gens {
		source := fmt.Sprintf("generator-%d", i)

		var key string
		if c.cache != nil {
			k, err := g.CreateCacheKey(ctx, input, hist, c.context.Clone())
			if err != nil {
				return nil, fmt.Errorf("%s cache key: %w", source, err)
			}
			key = k

			cached, ok, err := c.cache.Get(ctx, key)
			if err != nil {
				c.log.Warn("function cache lookup failed", zap.String("key", key), zap.Error(err))
			}
			if err == nil && ok {
				c.emit(ctx, model.TurnEvent{Type: model.EventCacheHit, Round: round, Source: source, Count: len(cached)})
				functions = append(functions, cached...)
				continue
			}
			c.emit(ctx, model.TurnEvent{Type: model.EventCacheMiss, Round: round, Source: source})
		}

		generated, err := g.GenerateFunctions(ctx, input, hist, c.context.Clone())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		functions = append(functions, generated...)

		if c.cache != nil {
			if err := c.cache.Set(ctx, key, generated); err != nil {
				c.log.Warn("function cache store failed", zap.String("key", key), zap.Error(err))
			}
		}
	}

	c.emit(ctx, model.TurnEvent{Type: model.EventFunctionsGenerated, Round: round, Count: len(functions)})
	return functions, nil
}

func (c *Conversation) emit(ctx context.Context, e model.TurnEvent) {
	e.ConversationID = c.id
	e.TenantID = c.tenantID
	e.CreatedAt = time.Now().UTC()
	c.observer.OnEvent(ctx, e)
}
