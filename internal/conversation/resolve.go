package conversation

import (
	"context"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

// resolve matches each request against the offered functions. The first
// offered function with a matching name wins. Auto-call functions run now;
// unknown names get a not-found response. When any request needs approval
// the returned pending request carries the auto-call results and the caller
// must stop; otherwise responses is the next outgoing queue.
func (c *Conversation) resolve(ctx context.Context, request model.Message, functions []model.FunctionItem, round int) (model.Message, model.MessageQueue, *pendingRequest) {
	tok := c.agent.Tokenizer()
	requests := make([]model.FunctionRequest, len(request.Requests))
	responses := make(model.MessageQueue, 0, len(request.Requests))
	executed := make(map[string]model.Message)
	needsApproval := false

	for i, r := range request.Requests {
		item, ok := lookup(functions, r.Name)
		if !ok {
			r.Item = nil
			requests[i] = r
			responses.Append(r.NotFound(tok))
			c.emitResolved(ctx, r, round, model.OutcomeNotFound)
			continue
		}
		r.Item = &item
		requests[i] = r

		if !item.AutoCall {
			needsApproval = true
			c.emitResolved(ctx, r, round, model.OutcomePending)
			continue
		}

		response := c.execute(ctx, r, round)
		executed[r.ID] = response
		responses.Append(response)
	}

	resolved := request.WithRequests(requests)
	if needsApproval {
		return resolved, nil, &pendingRequest{message: resolved, executed: executed}
	}
	return resolved, responses, nil
}

// answerPending builds the responses to the pending request in request
// order. Results already produced are reused. Approved requests run and the
// rest are denied.
func (c *Conversation) answerPending(ctx context.Context, approved map[string]bool) model.MessageQueue {
	tok := c.agent.Tokenizer()
	p := c.pending
	responses := make(model.MessageQueue, 0, len(p.message.Requests))

	for _, r := range p.message.Requests {
		if done, ok := p.executed[r.ID]; ok {
			responses.Append(done)
			continue
		}
		switch {
		case r.Item == nil:
			responses.Append(r.NotFound(tok))
		case approved[r.ID]:
			// Kept on the pending request so a failed follow-up turn can be
			// retried without running the function again.
			response := c.execute(ctx, r, 0)
			if p.executed == nil {
				p.executed = make(map[string]model.Message)
			}
			p.executed[r.ID] = response
			responses.Append(response)
		default:
			responses.Append(r.Deny(tok))
			c.emitResolved(ctx, r, 0, model.OutcomeDenied)
		}
	}
	return responses
}

func (c *Conversation) execute(ctx context.Context, r model.FunctionRequest, round int) model.Message {
	response, err := r.Execute(ctx, c.agent.Tokenizer())
	if err != nil {
		c.log.Warn("function failed", zap.String("function", r.Name), zap.String("function_id", r.ID), zap.Error(err))
		c.emitResolved(ctx, r, round, model.OutcomeFailed)
		return response
	}
	c.emitResolved(ctx, r, round, model.OutcomeExecuted)
	return response
}

func (c *Conversation) emitResolved(ctx context.Context, r model.FunctionRequest, round int, outcome string) {
	c.emit(ctx, model.TurnEvent{
		Type:       model.EventFunctionResolved,
		Round:      round,
		Function:   r.Name,
		FunctionID: r.ID,
		Outcome:    outcome,
	})
}

func lookup(functions []model.FunctionItem, name string) (model.FunctionItem, bool) {
	for _, f := range functions {
		if f.Name == name {
			return f, true
		}
	}
	return model.FunctionItem{}, false
}
