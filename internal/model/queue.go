package model

import "strings"

// MessageQueue is a chronologically ordered sequence of messages, oldest first.
type MessageQueue []Message

// NewMessageQueue builds a queue from messages in order.
func NewMessageQueue(messages ...Message) MessageQueue {
	q := make(MessageQueue, 0, len(messages))
	return append(q, messages...)
}

// Append adds a message at the tail.
func (q *MessageQueue) Append(m Message) {
	*q = append(*q, m)
}

// Prepend adds a message at the head.
func (q *MessageQueue) Prepend(m Message) {
	*q = append(MessageQueue{m}, *q...)
}

// Extend appends messages at the tail in order.
func (q *MessageQueue) Extend(messages ...Message) {
	*q = append(*q, messages...)
}

// Concat returns a new queue holding q followed by others, in order.
func (q MessageQueue) Concat(others ...MessageQueue) MessageQueue {
	size := len(q)
	for _, o := range others {
		size += len(o)
	}
	out := make(MessageQueue, 0, size)
	out = append(out, q...)
	for _, o := range others {
		out = append(out, o...)
	}
	return out
}

// Copy returns an independent copy of the queue.
func (q MessageQueue) Copy() MessageQueue {
	out := make(MessageQueue, len(q))
	for i, m := range q {
		out[i] = m.clone()
	}
	return out
}

// TokenCount returns the summed token count of every message.
func (q MessageQueue) TokenCount() int {
	total := 0
	for _, m := range q {
		total += m.TokenCount
	}
	return total
}

// Last returns the newest message.
func (q MessageQueue) Last() (Message, bool) {
	if len(q) == 0 {
		return Message{}, false
	}
	return q[len(q)-1], true
}

// Text joins message contents with newlines.
func (q MessageQueue) Text() string {
	parts := make([]string, len(q))
	for i, m := range q {
		parts[i] = m.Content
	}
	return strings.Join(parts, "\n")
}

// LastNTokens returns the longest tail of the queue, after dropping messages
// whose role is in exclude, whose total token count fits within budget.
// Scanning stops at the first message that would overflow the budget, so a
// single message larger than the budget is never included.
func (q MessageQueue) LastNTokens(budget int, exclude ...Role) MessageQueue {
	if budget <= 0 {
		return MessageQueue{}
	}

	filtered := q.without(exclude)
	total := 0
	start := len(filtered)
	for i := len(filtered) - 1; i >= 0; i-- {
		cost := filtered[i].TokenCount
		if total+cost > budget {
			break
		}
		total += cost
		start = i
	}
	return filtered[start:].Copy()
}

// LastNMessages returns at most n of the newest messages whose role is not in
// exclude.
func (q MessageQueue) LastNMessages(n int, exclude ...Role) MessageQueue {
	if n <= 0 {
		return MessageQueue{}
	}

	filtered := q.without(exclude)
	if n > len(filtered) {
		n = len(filtered)
	}
	return filtered[len(filtered)-n:].Copy()
}

func (q MessageQueue) without(exclude []Role) MessageQueue {
	if len(exclude) == 0 {
		return q
	}
	out := make(MessageQueue, 0, len(q))
	for _, m := range q {
		skip := false
		for _, r := range exclude {
			if m.Role == r {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, m)
		}
	}
	return out
}
