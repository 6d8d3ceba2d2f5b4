package service

import (
	"context"
	"errors"
	"sync"

	"github.com/capitalize-ai/chat-orchestrator/internal/conversation"
	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

var errSessionClosed = errors.New("session closed")

// session owns one hosted conversation. Turns run one at a time on the
// session's worker goroutine.
type session struct {
	conv *conversation.Conversation
	jobs chan func()
	quit chan struct{}
	done chan struct{}
	once sync.Once

	mu   sync.RWMutex
	info model.ConversationInfo
}

func newSession(info model.ConversationInfo, conv *conversation.Conversation) *session {
	s := &session{
		conv: conv,
		jobs: make(chan func()),
		quit: make(chan struct{}),
		done: make(chan struct{}),
		info: info,
	}
	s.refresh()
	go s.run()
	return s
}

func (s *session) run() {
	defer close(s.done)
	for {
		select {
		case job := <-s.jobs:
			job()
		case <-s.quit:
			return
		}
	}
}

// do runs fn on the worker and waits for it. fn keeps running if ctx ends
// first; it receives the same ctx and is expected to observe it.
func (s *session) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	job := func() {
		defer close(finished)
		fn()
	}

	select {
	case s.jobs <- job:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return errSessionClosed
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) stop() {
	s.once.Do(func() { close(s.quit) })
	<-s.done
}

// refresh copies the conversation state into info. Only call it from the
// worker or before the worker starts.
func (s *session) refresh() {
	hist := s.conv.History()
	_, pending := s.conv.Pending()

	s.mu.Lock()
	s.info.MessageCount = len(hist)
	s.info.Context = s.conv.Context()
	s.info.Pending = pending
	s.mu.Unlock()
}

func (s *session) snapshot() model.ConversationInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := s.info
	info.Context = info.Context.Clone()
	return info
}

func (s *session) update(fn func(*model.ConversationInfo)) {
	s.mu.Lock()
	fn(&s.info)
	s.mu.Unlock()
}
