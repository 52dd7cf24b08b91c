package httpserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tidechat/tidechat/internal/chatstore"
	"github.com/tidechat/tidechat/internal/provider"
)

// memStore is an in-memory chatstore.Store for handler tests.
type memStore struct {
	mu      sync.Mutex
	nextID  int
	chats   []*chatstore.Chat
	renamed map[string]bool
	msgs    map[string][]chatstore.Message
}

func newMemStore() *memStore {
	return &memStore{
		renamed: make(map[string]bool),
		msgs:    make(map[string][]chatstore.Message),
	}
}

func (s *memStore) CreateChat(context.Context) (*chatstore.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	chat := &chatstore.Chat{
		ID:        fmt.Sprintf("chat-%d", s.nextID),
		Title:     fmt.Sprintf("Chat %d", s.nextID),
		CreatedAt: time.Now().UTC(),
	}
	s.chats = append(s.chats, chat)
	return chat, nil
}

func (s *memStore) find(id string) *chatstore.Chat {
	for _, c := range s.chats {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (s *memStore) GetChat(_ context.Context, id string) (*chatstore.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.find(id)
	if c == nil {
		return nil, chatstore.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) RenameChat(_ context.Context, id, title string) (*chatstore.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if title == "" {
		return nil, chatstore.ErrInvalidArgument
	}
	c := s.find(id)
	if c == nil {
		return nil, chatstore.ErrNotFound
	}
	c.Title = title
	s.renamed[id] = true
	cp := *c
	return &cp, nil
}

func (s *memStore) ListChats(context.Context) ([]chatstore.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chatstore.Chat, 0, len(s.chats))
	for i := len(s.chats) - 1; i >= 0; i-- {
		out = append(out, *s.chats[i])
	}
	return out, nil
}

func (s *memStore) DeleteChat(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.chats {
		if c.ID == id {
			s.chats = append(s.chats[:i], s.chats[i+1:]...)
			delete(s.msgs, id)
			delete(s.renamed, id)
			return nil
		}
	}
	return chatstore.ErrNotFound
}

func (s *memStore) AppendMessage(_ context.Context, chatID string, role chatstore.Role, content string) (*chatstore.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.find(chatID)
	if c == nil {
		return nil, chatstore.ErrNotFound
	}
	msg := chatstore.Message{
		ID:        fmt.Sprintf("msg-%d", len(s.msgs[chatID])+1),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	s.msgs[chatID] = append(s.msgs[chatID], msg)
	if len(s.msgs[chatID]) == 1 && !s.renamed[chatID] {
		c.Title = chatstore.DeriveTitle(content)
	}
	return &msg, nil
}

func (s *memStore) CountMessages(_ context.Context, chatID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs[chatID]), nil
}

func (s *memStore) ListMessages(_ context.Context, chatID string) ([]chatstore.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.find(chatID) == nil {
		return nil, chatstore.ErrNotFound
	}
	out := make([]chatstore.Message, len(s.msgs[chatID]))
	copy(out, s.msgs[chatID])
	return out, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) messages(chatID string) []chatstore.Message {
	out, _ := s.ListMessages(context.Background(), chatID)
	return out
}

// fakeProvider replays scripted events. When block is set the stream stays
// open after the scripted events until the context is cancelled or release
// is closed.
type fakeProvider struct {
	events  []provider.Event
	openErr error
	pingErr error
	block   bool
	release chan struct{}

	mu      sync.Mutex
	prompts []string
}

func (p *fakeProvider) StreamCompletion(ctx context.Context, prompt string) (<-chan provider.Event, error) {
	if p.openErr != nil {
		return nil, p.openErr
	}
	p.mu.Lock()
	p.prompts = append(p.prompts, prompt)
	p.mu.Unlock()

	ch := make(chan provider.Event, len(p.events))
	go func() {
		defer close(ch)
		for _, ev := range p.events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
		if p.block {
			select {
			case <-ctx.Done():
			case <-p.release:
			}
		}
	}()
	return ch, nil
}

func (p *fakeProvider) Ping(context.Context) error { return p.pingErr }
