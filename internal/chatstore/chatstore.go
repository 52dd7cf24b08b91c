package chatstore

import (
	"context"
	"errors"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Sentinel errors shared by all store backends.
var (
	// ErrNotFound is returned when a chat id is unknown to the store.
	ErrNotFound = errors.New("chatstore: not found")
	// ErrInvalidArgument is returned for empty titles and other rejected input.
	ErrInvalidArgument = errors.New("chatstore: invalid argument")
)

// Chat is a titled conversation.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is one turn in a chat, authored by the user or the assistant.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}

// Store persists chats and messages across SQLite/Postgres backends.
//
// Ordering contracts: ListChats returns newest-created first, ListMessages
// returns oldest first matching append order. AppendMessage derives the chat
// title from the first message unless the chat was explicitly renamed.
type Store interface {
	CreateChat(ctx context.Context) (*Chat, error)
	GetChat(ctx context.Context, id string) (*Chat, error)
	RenameChat(ctx context.Context, id, title string) (*Chat, error)
	ListChats(ctx context.Context) ([]Chat, error)
	DeleteChat(ctx context.Context, id string) error
	AppendMessage(ctx context.Context, chatID string, role Role, content string) (*Message, error)
	CountMessages(ctx context.Context, chatID string) (int, error)
	ListMessages(ctx context.Context, chatID string) ([]Message, error)
	Close() error
}

// titleLimit bounds auto-derived chat titles; longer first messages are
// truncated to titleKeep characters plus an ellipsis.
const (
	titleLimit = 50
	titleKeep  = 47
)

// DeriveTitle computes a chat title from the first user message.
func DeriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= titleLimit {
		return content
	}
	return string(runes[:titleKeep]) + "..."
}
