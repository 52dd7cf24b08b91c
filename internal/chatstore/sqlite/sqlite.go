package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tidechat/tidechat/internal/chatstore"
)

// Store implements chatstore.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite chat store at the supplied path.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS chats (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	renamed INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateChat inserts a new chat with a placeholder title.
func (s *Store) CreateChat(ctx context.Context) (*chatstore.Chat, error) {
	now := time.Now().UTC()
	chat := &chatstore.Chat{
		ID:        uuid.NewString(),
		Title:     fmt.Sprintf("Chat %d", now.UnixMilli()),
		CreatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats(id, title, created_at) VALUES(?, ?, ?)`,
		chat.ID, chat.Title, chat.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}
	return chat, nil
}

// GetChat returns the chat with the given id.
func (s *Store) GetChat(ctx context.Context, id string) (*chatstore.Chat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at FROM chats WHERE id = ?`, id)
	var c chatstore.Chat
	if err := row.Scan(&c.ID, &c.Title, &c.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, chatstore.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// RenameChat sets an explicit title; auto-derivation never overrides it afterwards.
func (s *Store) RenameChat(ctx context.Context, id, title string) (*chatstore.Chat, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, chatstore.ErrInvalidArgument
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE chats SET title = ?, renamed = 1 WHERE id = ?`, title, id)
	if err != nil {
		return nil, fmt.Errorf("rename chat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, chatstore.ErrNotFound
	}
	return s.GetChat(ctx, id)
}

// ListChats returns all chats, newest-created first.
func (s *Store) ListChats(ctx context.Context) ([]chatstore.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at FROM chats ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()
	chats := make([]chatstore.Chat, 0)
	for rows.Next() {
		var c chatstore.Chat
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// DeleteChat removes a chat and all of its messages.
func (s *Store) DeleteChat(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return chatstore.ErrNotFound
	}
	return tx.Commit()
}

// AppendMessage stores a message. The first message of a chat derives the
// title (truncated) unless the chat was renamed explicitly.
func (s *Store) AppendMessage(ctx context.Context, chatID string, role chatstore.Role, content string) (*chatstore.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var renamed bool
	row := tx.QueryRowContext(ctx, `SELECT renamed FROM chats WHERE id = ?`, chatID)
	if err := row.Scan(&renamed); err != nil {
		if err == sql.ErrNoRows {
			return nil, chatstore.ErrNotFound
		}
		return nil, err
	}

	msg := &chatstore.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages(id, chat_id, role, content, created_at) VALUES(?, ?, ?, ?, ?)`,
		msg.ID, msg.ChatID, string(msg.Role), msg.Content, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	var count int
	row = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE chat_id = ?`, chatID)
	if err := row.Scan(&count); err != nil {
		return nil, err
	}
	if count == 1 && !renamed {
		if _, err := tx.ExecContext(ctx,
			`UPDATE chats SET title = ? WHERE id = ?`,
			chatstore.DeriveTitle(content), chatID); err != nil {
			return nil, fmt.Errorf("derive title: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// CountMessages returns the number of messages stored for a chat.
func (s *Store) CountMessages(ctx context.Context, chatID string) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE chat_id = ?`, chatID)
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListMessages returns a chat's messages, oldest first.
func (s *Store) ListMessages(ctx context.Context, chatID string) ([]chatstore.Message, error) {
	if _, err := s.GetChat(ctx, chatID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, role, content, created_at FROM messages WHERE chat_id = ? ORDER BY seq ASC`,
		chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	messages := make([]chatstore.Message, 0)
	for rows.Next() {
		var m chatstore.Message
		var role string
		if err := rows.Scan(&m.ID, &m.ChatID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = chatstore.Role(role)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
