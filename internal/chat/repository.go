package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound means the channel or message does not exist.
	ErrNotFound = errors.New("chat: not found")
	// ErrDuplicateChannel means another transaction created the same direct
	// channel first. Callers recover by re-reading the winner.
	ErrDuplicateChannel = errors.New("chat: direct channel already exists")
	// ErrSelfChannel rejects a direct channel with oneself.
	ErrSelfChannel = errors.New("chat: cannot open a direct channel with yourself")
)

const pgUniqueViolation = "23505"

// Store is the persistence boundary of the chat feature. The concrete
// implementation is Postgres; tests substitute an in-memory fake.
type Store interface {
	SaveMessage(ctx context.Context, groupID, userID int64, content string) (*Message, error)
	History(ctx context.Context, groupID int64, limit int) ([]*Message, error)
	IsMember(ctx context.Context, groupID, userID int64) (bool, error)
	MemberIDs(ctx context.Context, groupID int64) ([]int64, error)
	Conversations(ctx context.Context, userID int64) ([]*Conversation, error)
	DirectByKey(ctx context.Context, key string) (*Conversation, error)
	CreateDirect(ctx context.Context, key string, userA, userB int64) (*Conversation, error)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) SaveMessage(ctx context.Context, groupID, userID int64, content string) (*Message, error) {
	msg := &Message{Content: content, UserID: userID, GroupID: groupID}
	query := `
		INSERT INTO messages (group_id, user_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowContext(ctx, query, groupID, userID, content).Scan(&msg.ID, &msg.Timestamp); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	q := "SELECT name FROM users WHERE id = $1"
	if err := r.db.QueryRowContext(ctx, q, userID).Scan(&msg.User.Name); err != nil {
		return nil, fmt.Errorf("load author: %w", err)
	}
	msg.User.ID = userID
	return msg, nil
}

// History returns up to limit most recent messages for the group, oldest
// first, ready for replay on connect.
func (r *Repository) History(ctx context.Context, groupID int64, limit int) ([]*Message, error) {
	query := `
		SELECT m.id, m.content, m.created_at, m.user_id, m.group_id, u.name
		FROM messages m
		JOIN users u ON m.user_id = u.id
		WHERE m.group_id = $1
		ORDER BY m.created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.Content, &msg.Timestamp, &msg.UserID, &msg.GroupID, &msg.User.Name); err != nil {
			return nil, err
		}
		msg.User.ID = msg.UserID
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query is newest-first for the LIMIT; flip to chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *Repository) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var exists bool
	query := "SELECT EXISTS(SELECT 1 FROM memberships WHERE group_id = $1 AND user_id = $2)"
	if err := r.db.QueryRowContext(ctx, query, groupID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("membership check: %w", err)
	}
	return exists, nil
}

func (r *Repository) MemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT user_id FROM memberships WHERE group_id = $1", groupID)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) Conversations(ctx context.Context, userID int64) ([]*Conversation, error) {
	query := `
		SELECT g.id, g.name, g.is_direct, g.created_at
		FROM groups g
		JOIN memberships m ON m.group_id = g.id
		WHERE m.user_id = $1
		ORDER BY g.created_at
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		c := &Conversation{}
		if err := rows.Scan(&c.ID, &c.Name, &c.IsDirect, &c.CreatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (r *Repository) DirectByKey(ctx context.Context, key string) (*Conversation, error) {
	c := &Conversation{}
	query := "SELECT id, name, is_direct, created_at FROM groups WHERE direct_key = $1"
	err := r.db.QueryRowContext(ctx, query, key).Scan(&c.ID, &c.Name, &c.IsDirect, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup direct channel: %w", err)
	}
	return c, nil
}

// CreateDirect creates the direct channel plus both memberships as one
// transaction. The UNIQUE index on direct_key is the serialization point for
// concurrent creators: the loser sees ErrDuplicateChannel.
func (r *Repository) CreateDirect(ctx context.Context, key string, userA, userB int64) (*Conversation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var nameA, nameB string
	if err := tx.QueryRowContext(ctx, "SELECT name FROM users WHERE id = $1", userA).Scan(&nameA); err != nil {
		return nil, fmt.Errorf("load user %d: %w", userA, err)
	}
	if err := tx.QueryRowContext(ctx, "SELECT name FROM users WHERE id = $1", userB).Scan(&nameB); err != nil {
		return nil, fmt.Errorf("load user %d: %w", userB, err)
	}

	c := &Conversation{Name: nameA + " & " + nameB, IsDirect: true}
	query := `
		INSERT INTO groups (name, hobby, is_direct, direct_key)
		VALUES ($1, '', TRUE, $2)
		RETURNING id, created_at
	`
	if err := tx.QueryRowContext(ctx, query, c.Name, key).Scan(&c.ID, &c.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrDuplicateChannel
		}
		return nil, fmt.Errorf("create direct channel: %w", err)
	}

	for _, uid := range []int64{userA, userB} {
		if _, err := tx.ExecContext(ctx, "INSERT INTO memberships (group_id, user_id) VALUES ($1, $2)", c.ID, uid); err != nil {
			return nil, fmt.Errorf("create membership for %d: %w", uid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}
