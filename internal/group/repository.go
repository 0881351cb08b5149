package group

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound      = errors.New("group: not found")
	ErrNameTaken     = errors.New("group: name already exists")
	ErrAlreadyMember = errors.New("group: already a member")
	ErrNotMember     = errors.New("group: not a member")
)

const pgUniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateGroup inserts the group and the creator's membership in one
// transaction, so a group can never exist without its creator inside it.
func (r *Repository) CreateGroup(ctx context.Context, g *Group) (*Group, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO groups (name, description, hobby, creator_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	if err := tx.QueryRowContext(ctx, query, g.Name, g.Description, g.Hobby, g.CreatorID).Scan(&g.ID, &g.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrNameTaken
		}
		return nil, fmt.Errorf("insert group: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO memberships (group_id, user_id) VALUES ($1, $2)", g.ID, g.CreatorID); err != nil {
		return nil, fmt.Errorf("creator membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return g, nil
}

// ListGroups returns the non-direct groups, optionally filtered by hobby.
func (r *Repository) ListGroups(ctx context.Context, hobby string) ([]*Group, error) {
	query := `
		SELECT id, name, description, hobby, COALESCE(creator_id, 0), is_direct, created_at
		FROM groups
		WHERE NOT is_direct AND ($1 = '' OR hobby = $1)
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, hobby)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		g := &Group{}
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.Hobby, &g.CreatorID, &g.IsDirect, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (r *Repository) GetGroup(ctx context.Context, id int64) (*Group, error) {
	g := &Group{}
	query := `
		SELECT id, name, description, hobby, COALESCE(creator_id, 0), is_direct, created_at
		FROM groups WHERE id = $1
	`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&g.ID, &g.Name, &g.Description, &g.Hobby, &g.CreatorID, &g.IsDirect, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (r *Repository) Join(ctx context.Context, groupID, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO memberships (group_id, user_id) VALUES ($1, $2)", groupID, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrAlreadyMember
		}
		return fmt.Errorf("join group: %w", err)
	}
	return nil
}

func (r *Repository) Leave(ctx context.Context, groupID, userID int64) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM memberships WHERE group_id = $1 AND user_id = $2", groupID, userID)
	if err != nil {
		return fmt.Errorf("leave group: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotMember
	}
	return nil
}

func (r *Repository) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var exists bool
	query := "SELECT EXISTS(SELECT 1 FROM memberships WHERE group_id = $1 AND user_id = $2)"
	if err := r.db.QueryRowContext(ctx, query, groupID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("membership check: %w", err)
	}
	return exists, nil
}

func (r *Repository) Members(ctx context.Context, groupID int64) ([]Member, error) {
	query := `
		SELECT u.id, u.name
		FROM users u
		JOIN memberships m ON m.user_id = u.id
		WHERE m.group_id = $1
		ORDER BY u.name
	`
	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *Repository) MemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT user_id FROM memberships WHERE group_id = $1", groupID)
	if err != nil {
		return nil, fmt.Errorf("list member ids: %w", err)
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

func (r *Repository) MyGroups(ctx context.Context, userID int64) ([]*Group, error) {
	query := `
		SELECT g.id, g.name, g.description, g.hobby, COALESCE(g.creator_id, 0), g.is_direct, g.created_at
		FROM groups g
		JOIN memberships m ON m.group_id = g.id
		WHERE m.user_id = $1
		ORDER BY g.created_at
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("my groups: %w", err)
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		g := &Group{}
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.Hobby, &g.CreatorID, &g.IsDirect, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (r *Repository) CreatePost(ctx context.Context, p *Post) (*Post, error) {
	query := `
		INSERT INTO posts (title, content, group_id, owner_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowContext(ctx, query, p.Title, p.Content, p.GroupID, p.OwnerID).Scan(&p.ID, &p.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, "SELECT name FROM users WHERE id = $1", p.OwnerID).Scan(&p.OwnerName); err != nil {
		return nil, fmt.Errorf("load owner: %w", err)
	}
	return p, nil
}

func (r *Repository) ListPosts(ctx context.Context, groupID int64) ([]*Post, error) {
	query := `
		SELECT p.id, p.title, p.content, p.group_id, p.owner_id, u.name, p.created_at
		FROM posts p
		JOIN users u ON p.owner_id = u.id
		WHERE p.group_id = $1
		ORDER BY p.created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		p := &Post{}
		if err := rows.Scan(&p.ID, &p.Title, &p.Content, &p.GroupID, &p.OwnerID, &p.OwnerName, &p.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}
