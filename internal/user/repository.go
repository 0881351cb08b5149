package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound       = errors.New("user: not found")
	ErrEmailTaken     = errors.New("user: email already registered")
	ErrBadCredentials = errors.New("user: invalid credentials")
)

const pgUniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser inserts the user and attaches their hobbies (creating hobby
// rows as needed) in one transaction.
func (r *Repository) CreateUser(ctx context.Context, u *User) (*User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	query := "INSERT INTO users (name, email, password) VALUES ($1, $2, $3) RETURNING id"
	if err := tx.QueryRowContext(ctx, query, u.Name, u.Email, u.Password).Scan(&u.ID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	for _, hobby := range u.Hobbies {
		var hobbyID int64
		q := `
			INSERT INTO hobbies (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`
		if err := tx.QueryRowContext(ctx, q, hobby).Scan(&hobbyID); err != nil {
			return nil, fmt.Errorf("upsert hobby %q: %w", hobby, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO user_hobbies (user_id, hobby_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			u.ID, hobbyID); err != nil {
			return nil, fmt.Errorf("attach hobby %q: %w", hobby, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return u, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	u := &User{}
	query := "SELECT id, name, email, password FROM users WHERE email = $1"

	err := r.db.QueryRowContext(ctx, query, email).Scan(&u.ID, &u.Name, &u.Email, &u.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id int64) (*User, error) {
	u := &User{}
	query := "SELECT id, name, email FROM users WHERE id = $1"

	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Name, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	u.Hobbies, err = r.hobbiesOf(ctx, id)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *Repository) hobbiesOf(ctx context.Context, userID int64) ([]string, error) {
	q := `
		SELECT h.name
		FROM hobbies h
		JOIN user_hobbies uh ON uh.hobby_id = h.id
		WHERE uh.user_id = $1
		ORDER BY h.name
	`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("load hobbies: %w", err)
	}
	defer rows.Close()

	var hobbies []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		hobbies = append(hobbies, name)
	}
	return hobbies, rows.Err()
}

func (r *Repository) GroupIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT group_id FROM memberships WHERE user_id = $1", userID)
	if err != nil {
		return nil, fmt.Errorf("load memberships: %w", err)
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

func (r *Repository) SearchUsers(ctx context.Context, query string) ([]User, error) {
	// We limit to 10 to keep it fast
	q := `SELECT id, name FROM users WHERE name ILIKE $1 LIMIT 10`
	rows, err := r.db.QueryContext(ctx, q, "%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
