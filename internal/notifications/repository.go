package notifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"packtrack/internal/database"
)

// ErrNotFound is returned when no notification matches for the user
var ErrNotFound = errors.New("notification not found")

// maxListed caps a single listing
const maxListed = 100

// Repository persists notifications
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	List(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
	Delete(ctx context.Context, userID, id string) error
	DeleteAll(ctx context.Context, userID string) (int64, error)
}

type postgresRepository struct {
	db database.Service
}

// NewRepository creates a Postgres-backed notification repository
func NewRepository(db database.Service) Repository {
	return &postgresRepository{db: db}
}

func mapErr(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) || database.IsInvalidText(err) {
		return ErrNotFound
	}
	return database.MapError(fmt.Errorf("failed to %s: %w", op, err))
}

func (r *postgresRepository) Create(ctx context.Context, n *Notification) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO notifications (id, user_id, type, message, pack_id, actor_id, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query, n.ID, n.UserID, string(n.Type), n.Message, n.PackID, n.ActorID, n.Read, n.CreatedAt)
	if err != nil {
		return mapErr(err, "create notification")
	}
	return nil
}

func (r *postgresRepository) List(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, user_id, type, message, pack_id, actor_id, read, created_at
		FROM notifications
		WHERE user_id = $1 AND ($2 = FALSE OR read = FALSE)
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, userID, unreadOnly, maxListed)
	if err != nil {
		if database.IsInvalidText(err) {
			return []Notification{}, nil
		}
		return nil, mapErr(err, "list notifications")
	}
	defer rows.Close()

	list := make([]Notification, 0)
	for rows.Next() {
		var (
			n   Notification
			typ string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.Message, &n.PackID, &n.ActorID, &n.Read, &n.CreatedAt); err != nil {
			return nil, mapErr(err, "scan notification")
		}
		n.Type = Type(typ)
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err, "list notifications")
	}

	return list, nil
}

func (r *postgresRepository) MarkRead(ctx context.Context, userID, id string) error {
	return r.execOne(ctx, "mark notification read",
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
}

func (r *postgresRepository) Delete(ctx context.Context, userID, id string) error {
	return r.execOne(ctx, "delete notification",
		`DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
}

func (r *postgresRepository) DeleteAll(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	res, err := r.db.Exec(ctx, `DELETE FROM notifications WHERE user_id = $1`, userID)
	if err != nil {
		return 0, mapErr(err, "clear notifications")
	}
	return res.RowsAffected()
}

// execOne runs a statement that must touch exactly one of the user's rows
func (r *postgresRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	res, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return mapErr(err, op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err, op)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
