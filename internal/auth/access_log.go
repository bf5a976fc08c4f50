package auth

import (
	"context"
	"fmt"

	"packtrack/internal/database"
)

// AccessLog records successful authentications
type AccessLog interface {
	Record(ctx context.Context, entry AccessEntry) error
}

type accessLogRepository struct {
	db database.Service
}

// NewAccessLogRepository creates a Postgres-backed access log
func NewAccessLogRepository(db database.Service) AccessLog {
	return &accessLogRepository{db: db}
}

func (r *accessLogRepository) Record(ctx context.Context, entry AccessEntry) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO access_logs (user_id, event, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := r.db.Exec(ctx, query, entry.UserID, entry.Event, entry.IP, entry.UserAgent, entry.CreatedAt); err != nil {
		return database.MapError(fmt.Errorf("failed to record access: %w", err))
	}
	return nil
}
