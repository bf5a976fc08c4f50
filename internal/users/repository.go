package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"packtrack/internal/database"
)

var (
	// ErrNotFound is returned when no user matches
	ErrNotFound = errors.New("user not found")
	// ErrEmailExists is returned when email is already registered
	ErrEmailExists = errors.New("email already registered")
	// ErrUsernameTaken is returned when username is already taken
	ErrUsernameTaken = errors.New("username already taken")
)

const userColumns = `id, email, username, password_hash, mfa_enabled, fullname, bio, bike, location, profile_pic_url, created_at, updated_at`

// Repository persists users
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, id string, req UpdateProfileRequest) (*User, error)
	SetProfilePicURL(ctx context.Context, id, url string) (*User, error)
}

type postgresRepository struct {
	db database.Service
}

// NewRepository creates a Postgres-backed user repository
func NewRepository(db database.Service) Repository {
	return &postgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.PasswordHash,
		&u.MFAEnabled,
		&u.Fullname,
		&u.Bio,
		&u.Bike,
		&u.Location,
		&u.ProfilePicURL,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// mapErr converts driver errors into this package's sentinels
func mapErr(err error, op string) error {
	switch {
	case errors.Is(err, sql.ErrNoRows), database.IsInvalidText(err):
		return ErrNotFound
	case database.IsUniqueViolation(err, "users_email_key"):
		return ErrEmailExists
	case database.IsUniqueViolation(err, "users_username_key"):
		return ErrUsernameTaken
	default:
		return database.MapError(fmt.Errorf("failed to %s: %w", op, err))
	}
}

func (r *postgresRepository) Create(ctx context.Context, u *User) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO users (id, email, password_hash, mfa_enabled, fullname, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + userColumns

	created, err := scanUser(r.db.QueryRow(ctx, query,
		u.ID, u.Email, u.PasswordHash, u.MFAEnabled, u.Fullname, u.CreatedAt, u.UpdatedAt))
	if err != nil {
		return mapErr(err, "create user")
	}

	*u = *created
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id string) (*User, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapErr(err, "get user")
	}
	return u, nil
}

func (r *postgresRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`

	u, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		return nil, mapErr(err, "get user by email")
	}
	return u, nil
}

func (r *postgresRepository) Update(ctx context.Context, id string, req UpdateProfileRequest) (*User, error) {
	if req.Empty() {
		return r.GetByID(ctx, id)
	}

	var (
		fields []string
		args   []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		fields = append(fields, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if req.Fullname != nil {
		set("fullname", strings.TrimSpace(*req.Fullname))
	}
	if req.Username != nil {
		set("username", strings.TrimSpace(*req.Username))
	}
	if req.Bio != nil {
		set("bio", *req.Bio)
	}
	if req.Bike != nil {
		set("bike", *req.Bike)
	}
	if req.Location != nil {
		set("location", *req.Location)
	}
	if req.MFAEnabled != nil {
		set("mfa_enabled", *req.MFAEnabled)
	}
	set("updated_at", time.Now())
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(fields, ", "), len(args), userColumns)

	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	u, err := scanUser(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, mapErr(err, "update user")
	}
	return u, nil
}

func (r *postgresRepository) SetProfilePicURL(ctx context.Context, id, url string) (*User, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `UPDATE users SET profile_pic_url = $1, updated_at = $2 WHERE id = $3 RETURNING ` + userColumns

	u, err := scanUser(r.db.QueryRow(ctx, query, url, time.Now(), id))
	if err != nil {
		return nil, mapErr(err, "set profile picture")
	}
	return u, nil
}
