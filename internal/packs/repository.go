package packs

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
	ErrPackNotFound       = errors.New("pack not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrAlreadyMember      = errors.New("user is already a member of this pack")
	ErrNotMember          = errors.New("user is not a member of this pack")
	ErrInvitationRequired = errors.New("an invitation is required to join this private pack")
	ErrInvalidShareCode   = errors.New("invalid share code")
	ErrOwnerCannotLeave   = errors.New("the pack owner cannot leave the pack")
	ErrUnauthorized       = errors.New("not allowed to manage this pack")

	errShareCodeTaken = errors.New("share code already in use")
)

// sentinels pass through mapErr untouched
var sentinels = []error{
	ErrPackNotFound, ErrUserNotFound, ErrAlreadyMember, ErrNotMember,
	ErrInvitationRequired, ErrOwnerCannotLeave, ErrUnauthorized, errShareCodeTaken,
}

// maxPublicListed caps a single page of public packs
const maxPublicListed = 100

// packSelect reads a pack with its member and admin ids folded into
// comma-separated lists, members in join order.
const packSelect = `
	SELECT p.id, p.name, p.description, p.visibility, p.owner_id, p.share_code,
		p.chat_enabled, p.image_url, p.created_at, p.updated_at,
		(SELECT COALESCE(string_agg(m.user_id::text, ',' ORDER BY m.joined_at), '')
			FROM pack_members m WHERE m.pack_id = p.id),
		(SELECT COALESCE(string_agg(a.user_id::text, ','), '')
			FROM pack_admins a WHERE a.pack_id = p.id)
	FROM packs p`

// Repository persists packs, their membership and invitations
type Repository interface {
	// Create inserts p and its owner's membership in one transaction
	Create(ctx context.Context, p *Pack) error
	Get(ctx context.Context, id string) (*Pack, error)
	GetByShareCode(ctx context.Context, code string) (*Pack, error)
	ListByMember(ctx context.Context, userID string) ([]Pack, error)
	ListPublic(ctx context.Context, limit, offset int) ([]Pack, error)
	ListMembers(ctx context.Context, packID string) ([]Member, error)

	// Join accepts any pending invitation and adds the member in one
	// transaction. With requireInvitation, a missing invitation fails with
	// ErrInvitationRequired.
	Join(ctx context.Context, packID, userID string, requireInvitation bool) error

	// RemoveMember drops userID's membership and admin role unless userID owns the pack
	RemoveMember(ctx context.Context, packID, userID string) error

	// Delete removes the pack if ownerID still owns it
	Delete(ctx context.Context, packID, ownerID string) error

	// TransferOwnership moves ownership from fromID to toID, who must be a member
	TransferOwnership(ctx context.Context, packID, fromID, toID string) error

	SetAdmin(ctx context.Context, packID, userID string, admin bool) error

	// UpsertInvitation creates a pending invitation or re-opens an existing one
	UpsertInvitation(ctx context.Context, inv *Invitation) error
	ListInvitations(ctx context.Context, userID string) ([]Invitation, error)

	// DisplayName returns the username, falling back to the full name
	DisplayName(ctx context.Context, userID string) (string, error)
}

type postgresRepository struct {
	db database.Service
}

// NewRepository creates a Postgres-backed pack repository
func NewRepository(db database.Service) Repository {
	return &postgresRepository{db: db}
}

func mapErr(err error, op string) error {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return err
		}
	}

	switch {
	case errors.Is(err, sql.ErrNoRows), database.IsInvalidText(err):
		return ErrPackNotFound
	case database.IsUniqueViolation(err, "packs_share_code_key"):
		return errShareCodeTaken
	case database.IsForeignKeyViolation(err, "pack_members_pack_id_fkey"),
		database.IsForeignKeyViolation(err, "pack_invitations_pack_id_fkey"):
		return ErrPackNotFound
	case database.IsForeignKeyViolation(err, ""):
		return ErrUserNotFound
	default:
		return database.MapError(fmt.Errorf("failed to %s: %w", op, err))
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPack(row rowScanner) (*Pack, error) {
	var (
		p               Pack
		members, admins string
	)
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Visibility,
		&p.OwnerID,
		&p.ShareCode,
		&p.ChatEnabled,
		&p.ImageURL,
		&p.CreatedAt,
		&p.UpdatedAt,
		&members,
		&admins,
	)
	if err != nil {
		return nil, err
	}

	p.Members = splitIDs(members)
	p.Admins = splitIDs(admins)
	p.MemberCount = len(p.Members)
	return &p, nil
}

func splitIDs(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

func (r *postgresRepository) Create(ctx context.Context, p *Pack) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	err := r.db.WithTx(ctx, func(q database.Querier) error {
		_, err := q.Exec(ctx, `
			INSERT INTO packs (id, name, description, visibility, owner_id, share_code, chat_enabled, image_url, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			p.ID, p.Name, p.Description, string(p.Visibility), p.OwnerID, p.ShareCode,
			p.ChatEnabled, p.ImageURL, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return err
		}

		_, err = q.Exec(ctx, `INSERT INTO pack_members (pack_id, user_id, joined_at) VALUES ($1, $2, $3)`,
			p.ID, p.OwnerID, p.CreatedAt)
		return err
	})
	if err != nil {
		return mapErr(err, "create pack")
	}

	p.Members = []string{p.OwnerID}
	p.Admins = []string{}
	p.MemberCount = 1
	return nil
}

func (r *postgresRepository) Get(ctx context.Context, id string) (*Pack, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	p, err := scanPack(r.db.QueryRow(ctx, packSelect+` WHERE p.id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "get pack")
	}
	return p, nil
}

func (r *postgresRepository) GetByShareCode(ctx context.Context, code string) (*Pack, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	p, err := scanPack(r.db.QueryRow(ctx, packSelect+` WHERE p.share_code = $1`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidShareCode
	}
	if err != nil {
		return nil, mapErr(err, "get pack by share code")
	}
	return p, nil
}

func (r *postgresRepository) ListByMember(ctx context.Context, userID string) ([]Pack, error) {
	query := packSelect + `
		WHERE EXISTS (SELECT 1 FROM pack_members m WHERE m.pack_id = p.id AND m.user_id = $1)
		ORDER BY p.created_at DESC`
	return r.listPacks(ctx, "list packs by member", query, userID)
}

func (r *postgresRepository) ListPublic(ctx context.Context, limit, offset int) ([]Pack, error) {
	if limit <= 0 || limit > maxPublicListed {
		limit = maxPublicListed
	}
	if offset < 0 {
		offset = 0
	}

	query := packSelect + `
		WHERE p.visibility = 'public'
		ORDER BY p.created_at DESC
		LIMIT $1 OFFSET $2`
	return r.listPacks(ctx, "list public packs", query, limit, offset)
}

func (r *postgresRepository) listPacks(ctx context.Context, op, query string, args ...any) ([]Pack, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		if database.IsInvalidText(err) {
			return []Pack{}, nil
		}
		return nil, mapErr(err, op)
	}
	defer rows.Close()

	list := make([]Pack, 0)
	for rows.Next() {
		p, err := scanPack(rows)
		if err != nil {
			return nil, mapErr(err, op)
		}
		list = append(list, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err, op)
	}
	return list, nil
}

func (r *postgresRepository) ListMembers(ctx context.Context, packID string) ([]Member, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `
		SELECT u.id, u.username, u.fullname, u.profile_pic_url,
			CASE
				WHEN p.owner_id = u.id THEN 'owner'
				WHEN a.user_id IS NOT NULL THEN 'admin'
				ELSE 'member'
			END,
			m.joined_at
		FROM pack_members m
		JOIN packs p ON p.id = m.pack_id
		JOIN users u ON u.id = m.user_id
		LEFT JOIN pack_admins a ON a.pack_id = m.pack_id AND a.user_id = m.user_id
		WHERE m.pack_id = $1
		ORDER BY m.joined_at`

	rows, err := r.db.Query(ctx, query, packID)
	if err != nil {
		return nil, mapErr(err, "list members")
	}
	defer rows.Close()

	list := make([]Member, 0)
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Username, &m.Fullname, &m.ProfilePicURL, &m.Role, &m.JoinedAt); err != nil {
			return nil, mapErr(err, "list members")
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err, "list members")
	}
	return list, nil
}

func (r *postgresRepository) Join(ctx context.Context, packID, userID string, requireInvitation bool) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	err := r.db.WithTx(ctx, func(q database.Querier) error {
		res, err := q.Exec(ctx, `
			UPDATE pack_invitations SET status = 'accepted', updated_at = $3
			WHERE pack_id = $1 AND user_id = $2 AND status = 'pending'`,
			packID, userID, now)
		if err != nil {
			return err
		}
		accepted, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if requireInvitation && accepted == 0 {
			return ErrInvitationRequired
		}

		res, err = q.Exec(ctx, `
			INSERT INTO pack_members (pack_id, user_id, joined_at) VALUES ($1, $2, $3)
			ON CONFLICT (pack_id, user_id) DO NOTHING`,
			packID, userID, now)
		if err != nil {
			return err
		}
		added, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if added == 0 {
			return ErrAlreadyMember
		}
		return nil
	})
	if err != nil {
		return mapErr(err, "join pack")
	}
	return nil
}

// packState reads the owner and userID's membership, to explain why a
// conditional write matched no rows.
func packState(ctx context.Context, q database.Querier, packID, userID string) (ownerID string, member bool, err error) {
	err = q.QueryRow(ctx, `
		SELECT p.owner_id,
			EXISTS (SELECT 1 FROM pack_members m WHERE m.pack_id = p.id AND m.user_id = $2)
		FROM packs p WHERE p.id = $1`,
		packID, userID).Scan(&ownerID, &member)
	return ownerID, member, err
}

func (r *postgresRepository) RemoveMember(ctx context.Context, packID, userID string) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	err := r.db.WithTx(ctx, func(q database.Querier) error {
		// The owner check is part of the delete so a concurrent transfer can't
		// leave the pack without its owner as a member.
		res, err := q.Exec(ctx, `
			DELETE FROM pack_members m USING packs p
			WHERE m.pack_id = p.id AND m.pack_id = $1 AND m.user_id = $2 AND p.owner_id <> $2`,
			packID, userID)
		if err != nil {
			return err
		}
		removed, err := res.RowsAffected()
		if err != nil {
			return err
		}

		if removed == 0 {
			ownerID, member, err := packState(ctx, q, packID, userID)
			if err != nil {
				return err
			}
			if ownerID == userID {
				return ErrOwnerCannotLeave
			}
			if !member {
				return ErrNotMember
			}
			return fmt.Errorf("membership of %s in %s unchanged", userID, packID)
		}

		_, err = q.Exec(ctx, `DELETE FROM pack_admins WHERE pack_id = $1 AND user_id = $2`, packID, userID)
		return err
	})
	if err != nil {
		return mapErr(err, "remove member")
	}
	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, packID, ownerID string) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	res, err := r.db.Exec(ctx, `DELETE FROM packs WHERE id = $1 AND owner_id = $2`, packID, ownerID)
	if err != nil {
		return mapErr(err, "delete pack")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err, "delete pack")
	}
	if n > 0 {
		return nil
	}

	if _, _, err := packState(ctx, r.db, packID, ownerID); err != nil {
		return mapErr(err, "delete pack")
	}
	return ErrUnauthorized
}

func (r *postgresRepository) TransferOwnership(ctx context.Context, packID, fromID, toID string) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	err := r.db.WithTx(ctx, func(q database.Querier) error {
		res, err := q.Exec(ctx, `
			UPDATE packs SET owner_id = $3, updated_at = $4
			WHERE id = $1 AND owner_id = $2
				AND EXISTS (SELECT 1 FROM pack_members WHERE pack_id = $1 AND user_id = $3)`,
			packID, fromID, toID, time.Now().UTC())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}

		if n == 0 {
			ownerID, member, err := packState(ctx, q, packID, toID)
			if err != nil {
				return err
			}
			if ownerID != fromID {
				return ErrUnauthorized
			}
			if !member {
				return ErrNotMember
			}
			return fmt.Errorf("ownership of %s unchanged", packID)
		}

		// The owner role supersedes admin.
		_, err = q.Exec(ctx, `DELETE FROM pack_admins WHERE pack_id = $1 AND user_id = $2`, packID, toID)
		return err
	})
	if err != nil {
		return mapErr(err, "transfer ownership")
	}
	return nil
}

func (r *postgresRepository) SetAdmin(ctx context.Context, packID, userID string, admin bool) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `DELETE FROM pack_admins WHERE pack_id = $1 AND user_id = $2`
	if admin {
		query = `
			INSERT INTO pack_admins (pack_id, user_id)
			SELECT $1, $2 WHERE EXISTS (SELECT 1 FROM pack_members WHERE pack_id = $1 AND user_id = $2)
			ON CONFLICT (pack_id, user_id) DO NOTHING`
	}

	if _, err := r.db.Exec(ctx, query, packID, userID); err != nil {
		return mapErr(err, "set admin")
	}
	return nil
}

func (r *postgresRepository) UpsertInvitation(ctx context.Context, inv *Invitation) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO pack_invitations (id, pack_id, user_id, invited_by, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, $5)
		ON CONFLICT (pack_id, user_id) DO UPDATE
			SET status = 'pending', invited_by = EXCLUDED.invited_by, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query, inv.ID, inv.PackID, inv.UserID, inv.InvitedBy, inv.UpdatedAt).
		Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		if database.IsInvalidText(err) {
			return ErrUserNotFound
		}
		return mapErr(err, "upsert invitation")
	}

	inv.Status = InvitationPending
	return nil
}

func (r *postgresRepository) ListInvitations(ctx context.Context, userID string) ([]Invitation, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `
		SELECT i.id, i.pack_id, p.name, i.user_id, i.invited_by, i.status, i.created_at, i.updated_at
		FROM pack_invitations i
		JOIN packs p ON p.id = i.pack_id
		WHERE i.user_id = $1 AND i.status = 'pending'
		ORDER BY i.created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, mapErr(err, "list invitations")
	}
	defer rows.Close()

	list := make([]Invitation, 0)
	for rows.Next() {
		var inv Invitation
		err := rows.Scan(&inv.ID, &inv.PackID, &inv.PackName, &inv.UserID, &inv.InvitedBy,
			&inv.Status, &inv.CreatedAt, &inv.UpdatedAt)
		if err != nil {
			return nil, mapErr(err, "list invitations")
		}
		list = append(list, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err, "list invitations")
	}
	return list, nil
}

func (r *postgresRepository) DisplayName(ctx context.Context, userID string) (string, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	var name string
	err := r.db.QueryRow(ctx, `SELECT COALESCE(NULLIF(username, ''), fullname) FROM users WHERE id = $1`, userID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", mapErr(err, "get display name")
	}
	return name, nil
}
