package packs

import (
	"context"
	"errors"
	"testing"
	"time"

	"packtrack/internal/database"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

var packCols = []string{"id", "name", "description", "visibility", "owner_id", "share_code", "chat_enabled", "image_url", "created_at", "updated_at", "members", "admins"}

func newRepoWithMock(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepository(database.NewWithDB(db, time.Second)), mock
}

func packRow(id, ownerID, members, admins string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(packCols).
		AddRow(id, "Dawn Patrol", "", "private", ownerID, "AbCdEfGh12", true, "", now, now, members, admins)
}

func TestCreate_InsertsOwnerMembership(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT\s+INTO\s+packs\s*\(id,\s*name`).
		WithArgs("p1", "Dawn Patrol", "", "public", owner, "AbCdEfGh12", true, "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT\s+INTO\s+pack_members`).
		WithArgs("p1", owner, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p := &Pack{ID: "p1", Name: "Dawn Patrol", Visibility: VisibilityPublic, OwnerID: owner, ShareCode: "AbCdEfGh12", ChatEnabled: true, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if len(p.Members) != 1 || p.Members[0] != owner {
		t.Errorf("Expected owner as only member, got %v", p.Members)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_ShareCodeCollision(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT\s+INTO\s+packs`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "packs_share_code_key"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &Pack{ID: "p1", OwnerID: owner})
	if !errors.Is(err, errShareCodeTaken) {
		t.Fatalf("expected errShareCodeTaken, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGet_SplitsMembership(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM packs p WHERE p\.id = \$1`).
		WithArgs("p1").
		WillReturnRows(packRow("p1", owner, owner+","+rider, rider))

	p, err := repo.Get(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if p.MemberCount != 2 || !p.IsMember(rider) || !p.IsAdmin(rider) {
		t.Errorf("Unexpected membership: %+v", p)
	}
	if p.Visibility != VisibilityPrivate {
		t.Errorf("Expected private, got %s", p.Visibility)
	}
}

func TestGet_NoAdmins(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM packs p WHERE p\.id = \$1`).
		WillReturnRows(packRow("p1", owner, owner, ""))

	p, err := repo.Get(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if p.Admins == nil || len(p.Admins) != 0 {
		t.Errorf("Expected empty, non-nil admins, got %#v", p.Admins)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM packs p WHERE p\.id = \$1`).
		WillReturnRows(sqlmock.NewRows(packCols))
	mock.ExpectQuery(`FROM packs p WHERE p\.id = \$1`).
		WillReturnError(context.DeadlineExceeded)

	if _, err := repo.Get(context.Background(), "p1"); !errors.Is(err, ErrPackNotFound) {
		t.Errorf("expected ErrPackNotFound, got %v", err)
	}
	if _, err := repo.Get(context.Background(), "p1"); !errors.Is(err, database.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestGetByShareCode_Unknown(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`WHERE p\.share_code = \$1`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(packCols))

	if _, err := repo.GetByShareCode(context.Background(), "nope"); !errors.Is(err, ErrInvalidShareCode) {
		t.Errorf("expected ErrInvalidShareCode, got %v", err)
	}
}

func TestJoin_RequiresInvitation(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE pack_invitations SET status = 'accepted'`).
		WithArgs("p1", rider, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Join(context.Background(), "p1", rider, true)
	if !errors.Is(err, ErrInvitationRequired) {
		t.Fatalf("expected ErrInvitationRequired, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestJoin_AcceptsInvitationWithMembership(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE pack_invitations SET status = 'accepted'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO pack_members .* ON CONFLICT \(pack_id, user_id\) DO NOTHING`).
		WithArgs("p1", rider, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.Join(context.Background(), "p1", rider, true); err != nil {
		t.Fatalf("Join error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestJoin_AlreadyMemberRollsBack(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE pack_invitations`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO pack_members`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	if err := repo.Join(context.Background(), "p1", rider, false); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("expected ErrAlreadyMember, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestJoin_MissingPack(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE pack_invitations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO pack_members`).
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "pack_members_pack_id_fkey"})
	mock.ExpectRollback()

	if err := repo.Join(context.Background(), "p1", rider, false); !errors.Is(err, ErrPackNotFound) {
		t.Fatalf("expected ErrPackNotFound, got %v", err)
	}
}

func TestRemoveMember_Owner(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM pack_members m USING packs p .* p\.owner_id <> \$2`).
		WithArgs("p1", owner).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT p\.owner_id`).
		WithArgs("p1", owner).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "member"}).AddRow(owner, true))
	mock.ExpectRollback()

	if err := repo.RemoveMember(context.Background(), "p1", owner); !errors.Is(err, ErrOwnerCannotLeave) {
		t.Fatalf("expected ErrOwnerCannotLeave, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRemoveMember_NotMember(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM pack_members`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT p\.owner_id`).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "member"}).AddRow(owner, false))
	mock.ExpectRollback()

	if err := repo.RemoveMember(context.Background(), "p1", rider); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
}

func TestRemoveMember_DropsAdminRole(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM pack_members`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM pack_admins WHERE pack_id = \$1 AND user_id = \$2`).
		WithArgs("p1", rider).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.RemoveMember(context.Background(), "p1", rider); err != nil {
		t.Fatalf("RemoveMember error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTransferOwnership_NotOwner(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE packs SET owner_id = \$3`).
		WithArgs("p1", rider, stranger, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT p\.owner_id`).
		WithArgs("p1", stranger).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "member"}).AddRow(owner, true))
	mock.ExpectRollback()

	if err := repo.TransferOwnership(context.Background(), "p1", rider, stranger); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestDelete_NotOwner(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`DELETE FROM packs WHERE id = \$1 AND owner_id = \$2`).
		WithArgs("p1", rider).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT p\.owner_id`).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "member"}).AddRow(owner, true))

	if err := repo.Delete(context.Background(), "p1", rider); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestUpsertInvitation_UnknownUser(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT INTO pack_invitations .* ON CONFLICT \(pack_id, user_id\) DO UPDATE`).
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "pack_invitations_user_id_fkey"})

	inv := &Invitation{ID: "i1", PackID: "p1", UserID: stranger, InvitedBy: owner, UpdatedAt: time.Now()}
	if err := repo.UpsertInvitation(context.Background(), inv); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUpsertInvitation_ReopensExisting(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	created := time.Now().Add(-time.Hour)

	mock.ExpectQuery(`INSERT INTO pack_invitations`).
		WithArgs("i2", "p1", rider, owner, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("i1", created))

	inv := &Invitation{ID: "i2", PackID: "p1", UserID: rider, InvitedBy: owner, UpdatedAt: time.Now()}
	if err := repo.UpsertInvitation(context.Background(), inv); err != nil {
		t.Fatalf("UpsertInvitation error: %v", err)
	}
	if inv.ID != "i1" || inv.Status != InvitationPending {
		t.Errorf("Expected the existing invitation reopened, got %+v", inv)
	}
}

func TestListPublic_ClampsLimit(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`WHERE p\.visibility = 'public' .* LIMIT \$1 OFFSET \$2`).
		WithArgs(maxPublicListed, 0).
		WillReturnRows(packRow("p1", owner, owner, ""))

	list, err := repo.ListPublic(context.Background(), 5000, -3)
	if err != nil {
		t.Fatalf("ListPublic error: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("Expected one pack, got %d", len(list))
	}
}

func TestListMembers(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`FROM pack_members m`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "fullname", "profile_pic_url", "role", "joined_at"}).
			AddRow(owner, "olivia", "Olivia", "", "owner", now).
			AddRow(rider, nil, "Ravi", "", "member", now))

	members, err := repo.ListMembers(context.Background(), "p1")
	if err != nil {
		t.Fatalf("ListMembers error: %v", err)
	}
	if len(members) != 2 || members[0].Role != RoleOwner || members[1].Username != nil {
		t.Errorf("Unexpected members: %+v", members)
	}
}
