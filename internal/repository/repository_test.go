package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/otcheredev/cabinet-bootstrap/internal/failure"
	"github.com/otcheredev/cabinet-bootstrap/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestCabinetRepository_FindByOwner(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCabinetRepository(db)

	ownerID := uuid.New()
	cabinetID := uuid.New()
	mock.ExpectQuery(`SELECT \* FROM "cabinets" WHERE owner_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "owner_id", "status"}).
			AddRow(cabinetID.String(), "Cabinet de Jean", ownerID.String(), "active"))

	cabinet, err := repo.FindByOwner(context.Background(), ownerID)
	require.NoError(t, err)
	assert.Equal(t, cabinetID, cabinet.ID)
	assert.Equal(t, ownerID, cabinet.OwnerID)
	assert.Equal(t, models.CabinetStatusActive, cabinet.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCabinetRepository_FindByOwnerNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCabinetRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "cabinets" WHERE owner_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindByOwner(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCabinetRepository_PolicyErrorIsClassifiable(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCabinetRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "cabinets" WHERE owner_id = \$1`).
		WillReturnError(&pgconn.PgError{Code: "42P17", Message: `infinite recursion detected in policy for relation "cabinets"`})

	_, err := repo.FindByOwner(context.Background(), uuid.New())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "failed to get cabinet by owner")
	assert.True(t, failure.RetryViaPrivileged(err))
}

func TestCabinetRepository_Update(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCabinetRepository(db)

	id := uuid.New()
	mock.ExpectExec(`UPDATE "cabinets" SET .*"city"=\$1.*WHERE id = \$`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), id, models.CabinetFields{City: "Lyon"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCabinetRepository_CreateViaProcedure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCabinetRepository(db)

	ownerID := uuid.New()
	mock.ExpectExec(`SELECT create_cabinet_for_owner\(\$1, \$2, \$3\)`).
		WithArgs(sqlmock.AnyArg(), "Cabinet de Jean", "Paris").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CreateViaProcedure(context.Background(), ownerID, "Cabinet de Jean", "Paris"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberRepository_FindByContact(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMemberRepository(db)

	memberID := uuid.New()
	cabinetID := uuid.New()
	mock.ExpectQuery(`SELECT \* FROM "team_members" WHERE lower\(contact\) = \$1 ORDER BY created_at ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "cabinet_id", "contact", "role", "is_admin", "is_owner"}).
			AddRow(memberID.String(), cabinetID.String(), "jean@example.com", "dentist", true, false))

	member, err := repo.FindByContact(context.Background(), "  Jean@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, memberID, member.ID)
	assert.Equal(t, cabinetID, member.CabinetID)
	assert.True(t, member.IsAdmin)
	assert.False(t, member.IsOwner)
	assert.Nil(t, member.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberRepository_FindByCabinetAndContactNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMemberRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "team_members" WHERE cabinet_id = \$1 AND lower\(contact\) = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindByCabinetAndContact(context.Background(), uuid.New(), "jean@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemberRepository_UpdateDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMemberRepository(db)

	cabinetID := uuid.New()
	isAdmin := true
	mock.ExpectExec(`UPDATE "team_members" SET`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "team_members_cabinet_contact_key"})

	err := repo.Update(context.Background(), uuid.New(), models.MemberUpdate{
		CabinetID: &cabinetID,
		IsAdmin:   &isAdmin,
		UpdatedAt: time.Now(),
	})
	require.Error(t, err)
	assert.True(t, failure.IsDuplicate(err))
}

func TestMemberRepository_UpdateMissingRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMemberRepository(db)

	isAdmin := true
	mock.ExpectExec(`UPDATE "team_members" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), uuid.New(), models.MemberUpdate{
		IsAdmin:   &isAdmin,
		UpdatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberRepository_GetByCabinetID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMemberRepository(db)

	cabinetID := uuid.New()
	mock.ExpectQuery(`SELECT \* FROM "team_members" WHERE cabinet_id = \$1 ORDER BY is_owner DESC, created_at ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "cabinet_id", "contact", "is_owner"}).
			AddRow(uuid.New().String(), cabinetID.String(), "owner@example.com", true).
			AddRow(uuid.New().String(), cabinetID.String(), "anne@example.com", false))

	members, err := repo.GetByCabinetID(context.Background(), cabinetID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.True(t, members[0].IsOwner)
}

func TestProfileRepository_Upsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProfileRepository(db)

	mock.ExpectExec(`INSERT INTO "profiles" .* ON CONFLICT \("id"\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &models.Profile{
		ID:        uuid.New(),
		Email:     "jean@example.com",
		FirstName: "Jean",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_GetByUserID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepository(db)

	userID := uuid.New()
	mock.ExpectQuery(`SELECT \* FROM "bootstrap_audit_logs" WHERE user_id = \$1 ORDER BY created_at DESC LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "outcome", "entry_point"}).
			AddRow(uuid.New().String(), userID.String(), "partial", "signup"))

	logs, err := repo.GetByUserID(context.Background(), userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.OutcomePartial, logs[0].Outcome)
	assert.Equal(t, models.EntrySignup, logs[0].EntryPoint)
}
