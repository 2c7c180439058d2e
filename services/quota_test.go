package services

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/sharebox/models"
)

func TestDecide(t *testing.T) {
	cases := []struct {
		name      string
		role      models.Role
		ceiling   int64
		used      int64
		incoming  int64
		allowed   bool
		available int64
	}{
		{"fits", models.RoleUser, 100, 40, 60, true, 60},
		{"exactly full", models.RoleUser, 100, 100, 0, true, 0},
		{"one over", models.RoleUser, 100, 40, 61, false, 60},
		{"already over", models.RoleUser, 100, 150, 1, false, 0},
		{"150MB into empty 100MB", models.RoleUser, 100 * mb, 0, 150 * mb, false, 100 * mb},
		{"unlimited role", models.RoleUnlimited, 100, 100, 1 << 40, true, -1},
		{"admin role", models.RoleAdmin, 100, 500, 1 << 40, true, -1},
		{"negative ceiling", models.RoleUser, -1, 500, 1 << 40, true, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Decide(tc.role, tc.ceiling, tc.used, tc.incoming)
			assert.Equal(t, tc.allowed, got.Allowed)
			assert.Equal(t, tc.available, got.Available)
		})
	}
}

func TestDecide_AdmitsIffWithinCeiling(t *testing.T) {
	const ceiling = int64(50)
	for used := int64(0); used <= 60; used += 5 {
		for size := int64(0); size <= 60; size += 5 {
			got := Decide(models.RoleUser, ceiling, used, size)
			assert.Equal(t, used+size <= ceiling, got.Allowed, "used=%d size=%d", used, size)
		}
	}
}

func TestCurrentUsage(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	u := f.user(t, "a@example.com", models.RoleUser, 100*mb)
	other := f.user(t, "b@example.com", models.RoleUser, 100*mb)

	used, err := f.quota.CurrentUsage(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, used)

	f.upload(t, u.ID, "a.bin", "", bytesOf(300))
	f.upload(t, u.ID, "b.bin", "", bytesOf(700))
	f.upload(t, other.ID, "c.bin", "", bytesOf(50))

	used, err = f.quota.CurrentUsage(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), used)
}

func TestCanAdmit_Strict(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	u := f.user(t, "a@example.com", models.RoleUser, 1000)
	f.upload(t, u.ID, "a.bin", "", bytesOf(600))

	q := NewQuotaAccountant(f.db, true)
	err := f.db.Transaction(func(tx *gorm.DB) error {
		adm, err := q.WithDB(tx).CanAdmit(ctx, u.ID, u.Role, u.StorageLimitBytes, 500)
		require.NoError(t, err)
		assert.False(t, adm.Allowed)
		assert.Equal(t, int64(400), adm.Available)
		assert.Equal(t, int64(600), adm.CurrentUsed)
		return nil
	})
	require.NoError(t, err)

	_, err = q.CanAdmit(ctx, 9999, models.RoleUser, 1000, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCurrentUsage_PersistenceFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer sqlDB.Close()

	gdb, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}),
		&gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	driverErr := errors.New("dial tcp 10.0.0.5:3306: connection refused")
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(size_bytes\), 0\) FROM .files.`).
		WithArgs(7).
		WillReturnError(driverErr)

	q := NewQuotaAccountant(gdb, false)
	_, err = q.CurrentUsage(context.Background(), 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, driverErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCurrentUsage_Scan(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer sqlDB.Close()

	gdb, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}),
		&gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(size_bytes\), 0\) FROM .files. WHERE user_id = \?`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(12345)))

	used, err := NewQuotaAccountant(gdb, false).CurrentUsage(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), used)
	require.NoError(t, mock.ExpectationsWereMet())
}
