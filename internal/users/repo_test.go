package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/avelarde/boostpanel-backend/pkg/db/models"
)

func setupUsersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'user',
  balance NUMERIC NOT NULL DEFAULT 0,
  discount_percent NUMERIC NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func seedUser(t *testing.T, db *gorm.DB, balance string) *models.User {
	t.Helper()
	user := &models.User{
		ID:      uuid.New(),
		Email:   uuid.NewString() + "@example.com",
		Balance: decimal.RequireFromString(balance),
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestDebitBalanceSucceedsWhenCovered(t *testing.T) {
	db := setupUsersTestDB(t)
	repo := NewRepository(db)
	user := seedUser(t, db, "10.00000")

	applied, err := repo.DebitBalance(context.Background(), user.ID, decimal.RequireFromString("4.25"))
	require.NoError(t, err)
	assert.True(t, applied)

	fresh, err := repo.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, fresh.Balance.Equal(decimal.RequireFromString("5.75")), "got %s", fresh.Balance)
}

func TestDebitBalanceRefusesOverdraft(t *testing.T) {
	db := setupUsersTestDB(t)
	repo := NewRepository(db)
	user := seedUser(t, db, "3.00")

	applied, err := repo.DebitBalance(context.Background(), user.ID, decimal.RequireFromString("3.01"))
	require.NoError(t, err)
	assert.False(t, applied)

	fresh, err := repo.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, fresh.Balance.Equal(decimal.RequireFromString("3.00")))
}

func TestDebitThenCreditRoundTrips(t *testing.T) {
	db := setupUsersTestDB(t)
	repo := NewRepository(db)
	user := seedUser(t, db, "7.50000")

	applied, err := repo.DebitBalance(context.Background(), user.ID, decimal.RequireFromString("2.50000"))
	require.NoError(t, err)
	require.True(t, applied)

	require.NoError(t, repo.CreditBalance(context.Background(), user.ID, decimal.RequireFromString("2.50000")))

	fresh, err := repo.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, fresh.Balance.Equal(decimal.RequireFromString("7.50000")))
}

func TestCreditBalanceUnknownUser(t *testing.T) {
	db := setupUsersTestDB(t)
	repo := NewRepository(db)

	err := repo.CreditBalance(context.Background(), uuid.New(), decimal.RequireFromString("1"))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
