package refund

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/avelarde/boostpanel-backend/internal/orders"
	"github.com/avelarde/boostpanel-backend/internal/users"
	"github.com/avelarde/boostpanel-backend/pkg/db/models"
	"github.com/avelarde/boostpanel-backend/pkg/enums"
)

type sqliteTxRunner struct {
	db *gorm.DB
}

func (r *sqliteTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type capturingSink struct {
	events []models.AuditEvent
}

func (s *capturingSink) Record(_ context.Context, event models.AuditEvent) {
	s.events = append(s.events, event)
}

func setupRefundTestDB(t *testing.T) *gorm.DB {
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
);
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  service_id TEXT NOT NULL,
  provider_id TEXT,
  provider_order_id TEXT,
  link TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  comments TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  charge_user NUMERIC NOT NULL,
  cost_provider NUMERIC,
  start_count INTEGER,
  remains INTEGER,
  cancel_requested_at DATETIME,
  refunded INTEGER NOT NULL DEFAULT 0,
  refund_amount NUMERIC,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func seedRefundFixture(t *testing.T, db *gorm.DB, balance, charge string) (*models.User, *models.Order) {
	t.Helper()
	user := &models.User{
		ID:      uuid.New(),
		Email:   uuid.NewString() + "@example.com",
		Balance: decimal.RequireFromString(balance),
	}
	require.NoError(t, db.Create(user).Error)

	order := &models.Order{
		ID:         uuid.New(),
		UserID:     user.ID,
		ServiceID:  uuid.New(),
		Link:       "https://example.com/p/1",
		Quantity:   1000,
		Status:     enums.OrderStatusCanceled,
		ChargeUser: decimal.RequireFromString(charge),
	}
	require.NoError(t, db.Create(order).Error)
	return user, order
}

func newTestLedger(t *testing.T, db *gorm.DB, sink *capturingSink) *Ledger {
	t.Helper()
	var sinkIface auditSink
	if sink != nil {
		sinkIface = sink
	}
	ledger, err := NewLedger(&sqliteTxRunner{db: db}, orders.NewRepository(db), users.NewRepository(db), sinkIface, nil)
	require.NoError(t, err)
	return ledger
}

func TestPartialRefundProRata(t *testing.T) {
	charge := decimal.RequireFromString("5.00000")

	amount := Partial(charge, 1000, 200)
	assert.True(t, amount.Equal(decimal.RequireFromString("1.00000")), "got %s", amount)
}

func TestPartialRefundClampsToCharge(t *testing.T) {
	charge := decimal.RequireFromString("5.00000")

	amount := Partial(charge, 1000, 1500)
	assert.True(t, amount.Equal(charge), "got %s", amount)
}

func TestPartialRefundZeroOnBadInputs(t *testing.T) {
	charge := decimal.RequireFromString("5.00000")

	assert.True(t, Partial(charge, 0, 200).IsZero())
	assert.True(t, Partial(charge, 1000, 0).IsZero())
	assert.True(t, Partial(charge, 1000, -5).IsZero())
}

func TestApplyCreditsBalanceAndStampsOrder(t *testing.T) {
	db := setupRefundTestDB(t)
	sink := &capturingSink{}
	ledger := newTestLedger(t, db, sink)
	user, order := seedRefundFixture(t, db, "2.00000", "5.00000")

	applied, err := ledger.Apply(context.Background(), order, Full(order.ChargeUser))
	require.NoError(t, err)
	assert.True(t, applied)

	var freshUser models.User
	require.NoError(t, db.First(&freshUser, "id = ?", user.ID).Error)
	assert.True(t, freshUser.Balance.Equal(decimal.RequireFromString("7.00000")), "got %s", freshUser.Balance)

	var freshOrder models.Order
	require.NoError(t, db.First(&freshOrder, "id = ?", order.ID).Error)
	assert.True(t, freshOrder.Refunded)
	require.NotNil(t, freshOrder.RefundAmount)
	assert.True(t, freshOrder.RefundAmount.Equal(order.ChargeUser))

	require.Len(t, sink.events, 1)
	assert.Equal(t, "order.refunded", sink.events[0].Action)
}

func TestApplyIsIdempotentPerOrder(t *testing.T) {
	db := setupRefundTestDB(t)
	sink := &capturingSink{}
	ledger := newTestLedger(t, db, sink)
	user, order := seedRefundFixture(t, db, "0", "5.00000")

	applied, err := ledger.Apply(context.Background(), order, Full(order.ChargeUser))
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = ledger.Apply(context.Background(), order, Full(order.ChargeUser))
	require.NoError(t, err)
	assert.False(t, applied)

	var freshUser models.User
	require.NoError(t, db.First(&freshUser, "id = ?", user.ID).Error)
	assert.True(t, freshUser.Balance.Equal(decimal.RequireFromString("5.00000")), "credited more than once: %s", freshUser.Balance)

	assert.Len(t, sink.events, 1)
}

func TestApplyRollsBackClaimWhenCreditFails(t *testing.T) {
	db := setupRefundTestDB(t)
	ledger := newTestLedger(t, db, nil)
	_, order := seedRefundFixture(t, db, "0", "5.00000")

	// Point the order at a user that does not exist so the credit fails
	// after the claim succeeded inside the transaction.
	order.UserID = uuid.New()
	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", order.ID).UpdateColumn("user_id", order.UserID).Error)

	_, err := ledger.Apply(context.Background(), order, Full(order.ChargeUser))
	require.Error(t, err)

	var freshOrder models.Order
	require.NoError(t, db.First(&freshOrder, "id = ?", order.ID).Error)
	assert.False(t, freshOrder.Refunded, "claim must roll back with the failed credit")
}

func TestApplyCapsAmountAtCharge(t *testing.T) {
	db := setupRefundTestDB(t)
	ledger := newTestLedger(t, db, nil)
	user, order := seedRefundFixture(t, db, "0", "5.00000")

	applied, err := ledger.Apply(context.Background(), order, decimal.RequireFromString("9.99"))
	require.NoError(t, err)
	require.True(t, applied)

	var freshUser models.User
	require.NoError(t, db.First(&freshUser, "id = ?", user.ID).Error)
	assert.True(t, freshUser.Balance.Equal(decimal.RequireFromString("5.00000")))
}
