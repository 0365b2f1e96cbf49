package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/avelarde/boostpanel-backend/internal/providers"
	"github.com/avelarde/boostpanel-backend/internal/users"
	"github.com/avelarde/boostpanel-backend/pkg/config"
	"github.com/avelarde/boostpanel-backend/pkg/db/models"
	"github.com/avelarde/boostpanel-backend/pkg/enums"
	pkgerrors "github.com/avelarde/boostpanel-backend/pkg/errors"
)

type stubTx struct{}

func (stubTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubOrdersRepo struct {
	byID      map[uuid.UUID]*models.Order
	duplicate bool
}

func newStubOrdersRepo() *stubOrdersRepo {
	return &stubOrdersRepo{byID: map[uuid.UUID]*models.Order{}}
}

func (s *stubOrdersRepo) WithTx(*gorm.DB) Repository { return s }

func (s *stubOrdersRepo) Create(_ context.Context, order *models.Order) error {
	stored := *order
	s.byID[order.ID] = &stored
	return nil
}

func (s *stubOrdersRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	stored, ok := s.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *stored
	return &copied, nil
}

func (s *stubOrdersRepo) ListByUser(_ context.Context, userID uuid.UUID, _ ListFilters) ([]models.Order, error) {
	var out []models.Order
	for _, o := range s.byID {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *stubOrdersRepo) HasRecentDuplicate(context.Context, uuid.UUID, uuid.UUID, string, time.Time) (bool, error) {
	return s.duplicate, nil
}

func (s *stubOrdersRepo) AttachProviderOrderID(_ context.Context, id uuid.UUID, providerOrderID string) error {
	stored, ok := s.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.ProviderOrderID = &providerOrderID
	return nil
}

func (s *stubOrdersRepo) ListPollable(context.Context, int) ([]models.Order, error) {
	return nil, nil
}

func (s *stubOrdersRepo) UpdateStatusProgress(_ context.Context, id uuid.UUID, progress StatusProgress) error {
	stored, ok := s.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.Status = progress.Status
	if progress.StartCount != nil {
		stored.StartCount = progress.StartCount
	}
	if progress.Remains != nil {
		stored.Remains = progress.Remains
	}
	return nil
}

func (s *stubOrdersRepo) SetCancelRequested(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	stored, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	if stored.CancelRequestedAt != nil {
		return false, nil
	}
	stored.CancelRequestedAt = &at
	return true, nil
}

func (s *stubOrdersRepo) ClaimRefund(_ context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	stored, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	if stored.Refunded {
		return false, nil
	}
	stored.Refunded = true
	stored.RefundAmount = &amount
	return true, nil
}

type stubUsersRepo struct {
	user *models.User
}

func (s *stubUsersRepo) WithTx(*gorm.DB) users.Repository { return s }

func (s *stubUsersRepo) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s.user
	return &copied, nil
}

func (s *stubUsersRepo) DebitBalance(_ context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	if s.user == nil || s.user.ID != id {
		return false, nil
	}
	if s.user.Balance.LessThan(amount) {
		return false, nil
	}
	s.user.Balance = s.user.Balance.Sub(amount)
	return true, nil
}

func (s *stubUsersRepo) CreditBalance(_ context.Context, id uuid.UUID, amount decimal.Decimal) error {
	if s.user == nil || s.user.ID != id {
		return gorm.ErrRecordNotFound
	}
	s.user.Balance = s.user.Balance.Add(amount)
	return nil
}

type stubCatalog struct {
	service *models.Service
}

func (s *stubCatalog) FindServiceByID(_ context.Context, id uuid.UUID) (*models.Service, error) {
	if s.service == nil || s.service.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s.service
	return &copied, nil
}

type stubRates struct {
	rate *decimal.Decimal
}

func (s *stubRates) CustomRate(context.Context, uuid.UUID, uuid.UUID) (*decimal.Decimal, error) {
	return s.rate, nil
}

type stubProviderStore struct {
	provider *models.Provider
	err      error
}

func (s *stubProviderStore) FindByID(_ context.Context, id uuid.UUID) (*models.Provider, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.provider == nil || s.provider.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s.provider
	return &copied, nil
}

type stubGateway struct {
	submitID    string
	submitErr   error
	cancelErr   error
	refillAck   int64
	refillErr   error
	submitCalls []providers.SubmitRequest
	cancelCalls []string
	refillCalls []string
}

func (g *stubGateway) Submit(_ context.Context, req providers.SubmitRequest) (string, error) {
	g.submitCalls = append(g.submitCalls, req)
	if g.submitErr != nil {
		return "", g.submitErr
	}
	return g.submitID, nil
}

func (g *stubGateway) Status(context.Context, string) (*providers.StatusResult, error) {
	return nil, errors.New("not implemented")
}

func (g *stubGateway) Cancel(_ context.Context, providerOrderID string) (*providers.AckResult, error) {
	g.cancelCalls = append(g.cancelCalls, providerOrderID)
	if g.cancelErr != nil {
		return nil, g.cancelErr
	}
	return &providers.AckResult{Accepted: true, AckID: 1}, nil
}

func (g *stubGateway) Refill(_ context.Context, providerOrderID string) (*providers.AckResult, error) {
	g.refillCalls = append(g.refillCalls, providerOrderID)
	if g.refillErr != nil {
		return nil, g.refillErr
	}
	return &providers.AckResult{Accepted: true, AckID: g.refillAck}, nil
}

func (g *stubGateway) ListServices(context.Context) ([]providers.ServiceDescriptor, error) {
	return nil, errors.New("not implemented")
}

func (g *stubGateway) Balance(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("not implemented")
}

type stubLimiter struct {
	allowed bool
	err     error
}

func (s *stubLimiter) FixedWindowAllow(context.Context, string, int64, time.Duration) (bool, int64, error) {
	return s.allowed, 0, s.err
}

type intakeFixture struct {
	svc       *Service
	orders    *stubOrdersRepo
	users     *stubUsersRepo
	gateway   *stubGateway
	limiter   *stubLimiter
	providers *stubProviderStore
	user      *models.User
	service   *models.Service
	provider  *models.Provider
}

func newIntakeFixture(t *testing.T) *intakeFixture {
	t.Helper()

	provider := &models.Provider{ID: uuid.New(), Name: "acme-panel", APIURL: "http://provider.test", APIKey: "k", Enabled: true}
	providerServiceID := "77"
	service := &models.Service{
		ID:                uuid.New(),
		Name:              "Followers",
		Type:              enums.ServiceTypeDefault,
		ProviderID:        &provider.ID,
		ProviderServiceID: &providerServiceID,
		Enabled:           true,
		RatePer1000:       decimal.RequireFromString("1.00"),
		MinQuantity:       10,
		MaxQuantity:       10000,
		SupportsRefill:    true,
		SupportsCancel:    true,
	}
	user := &models.User{
		ID:              uuid.New(),
		Email:           "buyer@example.com",
		Balance:         decimal.RequireFromString("10.00000"),
		DiscountPercent: decimal.RequireFromString("10"),
	}

	f := &intakeFixture{
		orders:    newStubOrdersRepo(),
		users:     &stubUsersRepo{user: user},
		gateway:   &stubGateway{submitID: "998877", refillAck: 42},
		limiter:   &stubLimiter{allowed: true},
		providers: &stubProviderStore{provider: provider},
		user:      user,
		service:   service,
		provider:  provider,
	}

	svc, err := NewService(ServiceParams{
		Tx:        stubTx{},
		Orders:    f.orders,
		Users:     f.users,
		Catalog:   &stubCatalog{service: service},
		Rules:     &stubRates{},
		Providers: f.providers,
		Gateways:  func(*models.Provider) providers.Gateway { return f.gateway },
		Limiter:   f.limiter,
		Config: config.IntakeConfig{
			RateLimitWindow:     time.Hour,
			RateLimitMax:        50,
			DuplicateLinkWindow: 72 * time.Hour,
			MaxLinkLength:       500,
			DefaultPageSize:     25,
			MaxPageSize:         100,
		},
		Now: func() time.Time { return time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func validCreateRequest(f *intakeFixture) CreateOrderRequest {
	return CreateOrderRequest{
		ServiceID: f.service.ID,
		Link:      "https://example.com/p/1",
		Quantity:  500,
	}
}

func codeOf(t *testing.T, err error) pkgerrors.Code {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected a coded error, got %v", err)
	return typed.Code()
}

func TestCreateDebitsChargesAndSubmits(t *testing.T) {
	f := newIntakeFixture(t)

	resp, err := f.svc.Create(context.Background(), f.user.ID, validCreateRequest(f))
	require.NoError(t, err)

	// 1.00 per 1000, 10% discount, 500 units.
	assert.True(t, resp.ChargeUser.Equal(decimal.RequireFromString("0.45")), "got %s", resp.ChargeUser)
	assert.True(t, f.user.Balance.Equal(decimal.RequireFromString("9.55")), "got %s", f.user.Balance)
	assert.Equal(t, enums.OrderStatusPending, resp.Status)

	require.Len(t, f.gateway.submitCalls, 1)
	assert.Equal(t, "77", f.gateway.submitCalls[0].ServiceID)

	stored, err := f.orders.FindByID(context.Background(), resp.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ProviderOrderID)
	assert.Equal(t, "998877", *stored.ProviderOrderID)
}

func TestCreateUsesCustomRate(t *testing.T) {
	f := newIntakeFixture(t)
	custom := decimal.RequireFromString("0.50")
	svc, err := NewService(ServiceParams{
		Tx:        stubTx{},
		Orders:    f.orders,
		Users:     f.users,
		Catalog:   &stubCatalog{service: f.service},
		Rules:     &stubRates{rate: &custom},
		Providers: &stubProviderStore{provider: f.provider},
		Gateways:  func(*models.Provider) providers.Gateway { return f.gateway },
		Config:    config.IntakeConfig{DuplicateLinkWindow: time.Hour, MaxLinkLength: 500},
	})
	require.NoError(t, err)

	resp, err := svc.Create(context.Background(), f.user.ID, validCreateRequest(f))
	require.NoError(t, err)
	// 0.50 per 1000 with 10% discount for 500 units.
	assert.True(t, resp.ChargeUser.Equal(decimal.RequireFromString("0.225")), "got %s", resp.ChargeUser)
}

func TestCreateInsufficientBalance(t *testing.T) {
	f := newIntakeFixture(t)
	f.user.Balance = decimal.RequireFromString("0.10")

	_, err := f.svc.Create(context.Background(), f.user.ID, validCreateRequest(f))
	assert.Equal(t, pkgerrors.CodeInsufficientBalance, codeOf(t, err))
	assert.Empty(t, f.gateway.submitCalls)
	assert.True(t, f.user.Balance.Equal(decimal.RequireFromString("0.10")))
}

func TestCreateRejectsDisabledService(t *testing.T) {
	f := newIntakeFixture(t)
	f.service.Enabled = false

	_, err := f.svc.Create(context.Background(), f.user.ID, validCreateRequest(f))
	assert.Equal(t, pkgerrors.CodeValidation, codeOf(t, err))
}

func TestCreateRejectsQuantityOutOfBounds(t *testing.T) {
	f := newIntakeFixture(t)

	req := validCreateRequest(f)
	req.Quantity = 5
	_, err := f.svc.Create(context.Background(), f.user.ID, req)
	assert.Equal(t, pkgerrors.CodeValidation, codeOf(t, err))

	req.Quantity = 20000
	_, err = f.svc.Create(context.Background(), f.user.ID, req)
	assert.Equal(t, pkgerrors.CodeValidation, codeOf(t, err))
}

func TestCreateRejectsBadLink(t *testing.T) {
	f := newIntakeFixture(t)

	req := validCreateRequest(f)
	req.Link = "ftp://example.com/x"
	_, err := f.svc.Create(context.Background(), f.user.ID, req)
	assert.Equal(t, pkgerrors.CodeValidation, codeOf(t, err))
}

func TestCreateRejectsDuplicateLink(t *testing.T) {
	f := newIntakeFixture(t)
	f.orders.duplicate = true

	_, err := f.svc.Create(context.Background(), f.user.ID, validCreateRequest(f))
	assert.Equal(t, pkgerrors.CodeConflict, codeOf(t, err))
}

func TestCreateRateLimited(t *testing.T) {
	f := newIntakeFixture(t)
	f.limiter.allowed = false

	_, err := f.svc.Create(context.Background(), f.user.ID, validCreateRequest(f))
	assert.Equal(t, pkgerrors.CodeRateLimit, codeOf(t, err))
}

func TestCreateAllowsWhenLimiterDown(t *testing.T) {
	f := newIntakeFixture(t)
	f.limiter.err = errors.New("redis gone")

	_, err := f.svc.Create(context.Background(), f.user.ID, validCreateRequest(f))
	assert.NoError(t, err)
}

func TestCreateCommentsMustMatchQuantity(t *testing.T) {
	f := newIntakeFixture(t)
	f.service.Type = enums.ServiceTypeCustomComments
	f.service.MinQuantity = 1

	req := validCreateRequest(f)
	req.Quantity = 10
	comments := "first\nsecond\nthird"
	req.Comments = &comments
	_, err := f.svc.Create(context.Background(), f.user.ID, req)
	assert.Equal(t, pkgerrors.CodeValidation, codeOf(t, err))

	req.Quantity = 3
	_, err = f.svc.Create(context.Background(), f.user.ID, req)
	assert.NoError(t, err)
}

func TestCreateProviderFailureHoldsOrderPending(t *testing.T) {
	f := newIntakeFixture(t)
	f.gateway.submitErr = errors.New("not enough funds")

	resp, err := f.svc.Create(context.Background(), f.user.ID, validCreateRequest(f))
	require.NoError(t, err, "submission failure is not a failure of the request")
	assert.Equal(t, enums.OrderStatusPending, resp.Status)

	// The debit stands; a later reconcile pass retries the submission.
	assert.True(t, f.user.Balance.Equal(decimal.RequireFromString("9.55")), "got %s", f.user.Balance)
	require.Len(t, f.orders.byID, 1)
	for _, stored := range f.orders.byID {
		assert.Equal(t, enums.OrderStatusPending, stored.Status)
		assert.Nil(t, stored.ProviderOrderID)
		assert.False(t, stored.Refunded)
	}
}

func TestCreateProviderLoadFailureHoldsOrderPending(t *testing.T) {
	f := newIntakeFixture(t)
	f.providers.err = errors.New("connection reset")

	resp, err := f.svc.Create(context.Background(), f.user.ID, validCreateRequest(f))
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, resp.Status)
	assert.True(t, f.user.Balance.Equal(decimal.RequireFromString("9.55")), "got %s", f.user.Balance)
}

func TestCancelUnsubmittedRefundsImmediately(t *testing.T) {
	f := newIntakeFixture(t)
	f.service.ProviderID = nil
	f.service.ProviderServiceID = nil

	resp, err := f.svc.Create(context.Background(), f.user.ID, validCreateRequest(f))
	require.NoError(t, err)
	require.True(t, f.user.Balance.Equal(decimal.RequireFromString("9.55")))

	canceled, err := f.svc.RequestCancellation(context.Background(), f.user.ID, enums.UserRoleUser, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCanceled, canceled.Status)
	assert.True(t, canceled.Refunded)
	assert.True(t, f.user.Balance.Equal(decimal.RequireFromString("10.00000")))
	assert.Empty(t, f.gateway.cancelCalls)
}

func TestCancelSubmittedStampsOnceAndForwards(t *testing.T) {
	f := newIntakeFixture(t)

	resp, err := f.svc.Create(context.Background(), f.user.ID, validCreateRequest(f))
	require.NoError(t, err)

	canceled, err := f.svc.RequestCancellation(context.Background(), f.user.ID, enums.UserRoleUser, resp.ID)
	require.NoError(t, err)
	assert.NotNil(t, canceled.CancelRequestedAt)
	assert.False(t, canceled.Refunded, "refund belongs to the reconcile loop")
	assert.Equal(t, []string{"998877"}, f.gateway.cancelCalls)

	_, err = f.svc.RequestCancellation(context.Background(), f.user.ID, enums.UserRoleUser, resp.ID)
	assert.Equal(t, pkgerrors.CodeStateConflict, codeOf(t, err))
}

func TestCancelProviderRefusalLeavesOrderUnstamped(t *testing.T) {
	f := newIntakeFixture(t)
	f.gateway.cancelErr = errors.New("order too old")

	resp, err := f.svc.Create(context.Background(), f.user.ID, validCreateRequest(f))
	require.NoError(t, err)

	_, err = f.svc.RequestCancellation(context.Background(), f.user.ID, enums.UserRoleUser, resp.ID)
	assert.Equal(t, pkgerrors.CodeProvider, codeOf(t, err))

	// No stamp consumed: the user can retry once the provider recovers.
	stored, err := f.orders.FindByID(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.CancelRequestedAt)

	f.gateway.cancelErr = nil
	canceled, err := f.svc.RequestCancellation(context.Background(), f.user.ID, enums.UserRoleUser, resp.ID)
	require.NoError(t, err)
	assert.NotNil(t, canceled.CancelRequestedAt)
}

func TestCancelForeignOrderHidden(t *testing.T) {
	f := newIntakeFixture(t)

	resp, err := f.svc.Create(context.Background(), f.user.ID, validCreateRequest(f))
	require.NoError(t, err)

	_, err = f.svc.RequestCancellation(context.Background(), uuid.New(), enums.UserRoleUser, resp.ID)
	assert.Equal(t, pkgerrors.CodeNotFound, codeOf(t, err))
}

func TestRefillRequiresDeliveredOrder(t *testing.T) {
	f := newIntakeFixture(t)

	resp, err := f.svc.Create(context.Background(), f.user.ID, validCreateRequest(f))
	require.NoError(t, err)

	_, err = f.svc.RequestRefill(context.Background(), f.user.ID, enums.UserRoleUser, resp.ID)
	assert.Equal(t, pkgerrors.CodeStateConflict, codeOf(t, err))

	require.NoError(t, f.orders.UpdateStatusProgress(context.Background(), resp.ID, StatusProgress{Status: enums.OrderStatusCompleted}))

	refill, err := f.svc.RequestRefill(context.Background(), f.user.ID, enums.UserRoleUser, resp.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 42, refill.RefillID)
	assert.Equal(t, []string{"998877"}, f.gateway.refillCalls)
}

func TestRefillProviderRefusal(t *testing.T) {
	f := newIntakeFixture(t)
	f.gateway.refillErr = errors.New("refill window closed")

	resp, err := f.svc.Create(context.Background(), f.user.ID, validCreateRequest(f))
	require.NoError(t, err)
	require.NoError(t, f.orders.UpdateStatusProgress(context.Background(), resp.ID, StatusProgress{Status: enums.OrderStatusCompleted}))

	_, err = f.svc.RequestRefill(context.Background(), f.user.ID, enums.UserRoleUser, resp.ID)
	assert.Equal(t, pkgerrors.CodeProvider, codeOf(t, err))
}

func TestListClampsPageSize(t *testing.T) {
	f := newIntakeFixture(t)

	_, err := f.svc.List(context.Background(), f.user.ID, ListOrdersRequest{Limit: 10000})
	assert.NoError(t, err)

	bad := enums.OrderStatus("bogus")
	_, err = f.svc.List(context.Background(), f.user.ID, ListOrdersRequest{Status: &bad})
	assert.Equal(t, pkgerrors.CodeValidation, codeOf(t, err))
}
