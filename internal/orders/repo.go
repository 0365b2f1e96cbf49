package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/avelarde/boostpanel-backend/pkg/db/models"
	"github.com/avelarde/boostpanel-backend/pkg/enums"
)

// ListFilters narrow user-facing order listings.
type ListFilters struct {
	Status *enums.OrderStatus
	Limit  int
	Offset int
}

// StatusProgress is the provider-reported progress applied alongside a
// status transition.
type StatusProgress struct {
	Status       enums.OrderStatus
	StartCount   *int
	Remains      *int
	CostProvider *decimal.Decimal
}

// Repository manages order persistence. The conditional writes
// (SetCancelRequested, ClaimRefund) are the concurrency guards the
// lifecycle depends on; they must stay single-statement updates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, filters ListFilters) ([]models.Order, error)
	// HasRecentDuplicate reports an order by the same user for the same
	// service and link still in a non-settled status since the cutoff.
	HasRecentDuplicate(ctx context.Context, userID, serviceID uuid.UUID, link string, since time.Time) (bool, error)
	AttachProviderOrderID(ctx context.Context, id uuid.UUID, providerOrderID string) error
	// ListPollable returns orders the reconciliation loop must poll:
	// non-terminal, or pending-cancellation and not yet refunded.
	ListPollable(ctx context.Context, limit int) ([]models.Order, error)
	UpdateStatusProgress(ctx context.Context, id uuid.UUID, progress StatusProgress) error
	// SetCancelRequested stamps cancel_requested_at once; returns false if
	// it was already set.
	SetCancelRequested(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// ClaimRefund atomically flips refunded false->true recording the
	// amount; returns false if the order was already refunded.
	ClaimRefund(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an order repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, filters ListFilters) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var orders []models.Order
	if err := query.Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) HasRecentDuplicate(ctx context.Context, userID, serviceID uuid.UUID, link string, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("user_id = ? AND service_id = ? AND link = ?", userID, serviceID, link).
		Where("status IN ?", []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusInProgress}).
		Where("created_at >= ?", since).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) AttachProviderOrderID(ctx context.Context, id uuid.UUID, providerOrderID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		UpdateColumn("provider_order_id", providerOrderID).Error
}

func (r *repository) ListPollable(ctx context.Context, limit int) ([]models.Order, error) {
	query := r.db.WithContext(ctx).
		Where("status IN ?", []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusInProgress}).
		Or("cancel_requested_at IS NOT NULL AND refunded = ?", false)
	if limit > 0 {
		query = query.Limit(limit)
	}

	var orders []models.Order
	if err := query.Order("provider_id, created_at").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) UpdateStatusProgress(ctx context.Context, id uuid.UUID, progress StatusProgress) error {
	updates := map[string]any{"status": progress.Status}
	if progress.StartCount != nil {
		updates["start_count"] = *progress.StartCount
	}
	if progress.Remains != nil {
		updates["remains"] = *progress.Remains
	}
	if progress.CostProvider != nil {
		updates["cost_provider"] = *progress.CostProvider
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) SetCancelRequested(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND cancel_requested_at IS NULL", id).
		UpdateColumn("cancel_requested_at", at)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) ClaimRefund(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND refunded = ?", id, false).
		UpdateColumns(map[string]any{
			"refunded":      true,
			"refund_amount": amount,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
