package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/avelarde/boostpanel-backend/pkg/db/models"
)

// Repository manages local catalog services, the provider service cache,
// and the discrete change records produced by catalog sync.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindServiceByID(ctx context.Context, id uuid.UUID) (*models.Service, error)
	ListEnabledServices(ctx context.Context) ([]models.Service, error)
	// ListSyncableServices returns provider-linked services with
	// sync_with_provider set, enabled or not.
	ListSyncableServices(ctx context.Context, providerID uuid.UUID) ([]models.Service, error)
	UpdateServiceRate(ctx context.Context, id uuid.UUID, rate decimal.Decimal) error
	SetServiceEnabled(ctx context.Context, id uuid.UUID, enabled bool, reason *string) error

	UpsertCacheEntries(ctx context.Context, entries []models.ProviderServiceCacheEntry) error
	// DeleteStaleCacheEntries removes cache rows for the provider not
	// refreshed since the cutoff, i.e. services the provider no longer lists.
	DeleteStaleCacheEntries(ctx context.Context, providerID uuid.UUID, refreshedBefore time.Time) error
	FindCacheEntry(ctx context.Context, providerID uuid.UUID, providerServiceID string) (*models.ProviderServiceCacheEntry, error)

	RecordServiceUpdate(ctx context.Context, update *models.ServiceUpdate) error
	ListServiceUpdates(ctx context.Context, serviceID uuid.UUID, limit int) ([]models.ServiceUpdate, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindServiceByID(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	var service models.Service
	if err := r.db.WithContext(ctx).First(&service, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &service, nil
}

func (r *repository) ListEnabledServices(ctx context.Context) ([]models.Service, error) {
	var services []models.Service
	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("name").
		Find(&services).Error
	if err != nil {
		return nil, err
	}
	return services, nil
}

func (r *repository) ListSyncableServices(ctx context.Context, providerID uuid.UUID) ([]models.Service, error) {
	var services []models.Service
	err := r.db.WithContext(ctx).
		Where("provider_id = ? AND sync_with_provider = ?", providerID, true).
		Where("provider_service_id IS NOT NULL").
		Find(&services).Error
	if err != nil {
		return nil, err
	}
	return services, nil
}

func (r *repository) UpdateServiceRate(ctx context.Context, id uuid.UUID, rate decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&models.Service{}).
		Where("id = ?", id).
		UpdateColumn("rate_per_1000", rate)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) SetServiceEnabled(ctx context.Context, id uuid.UUID, enabled bool, reason *string) error {
	updates := map[string]any{
		"enabled":         enabled,
		"disabled_reason": reason,
	}
	result := r.db.WithContext(ctx).
		Model(&models.Service{}).
		Where("id = ?", id).
		UpdateColumns(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) UpsertCacheEntries(ctx context.Context, entries []models.ProviderServiceCacheEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider_id"}, {Name: "provider_service_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "category", "rate", "min_quantity", "max_quantity",
				"supports_refill", "supports_cancel", "raw", "refreshed_at", "updated_at",
			}),
		}).
		Create(&entries).Error
}

func (r *repository) DeleteStaleCacheEntries(ctx context.Context, providerID uuid.UUID, refreshedBefore time.Time) error {
	return r.db.WithContext(ctx).
		Where("provider_id = ? AND refreshed_at < ?", providerID, refreshedBefore).
		Delete(&models.ProviderServiceCacheEntry{}).Error
}

func (r *repository) FindCacheEntry(ctx context.Context, providerID uuid.UUID, providerServiceID string) (*models.ProviderServiceCacheEntry, error) {
	var entry models.ProviderServiceCacheEntry
	err := r.db.WithContext(ctx).
		Where("provider_id = ? AND provider_service_id = ?", providerID, providerServiceID).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) RecordServiceUpdate(ctx context.Context, update *models.ServiceUpdate) error {
	return r.db.WithContext(ctx).Create(update).Error
}

func (r *repository) ListServiceUpdates(ctx context.Context, serviceID uuid.UUID, limit int) ([]models.ServiceUpdate, error) {
	query := r.db.WithContext(ctx).Where("service_id = ?", serviceID)
	if limit > 0 {
		query = query.Limit(limit)
	}
	var updates []models.ServiceUpdate
	if err := query.Order("created_at DESC").Find(&updates).Error; err != nil {
		return nil, err
	}
	return updates, nil
}
