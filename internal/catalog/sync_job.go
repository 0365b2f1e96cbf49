package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/avelarde/boostpanel-backend/internal/providers"
	"github.com/avelarde/boostpanel-backend/pkg/config"
	"github.com/avelarde/boostpanel-backend/pkg/db/models"
	"github.com/avelarde/boostpanel-backend/pkg/enums"
	"github.com/avelarde/boostpanel-backend/pkg/logger"
)

// SyncJobName identifies the catalog sync job in the cron registry.
const SyncJobName = "catalog-sync"

// disabledReasonDelisted marks services the sync job disabled because the
// provider stopped listing them; only these are eligible for automatic
// re-enabling.
const disabledReasonDelisted = "delisted by provider"

type providerLister interface {
	ListEnabled(ctx context.Context) ([]models.Provider, error)
}

// SyncJob refreshes the provider service cache and applies the provider's
// catalog back onto local services that opted into syncing. Services with
// sync_with_provider=false are never touched.
type SyncJob struct {
	catalog   Repository
	providers providerLister
	gateways  providers.Factory
	epsilon   decimal.Decimal
	interval  time.Duration
	logg      *logger.Logger
	now       func() time.Time
}

// SyncJobParams wires the catalog sync job.
type SyncJobParams struct {
	Catalog   Repository
	Providers providerLister
	Gateways  providers.Factory
	Config    config.CatalogSyncConfig
	Logger    *logger.Logger
	Now       func() time.Time
}

// NewSyncJob validates dependencies and returns the catalog sync job.
func NewSyncJob(params SyncJobParams) (*SyncJob, error) {
	switch {
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog repository required")
	case params.Providers == nil:
		return nil, fmt.Errorf("provider lister required")
	case params.Gateways == nil:
		return nil, fmt.Errorf("gateway factory required")
	}
	epsilon, err := decimal.NewFromString(params.Config.RateEpsilon)
	if err != nil || epsilon.IsNegative() {
		epsilon = decimal.RequireFromString("0.00001")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &SyncJob{
		catalog:   params.Catalog,
		providers: params.Providers,
		gateways:  params.Gateways,
		epsilon:   epsilon,
		interval:  params.Config.Interval,
		logg:      params.Logger,
		now:       params.Now,
	}, nil
}

// Name implements cron.Job.
func (j *SyncJob) Name() string { return SyncJobName }

// Interval implements cron.IntervalJob: a full catalog fetch per provider is
// far too heavy for the reconcile cadence.
func (j *SyncJob) Interval() time.Duration { return j.interval }

// Run implements cron.Job. One provider failing never blocks the rest.
func (j *SyncJob) Run(ctx context.Context) error {
	enabled, err := j.providers.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("listing providers: %w", err)
	}

	var errs error
	for i := range enabled {
		if err := j.syncProvider(ctx, &enabled[i]); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("provider %s: %w", enabled[i].Name, err))
		}
	}
	return errs
}

func (j *SyncJob) syncProvider(ctx context.Context, provider *models.Provider) error {
	descriptors, err := j.gateways(provider).ListServices(ctx)
	if err != nil {
		return err
	}

	refreshedAt := j.now()
	if err := j.refreshCache(ctx, provider.ID, descriptors, refreshedAt); err != nil {
		return err
	}

	byProviderServiceID := make(map[string]*providers.ServiceDescriptor, len(descriptors))
	for i := range descriptors {
		byProviderServiceID[descriptors[i].ServiceID] = &descriptors[i]
	}

	local, err := j.catalog.ListSyncableServices(ctx, provider.ID)
	if err != nil {
		return fmt.Errorf("listing syncable services: %w", err)
	}

	var errs error
	for i := range local {
		if err := j.syncService(ctx, provider.ID, &local[i], byProviderServiceID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("service %s: %w", local[i].ID, err))
		}
	}
	return errs
}

func (j *SyncJob) refreshCache(ctx context.Context, providerID uuid.UUID, descriptors []providers.ServiceDescriptor, refreshedAt time.Time) error {
	entries := make([]models.ProviderServiceCacheEntry, 0, len(descriptors))
	for _, d := range descriptors {
		entries = append(entries, models.ProviderServiceCacheEntry{
			ID:                uuid.New(),
			ProviderID:        providerID,
			ProviderServiceID: d.ServiceID,
			Name:              d.Name,
			Category:          d.Category,
			Rate:              d.Rate,
			MinQuantity:       d.MinQuantity,
			MaxQuantity:       d.MaxQuantity,
			SupportsRefill:    d.SupportsRefill,
			SupportsCancel:    d.SupportsCancel,
			Raw:               d.Raw,
			RefreshedAt:       refreshedAt,
		})
	}
	if err := j.catalog.UpsertCacheEntries(ctx, entries); err != nil {
		return fmt.Errorf("upserting cache: %w", err)
	}
	if err := j.catalog.DeleteStaleCacheEntries(ctx, providerID, refreshedAt); err != nil {
		return fmt.Errorf("pruning cache: %w", err)
	}
	return nil
}

func (j *SyncJob) syncService(ctx context.Context, providerID uuid.UUID, service *models.Service, descriptors map[string]*providers.ServiceDescriptor) error {
	descriptor, listed := descriptors[*service.ProviderServiceID]

	if !listed {
		if !service.Enabled {
			return nil
		}
		reason := disabledReasonDelisted
		if err := j.catalog.SetServiceEnabled(ctx, service.ID, false, &reason); err != nil {
			return fmt.Errorf("disabling: %w", err)
		}
		j.recordUpdate(ctx, service, providerID, enums.ServiceUpdateDisabled, "provider no longer lists this service", nil, nil)
		return nil
	}

	if !service.Enabled && service.DisabledReason != nil && *service.DisabledReason == disabledReasonDelisted {
		if err := j.catalog.SetServiceEnabled(ctx, service.ID, true, nil); err != nil {
			return fmt.Errorf("re-enabling: %w", err)
		}
		j.recordUpdate(ctx, service, providerID, enums.ServiceUpdateEnabled, "provider listed this service again", nil, nil)
	}

	diff := descriptor.Rate.Sub(service.RatePer1000).Abs()
	if diff.GreaterThan(j.epsilon) {
		oldRate := service.RatePer1000
		newRate := descriptor.Rate
		if err := j.catalog.UpdateServiceRate(ctx, service.ID, newRate); err != nil {
			return fmt.Errorf("updating rate: %w", err)
		}
		j.recordUpdate(ctx, service, providerID, enums.ServiceUpdateRateChanged,
			fmt.Sprintf("provider rate moved from %s to %s", oldRate, newRate), &oldRate, &newRate)
	}
	return nil
}

func (j *SyncJob) recordUpdate(ctx context.Context, service *models.Service, providerID uuid.UUID, kind enums.ServiceUpdateKind, detail string, oldRate, newRate *decimal.Decimal) {
	update := &models.ServiceUpdate{
		ID:         uuid.New(),
		ServiceID:  service.ID,
		ProviderID: providerID,
		Kind:       kind,
		Detail:     detail,
		OldRate:    oldRate,
		NewRate:    newRate,
	}
	if err := j.catalog.RecordServiceUpdate(ctx, update); err != nil && j.logg != nil {
		logCtx := j.logg.WithFields(ctx, map[string]any{"service_id": service.ID, "kind": kind})
		j.logg.Warn(logCtx, "service update record dropped")
	}
	if j.logg != nil {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"service_id": service.ID,
			"kind":       kind,
			"detail":     detail,
		})
		j.logg.Info(logCtx, "catalog service updated")
	}
}
