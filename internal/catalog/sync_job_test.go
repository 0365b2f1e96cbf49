package catalog

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
	"github.com/avelarde/boostpanel-backend/pkg/config"
	"github.com/avelarde/boostpanel-backend/pkg/db/models"
	"github.com/avelarde/boostpanel-backend/pkg/enums"
)

type stubCatalogRepo struct {
	services []models.Service
	updates  []models.ServiceUpdate
	upserted []models.ProviderServiceCacheEntry
	pruned   bool
}

func (s *stubCatalogRepo) WithTx(*gorm.DB) Repository { return s }

func (s *stubCatalogRepo) FindServiceByID(_ context.Context, id uuid.UUID) (*models.Service, error) {
	for i := range s.services {
		if s.services[i].ID == id {
			copied := s.services[i]
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubCatalogRepo) ListEnabledServices(context.Context) ([]models.Service, error) {
	var out []models.Service
	for _, svc := range s.services {
		if svc.Enabled {
			out = append(out, svc)
		}
	}
	return out, nil
}

func (s *stubCatalogRepo) ListSyncableServices(_ context.Context, providerID uuid.UUID) ([]models.Service, error) {
	var out []models.Service
	for _, svc := range s.services {
		if svc.SyncWithProvider && svc.ProviderID != nil && *svc.ProviderID == providerID {
			out = append(out, svc)
		}
	}
	return out, nil
}

func (s *stubCatalogRepo) UpdateServiceRate(_ context.Context, id uuid.UUID, rate decimal.Decimal) error {
	for i := range s.services {
		if s.services[i].ID == id {
			s.services[i].RatePer1000 = rate
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (s *stubCatalogRepo) SetServiceEnabled(_ context.Context, id uuid.UUID, enabled bool, reason *string) error {
	for i := range s.services {
		if s.services[i].ID == id {
			s.services[i].Enabled = enabled
			s.services[i].DisabledReason = reason
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (s *stubCatalogRepo) UpsertCacheEntries(_ context.Context, entries []models.ProviderServiceCacheEntry) error {
	s.upserted = append(s.upserted, entries...)
	return nil
}

func (s *stubCatalogRepo) DeleteStaleCacheEntries(context.Context, uuid.UUID, time.Time) error {
	s.pruned = true
	return nil
}

func (s *stubCatalogRepo) FindCacheEntry(context.Context, uuid.UUID, string) (*models.ProviderServiceCacheEntry, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubCatalogRepo) RecordServiceUpdate(_ context.Context, update *models.ServiceUpdate) error {
	s.updates = append(s.updates, *update)
	return nil
}

func (s *stubCatalogRepo) ListServiceUpdates(context.Context, uuid.UUID, int) ([]models.ServiceUpdate, error) {
	return s.updates, nil
}

type stubProviderLister struct {
	providers []models.Provider
}

func (s *stubProviderLister) ListEnabled(context.Context) ([]models.Provider, error) {
	return s.providers, nil
}

type listGateway struct {
	descriptors []providers.ServiceDescriptor
	err         error
}

func (g *listGateway) Submit(context.Context, providers.SubmitRequest) (string, error) {
	return "", errors.New("not implemented")
}

func (g *listGateway) Status(context.Context, string) (*providers.StatusResult, error) {
	return nil, errors.New("not implemented")
}

func (g *listGateway) Cancel(context.Context, string) (*providers.AckResult, error) {
	return nil, errors.New("not implemented")
}

func (g *listGateway) Refill(context.Context, string) (*providers.AckResult, error) {
	return nil, errors.New("not implemented")
}

func (g *listGateway) ListServices(context.Context) ([]providers.ServiceDescriptor, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.descriptors, nil
}

func (g *listGateway) Balance(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("not implemented")
}

type syncFixture struct {
	job      *SyncJob
	repo     *stubCatalogRepo
	gateway  *listGateway
	provider models.Provider
	service  *models.Service
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()

	provider := models.Provider{ID: uuid.New(), Name: "acme-panel", Enabled: true}
	providerServiceID := "101"
	repo := &stubCatalogRepo{services: []models.Service{{
		ID:                uuid.New(),
		Name:              "Followers",
		ProviderID:        &provider.ID,
		ProviderServiceID: &providerServiceID,
		SyncWithProvider:  true,
		Enabled:           true,
		RatePer1000:       decimal.RequireFromString("0.90"),
	}}}
	gateway := &listGateway{descriptors: []providers.ServiceDescriptor{{
		ServiceID: "101",
		Name:      "Followers",
		Rate:      decimal.RequireFromString("0.90"),
	}}}

	job, err := NewSyncJob(SyncJobParams{
		Catalog:   repo,
		Providers: &stubProviderLister{providers: []models.Provider{provider}},
		Gateways:  func(*models.Provider) providers.Gateway { return gateway },
		Config:    config.CatalogSyncConfig{RateEpsilon: "0.00001"},
		Now:       func() time.Time { return time.Date(2025, 8, 1, 3, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	return &syncFixture{job: job, repo: repo, gateway: gateway, provider: provider, service: &repo.services[0]}
}

func TestSyncRefreshesCache(t *testing.T) {
	f := newSyncFixture(t)

	require.NoError(t, f.job.Run(context.Background()))

	require.Len(t, f.repo.upserted, 1)
	assert.Equal(t, "101", f.repo.upserted[0].ProviderServiceID)
	assert.True(t, f.repo.pruned)
}

func TestSyncNoChangesRecordsNothing(t *testing.T) {
	f := newSyncFixture(t)

	require.NoError(t, f.job.Run(context.Background()))
	assert.Empty(t, f.repo.updates)
	assert.True(t, f.service.Enabled)
}

func TestSyncDisablesDelistedService(t *testing.T) {
	f := newSyncFixture(t)
	f.gateway.descriptors = nil

	require.NoError(t, f.job.Run(context.Background()))

	assert.False(t, f.service.Enabled)
	require.NotNil(t, f.service.DisabledReason)
	require.Len(t, f.repo.updates, 1)
	assert.Equal(t, enums.ServiceUpdateDisabled, f.repo.updates[0].Kind)

	// A second run over the same state records nothing new.
	require.NoError(t, f.job.Run(context.Background()))
	assert.Len(t, f.repo.updates, 1)
}

func TestSyncReenablesRelistedService(t *testing.T) {
	f := newSyncFixture(t)
	reason := disabledReasonDelisted
	f.service.Enabled = false
	f.service.DisabledReason = &reason

	require.NoError(t, f.job.Run(context.Background()))

	assert.True(t, f.service.Enabled)
	assert.Nil(t, f.service.DisabledReason)
	require.Len(t, f.repo.updates, 1)
	assert.Equal(t, enums.ServiceUpdateEnabled, f.repo.updates[0].Kind)
}

func TestSyncLeavesManuallyDisabledServiceAlone(t *testing.T) {
	f := newSyncFixture(t)
	reason := "quality issues"
	f.service.Enabled = false
	f.service.DisabledReason = &reason

	require.NoError(t, f.job.Run(context.Background()))

	assert.False(t, f.service.Enabled)
	assert.Empty(t, f.repo.updates)
}

func TestSyncUpdatesRateBeyondEpsilon(t *testing.T) {
	f := newSyncFixture(t)
	f.gateway.descriptors[0].Rate = decimal.RequireFromString("1.20")

	require.NoError(t, f.job.Run(context.Background()))

	assert.True(t, f.service.RatePer1000.Equal(decimal.RequireFromString("1.20")))
	require.Len(t, f.repo.updates, 1)
	assert.Equal(t, enums.ServiceUpdateRateChanged, f.repo.updates[0].Kind)
	require.NotNil(t, f.repo.updates[0].OldRate)
	assert.True(t, f.repo.updates[0].OldRate.Equal(decimal.RequireFromString("0.90")))

	// Second run: rate already matches, nothing more recorded.
	require.NoError(t, f.job.Run(context.Background()))
	assert.Len(t, f.repo.updates, 1)
}

func TestSyncIgnoresRateJitterWithinEpsilon(t *testing.T) {
	f := newSyncFixture(t)
	f.gateway.descriptors[0].Rate = decimal.RequireFromString("0.900000001")

	require.NoError(t, f.job.Run(context.Background()))

	assert.True(t, f.service.RatePer1000.Equal(decimal.RequireFromString("0.90")))
	assert.Empty(t, f.repo.updates)
}

func TestSyncProviderFailureDoesNotStopOthers(t *testing.T) {
	f := newSyncFixture(t)
	f.gateway.err = errors.New("invalid key")

	err := f.job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acme-panel")
}
