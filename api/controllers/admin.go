package controllers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/avelarde/boostpanel-backend/api/responses"
	catalogsvc "github.com/avelarde/boostpanel-backend/internal/catalog"
	"github.com/avelarde/boostpanel-backend/internal/providers"
	pkgerrors "github.com/avelarde/boostpanel-backend/pkg/errors"
	"github.com/avelarde/boostpanel-backend/pkg/logger"
)

// AdminCatalogSync runs the catalog sync inline. The same logic runs on the
// cron cadence; this endpoint exists for operators who just changed a
// provider and do not want to wait.
func AdminCatalogSync(job *catalogsvc.SyncJob, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := job.Run(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "catalog sync incomplete"))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "synced"})
	}
}

type providerBalanceResponse struct {
	ProviderID uuid.UUID       `json:"provider_id"`
	Provider   string          `json:"provider"`
	Balance    decimal.Decimal `json:"balance"`
}

// AdminProviderBalance reports the remaining balance at one provider.
func AdminProviderBalance(repo providers.Repository, gateways providers.Factory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "providerId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid provider id"))
			return
		}

		provider, err := repo.FindByID(r.Context(), providerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				err = pkgerrors.New(pkgerrors.CodeNotFound, "provider not found")
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := gateways(provider).Balance(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "provider balance unavailable"))
			return
		}

		responses.WriteSuccess(w, providerBalanceResponse{
			ProviderID: provider.ID,
			Provider:   provider.Name,
			Balance:    balance,
		})
	}
}
