package controllers

import (
	"net/http"

	"github.com/avelarde/boostpanel-backend/api/responses"
	catalogsvc "github.com/avelarde/boostpanel-backend/internal/catalog"
	"github.com/avelarde/boostpanel-backend/pkg/logger"
)

// ServicesList returns the enabled catalog priced for the caller.
func ServicesList(svc *catalogsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := callerFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		services, err := svc.ListForUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, services)
	}
}
