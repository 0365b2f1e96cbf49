package controllers

import (
	"net/http"

	"github.com/avelarde/boostpanel-backend/api/responses"
	"github.com/avelarde/boostpanel-backend/api/validators"
	paymentsvc "github.com/avelarde/boostpanel-backend/internal/payments"
	"github.com/avelarde/boostpanel-backend/pkg/logger"
)

// PaymentCredit applies a captured payment to a user balance. Reached only
// through the admin router: the payment-capture collaborator authenticates
// with an admin token.
func PaymentCredit(svc *paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload paymentsvc.CreditRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		credit, err := svc.Credit(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, credit)
	}
}
