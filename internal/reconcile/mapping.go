package reconcile

import (
	"strings"

	"github.com/avelarde/boostpanel-backend/pkg/enums"
)

// providerStatusMap normalizes the status vocabularies seen across panel
// providers. Lookup is case-insensitive on the trimmed value. Anything not
// listed is treated as unknown and left untouched rather than guessed at.
var providerStatusMap = map[string]enums.OrderStatus{
	"pending":     enums.OrderStatusPending,
	"queued":      enums.OrderStatusPending,
	"awaiting":    enums.OrderStatusPending,
	"in progress": enums.OrderStatusInProgress,
	"inprogress":  enums.OrderStatusInProgress,
	"processing":  enums.OrderStatusInProgress,
	"active":      enums.OrderStatusInProgress,
	"partial":     enums.OrderStatusPartial,
	"completed":   enums.OrderStatusCompleted,
	"complete":    enums.OrderStatusCompleted,
	"done":        enums.OrderStatusCompleted,
	"canceled":    enums.OrderStatusCanceled,
	"cancelled":   enums.OrderStatusCanceled,
	"refunded":    enums.OrderStatusCanceled,
	"failed":      enums.OrderStatusFailed,
	"fail":        enums.OrderStatusFailed,
	"error":       enums.OrderStatusFailed,
}

// MapProviderStatus translates a provider-reported status into the canonical
// set. The second return is false for unrecognized vocabulary.
func MapProviderStatus(raw string) (enums.OrderStatus, bool) {
	status, ok := providerStatusMap[strings.ToLower(strings.TrimSpace(raw))]
	return status, ok
}
