package enums

// OrderStatus is the engine's canonical order state, independent of any
// provider's status vocabulary.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusPartial    OrderStatus = "partial"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCanceled   OrderStatus = "canceled"
	OrderStatusFailed     OrderStatus = "failed"
)

// IsValid reports whether the value belongs to the canonical set.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusInProgress, OrderStatusPartial,
		OrderStatusCompleted, OrderStatusCanceled, OrderStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the order has settled and polling stops.
// Partial is terminal: the provider halted delivery and the undelivered
// remainder is refunded on the way in.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCanceled, OrderStatusFailed, OrderStatusPartial:
		return true
	}
	return false
}

// IsRefundableTransition reports whether entering this status triggers the
// refund ledger.
func (s OrderStatus) IsRefundableTransition() bool {
	return s == OrderStatusCanceled || s == OrderStatusFailed
}
