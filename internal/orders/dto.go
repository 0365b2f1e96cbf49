package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avelarde/boostpanel-backend/pkg/db/models"
	"github.com/avelarde/boostpanel-backend/pkg/enums"
)

// CreateOrderRequest is the order intake payload.
type CreateOrderRequest struct {
	ServiceID uuid.UUID `json:"service_id" validate:"required"`
	Link      string    `json:"link" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
	Comments  *string   `json:"comments,omitempty"`
}

// ListOrdersRequest narrows an order listing.
type ListOrdersRequest struct {
	Status *enums.OrderStatus `json:"status,omitempty"`
	Page   int                `json:"page,omitempty"`
	Limit  int                `json:"limit,omitempty"`
}

// OrderResponse is the user-facing view of an order.
type OrderResponse struct {
	ID                uuid.UUID         `json:"id"`
	ServiceID         uuid.UUID         `json:"service_id"`
	Link              string            `json:"link"`
	Quantity          int               `json:"quantity"`
	Status            enums.OrderStatus `json:"status"`
	ChargeUser        decimal.Decimal   `json:"charge"`
	StartCount        *int              `json:"start_count,omitempty"`
	Remains           *int              `json:"remains,omitempty"`
	Refunded          bool              `json:"refunded"`
	RefundAmount      *decimal.Decimal  `json:"refund_amount,omitempty"`
	CancelRequestedAt *time.Time        `json:"cancel_requested_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// RefillResponse reports a provider-acknowledged refill.
type RefillResponse struct {
	OrderID  uuid.UUID `json:"order_id"`
	RefillID int64     `json:"refill_id"`
}

func toOrderResponse(order *models.Order) OrderResponse {
	return OrderResponse{
		ID:                order.ID,
		ServiceID:         order.ServiceID,
		Link:              order.Link,
		Quantity:          order.Quantity,
		Status:            order.Status,
		ChargeUser:        order.ChargeUser,
		StartCount:        order.StartCount,
		Remains:           order.Remains,
		Refunded:          order.Refunded,
		RefundAmount:      order.RefundAmount,
		CancelRequestedAt: order.CancelRequestedAt,
		CreatedAt:         order.CreatedAt,
	}
}

func toOrderResponses(orders []models.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, toOrderResponse(&orders[i]))
	}
	return out
}
