package domain

import "time"

// OrderStatus tracks the marketplace order lifecycle.
type OrderStatus string

const (
	OrderStatusCreated    OrderStatus = "created"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusReturned   OrderStatus = "returned"
)

// Order is one order from one marketplace. Where the marketplace bills in a
// foreign currency the *Local amounts carry the seller-currency figures.
type Order struct {
	ID              int64
	Marketplace     Marketplace
	Status          OrderStatus
	CreatedAt       time.Time
	Total           float64
	ItemsTotal      float64
	TotalLocal      float64
	ItemsTotalLocal float64
	Items           []OrderItem
}

// OrderItem is one line of an order.
type OrderItem struct {
	OfferID    string
	Quantity   int
	Price      float64
	PriceLocal float64
}

// UnitPrice returns the seller-currency price when known, else the billed
// price.
func (i OrderItem) UnitPrice() float64 {
	if i.PriceLocal > 0 {
		return i.PriceLocal
	}
	return i.Price
}

// CountsAsRevenue is false for orders in a terminal non-sale state.
func (o Order) CountsAsRevenue() bool {
	return o.Status != OrderStatusCancelled && o.Status != OrderStatusReturned
}

// InRange reports whether the order was created within [from, to]. A zero
// bound is open.
func (o Order) InRange(from, to time.Time) bool {
	if !from.IsZero() && o.CreatedAt.Before(from) {
		return false
	}
	if !to.IsZero() && o.CreatedAt.After(to) {
		return false
	}
	return true
}
