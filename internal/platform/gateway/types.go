package gateway

import (
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// request is the body of every gateway call.
type request struct {
	Marketplace domain.Marketplace `json:"marketplace"`
	DataType    domain.DataType    `json:"dataType"`
	Options     any                `json:"options,omitempty"`
}

// envelope wraps every gateway response.
type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
}

// APIProduct is a product as returned by the gateway.
type APIProduct struct {
	OfferID      string   `json:"offerId"`
	Name         string   `json:"name"`
	Price        float64  `json:"price"`
	SKU          string   `json:"sku,omitempty"`
	CategoryID   string   `json:"categoryId,omitempty"`
	CategoryCode int64    `json:"categoryCode,omitempty"`
	StockFBO     int      `json:"stockFBO"`
	StockFBS     int      `json:"stockFBS"`
	Images       []string `json:"images,omitempty"`
}

// ToDomain converts the wire product.
func (p APIProduct) ToDomain(mp domain.Marketplace) domain.Product {
	return domain.Product{
		Marketplace:  mp,
		OfferID:      p.OfferID,
		Name:         p.Name,
		Price:        p.Price,
		SKU:          p.SKU,
		CategoryID:   p.CategoryID,
		CategoryCode: p.CategoryCode,
		StockFBO:     p.StockFBO,
		StockFBS:     p.StockFBS,
		ImageURLs:    p.Images,
	}
}

// APIOrder is an order as returned by the gateway.
type APIOrder struct {
	ID              int64          `json:"id"`
	Status          string         `json:"status"`
	CreatedAt       time.Time      `json:"createdAt"`
	Total           float64        `json:"total"`
	ItemsTotal      float64        `json:"itemsTotal"`
	TotalLocal      float64        `json:"totalUZS,omitempty"`
	ItemsTotalLocal float64        `json:"itemsTotalUZS,omitempty"`
	Items           []APIOrderItem `json:"items"`
}

// APIOrderItem is one order line.
type APIOrderItem struct {
	OfferID    string  `json:"offerId"`
	Count      int     `json:"count"`
	Price      float64 `json:"price"`
	PriceLocal float64 `json:"priceUZS,omitempty"`
}

// ToDomain converts the wire order. Unknown statuses pass through verbatim.
func (o APIOrder) ToDomain(mp domain.Marketplace) domain.Order {
	items := make([]domain.OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, domain.OrderItem{
			OfferID:    it.OfferID,
			Quantity:   it.Count,
			Price:      it.Price,
			PriceLocal: it.PriceLocal,
		})
	}
	return domain.Order{
		ID:              o.ID,
		Marketplace:     mp,
		Status:          normalizeStatus(o.Status),
		CreatedAt:       o.CreatedAt,
		Total:           o.Total,
		ItemsTotal:      o.ItemsTotal,
		TotalLocal:      o.TotalLocal,
		ItemsTotalLocal: o.ItemsTotalLocal,
		Items:           items,
	}
}

// statusAliases maps the marketplace-specific spellings the gateway passes
// through.
var statusAliases = map[string]domain.OrderStatus{
	"CANCELLED":          domain.OrderStatusCancelled,
	"CANCELED":           domain.OrderStatusCancelled,
	"canceled":           domain.OrderStatusCancelled,
	"RETURNED":           domain.OrderStatusReturned,
	"DELIVERED":          domain.OrderStatusDelivered,
	"PROCESSING":         domain.OrderStatusProcessing,
	"DELIVERY":           domain.OrderStatusShipped,
	"PICKUP":             domain.OrderStatusShipped,
	"CREATED":            domain.OrderStatusCreated,
	"PENDING":            domain.OrderStatusCreated,
	"RETURNED_TO_SELLER": domain.OrderStatusReturned,
}

func normalizeStatus(s string) domain.OrderStatus {
	if st, ok := statusAliases[s]; ok {
		return st
	}
	return domain.OrderStatus(s)
}

// APITariff is one tariff answer.
type APITariff struct {
	OfferID          string  `json:"offerId"`
	CategoryID       int64   `json:"categoryId"`
	Price            float64 `json:"price"`
	AgencyCommission float64 `json:"agencyCommission"`
	Fulfillment      float64 `json:"fulfillment"`
	Delivery         float64 `json:"delivery"`
	Sorting          float64 `json:"sorting"`
}

func (t APITariff) toDomain() domain.TariffQuote {
	return domain.TariffQuote{
		OfferID:          t.OfferID,
		CategoryCode:     t.CategoryID,
		Price:            t.Price,
		AgencyCommission: t.AgencyCommission,
		Fulfillment:      t.Fulfillment,
		Delivery:         t.Delivery,
		Sorting:          t.Sorting,
	}
}

// APILedgerEntry is one finance-ledger expense line.
type APILedgerEntry struct {
	OfferID  string  `json:"offerId"`
	Name     string  `json:"name"`
	Amount   float64 `json:"amount"`
	Quantity int     `json:"quantity"`
}

func (e APILedgerEntry) toDomain() domain.LedgerEntry {
	return domain.LedgerEntry{
		OfferID:     e.OfferID,
		Description: e.Name,
		Amount:      e.Amount,
		Quantity:    e.Quantity,
	}
}

type tariffOffer struct {
	OfferID    string  `json:"offerId"`
	CategoryID int64   `json:"categoryId"`
	Price      float64 `json:"price"`
}

type stockItem struct {
	OfferID string `json:"offerId"`
	Count   int    `json:"count"`
}
