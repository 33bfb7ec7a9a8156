package domain

import (
	"context"
	"time"
)

// DataType names one capability of the marketplace data provider.
type DataType string

const (
	DataProducts      DataType = "products"
	DataOrders        DataType = "orders"
	DataTariffs       DataType = "tariffs"
	DataFinanceLedger DataType = "finance-ledger"
	DataUpdateStock   DataType = "update-stock"
)

// OrderQuery bounds an orders fetch.
type OrderQuery struct {
	Since time.Time
	Until time.Time
}

// MarketplaceProvider is the external collaborator that talks to the
// marketplaces. Marketplace-specific protocol details live behind it.
// Methods return an error wrapping ErrUnsupported when the marketplace has no
// such capability.
type MarketplaceProvider interface {
	Products(ctx context.Context, mp Marketplace) ([]Product, error)
	Orders(ctx context.Context, mp Marketplace, q OrderQuery) ([]Order, error)
	Tariffs(ctx context.Context, mp Marketplace, queries []TariffQuery) ([]TariffQuote, error)
	FinanceLedger(ctx context.Context, mp Marketplace, offerIDs []string) ([]LedgerEntry, error)
	UpdateStock(ctx context.Context, mp Marketplace, updates []StockUpdate) error
}
