package domain

// Product is one SKU as listed on one marketplace. Products are immutable
// once fetched and are replaced wholesale on refetch.
type Product struct {
	Marketplace  Marketplace
	OfferID      string
	Name         string
	Price        float64
	SKU          string // seller's own code, optional
	CategoryID   string // optional
	CategoryCode int64  // numeric category used by tariff lookups, 0 if unknown
	StockFBO     int    // held by the marketplace operator
	StockFBS     int    // held by the seller
	ImageURLs    []string
}

// Key returns the product identity.
func (p Product) Key() ProductKey {
	return ProductKey{Marketplace: p.Marketplace, OfferID: p.OfferID}
}

// Stock returns the total stock across fulfillment modes.
func (p Product) Stock() int {
	return p.StockFBO + p.StockFBS
}

// StockUpdate sets the seller-held stock for one offer.
type StockUpdate struct {
	OfferID  string
	Quantity int
}
