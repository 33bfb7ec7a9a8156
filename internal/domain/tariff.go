package domain

import "strconv"

// TariffSource labels where a TariffInfo came from.
type TariffSource string

const (
	TariffSourceAPI      TariffSource = "api"
	TariffSourceLedger   TariffSource = "ledger"
	TariffSourceEstimate TariffSource = "estimate"
	TariffSourceAverage  TariffSource = "average"
	TariffSourceDefault  TariffSource = "default"
)

// TariffInfo is the resolved fee structure for one sale of one product.
//
// Invariants: TotalFee == AgencyCommission + Logistics, Logistics ==
// Fulfillment + Delivery + Sorting and CommissionPercent <= TariffPercent.
// Always construct it with NewTariffInfo.
type TariffInfo struct {
	Price             float64
	AgencyCommission  float64
	Fulfillment       float64
	Delivery          float64
	Sorting           float64
	Logistics         float64
	TotalFee          float64
	TariffPercent     float64
	CommissionPercent float64
	Real              bool
	Source            TariffSource
}

// NewTariffInfo builds a TariffInfo for a sale at price. Negative components
// are clamped to zero.
func NewTariffInfo(price, commission, fulfillment, delivery, sorting float64, real bool, source TariffSource) TariffInfo {
	commission = nonNegative(commission)
	fulfillment = nonNegative(fulfillment)
	delivery = nonNegative(delivery)
	sorting = nonNegative(sorting)

	t := TariffInfo{
		Price:            price,
		AgencyCommission: commission,
		Fulfillment:      fulfillment,
		Delivery:         delivery,
		Sorting:          sorting,
		Logistics:        fulfillment + delivery + sorting,
		Real:             real,
		Source:           source,
	}
	t.TotalFee = t.AgencyCommission + t.Logistics
	if price > 0 {
		t.TariffPercent = t.TotalFee / price * 100
		t.CommissionPercent = t.AgencyCommission / price * 100
	}
	return t
}

// ForPrice rescales a tariff to another price, keeping the commission percent
// and the absolute logistics charges.
func (t TariffInfo) ForPrice(price float64) TariffInfo {
	if t.Price == price {
		return t
	}
	commission := price * t.CommissionPercent / 100
	return NewTariffInfo(price, commission, t.Fulfillment, t.Delivery, t.Sorting, t.Real, t.Source)
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// TariffSignature groups products that will be charged identically.
type TariffSignature struct {
	Marketplace  Marketplace
	CategoryCode int64
	Price        float64
}

func (s TariffSignature) String() string {
	return string(s.Marketplace) + "|" +
		strconv.FormatInt(s.CategoryCode, 10) + "|" +
		strconv.FormatFloat(s.Price, 'f', -1, 64)
}

// TariffQuery asks the provider for the fee of one signature.
type TariffQuery struct {
	OfferID      string
	CategoryCode int64
	Price        float64
}

// TariffQuote is the provider's answer for one TariffQuery.
type TariffQuote struct {
	OfferID          string
	CategoryCode     int64
	Price            float64
	AgencyCommission float64
	Fulfillment      float64
	Delivery         float64
	Sorting          float64
}

// LedgerEntry is one actual expense line charged by the marketplace.
// Amount covers Quantity units. Charges are negative, reversals positive.
type LedgerEntry struct {
	OfferID     string
	Description string
	Amount      float64
	Quantity    int
}
