package domain

import "time"

// ABCGroup is a revenue tier: A is the top 80% of cumulative revenue, B the
// next 15% and C the rest.
type ABCGroup string

const (
	ABCGroupA ABCGroup = "A"
	ABCGroupB ABCGroup = "B"
	ABCGroupC ABCGroup = "C"
)

// ProductProfit is the profitability of one listing over a date range.
type ProductProfit struct {
	Key           ProductKey
	Name          string
	TotalSold     int
	TotalRevenue  float64
	AvgSoldPrice  float64
	CostPrice     float64
	HasCostPrice  bool
	EstimatedCost float64
	Tariff        TariffInfo
	Fees          float64
	Tax           float64
	NetProfit     float64
	ProfitMargin  float64
	ABC           ABCGroup
}

// ReconciliationRecord compares expected and actual inventory for one SKU.
// It is derived on every view and never persisted.
type ReconciliationRecord struct {
	Key          ProductKey
	Name         string
	Invoiced     int
	Sold         int
	CurrentStock int
	Returned     int
	Lost         int
	// Estimated is true when Invoiced is the sold+stock+returned placeholder
	// rather than a figure from a shipment feed.
	Estimated bool
}

// ProfitTotals aggregates a report.
type ProfitTotals struct {
	Revenue      float64
	Cost         float64
	Fees         float64
	Tax          float64
	NetProfit    float64
	ProfitMargin float64
	UnitsSold    int
	MissingCost  int
}

// ProfitReport is the engine output for one seller and date range.
type ProfitReport struct {
	ID             string
	Seller         string
	From           time.Time
	To             time.Time
	GeneratedAt    time.Time
	Products       []ProductProfit
	Totals         ProfitTotals
	ABCCounts      map[ABCGroup]int
	Reconciliation []ReconciliationRecord
	TariffsPending bool
}
