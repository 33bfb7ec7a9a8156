package profit

import (
	"slices"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

var (
	thresholdA = decimal.NewFromFloat(0.80)
	thresholdB = decimal.NewFromFloat(0.95)
)

// ClassifyABC sorts rows by descending revenue and assigns each its group in
// one pass: A while the cumulative revenue share is at most 80%, B while at
// most 95%, C after that. Equal revenues are ordered by key. With no revenue
// at all every row is C. in is left untouched; the result is a sorted copy.
func ClassifyABC(in []domain.ProductProfit) []domain.ProductProfit {
	rows := slices.Clone(in)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TotalRevenue != rows[j].TotalRevenue {
			return rows[i].TotalRevenue > rows[j].TotalRevenue
		}
		return rows[i].Key.String() < rows[j].Key.String()
	})

	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(decimal.NewFromFloat(r.TotalRevenue))
	}
	if !total.IsPositive() {
		for i := range rows {
			rows[i].ABC = domain.ABCGroupC
		}
		return rows
	}

	cum := decimal.Zero
	for i := range rows {
		cum = cum.Add(decimal.NewFromFloat(rows[i].TotalRevenue))
		share := cum.Div(total)
		switch {
		case share.LessThanOrEqual(thresholdA):
			rows[i].ABC = domain.ABCGroupA
		case share.LessThanOrEqual(thresholdB):
			rows[i].ABC = domain.ABCGroupB
		default:
			rows[i].ABC = domain.ABCGroupC
		}
	}
	return rows
}
