package tariff

import (
	"math"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// band selects value for prices strictly below limit.
type band struct {
	below float64
	value float64
}

func pick(bands []band, price float64) float64 {
	for _, b := range bands {
		if price < b.below {
			return b.value
		}
	}
	return bands[len(bands)-1].value
}

// Commission percent for ledger marketplaces without ledger data. It
// decreases as the price grows.
var tieredCommission = []band{
	{below: 50_000, value: 20},
	{below: 200_000, value: 15},
	{below: 1_000_000, value: 12},
	{below: math.Inf(1), value: 10},
}

// serviceFeePercent is charged on top of the tiered commission.
const serviceFeePercent = 1

// Flat logistics fee per sale, shared by every estimated marketplace.
var logisticsBands = []band{
	{below: 50_000, value: 4_000},
	{below: 500_000, value: 8_000},
	{below: math.Inf(1), value: 20_000},
}

// fixedCommission is the commission percent of marketplaces estimated with a
// single rate. Yandex is only estimated when its tariff API had no answer.
var fixedCommission = map[domain.Marketplace]float64{
	domain.MarketplaceYandex:      15,
	domain.MarketplaceWildberries: 15,
	domain.MarketplaceOzon:        18,
}

// Last resort when nothing is known about the marketplace or its tariffs.
const (
	lastResortPercent   = 15
	lastResortLogistics = 5_000
)

// Estimate returns the marketplace formula tariff for one sale at price. It
// reports false for a marketplace without a formula.
func Estimate(mp domain.Marketplace, price float64) (domain.TariffInfo, bool) {
	var percent float64
	switch {
	case mp.TariffCapability() == domain.TariffLedger:
		percent = pick(tieredCommission, price) + serviceFeePercent
	default:
		p, ok := fixedCommission[mp]
		if !ok {
			return domain.TariffInfo{}, false
		}
		percent = p
	}
	commission := price * percent / 100
	return domain.NewTariffInfo(price, commission, 0, pick(logisticsBands, price), 0, false, domain.TariffSourceEstimate), true
}

// LastResort is the tariff used when neither a formula nor any resolved data
// exists.
func LastResort(price float64) domain.TariffInfo {
	return domain.NewTariffInfo(price, price*lastResortPercent/100, 0, lastResortLogistics, 0, false, domain.TariffSourceDefault)
}
