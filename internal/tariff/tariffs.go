package tariff

import "github.com/alanyoungcy/marketledger/internal/domain"

// Tariffs is the output of a resolve pass. Products the resolver could not
// price are absent; use For to read with fallbacks.
type Tariffs map[domain.ProductKey]domain.TariffInfo

// For returns the tariff for one sale of key at price. It never fails:
//
//  1. a real entry with a positive total, rescaled to price
//  2. the marketplace formula
//  3. the average commission percent and average logistics of all entries
//  4. a flat last-resort tariff
func (t Tariffs) For(key domain.ProductKey, price float64) domain.TariffInfo {
	if e, ok := t[key]; ok && e.Real && e.TotalFee > 0 {
		return e.ForPrice(price)
	}
	if info, ok := Estimate(key.Marketplace, price); ok {
		return info
	}
	if len(t) > 0 {
		return t.average(price)
	}
	return LastResort(price)
}

// average blends commission percents rather than total percents, otherwise
// logistics would be counted twice.
func (t Tariffs) average(price float64) domain.TariffInfo {
	var percent, logistics float64
	for _, e := range t {
		percent += e.CommissionPercent
		logistics += e.Logistics
	}
	n := float64(len(t))
	percent /= n
	logistics /= n
	return domain.NewTariffInfo(price, price*percent/100, 0, logistics, 0, false, domain.TariffSourceAverage)
}

// Summary counts how the given products are covered.
type Summary struct {
	Real       int
	Estimated  int
	Unresolved int
}

// Pending reports whether any product is priced by an estimate or not at all.
func (s Summary) Pending() bool { return s.Estimated > 0 || s.Unresolved > 0 }

// Summarize reports tariff coverage of products.
func (t Tariffs) Summarize(products []domain.Product) Summary {
	var s Summary
	for _, p := range products {
		e, ok := t[p.Key()]
		switch {
		case !ok:
			s.Unresolved++
		case e.Real:
			s.Real++
		default:
			s.Estimated++
		}
	}
	return s
}
