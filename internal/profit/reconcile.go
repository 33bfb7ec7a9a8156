package profit

import "github.com/alanyoungcy/marketledger/internal/domain"

// Reconcile compares expected and actual inventory per product. Sold counts
// every non-cancelled order, returned ones included; Returned counts orders in
// returned status.
//
// Without an inbound figure for a product, Invoiced falls back to
// sold + stock + returned, which makes Lost zero by construction. Pass real
// received quantities in inbound to make Lost meaningful.
func Reconcile(products []domain.Product, orders []domain.Order, inbound map[domain.ProductKey]int) []domain.ReconciliationRecord {
	sold := make(map[domain.ProductKey]int)
	returned := make(map[domain.ProductKey]int)
	for _, o := range orders {
		if o.Status == domain.OrderStatusCancelled {
			continue
		}
		for _, it := range o.Items {
			if it.Quantity <= 0 {
				continue
			}
			k := domain.ProductKey{Marketplace: o.Marketplace, OfferID: it.OfferID}
			sold[k] += it.Quantity
			if o.Status == domain.OrderStatusReturned {
				returned[k] += it.Quantity
			}
		}
	}

	out := make([]domain.ReconciliationRecord, 0, len(products))
	for _, p := range products {
		k := p.Key()
		rec := domain.ReconciliationRecord{
			Key:          k,
			Name:         p.Name,
			Sold:         sold[k],
			CurrentStock: p.Stock(),
			Returned:     returned[k],
		}
		if n, ok := inbound[k]; ok {
			rec.Invoiced = n
		} else {
			rec.Invoiced = rec.Sold + rec.CurrentStock + rec.Returned
			rec.Estimated = true
		}
		rec.Lost = max(0, rec.Invoiced-rec.Sold-rec.CurrentStock-rec.Returned)
		out = append(out, rec)
	}
	return out
}

// Losses returns the records with a positive loss.
func Losses(records []domain.ReconciliationRecord) []domain.ReconciliationRecord {
	var out []domain.ReconciliationRecord
	for _, r := range records {
		if r.Lost > 0 {
			out = append(out, r)
		}
	}
	return out
}
