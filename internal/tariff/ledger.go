package tariff

import (
	"strings"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

type lineKind int

const (
	lineOther lineKind = iota
	lineCommission
	lineFulfillment
	lineDelivery
	lineSorting
)

// Keywords are matched against the lowercased line description. The ledger
// mixes Uzbek, Russian and English wording.
var lineKeywords = []struct {
	kind     lineKind
	keywords []string
}{
	{lineCommission, []string{"commission", "komissiya", "комисси", "reward", "вознагражд"}},
	{lineSorting, []string{"sorting"}},
	{lineFulfillment, []string{"fulfil", "storage", "хранени"}},
	{lineDelivery, []string{"logistic", "delivery", "доставк", "логист", "yetkazib"}},
}

func classify(description string) lineKind {
	d := strings.ToLower(description)
	for _, k := range lineKeywords {
		for _, kw := range k.keywords {
			if strings.Contains(d, kw) {
				return k.kind
			}
		}
	}
	return lineOther
}

// bucket nets charges against reversals. Only charge lines add units.
type bucket struct {
	amount float64
	units  int
}

func (b bucket) perUnit() float64 {
	if b.units <= 0 || b.amount <= 0 {
		return 0
	}
	return b.amount / float64(b.units)
}

type ledgerCharges struct {
	commission, fulfillment, delivery, sorting bucket
}

func (c *ledgerCharges) add(e domain.LedgerEntry) bool {
	units := e.Quantity
	if units <= 0 {
		units = 1
	}
	// Ledger amounts are signed from the seller's side: a charge is negative
	// and a reversal of it positive.
	charge := -e.Amount

	var b *bucket
	switch classify(e.Description) {
	case lineCommission:
		b = &c.commission
	case lineFulfillment:
		b = &c.fulfillment
	case lineDelivery:
		b = &c.delivery
	case lineSorting:
		b = &c.sorting
	default:
		return false
	}
	b.amount += charge
	if charge > 0 {
		b.units += units
	}
	return true
}

// fromLedger groups ledger lines by offer id and converts each product's
// charges into a per-unit tariff. Products whose lines are all unclassified
// are left out.
func fromLedger(entries []domain.LedgerEntry, prices map[string]float64) map[string]domain.TariffInfo {
	charges := make(map[string]*ledgerCharges)
	for _, e := range entries {
		c, ok := charges[e.OfferID]
		if !ok {
			c = &ledgerCharges{}
		}
		if c.add(e) && !ok {
			charges[e.OfferID] = c
		}
	}

	out := make(map[string]domain.TariffInfo, len(charges))
	for offerID, c := range charges {
		info := domain.NewTariffInfo(
			prices[offerID],
			c.commission.perUnit(),
			c.fulfillment.perUnit(),
			c.delivery.perUnit(),
			c.sorting.perUnit(),
			true,
			domain.TariffSourceLedger,
		)
		if info.TotalFee > 0 {
			out[offerID] = info
		}
	}
	return out
}
