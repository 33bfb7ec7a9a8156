package domain

import "strings"

// Marketplace identifies one external commerce platform a seller can connect.
type Marketplace string

const (
	MarketplaceYandex      Marketplace = "yandex"
	MarketplaceUzum        Marketplace = "uzum"
	MarketplaceWildberries Marketplace = "wildberries"
	MarketplaceOzon        Marketplace = "ozon"
)

// Marketplaces lists every supported source in display order.
var Marketplaces = []Marketplace{
	MarketplaceYandex,
	MarketplaceUzum,
	MarketplaceWildberries,
	MarketplaceOzon,
}

// TariffCapability describes how a marketplace exposes its fee structure.
type TariffCapability int

const (
	// TariffNone means the marketplace publishes no fee data; fees are estimated.
	TariffNone TariffCapability = iota
	// TariffAPI means the marketplace can quote fees per (category, price).
	TariffAPI
	// TariffLedger means actual charged expenses are available per product.
	TariffLedger
)

// TariffCapability reports how fees for this marketplace are obtained.
func (m Marketplace) TariffCapability() TariffCapability {
	switch m {
	case MarketplaceYandex:
		return TariffAPI
	case MarketplaceUzum:
		return TariffLedger
	default:
		return TariffNone
	}
}

// Known reports whether m is one of the supported marketplaces.
func (m Marketplace) Known() bool {
	for _, k := range Marketplaces {
		if k == m {
			return true
		}
	}
	return false
}

// ParseMarketplace normalises s into a Marketplace. Unknown names are returned
// as-is so callers can decide how to treat them.
func ParseMarketplace(s string) Marketplace {
	return Marketplace(strings.ToLower(strings.TrimSpace(s)))
}

// ProductKey is the identity of one listing: offer ids are only unique within
// a marketplace.
type ProductKey struct {
	Marketplace Marketplace
	OfferID     string
}

func (k ProductKey) String() string {
	return string(k.Marketplace) + ":" + k.OfferID
}
