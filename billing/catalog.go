package billing

import "github.com/vidscribe/vidscribe/types"

// Product identifiers as registered with the payment platform.
const (
	ProductPackSmall  = "com.vidscribe.credits.20"
	ProductPackMedium = "com.vidscribe.credits.75"
	ProductPackLarge  = "com.vidscribe.credits.250"

	ProductSubStarter  = "com.vidscribe.sub.starter"
	ProductSubPro      = "com.vidscribe.sub.pro"
	ProductSubUltimate = "com.vidscribe.sub.ultimate"
)

// Catalog is the fixed product catalog. Prices are display values; the
// payment platform remains authoritative for charging.
var Catalog = []Product{
	{ID: ProductPackSmall, Kind: ProductCreditPack, Name: "20 Credits", Price: types.USD(499), Credits: 20},
	{ID: ProductPackMedium, Kind: ProductCreditPack, Name: "75 Credits", Price: types.USD(1499), Credits: 75},
	{ID: ProductPackLarge, Kind: ProductCreditPack, Name: "250 Credits", Price: types.USD(3999), Credits: 250},

	{ID: ProductSubStarter, Kind: ProductSubscription, Name: "Starter", Price: types.USD(499), Credits: 60, Tier: TierStarter},
	{ID: ProductSubPro, Kind: ProductSubscription, Name: "Pro", Price: types.USD(999), Credits: 180, Tier: TierPro},
	{ID: ProductSubUltimate, Kind: ProductSubscription, Name: "Ultimate", Price: types.USD(1999), Credits: 500, Tier: TierUltimate},
}

// LookupProduct returns the catalog entry for a product identifier.
func LookupProduct(productID string) (Product, bool) {
	for _, p := range Catalog {
		if p.ID == productID {
			return p, true
		}
	}
	return Product{}, false
}

// PackCredits returns the credit amount for a consumable pack product,
// or false when the identifier is not a known pack.
func PackCredits(productID string) (int64, bool) {
	p, ok := LookupProduct(productID)
	if !ok || p.Kind != ProductCreditPack {
		return 0, false
	}
	return p.Credits, true
}
