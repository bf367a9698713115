// internal/cards/models.go
package cards

// LinkedCard is a row from the authoritative linked-cards list (GET /cards).
// Legacy rows may lack CardProductSlug, which is why the reconciler keeps a
// name-based matching fallback.
type LinkedCard struct {
	ID              string `json:"id"`
	Nickname        string `json:"nickname"`
	Issuer          string `json:"issuer"`
	Network         string `json:"network,omitempty"`
	AccountMask     string `json:"account_mask,omitempty"`
	Status          string `json:"status,omitempty"`
	CardProductSlug string `json:"card_product_slug,omitempty"`
}

// RewardRate is one category rate on a catalog product.
type RewardRate struct {
	Category   string   `json:"category"`
	Rate       float64  `json:"rate"`
	CapMonthly *float64 `json:"cap_monthly,omitempty"`
}

// CatalogProduct is a candidate product from GET /cards/catalog.
type CatalogProduct struct {
	ID           string       `json:"id"`
	Slug         string       `json:"slug"`
	ProductName  string       `json:"product_name"`
	Issuer       string       `json:"issuer"`
	Network      string       `json:"network,omitempty"`
	AnnualFee    float64      `json:"annual_fee"`
	BaseCashback float64      `json:"base_cashback"`
	Rewards      []RewardRate `json:"rewards,omitempty"`
}
