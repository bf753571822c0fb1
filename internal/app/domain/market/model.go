// Package market defines the domain model for the NFT exchange engine:
// fixed-price listings, completed sales, operator fee revenue, and the
// market-wide configuration the access gate controls.
package market

import (
	"math/big"
	"time"
)

// AssetKey identifies a single asset: the NFT contract (collection) and the
// token within it. At most one active listing exists per key.
type AssetKey struct {
	Collection string `json:"collection"`
	TokenID    string `json:"token_id"`
}

// Listing is a fixed-price offer to sell one asset. A zero-value Listing
// (empty Seller, nil or zero Price) means "not listed"; callers must treat
// a zero price as the absent sentinel.
type Listing struct {
	Collection string    `json:"collection"`
	TokenID    string    `json:"token_id"`
	Seller     string    `json:"seller"`
	Price      *big.Int  `json:"price"`
	CreatedAt  time.Time `json:"created_at"`
}

// Active reports whether the listing slot is occupied.
func (l Listing) Active() bool {
	return l.Seller != "" && l.Price != nil && l.Price.Sign() > 0
}

// Key returns the asset key for the listing.
func (l Listing) Key() AssetKey {
	return AssetKey{Collection: l.Collection, TokenID: l.TokenID}
}

// Sale records a completed settlement: who bought what, the amount paid and
// how it was split between the seller and the operator fee.
type Sale struct {
	ID             string    `json:"id"`
	Collection     string    `json:"collection"`
	TokenID        string    `json:"token_id"`
	Seller         string    `json:"seller"`
	Buyer          string    `json:"buyer"`
	Price          *big.Int  `json:"price"`
	Fee            *big.Int  `json:"fee"`
	SellerProceeds *big.Int  `json:"seller_proceeds"`
	SettledAt      time.Time `json:"settled_at"`
}

// Withdrawal records an admin withdrawal of accrued fee revenue.
type Withdrawal struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Amount    *big.Int  `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// Config is the market-wide state mutated only through the access gate.
type Config struct {
	// FeeRate is the operator cut in parts-per-thousand, always < 1000.
	FeeRate uint64 `json:"fee_rate"`

	// Paused rejects all seller/buyer-facing operations when set.
	Paused bool `json:"paused"`

	// AllowedCollections is the set of collections eligible for trading.
	AllowedCollections map[string]bool `json:"allowed_collections"`
}

// DefaultConfig returns an unpaused config with no fee and no allowed
// collections.
func DefaultConfig() Config {
	return Config{AllowedCollections: make(map[string]bool)}
}

// Clone returns a deep copy of the config.
func (c Config) Clone() Config {
	allowed := make(map[string]bool, len(c.AllowedCollections))
	for k, v := range c.AllowedCollections {
		allowed[k] = v
	}
	return Config{FeeRate: c.FeeRate, Paused: c.Paused, AllowedCollections: allowed}
}

// FeeRateDenominator is the parts-per-thousand base for fee computation.
const FeeRateDenominator = 1000

// SplitPrice computes the fee and seller proceeds for a sale price at the
// given fee rate: fee = floor(price * rate / 1000).
func SplitPrice(price *big.Int, feeRate uint64) (fee, proceeds *big.Int) {
	fee = new(big.Int).Mul(price, new(big.Int).SetUint64(feeRate))
	fee.Div(fee, big.NewInt(FeeRateDenominator))
	proceeds = new(big.Int).Sub(price, fee)
	return fee, proceeds
}
