// Package registry defines the boundary between the exchange engine and the
// external services of record: the asset registry that owns canonical
// ownership and approval state for each NFT, and the settlement-currency
// ledger that moves value. The engine only ever talks to these ports; the
// production adapters speak Neo N3 JSON-RPC for reads and a custody bridge
// for transfer execution.
package registry

import (
	"context"
	"math/big"
)

// AssetRegistry is the external service of record for asset ownership and
// delegated transfer authority.
type AssetRegistry interface {
	// OwnerOf returns the current owner of the asset.
	OwnerOf(ctx context.Context, collection, tokenID string) (string, error)

	// ApprovedFor returns the identity holding single-asset transfer
	// approval, or the empty string when none is set.
	ApprovedFor(ctx context.Context, collection, tokenID string) (string, error)

	// IsApprovedForAll reports whether operator holds blanket transfer
	// approval from owner for the whole collection.
	IsApprovedForAll(ctx context.Context, collection, owner, operator string) (bool, error)

	// Transfer moves the asset from one identity to another. It must either
	// complete the transfer or return an error; a silent no-op is a contract
	// violation.
	Transfer(ctx context.Context, collection, tokenID, from, to string) error
}

// ValueLedger is the settlement-currency primitive. Transfer failures must
// surface as errors so settlement and withdrawal paths can reject cleanly.
type ValueLedger interface {
	Transfer(ctx context.Context, to string, amount *big.Int) error
}
