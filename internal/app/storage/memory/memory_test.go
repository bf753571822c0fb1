package memory

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/R3E-Network/exchange_layer/internal/app/domain/market"
)

func testListing(price int64) market.Listing {
	return market.Listing{
		Collection: "0xcoll",
		TokenID:    "1",
		Seller:     "seller",
		Price:      big.NewInt(price),
		CreatedAt:  time.Now().UTC(),
	}
}

func TestListingRoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()

	got, err := store.GetListing(ctx, "0xcoll", "1")
	if err != nil {
		t.Fatalf("get absent: %v", err)
	}
	if got.Active() {
		t.Fatalf("absent listing not zero-value: %+v", got)
	}

	stored, err := store.PutListing(ctx, testListing(100))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if stored.Price.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("stored price: %s", stored.Price)
	}

	got, err = store.GetListing(ctx, "0xcoll", "1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Seller != "seller" || got.Price.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	// Stored values are isolated from caller mutation.
	got.Price.SetInt64(5)
	again, _ := store.GetListing(ctx, "0xcoll", "1")
	if again.Price.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("stored price mutated through returned copy: %s", again.Price)
	}

	if err := store.DeleteListing(ctx, "0xcoll", "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ = store.GetListing(ctx, "0xcoll", "1")
	if got.Active() {
		t.Fatalf("listing survived delete: %+v", got)
	}
}

func TestListListingsFiltersByCollection(t *testing.T) {
	store := New()
	ctx := context.Background()

	a := testListing(10)
	b := testListing(20)
	b.TokenID = "2"
	c := testListing(30)
	c.Collection = "0xother"
	for _, l := range []market.Listing{a, b, c} {
		if _, err := store.PutListing(ctx, l); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	listings, err := store.ListListings(ctx, "0xcoll")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(listings))
	}

	all, err := store.ListListings(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 listings, got %d", len(all))
	}
}

func TestMarketConfigRoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()

	cfg, err := store.GetMarketConfig(ctx)
	if err != nil {
		t.Fatalf("get default: %v", err)
	}
	if cfg.FeeRate != 0 || cfg.Paused {
		t.Fatalf("unexpected default config: %+v", cfg)
	}

	cfg.FeeRate = 30
	cfg.Paused = true
	cfg.AllowedCollections["0xcoll"] = true
	if err := store.SaveMarketConfig(ctx, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Mutating the saved copy must not leak into the store.
	cfg.AllowedCollections["0xleak"] = true

	got, err := store.GetMarketConfig(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FeeRate != 30 || !got.Paused || !got.AllowedCollections["0xcoll"] {
		t.Fatalf("config mismatch: %+v", got)
	}
	if got.AllowedCollections["0xleak"] {
		t.Fatalf("store shares map with caller")
	}
}

func TestSettleSale(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.PutListing(ctx, testListing(1000)); err != nil {
		t.Fatalf("put: %v", err)
	}

	sale := market.Sale{
		ID:             "sale-1",
		Collection:     "0xcoll",
		TokenID:        "1",
		Seller:         "seller",
		Buyer:          "buyer",
		Price:          big.NewInt(1000),
		Fee:            big.NewInt(25),
		SellerProceeds: big.NewInt(975),
		SettledAt:      time.Now().UTC(),
	}
	if err := store.SettleSale(ctx, sale); err != nil {
		t.Fatalf("settle: %v", err)
	}

	listing, _ := store.GetListing(ctx, "0xcoll", "1")
	if listing.Active() {
		t.Fatalf("listing survived settlement")
	}
	accrued, _ := store.AccruedFees(ctx)
	if accrued.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("accrued: %s", accrued)
	}

	sales, err := store.ListSales(ctx, "0xcoll")
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 1 || sales[0].ID != "sale-1" {
		t.Fatalf("sale not recorded: %+v", sales)
	}
}

func TestDebitFees(t *testing.T) {
	store := New()
	ctx := context.Background()

	seed := market.Sale{
		ID: "sale-1", Collection: "0xcoll", TokenID: "1",
		Price: big.NewInt(100), Fee: big.NewInt(40), SellerProceeds: big.NewInt(60),
	}
	if err := store.SettleSale(ctx, seed); err != nil {
		t.Fatalf("settle: %v", err)
	}

	over := market.Withdrawal{ID: "w-1", Recipient: "out", Amount: big.NewInt(41)}
	if err := store.DebitFees(ctx, over); err == nil {
		t.Fatalf("expected error for over-withdrawal")
	}
	accrued, _ := store.AccruedFees(ctx)
	if accrued.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("accrued changed by failed debit: %s", accrued)
	}

	ok := market.Withdrawal{ID: "w-2", Recipient: "out", Amount: big.NewInt(40), CreatedAt: time.Now().UTC()}
	if err := store.DebitFees(ctx, ok); err != nil {
		t.Fatalf("debit: %v", err)
	}
	accrued, _ = store.AccruedFees(ctx)
	if accrued.Sign() != 0 {
		t.Fatalf("accrued not drained: %s", accrued)
	}

	withdrawals, err := store.ListWithdrawals(ctx)
	if err != nil {
		t.Fatalf("list withdrawals: %v", err)
	}
	if len(withdrawals) != 1 || withdrawals[0].ID != "w-2" {
		t.Fatalf("withdrawal not recorded: %+v", withdrawals)
	}
}
