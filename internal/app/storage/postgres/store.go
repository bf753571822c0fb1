package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/R3E-Network/exchange_layer/internal/app/domain/market"
	"github.com/R3E-Network/exchange_layer/internal/app/storage"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.ListingStore = (*Store)(nil)
var _ storage.ConfigStore = (*Store)(nil)
var _ storage.FeeStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL with the given DSN and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db), nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the exchange tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS exchange_listings (
			collection  TEXT NOT NULL,
			token_id    TEXT NOT NULL,
			seller      TEXT NOT NULL,
			price       NUMERIC(78,0) NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (collection, token_id)
		);
		CREATE TABLE IF NOT EXISTS exchange_market_config (
			id                  SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			fee_rate            BIGINT NOT NULL,
			paused              BOOLEAN NOT NULL,
			allowed_collections JSONB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS exchange_fee_ledger (
			id      SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			accrued NUMERIC(78,0) NOT NULL
		);
		CREATE TABLE IF NOT EXISTS exchange_sales (
			id               UUID PRIMARY KEY,
			collection       TEXT NOT NULL,
			token_id         TEXT NOT NULL,
			seller           TEXT NOT NULL,
			buyer            TEXT NOT NULL,
			price            NUMERIC(78,0) NOT NULL,
			fee              NUMERIC(78,0) NOT NULL,
			seller_proceeds  NUMERIC(78,0) NOT NULL,
			settled_at       TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS exchange_withdrawals (
			id         UUID PRIMARY KEY,
			recipient  TEXT NOT NULL,
			amount     NUMERIC(78,0) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		INSERT INTO exchange_fee_ledger (id, accrued) VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`)
	return err
}

// --- ListingStore -----------------------------------------------------------

func (s *Store) PutListing(ctx context.Context, l market.Listing) (market.Listing, error) {
	if l.Collection == "" || l.TokenID == "" {
		return market.Listing{}, fmt.Errorf("listing key is incomplete")
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchange_listings (collection, token_id, seller, price, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (collection, token_id)
		DO UPDATE SET seller = $3, price = $4, created_at = $5
	`, l.Collection, l.TokenID, l.Seller, l.Price.String(), l.CreatedAt)
	if err != nil {
		return market.Listing{}, err
	}
	return l, nil
}

func (s *Store) GetListing(ctx context.Context, collection, tokenID string) (market.Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seller, price, created_at
		FROM exchange_listings
		WHERE collection = $1 AND token_id = $2
	`, collection, tokenID)

	var (
		seller    string
		price     string
		createdAt time.Time
	)
	switch err := row.Scan(&seller, &price, &createdAt); {
	case err == sql.ErrNoRows:
		return market.Listing{}, nil
	case err != nil:
		return market.Listing{}, err
	}

	amount, err := parseAmount(price)
	if err != nil {
		return market.Listing{}, err
	}
	return market.Listing{
		Collection: collection,
		TokenID:    tokenID,
		Seller:     seller,
		Price:      amount,
		CreatedAt:  createdAt.UTC(),
	}, nil
}

func (s *Store) DeleteListing(ctx context.Context, collection, tokenID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM exchange_listings WHERE collection = $1 AND token_id = $2
	`, collection, tokenID)
	return err
}

func (s *Store) ListListings(ctx context.Context, collection string) ([]market.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT collection, token_id, seller, price, created_at
		FROM exchange_listings
		WHERE $1 = '' OR collection = $1
		ORDER BY created_at
	`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []market.Listing
	for rows.Next() {
		var (
			l     market.Listing
			price string
		)
		if err := rows.Scan(&l.Collection, &l.TokenID, &l.Seller, &price, &l.CreatedAt); err != nil {
			return nil, err
		}
		if l.Price, err = parseAmount(price); err != nil {
			return nil, err
		}
		l.CreatedAt = l.CreatedAt.UTC()
		result = append(result, l)
	}
	return result, rows.Err()
}

// --- ConfigStore ------------------------------------------------------------

func (s *Store) GetMarketConfig(ctx context.Context) (market.Config, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT fee_rate, paused, allowed_collections FROM exchange_market_config WHERE id = 1
	`)

	var (
		cfg     market.Config
		allowed []byte
	)
	switch err := row.Scan(&cfg.FeeRate, &cfg.Paused, &allowed); {
	case err == sql.ErrNoRows:
		return market.DefaultConfig(), nil
	case err != nil:
		return market.Config{}, err
	}

	cfg.AllowedCollections = make(map[string]bool)
	if err := json.Unmarshal(allowed, &cfg.AllowedCollections); err != nil {
		return market.Config{}, fmt.Errorf("decode allowed collections: %w", err)
	}
	return cfg, nil
}

func (s *Store) SaveMarketConfig(ctx context.Context, cfg market.Config) error {
	allowed, err := json.Marshal(cfg.AllowedCollections)
	if err != nil {
		return fmt.Errorf("encode allowed collections: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO exchange_market_config (id, fee_rate, paused, allowed_collections)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET fee_rate = $1, paused = $2, allowed_collections = $3
	`, cfg.FeeRate, cfg.Paused, allowed)
	return err
}

// --- FeeStore ---------------------------------------------------------------

func (s *Store) AccruedFees(ctx context.Context) (*big.Int, error) {
	var accrued string
	err := s.db.QueryRowContext(ctx, `
		SELECT accrued FROM exchange_fee_ledger WHERE id = 1
	`).Scan(&accrued)
	if err == sql.ErrNoRows {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return parseAmount(accrued)
}

func (s *Store) SettleSale(ctx context.Context, sale market.Sale) error {
	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if sale.SettledAt.IsZero() {
		sale.SettledAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM exchange_listings WHERE collection = $1 AND token_id = $2
	`, sale.Collection, sale.TokenID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE exchange_fee_ledger SET accrued = accrued + $1 WHERE id = 1
	`, sale.Fee.String()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO exchange_sales (id, collection, token_id, seller, buyer, price, fee, seller_proceeds, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, sale.ID, sale.Collection, sale.TokenID, sale.Seller, sale.Buyer,
		sale.Price.String(), sale.Fee.String(), sale.SellerProceeds.String(), sale.SettledAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) DebitFees(ctx context.Context, w market.Withdrawal) error {
	if w.Amount == nil || w.Amount.Sign() <= 0 {
		return fmt.Errorf("withdrawal amount must be positive")
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE exchange_fee_ledger SET accrued = accrued - $1
		WHERE id = 1 AND accrued >= $1
	`, w.Amount.String())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("withdrawal amount %s exceeds accrued fees", w.Amount)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO exchange_withdrawals (id, recipient, amount, created_at)
		VALUES ($1, $2, $3, $4)
	`, w.ID, w.Recipient, w.Amount.String(), w.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListSales(ctx context.Context, collection string) ([]market.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, collection, token_id, seller, buyer, price, fee, seller_proceeds, settled_at
		FROM exchange_sales
		WHERE $1 = '' OR collection = $1
		ORDER BY settled_at
	`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []market.Sale
	for rows.Next() {
		var (
			sale                 market.Sale
			price, fee, proceeds string
		)
		if err := rows.Scan(&sale.ID, &sale.Collection, &sale.TokenID, &sale.Seller, &sale.Buyer,
			&price, &fee, &proceeds, &sale.SettledAt); err != nil {
			return nil, err
		}
		if sale.Price, err = parseAmount(price); err != nil {
			return nil, err
		}
		if sale.Fee, err = parseAmount(fee); err != nil {
			return nil, err
		}
		if sale.SellerProceeds, err = parseAmount(proceeds); err != nil {
			return nil, err
		}
		sale.SettledAt = sale.SettledAt.UTC()
		result = append(result, sale)
	}
	return result, rows.Err()
}

func (s *Store) ListWithdrawals(ctx context.Context) ([]market.Withdrawal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient, amount, created_at
		FROM exchange_withdrawals
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []market.Withdrawal
	for rows.Next() {
		var (
			w      market.Withdrawal
			amount string
		)
		if err := rows.Scan(&w.ID, &w.Recipient, &amount, &w.CreatedAt); err != nil {
			return nil, err
		}
		if w.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		w.CreatedAt = w.CreatedAt.UTC()
		result = append(result, w)
	}
	return result, rows.Err()
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
