package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/R3E-Network/exchange_layer/pkg/logger"
)

// CustodyBridge executes signed transfers through the custody service that
// holds the engine's keys. Failures surface as errors so the settlement path
// can reject the whole purchase.
type CustodyBridge struct {
	client   *http.Client
	endpoint *url.URL
	apiKey   string
	log      *logger.Logger
}

// NewCustodyBridge constructs a bridge for the given endpoint.
func NewCustodyBridge(client *http.Client, endpoint, apiKey string, log *logger.Logger) (*CustodyBridge, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("custody endpoint required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse custody endpoint: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("custody-bridge")
	}
	return &CustodyBridge{
		client:   client,
		endpoint: parsed,
		apiKey:   strings.TrimSpace(apiKey),
		log:      log,
	}, nil
}

// TransferAsset moves an NFT between identities.
func (b *CustodyBridge) TransferAsset(ctx context.Context, collection, tokenID, from, to string) error {
	payload := map[string]string{
		"collection": collection,
		"token_id":   tokenID,
		"from":       from,
		"to":         to,
	}
	return b.post(ctx, "/v1/transfers/asset", payload)
}

// TransferValue moves settlement currency to an identity.
func (b *CustodyBridge) TransferValue(ctx context.Context, to string, amount *big.Int) error {
	payload := map[string]string{
		"to":     to,
		"amount": amount.String(),
	}
	return b.post(ctx, "/v1/transfers/value", payload)
}

func (b *CustodyBridge) post(ctx context.Context, path string, payload map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal custody request: %w", err)
	}

	requestURL := *b.endpoint
	requestURL.Path = strings.TrimSuffix(requestURL.Path, "/") + path

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build custody request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("custody request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("custody status %d", resp.StatusCode)
	}

	var result struct {
		Success bool   `json:"success"`
		TxHash  string `json:"tx_hash"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode custody response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("custody transfer rejected: %s", result.Error)
	}

	b.log.WithField("tx_hash", result.TxHash).WithField("path", path).Debug("custody transfer executed")
	return nil
}

// CustodyLedger is the production ValueLedger backed by the custody bridge.
type CustodyLedger struct {
	bridge *CustodyBridge
}

var _ ValueLedger = (*CustodyLedger)(nil)

// NewCustodyLedger creates a ledger over the given bridge.
func NewCustodyLedger(bridge *CustodyBridge) *CustodyLedger {
	return &CustodyLedger{bridge: bridge}
}

// Transfer moves settlement currency through the custody service.
func (l *CustodyLedger) Transfer(ctx context.Context, to string, amount *big.Int) error {
	return l.bridge.TransferValue(ctx, to, amount)
}
