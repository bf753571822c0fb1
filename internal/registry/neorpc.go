package registry

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RPCClient is a minimal Neo N3 JSON-RPC client used for read-only contract
// queries against NEP-11 collections.
type RPCClient struct {
	rpcURL     string
	httpClient *http.Client
}

// RPCConfig holds client configuration.
type RPCConfig struct {
	RPCURL  string
	Timeout time.Duration
}

// NewRPCClient creates a new Neo N3 RPC client.
func NewRPCClient(cfg RPCConfig) (*RPCClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &RPCClient{
		rpcURL:     cfg.RPCURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	ID      int             `json:"id"`
}

// RPCError represents a JSON-RPC error response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements error.
func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ContractParam is a typed parameter for contract invocation.
type ContractParam struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// StringParam builds a String contract parameter.
func StringParam(v string) ContractParam {
	return ContractParam{Type: "String", Value: v}
}

// Hash160Param builds a Hash160 contract parameter.
func Hash160Param(v string) ContractParam {
	return ContractParam{Type: "Hash160", Value: v}
}

// StackItem is a value returned on the VM evaluation stack.
type StackItem struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// InvokeResult is the response of an invokefunction call.
type InvokeResult struct {
	State       string      `json:"state"`
	GasConsumed string      `json:"gasconsumed"`
	Exception   string      `json:"exception"`
	Stack       []StackItem `json:"stack"`
}

// Call makes an RPC call to the Neo N3 node.
func (c *RPCClient) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// InvokeFunction invokes a contract function read-only and returns the first
// stack item on a HALT state.
func (c *RPCClient) InvokeFunction(ctx context.Context, scriptHash, method string, params []ContractParam) (StackItem, error) {
	if params == nil {
		params = []ContractParam{}
	}
	result, err := c.Call(ctx, "invokefunction", []interface{}{scriptHash, method, params})
	if err != nil {
		return StackItem{}, err
	}

	var invokeResult InvokeResult
	if err := json.Unmarshal(result, &invokeResult); err != nil {
		return StackItem{}, err
	}
	if invokeResult.State != "HALT" {
		return StackItem{}, fmt.Errorf("invoke %s.%s faulted: %s", scriptHash, method, invokeResult.Exception)
	}
	if len(invokeResult.Stack) == 0 {
		return StackItem{}, fmt.Errorf("invoke %s.%s returned empty stack", scriptHash, method)
	}
	return invokeResult.Stack[0], nil
}

// parseAddress decodes a ByteString stack item into an address string. A Null
// item decodes to the empty string.
func parseAddress(item StackItem) (string, error) {
	switch item.Type {
	case "Null", "Any":
		return "", nil
	case "ByteString", "Buffer":
		var encoded string
		if err := json.Unmarshal(item.Value, &encoded); err != nil {
			return "", err
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return "", fmt.Errorf("decode address: %w", err)
		}
		return string(decoded), nil
	default:
		return "", fmt.Errorf("unexpected stack item type %s", item.Type)
	}
}

// parseBoolean decodes a Boolean stack item.
func parseBoolean(item StackItem) (bool, error) {
	if item.Type != "Boolean" {
		return false, fmt.Errorf("unexpected stack item type %s", item.Type)
	}
	var value bool
	if err := json.Unmarshal(item.Value, &value); err != nil {
		return false, err
	}
	return value, nil
}

// NeoRegistry adapts a NEP-11 collection contract family to the AssetRegistry
// port. Reads go straight to a Neo N3 node; transfer execution is delegated
// to the custody bridge, which holds the signing keys.
type NeoRegistry struct {
	rpc    *RPCClient
	bridge *CustodyBridge
}

var _ AssetRegistry = (*NeoRegistry)(nil)

// NewNeoRegistry creates a registry adapter over the given RPC client and
// custody bridge.
func NewNeoRegistry(rpc *RPCClient, bridge *CustodyBridge) *NeoRegistry {
	return &NeoRegistry{rpc: rpc, bridge: bridge}
}

// OwnerOf queries the collection contract for the current token owner.
func (r *NeoRegistry) OwnerOf(ctx context.Context, collection, tokenID string) (string, error) {
	item, err := r.rpc.InvokeFunction(ctx, collection, "ownerOf", []ContractParam{StringParam(tokenID)})
	if err != nil {
		return "", fmt.Errorf("ownerOf %s/%s: %w", collection, tokenID, err)
	}
	return parseAddress(item)
}

// ApprovedFor queries the single-asset approval for a token.
func (r *NeoRegistry) ApprovedFor(ctx context.Context, collection, tokenID string) (string, error) {
	item, err := r.rpc.InvokeFunction(ctx, collection, "getApproved", []ContractParam{StringParam(tokenID)})
	if err != nil {
		return "", fmt.Errorf("getApproved %s/%s: %w", collection, tokenID, err)
	}
	return parseAddress(item)
}

// IsApprovedForAll queries the blanket approval from owner to operator.
func (r *NeoRegistry) IsApprovedForAll(ctx context.Context, collection, owner, operator string) (bool, error) {
	item, err := r.rpc.InvokeFunction(ctx, collection, "isApprovedForAll", []ContractParam{
		Hash160Param(owner),
		Hash160Param(operator),
	})
	if err != nil {
		return false, fmt.Errorf("isApprovedForAll %s: %w", collection, err)
	}
	return parseBoolean(item)
}

// Transfer executes the asset transfer through the custody bridge.
func (r *NeoRegistry) Transfer(ctx context.Context, collection, tokenID, from, to string) error {
	return r.bridge.TransferAsset(ctx, collection, tokenID, from, to)
}
