package registry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeNode answers invokefunction calls per contract method.
func fakeNode(t *testing.T, results map[string]InvokeResult) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
			ID     int               `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			return
		}
		if req.Method != "invokefunction" {
			t.Errorf("unexpected rpc method %s", req.Method)
			return
		}

		var contractMethod string
		if err := json.Unmarshal(req.Params[1], &contractMethod); err != nil {
			t.Errorf("decode method param: %v", err)
			return
		}
		result, ok := results[contractMethod]
		if !ok {
			t.Errorf("unexpected contract method %s", contractMethod)
			return
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func byteString(s string) StackItem {
	encoded, _ := json.Marshal(base64.StdEncoding.EncodeToString([]byte(s)))
	return StackItem{Type: "ByteString", Value: encoded}
}

func boolean(v bool) StackItem {
	raw, _ := json.Marshal(v)
	return StackItem{Type: "Boolean", Value: raw}
}

func TestNeoRegistry_Reads(t *testing.T) {
	node := fakeNode(t, map[string]InvokeResult{
		"ownerOf":          {State: "HALT", Stack: []StackItem{byteString("NOwner")}},
		"getApproved":      {State: "HALT", Stack: []StackItem{byteString("NEngine")}},
		"isApprovedForAll": {State: "HALT", Stack: []StackItem{boolean(true)}},
	})
	defer node.Close()

	rpc, err := NewRPCClient(RPCConfig{RPCURL: node.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	reg := NewNeoRegistry(rpc, nil)
	ctx := context.Background()

	owner, err := reg.OwnerOf(ctx, "0xcontract", "7")
	if err != nil {
		t.Fatalf("ownerOf: %v", err)
	}
	if owner != "NOwner" {
		t.Fatalf("owner: %s", owner)
	}

	approved, err := reg.ApprovedFor(ctx, "0xcontract", "7")
	if err != nil {
		t.Fatalf("getApproved: %v", err)
	}
	if approved != "NEngine" {
		t.Fatalf("approved: %s", approved)
	}

	blanket, err := reg.IsApprovedForAll(ctx, "0xcontract", "NOwner", "NEngine")
	if err != nil {
		t.Fatalf("isApprovedForAll: %v", err)
	}
	if !blanket {
		t.Fatalf("expected blanket approval")
	}
}

func TestNeoRegistry_NullApproval(t *testing.T) {
	node := fakeNode(t, map[string]InvokeResult{
		"getApproved": {State: "HALT", Stack: []StackItem{{Type: "Null"}}},
	})
	defer node.Close()

	rpc, err := NewRPCClient(RPCConfig{RPCURL: node.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	reg := NewNeoRegistry(rpc, nil)

	approved, err := reg.ApprovedFor(context.Background(), "0xcontract", "7")
	if err != nil {
		t.Fatalf("getApproved: %v", err)
	}
	if approved != "" {
		t.Fatalf("expected empty approval, got %q", approved)
	}
}

func TestNeoRegistry_FaultedInvoke(t *testing.T) {
	node := fakeNode(t, map[string]InvokeResult{
		"ownerOf": {State: "FAULT", Exception: "token not found"},
	})
	defer node.Close()

	rpc, err := NewRPCClient(RPCConfig{RPCURL: node.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	reg := NewNeoRegistry(rpc, nil)

	_, err = reg.OwnerOf(context.Background(), "0xcontract", "7")
	if err == nil || !strings.Contains(err.Error(), "token not found") {
		t.Fatalf("expected fault error, got %v", err)
	}
}

func TestRPCClient_ErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`)
	}))
	defer server.Close()

	rpc, err := NewRPCClient(RPCConfig{RPCURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = rpc.Call(context.Background(), "invokefunction", nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != -32601 {
		t.Fatalf("expected RPCError -32601, got %v", err)
	}
}
