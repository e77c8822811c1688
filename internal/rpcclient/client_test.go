package rpcclient

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/monte1s/tokengate/pkg/crypto"
)

func TestCall(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.JSONRPC != "2.0" || req.Method != "token_getSupply" {
			t.Fatalf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"result":  map[string]string{"total_supply": "1000"},
			"id":      req.ID,
		})
	}))
	defer ts.Close()

	var result struct {
		TotalSupply string `json:"total_supply"`
	}
	if err := New(ts.URL).Call("token_getSupply", nil, &result); err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if result.TotalSupply != "1000" {
		t.Fatalf("total_supply = %s, want 1000", result.TotalSupply)
	}
}

func TestCallAsSignsRequest(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Auth == nil {
			t.Fatal("request carries no auth")
		}
		if req.Auth.Signer != key.Address().String() {
			t.Fatalf("signer = %s, want %s", req.Auth.Signer, key.Address())
		}
		sig, err := hex.DecodeString(req.Auth.Signature)
		if err != nil {
			t.Fatalf("decode signature: %v", err)
		}
		recovered, err := crypto.Recover(crypto.RequestDigest(req.Method, req.Params), sig)
		if err != nil {
			t.Fatalf("Recover() error: %v", err)
		}
		if recovered != key.Address() {
			t.Fatalf("recovered %s, want %s", recovered, key.Address())
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"result":  true,
			"id":      req.ID,
		})
	}))
	defer ts.Close()

	params := map[string]string{"from": key.Address().String(), "to": key.Address().String(), "amount": "1"}
	if err := New(ts.URL).CallAs(key, "token_transfer", params, nil); err != nil {
		t.Fatalf("CallAs() error: %v", err)
	}
}

func TestCallServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"error":   map[string]interface{}{"code": -32601, "message": "method not found"},
			"id":      1,
		})
	}))
	defer ts.Close()

	err := New(ts.URL).Call("bogus", nil, nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("Call() error = %v, want *RPCError", err)
	}
	if rpcErr.Code != -32601 {
		t.Fatalf("code = %d, want -32601", rpcErr.Code)
	}
}
