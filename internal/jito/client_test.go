package jito

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

var testTipAccounts = []string{
	"96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5",
	"HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe",
	"Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY",
}

// relayHandler answers relay JSON-RPC methods from a fixed result map.
func relayHandler(t *testing.T, results map[string]string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		result, ok := results[req.Method]
		if !ok {
			t.Fatalf("unexpected method %q", req.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":` + jsonUint(req.ID) + `,"result":` + result + `}`))
	}
}

func jsonUint(id uint64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestGetTipAccounts(t *testing.T) {
	accountsJSON, _ := json.Marshal(testTipAccounts)
	srv := httptest.NewServer(relayHandler(t, map[string]string{
		"getTipAccounts": string(accountsJSON),
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	accounts, err := c.GetTipAccounts(context.Background())
	if err != nil {
		t.Fatalf("GetTipAccounts: %v", err)
	}
	if len(accounts) != len(testTipAccounts) {
		t.Fatalf("got %d accounts, want %d", len(accounts), len(testTipAccounts))
	}
	for i, want := range testTipAccounts {
		if accounts[i] != want {
			t.Errorf("accounts[%d] = %q, want %q", i, accounts[i], want)
		}
	}
}

func TestGetTipAccountsEmpty(t *testing.T) {
	srv := httptest.NewServer(relayHandler(t, map[string]string{
		"getTipAccounts": `[]`,
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.GetTipAccounts(context.Background()); !errors.Is(err, ErrSubmissionRejected) {
		t.Errorf("err = %v, want ErrSubmissionRejected", err)
	}
}

func TestPickTipAccount(t *testing.T) {
	accountsJSON, _ := json.Marshal(testTipAccounts)
	srv := httptest.NewServer(relayHandler(t, map[string]string{
		"getTipAccounts": string(accountsJSON),
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	account, err := c.PickTipAccount(context.Background())
	if err != nil {
		t.Fatalf("PickTipAccount: %v", err)
	}
	found := false
	for _, a := range testTipAccounts {
		if a == account {
			found = true
		}
	}
	if !found {
		t.Errorf("picked account %q not in rotation", account)
	}
}

func TestSendBundle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Method != "sendBundle" {
			t.Errorf("method = %q", req.Method)
		}
		if len(req.Params) != 2 {
			t.Fatalf("got %d params, want 2", len(req.Params))
		}
		txs, ok := req.Params[0].([]interface{})
		if !ok || len(txs) != 2 {
			t.Errorf("params[0] = %v, want 2 transactions", req.Params[0])
		}
		encoding, ok := req.Params[1].(map[string]interface{})
		if !ok || encoding["encoding"] != "base64" {
			t.Errorf("params[1] = %v, want base64 encoding config", req.Params[1])
		}
		w.Write([]byte(`{"jsonrpc":"2.0","id":` + jsonUint(req.ID) + `,"result":"bundle-abc123"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	id, err := c.SendBundle(context.Background(), []string{"dGVzdDE=", "dGVzdDI="})
	if err != nil {
		t.Fatalf("SendBundle: %v", err)
	}
	if id != "bundle-abc123" {
		t.Errorf("bundle id = %q, want bundle-abc123", id)
	}
}

func TestSendBundleEmpty(t *testing.T) {
	c := NewClient("http://unused.invalid")
	if _, err := c.SendBundle(context.Background(), nil); !errors.Is(err, ErrSubmissionRejected) {
		t.Errorf("err = %v, want ErrSubmissionRejected", err)
	}
}

func TestSendBundleRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		w.Write([]byte(`{"jsonrpc":"2.0","id":` + jsonUint(req.ID) + `,"error":{"code":-32600,"message":"bundle too large"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.SendBundle(context.Background(), []string{"dGVzdA=="}); !errors.Is(err, ErrSubmissionRejected) {
		t.Errorf("err = %v, want ErrSubmissionRejected", err)
	}
}

func TestSendBundleHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.SendBundle(context.Background(), []string{"dGVzdA=="}); !errors.Is(err, ErrSubmissionRejected) {
		t.Errorf("err = %v, want ErrSubmissionRejected", err)
	}
}
