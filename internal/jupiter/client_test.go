package jupiter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

const (
	testInputMint  = "So11111111111111111111111111111111111111112"
	testOutputMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func TestGetQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		q := r.URL.Query()
		if got := q.Get("inputMint"); got != testInputMint {
			t.Errorf("inputMint = %q", got)
		}
		if got := q.Get("amount"); got != "1000000000" {
			t.Errorf("amount = %q", got)
		}
		if got := q.Get("slippageBps"); got != "50" {
			t.Errorf("slippageBps = %q", got)
		}
		w.Write([]byte(`{"inputMint":"` + testInputMint + `","outputMint":"` + testOutputMint + `","inAmount":"1000000000","outAmount":"184500000","routePlan":[]}`))
	}))
	defer srv.Close()

	c := NewClient(WithQuoteBaseURL(srv.URL))
	route, err := c.GetQuote(context.Background(), testInputMint, testOutputMint, 1_000_000_000, 50)
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if route.InputMint != testInputMint || route.OutputMint != testOutputMint {
		t.Errorf("mints = %q -> %q", route.InputMint, route.OutputMint)
	}
	if route.InAmount != 1_000_000_000 {
		t.Errorf("InAmount = %d, want 1000000000", route.InAmount)
	}
	if route.OutAmount != 184_500_000 {
		t.Errorf("OutAmount = %d, want 184500000", route.OutAmount)
	}
	if len(route.Raw) == 0 {
		t.Error("Raw body not preserved")
	}
}

func TestGetQuoteUnavailable(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"api error", http.StatusOK, `{"error":"No routes found","errorCode":"COULD_NOT_FIND_ANY_ROUTE"}`},
		{"missing out amount", http.StatusOK, `{"inputMint":"a","outputMint":"b"}`},
		{"bad request", http.StatusBadRequest, `{"error":"invalid mint"}`},
		{"not found", http.StatusNotFound, `not found`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewClient(WithQuoteBaseURL(srv.URL))
			_, err := c.GetQuote(context.Background(), testInputMint, testOutputMint, 100, 50)
			if !errors.Is(err, ErrQuoteUnavailable) {
				t.Errorf("err = %v, want ErrQuoteUnavailable", err)
			}
		})
	}
}

func TestGetQuoteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(WithQuoteBaseURL(srv.URL))
	_, err := c.GetQuote(context.Background(), testInputMint, testOutputMint, 100, 50)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrQuoteUnavailable) {
		t.Errorf("server error should not map to ErrQuoteUnavailable: %v", err)
	}
}

func TestGetSwapTransaction(t *testing.T) {
	raw := json.RawMessage(`{"inAmount":"100","outAmount":"200","routePlan":[]}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/swap" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		var req struct {
			QuoteResponse             json.RawMessage `json:"quoteResponse"`
			UserPublicKey             string          `json:"userPublicKey"`
			WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
			PrioritizationFeeLamports uint64          `json:"prioritizationFeeLamports"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode swap request: %v", err)
		}
		if string(req.QuoteResponse) != string(raw) {
			t.Errorf("quoteResponse = %s", req.QuoteResponse)
		}
		if req.UserPublicKey != "payer111" {
			t.Errorf("userPublicKey = %q", req.UserPublicKey)
		}
		if !req.WrapAndUnwrapSol {
			t.Error("wrapAndUnwrapSol not set")
		}
		if req.PrioritizationFeeLamports != 200_000 {
			t.Errorf("prioritizationFeeLamports = %d", req.PrioritizationFeeLamports)
		}
		w.Write([]byte(`{"swapTransaction":"AQID"}`))
	}))
	defer srv.Close()

	c := NewClient(WithQuoteBaseURL(srv.URL))
	tx, err := c.GetSwapTransaction(context.Background(), &Route{Raw: raw}, "payer111", 200_000)
	if err != nil {
		t.Fatalf("GetSwapTransaction: %v", err)
	}
	if tx != "AQID" {
		t.Errorf("tx = %q, want AQID", tx)
	}
}

func TestGetSwapTransactionMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(WithQuoteBaseURL(srv.URL))
	if _, err := c.GetSwapTransaction(context.Background(), &Route{Raw: json.RawMessage(`{}`)}, "payer111", 0); err == nil {
		t.Fatal("expected error for empty swap response")
	}
}

func TestGetPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != testOutputMint {
			t.Errorf("ids = %q", got)
		}
		w.Write([]byte(`{"data":{"` + testOutputMint + `":{"price":"0.999735"}}}`))
	}))
	defer srv.Close()

	c := NewClient(WithPriceBaseURL(srv.URL))
	price, err := c.GetPrice(context.Background(), testOutputMint)
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}
	if price != 0.999735 {
		t.Errorf("price = %v, want 0.999735", price)
	}
}

func TestGetPriceUnknownMint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	c := NewClient(WithPriceBaseURL(srv.URL))
	price, err := c.GetPrice(context.Background(), testOutputMint)
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}
	if price != 0 {
		t.Errorf("price = %v, want 0", price)
	}
}
