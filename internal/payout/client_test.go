package payout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestGetPayout_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/payouts/tx-1" {
			t.Fatalf("path = %s, want /api/payouts/tx-1", r.URL.Path)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(Payout{ID: "tx-1", Status: StatusPaid, Amount: decimal.RequireFromString("50.25")}); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, code, retry, err := client.GetPayout(ctx, "tx-1")
	if err != nil {
		t.Fatalf("GetPayout error: %v", err)
	}
	if code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", code, http.StatusOK)
	}
	if retry != 0 {
		t.Fatalf("retryAfter = %v, want 0", retry)
	}
	if res == nil || res.ID != "tx-1" || !res.Succeeded() || !res.Final() {
		t.Fatalf("unexpected response: %+v", res)
	}
	if res.Amount.StringFixed(2) != "50.25" {
		t.Fatalf("amount = %s, want 50.25", res.Amount)
	}
}

func TestGetPayout_TooManyRequests(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	res, code, retry, err := client.GetPayout(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("GetPayout error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil response for 429, got %+v", res)
	}
	if code != http.StatusTooManyRequests {
		t.Fatalf("status code = %d, want %d", code, http.StatusTooManyRequests)
	}
	if retry != 7*time.Second {
		t.Fatalf("retryAfter = %v, want 7s", retry)
	}
}

func TestGetPayout_NotRegistered(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	res, code, _, err := NewClient(ts.URL).GetPayout(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("GetPayout error: %v", err)
	}
	if res != nil || code != http.StatusNoContent {
		t.Fatalf("unexpected result: %+v, %d", res, code)
	}
}

func TestSubmit(t *testing.T) {
	var got Payout
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/payouts" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	code, _, err := NewClient(ts.URL).Submit(context.Background(), Payout{ID: "tx-2", RestaurantID: "r1", Amount: decimal.NewFromInt(30)})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if code != http.StatusAccepted {
		t.Fatalf("status code = %d, want %d", code, http.StatusAccepted)
	}
	if got.ID != "tx-2" || got.RestaurantID != "r1" || !got.Amount.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestClient_NotConfigured(t *testing.T) {
	var c *Client
	if c.Configured() {
		t.Fatal("nil client must not be configured")
	}
	if _, _, _, err := NewClient("").GetPayout(context.Background(), "x"); err == nil {
		t.Fatal("expected error for empty address")
	}
}
