package balance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestBalanceReadsWallet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/balances/0xwallet" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("authorization = %q", got)
		}
		_, _ = w.Write([]byte(`{"address":"0xwallet","balance":"123.45"}`))
	}))
	defer server.Close()

	reader, err := NewHTTPReader(server.URL, "token-1")
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	got, err := reader.Balance(context.Background(), "0xwallet")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("123.45")) {
		t.Fatalf("balance = %s, want 123.45", got)
	}
}

func TestBalanceServerErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	reader, err := NewHTTPReader(server.URL, "")
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	if _, err := reader.Balance(context.Background(), "0xwallet"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestBalanceBadBodyIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	reader, err := NewHTTPReader(server.URL, "")
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	if _, err := reader.Balance(context.Background(), "0xwallet"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestBalanceRejectsEmptyWallet(t *testing.T) {
	reader, err := NewHTTPReader("http://localhost:1", "")
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	if _, err := reader.Balance(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty wallet address")
	}
}
