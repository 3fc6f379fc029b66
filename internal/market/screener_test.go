package market

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"
)

func testScreener(url string) screenerClient {
	return screenerClient{
		baseURL: url,
		key:     "test-key",
		secret:  "test-secret",
		client:  &http.Client{Timeout: time.Second},
	}
}

func TestScreenerMoversParsesGainers(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		gotKey = r.Header.Get("APCA-API-KEY-ID")
		w.Write([]byte(`{
		  "gainers": [
		    {"symbol": "ABC", "price": 10.50, "change": 2.1, "percent_change": 25.0},
		    {"symbol": "DEF", "price": 4.20, "change": 0.7, "percent_change": 20.0}
		  ],
		  "losers": []
		}`))
	}))
	defer srv.Close()

	movers, err := testScreener(srv.URL).movers(5)
	if err != nil {
		t.Fatalf("movers failed: %v", err)
	}
	if gotPath != "/v1beta1/screener/stocks/movers?top=5" {
		t.Errorf("unexpected request %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Error("auth header not set")
	}
	if len(movers) != 2 {
		t.Fatalf("expected 2 gainers, got %d", len(movers))
	}
	if movers[0].Symbol != "ABC" || movers[0].PercentChange != 25.0 {
		t.Errorf("first gainer wrong: %+v", movers[0])
	}
	if !movers[0].Price.Equal(decimal.NewFromFloat(10.50)) {
		t.Errorf("price lost in parse: %s", movers[0].Price)
	}
}

func TestScreenerMoversErrorCarriesStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testScreener(srv.URL).movers(5)
	if err == nil {
		t.Fatal("expected error on 429")
	}
	// Status must survive as an APIError so retry classification sees it.
	var apiErr *alpaca.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected APIError with 429, got %v", err)
	}
}

func TestScreenerMoversRejectsMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	if _, err := testScreener(srv.URL).movers(5); err == nil {
		t.Fatal("expected decode error")
	}
}
