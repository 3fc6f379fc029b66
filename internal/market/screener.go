package market

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"
)

// screenerClient calls the stock screener REST endpoint directly; the SDK's
// marketdata client has no wrapper for it.
type screenerClient struct {
	baseURL string
	key     string
	secret  string
	client  *http.Client
}

func newScreenerClient() screenerClient {
	baseURL := os.Getenv("APCA_API_DATA_URL")
	if baseURL == "" {
		baseURL = "https://data.alpaca.markets"
	}
	return screenerClient{
		baseURL: baseURL,
		key:     os.Getenv("APCA_API_KEY_ID"),
		secret:  os.Getenv("APCA_API_SECRET_KEY"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// movers fetches the day's top percentage gainers. Non-2xx responses are
// returned as *alpaca.APIError so the caller's transient classification
// (429, 5xx) applies to screener calls too.
func (c screenerClient) movers(top int) ([]Mover, error) {
	url := fmt.Sprintf("%s/v1beta1/screener/stocks/movers?top=%d", c.baseURL, top)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("APCA-API-KEY-ID", c.key)
	req.Header.Set("APCA-API-SECRET-KEY", c.secret)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &alpaca.APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("screener movers: %s", string(body)),
		}
	}

	var payload struct {
		Gainers []struct {
			Symbol        string  `json:"symbol"`
			Price         float64 `json:"price"`
			PercentChange float64 `json:"percent_change"`
		} `json:"gainers"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("screener movers: decode: %w", err)
	}

	out := make([]Mover, 0, len(payload.Gainers))
	for _, g := range payload.Gainers {
		out = append(out, Mover{
			Symbol:        g.Symbol,
			Price:         decimal.NewFromFloat(g.Price),
			PercentChange: g.PercentChange,
		})
	}
	return out, nil
}
