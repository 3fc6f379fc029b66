package market

import (
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"breakout_trading/internal/models"
)

// OrderSpec is the engine-side description of an order to submit.
type OrderSpec struct {
	Symbol        string
	Side          string // "buy" or "sell"
	Qty           decimal.Decimal
	Limit         bool
	LimitPrice    decimal.Decimal
	TimeInForce   string // "day" or "ioc"
	ExtendedHours bool
	ClientOrderID string
}

// NewClientOrderID mints a purpose-prefixed client order id. The prefix lets
// reconciliation recover an order's kind from the broker record alone, and
// the uuid suffix keeps retried submissions idempotent broker-side.
func NewClientOrderID(kind models.OrderKind) string {
	return string(kind) + "-" + uuid.NewString()
}

// KindOfClientOrderID reverses NewClientOrderID. Unknown or foreign ids map
// to KindLimit, the neutral bucket.
func KindOfClientOrderID(id string) models.OrderKind {
	prefix, _, found := strings.Cut(id, "-")
	if !found {
		return models.KindLimit
	}
	switch models.OrderKind(prefix) {
	case models.KindEntry, models.KindClose, models.KindPyramid, models.KindIOC:
		return models.OrderKind(prefix)
	default:
		return models.KindLimit
	}
}

// PlaceOrder submits the spec to Alpaca and returns the normalized record.
func (a *AlpacaProvider) PlaceOrder(spec OrderSpec) (*BrokerOrder, error) {
	qty := spec.Qty
	req := alpaca.PlaceOrderRequest{
		Symbol:        spec.Symbol,
		Qty:           &qty,
		Side:          alpaca.Side(spec.Side),
		Type:          alpaca.Market,
		TimeInForce:   alpaca.Day,
		ExtendedHours: spec.ExtendedHours,
		ClientOrderID: spec.ClientOrderID,
	}
	if spec.Limit {
		limit := spec.LimitPrice
		req.Type = alpaca.Limit
		req.LimitPrice = &limit
	}
	if spec.TimeInForce == "ioc" {
		req.TimeInForce = alpaca.IOC
	}

	order, err := a.tradeClient.PlaceOrder(req)
	if err != nil {
		return nil, err
	}
	normalized := normalizeOrder(order)
	return &normalized, nil
}
