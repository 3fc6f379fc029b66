package market

import (
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// Provider is the broker + market-data REST surface the engine consumes.
// Implemented by AlpacaProvider; tests substitute spies.
type Provider interface {
	GetClock() (*Clock, error)
	GetPositions() ([]BrokerPosition, error)
	GetOpenOrders() ([]BrokerOrder, error)
	PlaceOrder(spec OrderSpec) (*BrokerOrder, error)
	CancelOrder(orderID string) error
	GetMovers(top int) ([]Mover, error)
	GetSnapshot(symbol string) (*Snapshot, error)
	GetIntradayHigh(symbol string) (decimal.Decimal, error)
	GetIntradayVolume(symbol string) (int64, error)
}

// Clock is the market open/close status.
type Clock struct {
	Timestamp time.Time
	IsOpen    bool
	NextOpen  time.Time
	NextClose time.Time
}

// BrokerPosition is the broker's view of one holding.
type BrokerPosition struct {
	Symbol        string
	Qty           decimal.Decimal
	AvgEntryPrice decimal.Decimal
	CurrentPrice  decimal.Decimal
}

// BrokerOrder is a normalized broker order record.
type BrokerOrder struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Side          string
	Qty           decimal.Decimal
	FilledQty     decimal.Decimal
	LimitPrice    decimal.Decimal
	Status        string
	CreatedAt     time.Time
}

// Mover is one row of the market-movers screen.
type Mover struct {
	Symbol        string
	Price         decimal.Decimal
	PercentChange float64
}

// Snapshot is the subset of the per-symbol snapshot the scanner needs.
type Snapshot struct {
	LastPrice decimal.Decimal
	DayVolume int64
	DailyHigh decimal.Decimal
	PrevClose decimal.Decimal
}

// AlpacaProvider implements Provider on the Alpaca v2 REST APIs.
type AlpacaProvider struct {
	mdClient    *marketdata.Client
	tradeClient *alpaca.Client
	screener    screenerClient
}

// NewAlpacaProvider builds the trading and market-data clients. Credentials
// come from the APCA_* environment variables validated at startup.
func NewAlpacaProvider() *AlpacaProvider {
	return &AlpacaProvider{
		mdClient:    marketdata.NewClient(marketdata.ClientOpts{}),
		tradeClient: alpaca.NewClient(alpaca.ClientOpts{}),
		screener:    newScreenerClient(),
	}
}

func (a *AlpacaProvider) GetClock() (*Clock, error) {
	c, err := a.tradeClient.GetClock()
	if err != nil {
		return nil, err
	}
	return &Clock{
		Timestamp: c.Timestamp,
		IsOpen:    c.IsOpen,
		NextOpen:  c.NextOpen,
		NextClose: c.NextClose,
	}, nil
}

func (a *AlpacaProvider) GetPositions() ([]BrokerPosition, error) {
	positions, err := a.tradeClient.GetPositions()
	if err != nil {
		return nil, err
	}
	out := make([]BrokerPosition, 0, len(positions))
	for _, p := range positions {
		bp := BrokerPosition{
			Symbol:        p.Symbol,
			Qty:           p.Qty,
			AvgEntryPrice: p.AvgEntryPrice,
		}
		if p.CurrentPrice != nil {
			bp.CurrentPrice = *p.CurrentPrice
		}
		out = append(out, bp)
	}
	return out, nil
}

func (a *AlpacaProvider) GetOpenOrders() ([]BrokerOrder, error) {
	orders, err := a.tradeClient.GetOrders(alpaca.GetOrdersRequest{
		Status: "open",
		Limit:  500,
	})
	if err != nil {
		return nil, err
	}
	out := make([]BrokerOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, normalizeOrder(&o))
	}
	return out, nil
}

func (a *AlpacaProvider) CancelOrder(orderID string) error {
	return a.tradeClient.CancelOrder(orderID)
}

// GetMovers returns the day's top percentage gainers from the screener.
func (a *AlpacaProvider) GetMovers(top int) ([]Mover, error) {
	return a.screener.movers(top)
}

func (a *AlpacaProvider) GetSnapshot(symbol string) (*Snapshot, error) {
	snap, err := a.mdClient.GetSnapshot(symbol, marketdata.GetSnapshotRequest{})
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("no snapshot for %s", symbol)
	}
	out := &Snapshot{}
	if snap.LatestTrade != nil {
		out.LastPrice = decimal.NewFromFloat(snap.LatestTrade.Price)
	}
	if snap.DailyBar != nil {
		out.DayVolume = int64(snap.DailyBar.Volume)
		out.DailyHigh = decimal.NewFromFloat(snap.DailyBar.High)
	}
	if snap.PrevDailyBar != nil {
		out.PrevClose = decimal.NewFromFloat(snap.PrevDailyBar.Close)
	}
	return out, nil
}

// GetIntradayHigh scans today's minute bars (including pre-market) for the
// session high.
func (a *AlpacaProvider) GetIntradayHigh(symbol string) (decimal.Decimal, error) {
	bars, err := a.intradayBars(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	high := decimal.Zero
	for _, b := range bars {
		h := decimal.NewFromFloat(b.High)
		if h.GreaterThan(high) {
			high = h
		}
	}
	if high.IsZero() {
		return decimal.Zero, fmt.Errorf("no intraday bars for %s", symbol)
	}
	return high, nil
}

// GetIntradayVolume sums today's minute-bar volume.
func (a *AlpacaProvider) GetIntradayVolume(symbol string) (int64, error) {
	bars, err := a.intradayBars(symbol)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, b := range bars {
		total += int64(b.Volume)
	}
	return total, nil
}

func (a *AlpacaProvider) intradayBars(symbol string) ([]marketdata.Bar, error) {
	now := time.Now()
	y, m, d := now.Date()
	// Session start at 04:00 exchange time covers the pre-market tape.
	start := time.Date(y, m, d, 4, 0, 0, 0, now.Location())
	return a.mdClient.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneMin,
		Start:     start,
		End:       now,
	})
}

func normalizeOrder(o *alpaca.Order) BrokerOrder {
	out := BrokerOrder{
		ID:            o.ID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          string(o.Side),
		FilledQty:     o.FilledQty,
		Status:        o.Status,
		CreatedAt:     o.CreatedAt,
	}
	if o.Qty != nil {
		out.Qty = *o.Qty
	}
	if o.LimitPrice != nil {
		out.LimitPrice = *o.LimitPrice
	}
	return out
}
