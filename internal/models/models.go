package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderKind classifies why an order was submitted. It is encoded as the
// prefix of the client order id (e.g. "CLOSE-<uuid>") so the purpose of an
// order survives a restart and can be recovered from the broker alone.
type OrderKind string

const (
	KindEntry   OrderKind = "ENTRY"
	KindClose   OrderKind = "CLOSE"
	KindPyramid OrderKind = "PYRAMID"
	KindLimit   OrderKind = "LIMIT"
	KindIOC     OrderKind = "IOC"
)

// Position is the strategy-side view of a single long holding.
//
// StopTriggered and TrailingActive are one-way latches: they are never reset
// while the Position lives. PyramidsDone and ProfitTargetsHit only grow.
// These monotonic fields are what keep quote-driven decisions and
// reconciliation convergent no matter how they interleave.
type Position struct {
	Symbol        string          `json:"symbol"`
	Qty           decimal.Decimal `json:"qty"`
	InitialQty    decimal.Decimal `json:"initial_qty"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`

	Bid  decimal.Decimal `json:"bid"`
	Ask  decimal.Decimal `json:"ask"`
	Mark decimal.Decimal `json:"mark"`

	ProfitCents      decimal.Decimal `json:"profit_cents"`
	ProfitTargetsHit int             `json:"profit_targets_hit"`
	StopPrice        decimal.Decimal `json:"stop_price"`
	StopTriggered    bool            `json:"stop_triggered"`
	PyramidsDone     map[int]bool    `json:"pyramids_done"`
	TrailingActive   bool            `json:"trailing_active"`
	LastTrailLow     decimal.Decimal `json:"last_trail_low"`

	// Closing guards against overlapping partial-close submissions for the
	// same symbol. Cleared when the in-flight close settles.
	Closing bool `json:"closing"`

	TierIndex int       `json:"tier_index"`
	OpenedAt  time.Time `json:"opened_at"`

	// Rolling trailing-stop price window. Rebuilt from live quotes, so it
	// is not persisted.
	TrailWindow []PriceSample `json:"-"`
}

// PriceSample is one observation in the trailing-stop window.
type PriceSample struct {
	At    time.Time
	Price decimal.Decimal
}

// RemainingQty is Qty clamped at zero, for sizing partial closes.
func (p *Position) RemainingQty() decimal.Decimal {
	if p.Qty.IsNegative() {
		return decimal.Zero
	}
	return p.Qty
}

// WatchlistEntry is one candidate symbol. It may exist without a Position
// (pre-entry) and a Position may briefly exist without it (manual removal
// while holding).
type WatchlistEntry struct {
	Symbol      string          `json:"symbol"`
	HighOfDay   decimal.Decimal `json:"high_of_day"`
	HODFrozen   bool            `json:"hod_frozen"`
	Armed       bool            `json:"armed"`
	HasPosition bool            `json:"has_position"`

	// PendingEntryOrder holds the client order id of an outstanding entry
	// order, or "" when none is in flight.
	PendingEntryOrder string          `json:"pending_entry_order"`
	PlannedEntry      decimal.Decimal `json:"planned_entry"`

	Halted   bool      `json:"halted"`
	LastHalt time.Time `json:"last_halt"`

	TierIndex int  `json:"tier_index"`
	Pinned    bool `json:"pinned"`

	AddedAt time.Time `json:"added_at"`
}

// TrackedOrder mirrors one order submitted to the broker, keyed by the
// broker-assigned id.
type TrackedOrder struct {
	ID            string          `json:"id"`
	ClientOrderID string          `json:"client_order_id"`
	Symbol        string          `json:"symbol"`
	Kind          OrderKind       `json:"kind"`
	Side          string          `json:"side"`
	Qty           decimal.Decimal `json:"qty"`
	FilledQty     decimal.Decimal `json:"filled_qty"`
	LimitPrice    decimal.Decimal `json:"limit_price"`
	PlacedAt      time.Time       `json:"placed_at"`
}

// Age is how long the order has been outstanding.
func (o *TrackedOrder) Age(now time.Time) time.Duration {
	return now.Sub(o.PlacedAt)
}

// StateVersion is the current snapshot schema version.
const StateVersion = "2.1"

// EngineState is the persisted snapshot schema.
type EngineState struct {
	Version   string                     `json:"version"`
	SavedAt   string                     `json:"saved_at"`
	Positions map[string]*Position       `json:"positions"`
	Watchlist map[string]*WatchlistEntry `json:"watchlist"`
	Orders    map[string]*TrackedOrder   `json:"orders"`
}

// NewEngineState returns an empty snapshot at the current schema version.
func NewEngineState() EngineState {
	return EngineState{
		Version:   StateVersion,
		Positions: map[string]*Position{},
		Watchlist: map[string]*WatchlistEntry{},
		Orders:    map[string]*TrackedOrder{},
	}
}
