package report

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/fill-ledger/internal/classify"
	"github.com/atmx/fill-ledger/internal/reconcile"
)

// PositionsView is the detailed position table.
type PositionsView struct {
	GeneratedAt    time.Time       `json:"generated_at"`
	All            bool            `json:"all"`
	OpenCount      int             `json:"open_count"`
	ClosedCount    int             `json:"closed_count"`
	TotalCostBasis decimal.Decimal `json:"total_cost_basis"`
	TotalValue     decimal.Decimal `json:"total_value"`
	UnrealizedPnL  decimal.Decimal `json:"unrealized_pnl"`
	Rows           []PositionRow   `json:"positions"`
}

// PnLView is the P&L discrepancy report.
type PnLView struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Result      reconcile.Result `json:"reconciliation"`
	Rows        []PositionRow    `json:"open_positions"`
}

// LargeView lists sell candidates.
type LargeView struct {
	GeneratedAt  time.Time       `json:"generated_at"`
	ThresholdUSD decimal.Decimal `json:"threshold_usd"`
	TotalValue   decimal.Decimal `json:"total_value"`
	Rows         []PositionRow   `json:"positions"`
}

// StaleView lists close candidates.
type StaleView struct {
	GeneratedAt time.Time           `json:"generated_at"`
	StaleDays   int                 `json:"stale_days"`
	StaleValue  decimal.Decimal     `json:"stale_value"`
	Stale       []PositionRow       `json:"stale"`
	NearStale   []PositionRow       `json:"near_stale"`
	AgeUnknown  []PositionRow       `json:"age_unknown"`
	Ages        classify.AgeSummary `json:"ages"`
}

// ActivityRow is one fill as shown in activity listings.
type ActivityRow struct {
	Line       int             `json:"line"`
	Time       string          `json:"time"`
	Timestamp  *time.Time      `json:"timestamp,omitempty"`
	Instrument string          `json:"instrument_id"`
	Direction  string          `json:"direction"`
	Shares     decimal.Decimal `json:"shares"`
	Price      decimal.Decimal `json:"price_per_share"`
	USDValue   decimal.Decimal `json:"usd_value"`
	Status     string          `json:"status"`
	Outcome    string          `json:"outcome"`
}

// ActivityView is the recent-activity listing, newest first.
type ActivityView struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Total       int           `json:"total"`
	Rows        []ActivityRow `json:"fills"`
}

// StatsView summarizes the whole log.
type StatsView struct {
	GeneratedAt    time.Time       `json:"generated_at"`
	TotalTrades    int             `json:"total_trades"`
	BuyTrades      int             `json:"buy_trades"`
	SellTrades     int             `json:"sell_trades"`
	Successful     int             `json:"successful"`
	SuccessRatePct decimal.Decimal `json:"success_rate_pct"`
	Skipped        int             `json:"skipped"`
	Failed         int             `json:"failed"`
	ParseDefects   int             `json:"parse_defects"`
	Volume         decimal.Decimal `json:"volume_usd"`
	Instruments    int             `json:"instruments"`
	OpenPositions  int             `json:"open_positions"`
	Recent         []ActivityRow   `json:"recent"`
}
