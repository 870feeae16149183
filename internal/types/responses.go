package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceResponse is returned by the ledger after an adjustment or lookup.
type BalanceResponse struct {
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Timestamp time.Time       `json:"timestamp"`
}

// SweepResult summarizes one settlement sweep over matured investments.
type SweepResult struct {
	ProcessedCount int      `json:"processed_count"`
	Errors         []string `json:"errors,omitempty"`
}
