package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Trade sides
const (
	TradeTypeBuy  = "buy"
	TradeTypeSell = "sell"
)

// Trade lifecycle. A trade transitions pending -> executed exactly once.
// Follower copies that cannot be funded are marked failed with a reason;
// an original trade that fails funding stays pending so it can be retried.
const (
	TradeStatusPending  = "pending"
	TradeStatusExecuted = "executed"
	TradeStatusFailed   = "failed"
)

// Asset classes
const (
	AssetTypeStock  = "stock"
	AssetTypeCrypto = "crypto"
	AssetTypeForex  = "forex"
)

// Copy relationship lifecycle
const (
	CopyStatusActive  = "active"
	CopyStatusPaused  = "paused"
	CopyStatusStopped = "stopped"
)

// Investment lifecycle
const (
	InvestmentStatusActive    = "active"
	InvestmentStatusCompleted = "completed"
)

// InvestmentPlan availability
const (
	PlanStatusActive   = "active"
	PlanStatusInactive = "inactive"
)

// Transaction types
const (
	TransactionTypeDeposit          = "deposit"
	TransactionTypeWithdrawal       = "withdrawal"
	TransactionTypeInvestment       = "investment"
	TransactionTypeInvestmentReturn = "investment_return"
)

// Transaction lifecycle. Once completed or failed the status is immutable.
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// KYC states
const (
	KYCStatusPending  = "pending"
	KYCStatusVerified = "verified"
	KYCStatusRejected = "rejected"
)

// Ledger adjustment directions
const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

type User struct {
	gorm.Model   `json:"-"`
	UserID       string          `gorm:"uniqueIndex" json:"user_id"`
	Email        string          `gorm:"uniqueIndex" json:"email"`
	PasswordHash string          `json:"-"`
	Balance      decimal.Decimal `gorm:"type:decimal(20,8)" json:"balance"`
	KYCStatus    string          `json:"kyc_status"`
	Suspended    bool            `json:"suspended"`
	Admin        bool            `json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type Asset struct {
	gorm.Model `json:"-"`
	AssetID    string          `gorm:"uniqueIndex" json:"asset_id"`
	Symbol     string          `gorm:"uniqueIndex" json:"symbol"`
	Name       string          `json:"name"`
	Type       string          `json:"type"` // stock, crypto, forex
	Price      decimal.Decimal `gorm:"type:decimal(20,8)" json:"price"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type Trade struct {
	gorm.Model        `json:"-"`
	TradeID           string          `gorm:"uniqueIndex" json:"trade_id"`
	UserID            string          `gorm:"index" json:"user_id"`
	AssetID           string          `gorm:"index" json:"asset_id"`
	Type              string          `json:"type"`   // buy or sell
	Amount            decimal.Decimal `gorm:"type:decimal(20,8)" json:"amount"`
	Price             decimal.Decimal `gorm:"type:decimal(20,8)" json:"price"`
	Status            string          `json:"status"` // pending, executed, failed
	FailureReason     string          `json:"failure_reason,omitempty"`
	ExecutedAt        *time.Time      `json:"executed_at,omitempty"`
	CopiedFromTradeID string          `gorm:"index" json:"copied_from_trade_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TraderProfile marks a user as a followable trader.
type TraderProfile struct {
	gorm.Model  `json:"-"`
	TraderID    string    `gorm:"uniqueIndex" json:"trader_id"`
	UserID      string    `gorm:"uniqueIndex" json:"user_id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CopyRelationship struct {
	gorm.Model           `json:"-"`
	RelationshipID       string          `gorm:"uniqueIndex" json:"relationship_id"`
	FollowerID           string          `gorm:"index" json:"follower_id"`
	TraderID             string          `gorm:"index" json:"trader_id"`
	AllocationPercentage decimal.Decimal `gorm:"type:decimal(5,2)" json:"allocation_percentage"` // 1-100
	Status               string          `json:"status"` // active, paused, stopped
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

type InvestmentPlan struct {
	gorm.Model     `json:"-"`
	PlanID         string              `gorm:"uniqueIndex" json:"plan_id"`
	Name           string              `json:"name"`
	MinAmount      decimal.Decimal     `gorm:"type:decimal(20,8)" json:"min_amount"`
	MaxAmount      decimal.NullDecimal `gorm:"type:decimal(20,8)" json:"max_amount"` // null = unbounded
	ROIPercentage  decimal.Decimal     `gorm:"column:roi_percentage;type:decimal(8,4)" json:"roi_percentage"`
	LockPeriodDays int                 `json:"lock_period_days"`
	Status         string              `json:"status"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Investment snapshots the plan terms in force at open time; a later plan
// edit never changes a running investment's payout.
type Investment struct {
	gorm.Model     `json:"-"`
	InvestmentID   string          `gorm:"uniqueIndex" json:"investment_id"`
	UserID         string          `gorm:"index" json:"user_id"`
	PlanID         string          `gorm:"index" json:"plan_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,8)" json:"amount"`
	ROIPercentage  decimal.Decimal `gorm:"column:roi_percentage;type:decimal(8,4)" json:"roi_percentage"`
	LockPeriodDays int             `json:"lock_period_days"`
	StartDate      time.Time       `json:"start_date"`
	EndDate        time.Time       `gorm:"index" json:"end_date"`
	Status         string          `json:"status"` // active, completed
	Profit         decimal.Decimal `gorm:"type:decimal(20,8)" json:"profit"`
	TotalReturn    decimal.Decimal `gorm:"type:decimal(20,8)" json:"total_return"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type Transaction struct {
	gorm.Model    `json:"-"`
	TransactionID string          `gorm:"uniqueIndex" json:"transaction_id"`
	UserID        string          `gorm:"index" json:"user_id"`
	Type          string          `json:"type"`   // deposit, withdrawal, investment, investment_return
	Amount        decimal.Decimal `gorm:"type:decimal(20,8)" json:"amount"`
	Status        string          `json:"status"` // pending, completed, failed
	Method        string          `json:"method,omitempty"`
	AdminNotes    string          `json:"admin_notes,omitempty"`
	ReviewedBy    string          `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time      `json:"reviewed_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
