package ledger

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vantora/brokerage-api/internal/types"
	"github.com/vantora/brokerage-api/pkg/response"
	"gorm.io/gorm"
)

// Service owns a user's spendable balance and its atomic mutation. Every
// balance change in the system goes through Adjust or AdjustTx; no feature
// code writes the balance column directly.
type Service struct {
	db    *Database
	locks *Locks
}

// NewService creates a new ledger service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db:    NewDatabase(gormDB),
		locks: NewLocks(),
	}
}

// Adjust applies a single credit or debit as its own atomic unit. A debit
// that would take the balance below zero fails with ErrInsufficientFunds and
// leaves the ledger unchanged.
func (s *Service) Adjust(userID string, amount decimal.Decimal, direction string) (decimal.Decimal, error) {
	var newBalance decimal.Decimal
	err := s.WithUserTx(userID, func(tx *gorm.DB) error {
		var err error
		newBalance, err = s.AdjustTx(tx, userID, amount, direction)
		return err
	})
	return newBalance, err
}

// AdjustTx applies a credit or debit inside the caller's transaction. The
// caller must hold the user's lock (WithUserTx does both), so that the
// read-modify-write cannot interleave with a concurrent adjustment.
func (s *Service) AdjustTx(tx *gorm.DB, userID string, amount decimal.Decimal, direction string) (decimal.Decimal, error) {
	if amount.IsNegative() || amount.IsZero() {
		return decimal.Zero, types.NewValidationError("adjustment amount must be positive")
	}
	if direction != types.DirectionCredit && direction != types.DirectionDebit {
		return decimal.Zero, types.NewValidationError("direction must be credit or debit")
	}

	user, err := s.db.GetUserTx(tx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	var newBalance decimal.Decimal
	if direction == types.DirectionCredit {
		newBalance = user.Balance.Add(amount)
	} else {
		newBalance = user.Balance.Sub(amount)
		if newBalance.IsNegative() {
			return decimal.Zero, types.ErrInsufficientFunds
		}
	}

	if err := s.db.UpdateBalanceTx(tx, userID, newBalance); err != nil {
		return decimal.Zero, err
	}

	log.Debug().
		Str("service", "ledger").
		Str("user_id", userID).
		Str("direction", direction).
		Str("amount", amount.String()).
		Str("new_balance", newBalance.String()).
		Msg("balance adjusted")

	return newBalance, nil
}

// WithUserTx runs fn inside a database transaction while holding the per-user
// lock. Callers compose a ledger adjustment with their own writes (trade
// status, transaction rows) so the whole unit commits or rolls back together.
func (s *Service) WithUserTx(userID string, fn func(tx *gorm.DB) error) error {
	release := s.locks.Acquire(userID)
	defer release()

	return s.db.db.Transaction(fn)
}

// GetBalance returns the user's current spendable balance.
func (s *Service) GetBalance(userID string) (*types.BalanceResponse, error) {
	user, err := s.db.GetUser(userID)
	if err != nil {
		return nil, err
	}

	return &types.BalanceResponse{
		UserID:    user.UserID,
		Balance:   user.Balance,
		Timestamp: time.Now(),
	}, nil
}

// GinHandlers contains HTTP handlers for ledger endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for ledger endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// GetBalanceHandler handles GET requests for the authenticated user's balance
func (h *GinHandlers) GetBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			response.Unauthorized(c, "Missing authentication")
			return
		}

		balance, err := h.service.GetBalance(userID)
		response.Handle(c, balance, err)
	}
}
