package transactions

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vantora/brokerage-api/internal/events"
	"github.com/vantora/brokerage-api/internal/ledger"
	"github.com/vantora/brokerage-api/internal/types"
	"github.com/vantora/brokerage-api/pkg/response"
	"gorm.io/gorm"
)

// Review actions
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// Service handles the transaction log and the admin review workflow.
// Deposits and withdrawals are created pending and only touch the ledger
// when an admin approves them.
type Service struct {
	db     *Database
	ledger *ledger.Service
	bus    *events.Bus
}

// NewService creates a new transactions service with the given database connection
func NewService(gormDB *gorm.DB, ledgerService *ledger.Service, bus *events.Bus) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		ledger: ledgerService,
		bus:    bus,
	}
}

// RequestDeposit records a pending deposit awaiting admin review. No ledger
// effect until approval.
func (s *Service) RequestDeposit(userID string, amount decimal.Decimal, method string) (*types.Transaction, error) {
	return s.createRequest(userID, types.TransactionTypeDeposit, amount, method)
}

// RequestWithdrawal records a pending withdrawal awaiting admin review. The
// balance check here is a courtesy only; the authoritative check happens at
// approval time, when the balance may have changed.
func (s *Service) RequestWithdrawal(userID string, amount decimal.Decimal, method string) (*types.Transaction, error) {
	user, err := s.db.GetUser(userID)
	if err != nil {
		return nil, err
	}
	if user.Balance.LessThan(amount) {
		return nil, types.ErrInsufficientFunds
	}

	return s.createRequest(userID, types.TransactionTypeWithdrawal, amount, method)
}

func (s *Service) createRequest(userID, txnType string, amount decimal.Decimal, method string) (*types.Transaction, error) {
	if amount.IsNegative() || amount.IsZero() {
		return nil, types.NewValidationError("amount must be positive")
	}

	user, err := s.db.GetUser(userID)
	if err != nil {
		return nil, err
	}
	if user.Suspended {
		return nil, types.NewValidationError("account is suspended")
	}

	txn := &types.Transaction{
		TransactionID: "TXN_" + uuid.New().String(),
		UserID:        userID,
		Type:          txnType,
		Amount:        amount,
		Status:        types.TransactionStatusPending,
		Method:        method,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	if err := s.db.CreateTransaction(txn); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "transactions").
		Str("transaction_id", txn.TransactionID).
		Str("type", txnType).
		Str("amount", amount.String()).
		Msg("transaction request created")

	return txn, nil
}

// Review moves a pending deposit or withdrawal to its terminal state.
// Approval applies the ledger effect and the status change as one atomic
// unit; if a withdrawal can no longer be funded the review fails with
// ErrInsufficientFunds and the transaction remains pending. Once completed
// or failed, a transaction can never be reviewed again.
func (s *Service) Review(transactionID, action, reviewerID, notes string) (*types.Transaction, error) {
	logger := log.With().
		Str("service", "transactions").
		Str("transaction_id", transactionID).
		Str("action", action).
		Logger()

	if action != ActionApprove && action != ActionReject {
		return nil, types.NewValidationError("action must be approve or reject")
	}

	// Resolve the owning user before taking their lock
	txn, err := s.db.GetTransaction(transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Type != types.TransactionTypeDeposit && txn.Type != types.TransactionTypeWithdrawal {
		return nil, types.ErrInvalidState
	}

	var reviewed *types.Transaction
	err = s.ledger.WithUserTx(txn.UserID, func(tx *gorm.DB) error {
		// Re-read inside the transaction so a concurrent review of the same
		// row cannot both observe pending
		current, err := s.db.GetTransactionTx(tx, transactionID)
		if err != nil {
			return err
		}
		if current.Status != types.TransactionStatusPending {
			return types.ErrInvalidState
		}

		now := time.Now()
		current.ReviewedBy = reviewerID
		current.ReviewedAt = &now
		current.AdminNotes = notes
		current.UpdatedAt = now

		if action == ActionApprove {
			direction := types.DirectionCredit
			if current.Type == types.TransactionTypeWithdrawal {
				direction = types.DirectionDebit
			}
			if _, err := s.ledger.AdjustTx(tx, current.UserID, current.Amount, direction); err != nil {
				return err
			}
			current.Status = types.TransactionStatusCompleted
			current.CompletedAt = &now
		} else {
			current.Status = types.TransactionStatusFailed
		}

		if err := s.db.UpdateTransactionTx(tx, current); err != nil {
			return err
		}

		reviewed = current
		return nil
	})
	if err != nil {
		logger.Warn().Err(err).Msg("transaction review not applied")
		return nil, err
	}

	logger.Info().
		Str("status", reviewed.Status).
		Str("reviewed_by", reviewerID).
		Msg("transaction reviewed")

	s.bus.Publish(events.Event{
		Kind:       events.TransactionReviewed,
		UserID:     reviewed.UserID,
		ResourceID: reviewed.TransactionID,
		Payload:    reviewed,
	})

	return reviewed, nil
}

// GetUserTransactions returns the user's transaction history, newest first.
func (s *Service) GetUserTransactions(userID string) ([]types.Transaction, error) {
	return s.db.GetUserTransactions(userID)
}

// GetPendingReviews returns the admin review queue.
func (s *Service) GetPendingReviews() ([]types.Transaction, error) {
	return s.db.GetPendingReviews()
}

// CreateRecord writes a completed audit transaction for a ledger effect that
// has already been applied by another engine (investments, settlements).
// It must be called inside the same database transaction as the ledger change.
func CreateRecord(tx *gorm.DB, userID, txnType string, amount decimal.Decimal) (*types.Transaction, error) {
	now := time.Now()
	txn := &types.Transaction{
		TransactionID: "TXN_" + uuid.New().String(),
		UserID:        userID,
		Type:          txnType,
		Amount:        amount,
		Status:        types.TransactionStatusCompleted,
		CompletedAt:   &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := tx.Create(txn).Error; err != nil {
		return nil, err
	}
	return txn, nil
}

// GinHandlers contains HTTP handlers for transaction endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for transaction endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

type requestBody struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Method string          `json:"method"`
}

// RequestDepositHandler handles POST requests to submit a deposit for review
func (h *GinHandlers) RequestDepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")

		var body requestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		txn, err := h.service.RequestDeposit(userID, body.Amount, body.Method)
		response.Handle(c, txn, err)
	}
}

// RequestWithdrawalHandler handles POST requests to submit a withdrawal for review
func (h *GinHandlers) RequestWithdrawalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")

		var body requestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		txn, err := h.service.RequestWithdrawal(userID, body.Amount, body.Method)
		response.Handle(c, txn, err)
	}
}

// ListTransactionsHandler handles GET requests for the user's transaction history
func (h *GinHandlers) ListTransactionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")

		txns, err := h.service.GetUserTransactions(userID)
		response.Handle(c, txns, err)
	}
}

// ReviewHandler handles POST requests from admins to approve or reject a
// pending deposit or withdrawal
func (h *GinHandlers) ReviewHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		transactionID := c.Param("transaction_id")
		reviewerID := c.GetString("userID")

		var body struct {
			Action string `json:"action" binding:"required"`
			Notes  string `json:"notes"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		txn, err := h.service.Review(transactionID, body.Action, reviewerID, body.Notes)
		response.Handle(c, txn, err)
	}
}

// PendingReviewsHandler handles GET requests for the admin review queue
func (h *GinHandlers) PendingReviewsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		txns, err := h.service.GetPendingReviews()
		response.Handle(c, txns, err)
	}
}
