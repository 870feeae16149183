package investment

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vantora/brokerage-api/internal/events"
	"github.com/vantora/brokerage-api/internal/ledger"
	"github.com/vantora/brokerage-api/internal/transactions"
	"github.com/vantora/brokerage-api/internal/types"
	"github.com/vantora/brokerage-api/pkg/response"
	"gorm.io/gorm"
)

var oneHundred = decimal.NewFromInt(100)

// Service opens fixed-term investments and settles them at maturity. Plan
// terms are snapshotted onto the investment at open time; editing a plan
// never changes the payout of an investment already running.
type Service struct {
	db       *Database
	ledger   *ledger.Service
	bus      *events.Bus
	sweeping atomic.Bool

	// now is swappable for maturity tests
	now func() time.Time
}

// NewService creates a new investment service with the given database connection
func NewService(gormDB *gorm.DB, ledgerService *ledger.Service, bus *events.Bus) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		ledger: ledgerService,
		bus:    bus,
		now:    time.Now,
	}
}

// Open debits the principal and creates an active investment, writing the
// audit transaction in the same atomic unit as the debit.
func (s *Service) Open(userID, planID string, amount decimal.Decimal) (*types.Investment, error) {
	logger := log.With().
		Str("service", "investment").
		Str("user_id", userID).
		Str("plan_id", planID).
		Logger()

	plan, err := s.db.GetPlan(planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != types.PlanStatusActive {
		return nil, types.NewValidationError("investment plan is not available")
	}

	if amount.LessThan(plan.MinAmount) {
		return nil, types.NewValidationError(
			fmt.Sprintf("amount is below the plan minimum of %s", plan.MinAmount.String()))
	}
	if plan.MaxAmount.Valid && amount.GreaterThan(plan.MaxAmount.Decimal) {
		return nil, types.NewValidationError(
			fmt.Sprintf("amount exceeds the plan maximum of %s", plan.MaxAmount.Decimal.String()))
	}

	user, err := s.db.GetUser(userID)
	if err != nil {
		return nil, err
	}
	if user.Suspended {
		return nil, types.NewValidationError("account is suspended")
	}

	start := s.now()
	inv := &types.Investment{
		InvestmentID:   "INV_" + uuid.New().String(),
		UserID:         userID,
		PlanID:         plan.PlanID,
		Amount:         amount,
		ROIPercentage:  plan.ROIPercentage,
		LockPeriodDays: plan.LockPeriodDays,
		StartDate:      start,
		EndDate:        start.AddDate(0, 0, plan.LockPeriodDays),
		Status:         types.InvestmentStatusActive,
		CreatedAt:      start,
		UpdatedAt:      start,
	}

	err = s.ledger.WithUserTx(userID, func(tx *gorm.DB) error {
		if _, err := s.ledger.AdjustTx(tx, userID, amount, types.DirectionDebit); err != nil {
			return err
		}
		if err := tx.Create(inv).Error; err != nil {
			return err
		}
		_, err := transactions.CreateRecord(tx, userID, types.TransactionTypeInvestment, amount)
		return err
	})
	if err != nil {
		logger.Warn().Err(err).Msg("investment not opened")
		return nil, err
	}

	logger.Info().
		Str("investment_id", inv.InvestmentID).
		Str("amount", amount.String()).
		Time("end_date", inv.EndDate).
		Msg("investment opened")

	return inv, nil
}

// RunSweep settles every active investment whose term has elapsed. The sweep
// is single-flight within the process; an overlapping invocation returns
// immediately with an empty result. Each investment settles independently and
// one failure never aborts the rest.
func (s *Service) RunSweep() types.SweepResult {
	logger := log.With().Str("service", "investment").Logger()

	if !s.sweeping.CompareAndSwap(false, true) {
		logger.Debug().Msg("sweep already running, skipping")
		return types.SweepResult{}
	}
	defer s.sweeping.Store(false)

	result := types.SweepResult{}

	matured, err := s.db.GetMaturedInvestments(s.now())
	if err != nil {
		logger.Error().Err(err).Msg("failed to load matured investments")
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	logger.Info().Int("matured_count", len(matured)).Msg("processing matured investments")

	for i := range matured {
		settled, err := s.settleOne(matured[i].InvestmentID)
		if err != nil {
			logger.Error().
				Err(err).
				Str("investment_id", matured[i].InvestmentID).
				Msg("failed to settle investment")
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", matured[i].InvestmentID, err))
			continue
		}
		if settled != nil {
			result.ProcessedCount++
		}
	}

	return result
}

// settleOne matures a single investment atomically: the status flip, the
// credit, and the audit transaction commit together. The active-status
// recheck inside the transaction makes settlement idempotent under
// overlapping sweeps or a restart mid-sweep.
func (s *Service) settleOne(investmentID string) (*types.Investment, error) {
	inv, err := s.db.GetInvestment(investmentID)
	if err != nil {
		return nil, err
	}

	var settled *types.Investment
	err = s.ledger.WithUserTx(inv.UserID, func(tx *gorm.DB) error {
		current, err := s.db.GetInvestmentTx(tx, investmentID)
		if err != nil {
			return err
		}
		if current.Status != types.InvestmentStatusActive {
			return nil
		}

		profit := current.Amount.Mul(current.ROIPercentage).Div(oneHundred)
		totalReturn := current.Amount.Add(profit)
		now := s.now()

		current.Status = types.InvestmentStatusCompleted
		current.Profit = profit
		current.TotalReturn = totalReturn
		current.CompletedAt = &now
		current.UpdatedAt = now
		if err := s.db.UpdateInvestmentTx(tx, current); err != nil {
			return err
		}

		if _, err := s.ledger.AdjustTx(tx, current.UserID, totalReturn, types.DirectionCredit); err != nil {
			return err
		}
		if _, err := transactions.CreateRecord(tx, current.UserID, types.TransactionTypeInvestmentReturn, totalReturn); err != nil {
			return err
		}

		settled = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	if settled == nil {
		return nil, nil
	}

	log.Info().
		Str("service", "investment").
		Str("investment_id", settled.InvestmentID).
		Str("profit", settled.Profit.String()).
		Str("total_return", settled.TotalReturn.String()).
		Msg("investment settled")

	s.bus.Publish(events.Event{
		Kind:       events.InvestmentMatured,
		UserID:     settled.UserID,
		ResourceID: settled.InvestmentID,
		Payload:    settled,
	})

	return settled, nil
}

// GetUserInvestments returns the user's investments, newest first.
func (s *Service) GetUserInvestments(userID string) ([]types.Investment, error) {
	return s.db.GetUserInvestments(userID)
}

// GetPlans returns the plans currently open for investment.
func (s *Service) GetPlans() ([]types.InvestmentPlan, error) {
	return s.db.GetActivePlans()
}

// GinHandlers contains HTTP handlers for investment endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for investment endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// OpenInvestmentHandler handles POST requests to open an investment
func (h *GinHandlers) OpenInvestmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")

		var body struct {
			PlanID string          `json:"plan_id" binding:"required"`
			Amount decimal.Decimal `json:"amount" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		inv, err := h.service.Open(userID, body.PlanID, body.Amount)
		response.Handle(c, inv, err)
	}
}

// ListInvestmentsHandler handles GET requests for the user's investments
func (h *GinHandlers) ListInvestmentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")

		invs, err := h.service.GetUserInvestments(userID)
		response.Handle(c, invs, err)
	}
}

// ListPlansHandler handles GET requests for available investment plans
func (h *GinHandlers) ListPlansHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		plans, err := h.service.GetPlans()
		response.Handle(c, plans, err)
	}
}

// RunSweepHandler handles internal POST requests to trigger a settlement sweep
func (h *GinHandlers) RunSweepHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result := h.service.RunSweep()
		response.Success(c, result)
	}
}
