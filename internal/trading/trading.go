package trading

import (
	"errors"
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

var oneHundred = decimal.NewFromInt(100)

// Service executes buy and sell trades against the ledger and fans out
// executed trades to a trader's active followers.
type Service struct {
	db     *Database
	ledger *ledger.Service
	bus    *events.Bus
}

// NewService creates a new trading service with the given database connection
func NewService(gormDB *gorm.DB, ledgerService *ledger.Service, bus *events.Bus) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		ledger: ledgerService,
		bus:    bus,
	}
}

// PlaceTrade creates a pending trade priced at the asset's current price.
func (s *Service) PlaceTrade(userID, assetID, tradeType string, amount decimal.Decimal) (*types.Trade, error) {
	if tradeType != types.TradeTypeBuy && tradeType != types.TradeTypeSell {
		return nil, types.NewValidationError("trade type must be buy or sell")
	}
	if amount.IsNegative() || amount.IsZero() {
		return nil, types.NewValidationError("trade amount must be positive")
	}

	user, err := s.db.GetUser(userID)
	if err != nil {
		return nil, err
	}
	if user.Suspended {
		return nil, types.NewValidationError("account is suspended")
	}

	asset, err := s.db.GetAsset(assetID)
	if err != nil {
		return nil, err
	}

	trade := &types.Trade{
		TradeID:   "TRD_" + uuid.New().String(),
		UserID:    userID,
		AssetID:   asset.AssetID,
		Type:      tradeType,
		Amount:    amount,
		Price:     asset.Price,
		Status:    types.TradeStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.db.CreateTrade(trade); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "trading").
		Str("trade_id", trade.TradeID).
		Str("type", tradeType).
		Str("amount", amount.String()).
		Str("price", trade.Price.String()).
		Msg("trade placed")

	return trade, nil
}

// Execute funds and executes a pending trade, then fans it out to followers
// when it is an original (non-copy) trade. Calling Execute on an already
// executed trade is a no-op. An underfunded trade stays pending and
// ErrInsufficientFunds is returned; nothing is executed and no fan-out runs.
func (s *Service) Execute(tradeID string) (*types.Trade, error) {
	trade, _, err := s.execute(tradeID)
	return trade, err
}

// execute additionally reports whether this call performed the
// pending -> executed transition. Fan-out and the executed event fire only
// on the transitioning call, never on a no-op against an already executed
// trade.
func (s *Service) execute(tradeID string) (*types.Trade, bool, error) {
	logger := log.With().
		Str("service", "trading").
		Str("trade_id", tradeID).
		Logger()

	trade, err := s.db.GetTrade(tradeID)
	if err != nil {
		return nil, false, err
	}
	if trade.Status != types.TradeStatusPending {
		logger.Debug().Str("status", trade.Status).Msg("trade not pending, skipping execution")
		return trade, false, nil
	}

	cost := trade.Amount.Mul(trade.Price)

	transitioned := false
	err = s.ledger.WithUserTx(trade.UserID, func(tx *gorm.DB) error {
		// Re-read inside the transaction so a concurrent Execute of the same
		// trade cannot both fund it
		current, err := s.db.GetTradeTx(tx, tradeID)
		if err != nil {
			return err
		}
		if current.Status != types.TradeStatusPending {
			trade = current
			return nil
		}

		direction := types.DirectionDebit
		if current.Type == types.TradeTypeSell {
			direction = types.DirectionCredit
		}
		if _, err := s.ledger.AdjustTx(tx, current.UserID, cost, direction); err != nil {
			return err
		}

		now := time.Now()
		current.Status = types.TradeStatusExecuted
		current.ExecutedAt = &now
		current.UpdatedAt = now
		if err := s.db.UpdateTradeTx(tx, current); err != nil {
			return err
		}

		trade = current
		transitioned = true
		return nil
	})
	if err != nil {
		logger.Warn().Err(err).Msg("trade execution not applied")
		return nil, false, err
	}

	if !transitioned {
		return trade, false, nil
	}

	logger.Info().
		Str("user_id", trade.UserID).
		Str("cost", cost.String()).
		Msg("trade executed")

	// Only original trades fan out; a copy is never re-copied
	if trade.CopiedFromTradeID == "" {
		s.fanOut(trade)
	}

	s.bus.Publish(events.Event{
		Kind:       events.TradeExecuted,
		UserID:     trade.UserID,
		ResourceID: trade.TradeID,
		Payload:    trade,
	})

	return trade, true, nil
}

// fanOut creates pending copy-trades for every active follower of the trader
// who placed the original. Copies are queued for the normal execution path,
// not executed inline, so each follower's balance check happens independently.
// A failure creating one follower's copy never blocks the rest.
func (s *Service) fanOut(original *types.Trade) {
	logger := log.With().
		Str("service", "trading").
		Str("trade_id", original.TradeID).
		Logger()

	profile, err := s.db.GetTraderProfileByUserID(original.UserID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to look up trader profile for fan-out")
		return
	}
	if profile == nil {
		return
	}

	followers, err := s.db.GetActiveFollowers(profile.TraderID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load followers for fan-out")
		return
	}

	for _, rel := range followers {
		followerAmount := original.Amount.Mul(rel.AllocationPercentage).Div(oneHundred)
		copyTrade := &types.Trade{
			TradeID:           "TRD_" + uuid.New().String(),
			UserID:            rel.FollowerID,
			AssetID:           original.AssetID,
			Type:              original.Type,
			Amount:            followerAmount,
			Price:             original.Price,
			Status:            types.TradeStatusPending,
			CopiedFromTradeID: original.TradeID,
			CreatedAt:         time.Now(),
			UpdatedAt:         time.Now(),
		}

		if err := s.db.CreateTrade(copyTrade); err != nil {
			logger.Error().
				Err(err).
				Str("follower_id", rel.FollowerID).
				Msg("failed to create follower copy-trade")
			continue
		}

		logger.Info().
			Str("copy_trade_id", copyTrade.TradeID).
			Str("follower_id", rel.FollowerID).
			Str("allocation", rel.AllocationPercentage.String()).
			Str("amount", followerAmount.String()).
			Msg("follower copy-trade queued")
	}
}

// ExecutePendingCopies runs the queued execution path for follower copies.
// A copy that cannot be funded is marked failed with a reason instead of
// stalling pending forever; one follower's failure never affects another's.
func (s *Service) ExecutePendingCopies() (int, error) {
	logger := log.With().Str("service", "trading").Logger()

	copies, err := s.db.GetPendingCopies()
	if err != nil {
		return 0, err
	}

	executed := 0
	for i := range copies {
		copyTrade := copies[i]
		_, transitioned, err := s.execute(copyTrade.TradeID)
		if err != nil {
			if errors.Is(err, types.ErrInsufficientFunds) {
				if markErr := s.markCopyFailed(&copyTrade, "insufficient funds"); markErr != nil {
					logger.Error().
						Err(markErr).
						Str("trade_id", copyTrade.TradeID).
						Msg("failed to mark copy-trade failed")
				}
				continue
			}
			logger.Error().
				Err(err).
				Str("trade_id", copyTrade.TradeID).
				Msg("failed to execute copy-trade")
			continue
		}
		if transitioned {
			executed++
		}
	}

	return executed, nil
}

// markCopyFailed records a copy's funding failure under the user lock with a
// status recheck, mirroring the execution path. A copy that was funded and
// executed between the failed attempt and this write keeps its executed state.
func (s *Service) markCopyFailed(copyTrade *types.Trade, reason string) error {
	return s.ledger.WithUserTx(copyTrade.UserID, func(tx *gorm.DB) error {
		current, err := s.db.GetTradeTx(tx, copyTrade.TradeID)
		if err != nil {
			return err
		}
		if current.Status != types.TradeStatusPending {
			return nil
		}

		current.Status = types.TradeStatusFailed
		current.FailureReason = reason
		current.UpdatedAt = time.Now()
		return s.db.UpdateTradeTx(tx, current)
	})
}

// GetTrade retrieves a trade by its ID
func (s *Service) GetTrade(tradeID string) (*types.Trade, error) {
	return s.db.GetTrade(tradeID)
}

// GetUserTrades returns the user's trade history, newest first.
func (s *Service) GetUserTrades(userID string) ([]types.Trade, error) {
	return s.db.GetUserTrades(userID)
}

// RegisterTrader makes a user followable by creating their trader profile.
func (s *Service) RegisterTrader(userID, displayName string) (*types.TraderProfile, error) {
	user, err := s.db.GetUser(userID)
	if err != nil {
		return nil, err
	}
	if user.Suspended {
		return nil, types.NewValidationError("account is suspended")
	}

	existing, err := s.db.GetTraderProfileByUserID(userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, types.ErrInvalidState
	}

	profile := &types.TraderProfile{
		TraderID:    "TDR_" + uuid.New().String(),
		UserID:      userID,
		DisplayName: displayName,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.db.CreateTraderProfile(profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// Follow creates an active copy relationship between a follower and a trader.
func (s *Service) Follow(followerID, traderID string, allocation decimal.Decimal) (*types.CopyRelationship, error) {
	if allocation.LessThan(decimal.NewFromInt(1)) || allocation.GreaterThan(oneHundred) {
		return nil, types.NewValidationError("allocation percentage must be between 1 and 100")
	}

	profile, err := s.db.GetTraderProfile(traderID)
	if err != nil {
		return nil, err
	}
	if profile.UserID == followerID {
		return nil, types.NewValidationError("cannot follow your own trader profile")
	}

	if _, err := s.db.GetUser(followerID); err != nil {
		return nil, err
	}

	rel := &types.CopyRelationship{
		RelationshipID:       "CPY_" + uuid.New().String(),
		FollowerID:           followerID,
		TraderID:             traderID,
		AllocationPercentage: allocation,
		Status:               types.CopyStatusActive,
		CreatedAt:            time.Now(),
		UpdatedAt:            time.Now(),
	}
	if err := s.db.CreateCopyRelationship(rel); err != nil {
		return nil, err
	}
	return rel, nil
}

// SetCopyStatus pauses, resumes, or stops a copy relationship. A stopped
// relationship is terminal.
func (s *Service) SetCopyStatus(relationshipID, followerID, status string) (*types.CopyRelationship, error) {
	if status != types.CopyStatusActive && status != types.CopyStatusPaused && status != types.CopyStatusStopped {
		return nil, types.NewValidationError("status must be active, paused, or stopped")
	}

	rel, err := s.db.GetCopyRelationship(relationshipID)
	if err != nil {
		return nil, err
	}
	if rel.FollowerID != followerID {
		return nil, types.ErrNotFound
	}
	if rel.Status == types.CopyStatusStopped {
		return nil, types.ErrInvalidState
	}

	rel.Status = status
	rel.UpdatedAt = time.Now()
	if err := s.db.UpdateCopyRelationship(rel); err != nil {
		return nil, err
	}
	return rel, nil
}

// GinHandlers contains HTTP handlers for trading endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for trading endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// PlaceTradeHandler handles POST requests to place new trades
func (h *GinHandlers) PlaceTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")

		var body struct {
			AssetID string          `json:"asset_id" binding:"required"`
			Type    string          `json:"type" binding:"required"`
			Amount  decimal.Decimal `json:"amount" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.PlaceTrade(userID, body.AssetID, body.Type, body.Amount)
		response.Handle(c, trade, err)
	}
}

// GetTradeHandler handles GET requests to retrieve a trade
func (h *GinHandlers) GetTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tradeID := c.Param("trade_id")
		if tradeID == "" {
			response.BadRequest(c, "Trade ID is required")
			return
		}

		trade, err := h.service.GetTrade(tradeID)
		if err == nil && trade.UserID != c.GetString("userID") && !c.GetBool("isAdmin") {
			response.NotFound(c, "Trade not found")
			return
		}
		response.Handle(c, trade, err)
	}
}

// ListTradesHandler handles GET requests for the user's trade history
func (h *GinHandlers) ListTradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")

		trades, err := h.service.GetUserTrades(userID)
		response.Handle(c, trades, err)
	}
}

// ExecuteTradeHandler handles POST requests to execute pending trades
func (h *GinHandlers) ExecuteTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tradeID := c.Param("trade_id")

		trade, err := h.service.Execute(tradeID)
		response.Handle(c, trade, err)
	}
}

// RegisterTraderHandler handles POST requests to create a trader profile
func (h *GinHandlers) RegisterTraderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")

		var body struct {
			DisplayName string `json:"display_name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		profile, err := h.service.RegisterTrader(userID, body.DisplayName)
		response.Handle(c, profile, err)
	}
}

// FollowHandler handles POST requests to start copying a trader
func (h *GinHandlers) FollowHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")

		var body struct {
			TraderID   string          `json:"trader_id" binding:"required"`
			Allocation decimal.Decimal `json:"allocation_percentage" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		rel, err := h.service.Follow(userID, body.TraderID, body.Allocation)
		response.Handle(c, rel, err)
	}
}

// SetCopyStatusHandler handles POST requests to pause, resume, or stop copying
func (h *GinHandlers) SetCopyStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		relationshipID := c.Param("relationship_id")

		var body struct {
			Status string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		rel, err := h.service.SetCopyStatus(relationshipID, userID, body.Status)
		response.Handle(c, rel, err)
	}
}
