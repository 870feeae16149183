package trading

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vantora/brokerage-api/internal/database"
	"github.com/vantora/brokerage-api/internal/events"
	"github.com/vantora/brokerage-api/internal/ledger"
	"github.com/vantora/brokerage-api/internal/types"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *ledger.Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := database.NewDatabase(dsn)
	require.NoError(t, err)

	ledgerService := ledger.NewService(db)
	return NewService(db, ledgerService, events.NewBus()), ledgerService, db
}

func createTestUser(t *testing.T, db *gorm.DB, balance decimal.Decimal) *types.User {
	t.Helper()
	user := &types.User{
		UserID:    "USR_" + uuid.New().String(),
		Email:     uuid.New().String() + "@example.com",
		Balance:   balance,
		KYCStatus: types.KYCStatusVerified,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestAsset(t *testing.T, db *gorm.DB, symbol string, price decimal.Decimal) *types.Asset {
	t.Helper()
	asset := &types.Asset{
		AssetID:   "AST_" + uuid.New().String(),
		Symbol:    symbol,
		Name:      symbol,
		Type:      types.AssetTypeStock,
		Price:     price,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, db.Create(asset).Error)
	return asset
}

func TestPlaceTrade(t *testing.T) {
	svc, _, db := newTestService(t)
	user := createTestUser(t, db, decimal.NewFromInt(1000))
	asset := createTestAsset(t, db, "AAPL", decimal.NewFromInt(50))

	trade, err := svc.PlaceTrade(user.UserID, asset.AssetID, types.TradeTypeBuy, decimal.NewFromInt(2))
	require.NoError(t, err)
	assert.Equal(t, types.TradeStatusPending, trade.Status)
	assert.True(t, trade.Price.Equal(decimal.NewFromInt(50)))
	assert.Empty(t, trade.CopiedFromTradeID)
}

func TestPlaceTradeValidation(t *testing.T) {
	svc, _, db := newTestService(t)
	user := createTestUser(t, db, decimal.NewFromInt(1000))
	asset := createTestAsset(t, db, "AAPL", decimal.NewFromInt(50))

	_, err := svc.PlaceTrade(user.UserID, asset.AssetID, "hold", decimal.NewFromInt(1))
	assert.True(t, types.IsValidationError(err))

	_, err = svc.PlaceTrade(user.UserID, asset.AssetID, types.TradeTypeBuy, decimal.Zero)
	assert.True(t, types.IsValidationError(err))

	_, err = svc.PlaceTrade(user.UserID, "AST_missing", types.TradeTypeBuy, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, db.Model(&types.User{}).Where("user_id = ?", user.UserID).Update("suspended", true).Error)
	_, err = svc.PlaceTrade(user.UserID, asset.AssetID, types.TradeTypeBuy, decimal.NewFromInt(1))
	assert.True(t, types.IsValidationError(err))
}

func TestExecuteBuyDebitsLedger(t *testing.T) {
	svc, ledgerService, db := newTestService(t)
	user := createTestUser(t, db, decimal.NewFromInt(1000))
	asset := createTestAsset(t, db, "AAPL", decimal.NewFromInt(50))

	trade, err := svc.PlaceTrade(user.UserID, asset.AssetID, types.TradeTypeBuy, decimal.NewFromInt(3))
	require.NoError(t, err)

	executed, err := svc.Execute(trade.TradeID)
	require.NoError(t, err)
	assert.Equal(t, types.TradeStatusExecuted, executed.Status)
	assert.NotNil(t, executed.ExecutedAt)

	resp, err := ledgerService.GetBalance(user.UserID)
	require.NoError(t, err)
	assert.True(t, resp.Balance.Equal(decimal.NewFromInt(850)))
}

func TestExecuteSellCreditsLedger(t *testing.T) {
	svc, ledgerService, db := newTestService(t)
	user := createTestUser(t, db, decimal.NewFromInt(100))
	asset := createTestAsset(t, db, "AAPL", decimal.NewFromInt(50))

	trade, err := svc.PlaceTrade(user.UserID, asset.AssetID, types.TradeTypeSell, decimal.NewFromInt(2))
	require.NoError(t, err)

	_, err = svc.Execute(trade.TradeID)
	require.NoError(t, err)

	resp, err := ledgerService.GetBalance(user.UserID)
	require.NoError(t, err)
	assert.True(t, resp.Balance.Equal(decimal.NewFromInt(200)))
}

func TestExecuteUnderfundedBuyStaysPending(t *testing.T) {
	svc, ledgerService, db := newTestService(t)
	user := createTestUser(t, db, decimal.NewFromInt(40))
	asset := createTestAsset(t, db, "AAPL", decimal.NewFromInt(50))

	// cost = 1 * 50 = 50 against a balance of 40
	trade, err := svc.PlaceTrade(user.UserID, asset.AssetID, types.TradeTypeBuy, decimal.NewFromInt(1))
	require.NoError(t, err)

	_, err = svc.Execute(trade.TradeID)
	assert.ErrorIs(t, err, types.ErrInsufficientFunds)

	stored, err := svc.GetTrade(trade.TradeID)
	require.NoError(t, err)
	assert.Equal(t, types.TradeStatusPending, stored.Status)

	resp, err := ledgerService.GetBalance(user.UserID)
	require.NoError(t, err)
	assert.True(t, resp.Balance.Equal(decimal.NewFromInt(40)))
}

func TestExecuteIsIdempotent(t *testing.T) {
	svc, ledgerService, db := newTestService(t)
	user := createTestUser(t, db, decimal.NewFromInt(1000))
	asset := createTestAsset(t, db, "AAPL", decimal.NewFromInt(100))

	trade, err := svc.PlaceTrade(user.UserID, asset.AssetID, types.TradeTypeBuy, decimal.NewFromInt(1))
	require.NoError(t, err)

	_, err = svc.Execute(trade.TradeID)
	require.NoError(t, err)

	// Second execution is a no-op: no further debit
	again, err := svc.Execute(trade.TradeID)
	require.NoError(t, err)
	assert.Equal(t, types.TradeStatusExecuted, again.Status)

	resp, err := ledgerService.GetBalance(user.UserID)
	require.NoError(t, err)
	assert.True(t, resp.Balance.Equal(decimal.NewFromInt(900)))
}

func TestFanOutCreatesProportionalCopies(t *testing.T) {
	svc, _, db := newTestService(t)
	trader := createTestUser(t, db, decimal.NewFromInt(100000))
	followerA := createTestUser(t, db, decimal.NewFromInt(100000))
	followerB := createTestUser(t, db, decimal.NewFromInt(100000))
	asset := createTestAsset(t, db, "AAPL", decimal.NewFromInt(10))

	profile, err := svc.RegisterTrader(trader.UserID, "Pro Trader")
	require.NoError(t, err)

	_, err = svc.Follow(followerA.UserID, profile.TraderID, decimal.NewFromInt(50))
	require.NoError(t, err)
	_, err = svc.Follow(followerB.UserID, profile.TraderID, decimal.NewFromInt(25))
	require.NoError(t, err)

	original, err := svc.PlaceTrade(trader.UserID, asset.AssetID, types.TradeTypeBuy, decimal.NewFromInt(100))
	require.NoError(t, err)
	_, err = svc.Execute(original.TradeID)
	require.NoError(t, err)

	copies, err := svc.db.GetPendingCopies()
	require.NoError(t, err)
	require.Len(t, copies, 2)

	amounts := map[string]decimal.Decimal{}
	for _, c := range copies {
		assert.Equal(t, original.TradeID, c.CopiedFromTradeID)
		assert.Equal(t, types.TradeStatusPending, c.Status)
		assert.Equal(t, original.Type, c.Type)
		assert.Equal(t, original.AssetID, c.AssetID)
		assert.True(t, c.Price.Equal(original.Price))
		amounts[c.UserID] = c.Amount
	}
	assert.True(t, amounts[followerA.UserID].Equal(decimal.NewFromInt(50)))
	assert.True(t, amounts[followerB.UserID].Equal(decimal.NewFromInt(25)))
}

func TestCopiesNeverFanOutAgain(t *testing.T) {
	svc, _, db := newTestService(t)
	trader := createTestUser(t, db, decimal.NewFromInt(100000))
	follower := createTestUser(t, db, decimal.NewFromInt(100000))
	asset := createTestAsset(t, db, "AAPL", decimal.NewFromInt(10))

	profile, err := svc.RegisterTrader(trader.UserID, "Pro Trader")
	require.NoError(t, err)
	_, err = svc.Follow(follower.UserID, profile.TraderID, decimal.NewFromInt(50))
	require.NoError(t, err)

	// The follower is also a followable trader with followers of their own
	followerProfile, err := svc.RegisterTrader(follower.UserID, "Follower Trader")
	require.NoError(t, err)
	third := createTestUser(t, db, decimal.NewFromInt(100000))
	_, err = svc.Follow(third.UserID, followerProfile.TraderID, decimal.NewFromInt(50))
	require.NoError(t, err)

	original, err := svc.PlaceTrade(trader.UserID, asset.AssetID, types.TradeTypeBuy, decimal.NewFromInt(100))
	require.NoError(t, err)
	_, err = svc.Execute(original.TradeID)
	require.NoError(t, err)

	copies, err := svc.db.GetPendingCopies()
	require.NoError(t, err)
	require.Len(t, copies, 1)

	// Executing the copy must not fan out to the follower's own followers
	_, err = svc.Execute(copies[0].TradeID)
	require.NoError(t, err)

	remaining, err := svc.db.GetPendingCopies()
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestPausedFollowersReceiveNoCopies(t *testing.T) {
	svc, _, db := newTestService(t)
	trader := createTestUser(t, db, decimal.NewFromInt(100000))
	follower := createTestUser(t, db, decimal.NewFromInt(100000))
	asset := createTestAsset(t, db, "AAPL", decimal.NewFromInt(10))

	profile, err := svc.RegisterTrader(trader.UserID, "Pro Trader")
	require.NoError(t, err)
	rel, err := svc.Follow(follower.UserID, profile.TraderID, decimal.NewFromInt(50))
	require.NoError(t, err)

	_, err = svc.SetCopyStatus(rel.RelationshipID, follower.UserID, types.CopyStatusPaused)
	require.NoError(t, err)

	original, err := svc.PlaceTrade(trader.UserID, asset.AssetID, types.TradeTypeBuy, decimal.NewFromInt(100))
	require.NoError(t, err)
	_, err = svc.Execute(original.TradeID)
	require.NoError(t, err)

	copies, err := svc.db.GetPendingCopies()
	require.NoError(t, err)
	assert.Empty(t, copies)
}

func TestExecutePendingCopiesIsolatesFailures(t *testing.T) {
	svc, ledgerService, db := newTestService(t)
	trader := createTestUser(t, db, decimal.NewFromInt(100000))
	richFollower := createTestUser(t, db, decimal.NewFromInt(100000))
	poorFollower := createTestUser(t, db, decimal.NewFromInt(1))
	asset := createTestAsset(t, db, "AAPL", decimal.NewFromInt(10))

	profile, err := svc.RegisterTrader(trader.UserID, "Pro Trader")
	require.NoError(t, err)
	_, err = svc.Follow(richFollower.UserID, profile.TraderID, decimal.NewFromInt(50))
	require.NoError(t, err)
	_, err = svc.Follow(poorFollower.UserID, profile.TraderID, decimal.NewFromInt(25))
	require.NoError(t, err)

	original, err := svc.PlaceTrade(trader.UserID, asset.AssetID, types.TradeTypeBuy, decimal.NewFromInt(100))
	require.NoError(t, err)
	_, err = svc.Execute(original.TradeID)
	require.NoError(t, err)

	executed, err := svc.ExecutePendingCopies()
	require.NoError(t, err)
	assert.Equal(t, 1, executed)

	// The funded follower's copy executed and was debited
	resp, err := ledgerService.GetBalance(richFollower.UserID)
	require.NoError(t, err)
	assert.True(t, resp.Balance.Equal(decimal.NewFromInt(99500)))

	// The underfunded follower's copy failed with a reason; their balance is intact
	var failed []types.Trade
	require.NoError(t, db.Where("user_id = ? AND status = ?", poorFollower.UserID, types.TradeStatusFailed).Find(&failed).Error)
	require.Len(t, failed, 1)
	assert.Equal(t, "insufficient funds", failed[0].FailureReason)

	resp, err = ledgerService.GetBalance(poorFollower.UserID)
	require.NoError(t, err)
	assert.True(t, resp.Balance.Equal(decimal.NewFromInt(1)))
}

func TestMarkCopyFailedNeverOverwritesExecuted(t *testing.T) {
	svc, ledgerService, db := newTestService(t)
	trader := createTestUser(t, db, decimal.NewFromInt(100000))
	follower := createTestUser(t, db, decimal.NewFromInt(100000))
	asset := createTestAsset(t, db, "AAPL", decimal.NewFromInt(10))

	profile, err := svc.RegisterTrader(trader.UserID, "Pro Trader")
	require.NoError(t, err)
	_, err = svc.Follow(follower.UserID, profile.TraderID, decimal.NewFromInt(50))
	require.NoError(t, err)

	original, err := svc.PlaceTrade(trader.UserID, asset.AssetID, types.TradeTypeBuy, decimal.NewFromInt(100))
	require.NoError(t, err)
	_, err = svc.Execute(original.TradeID)
	require.NoError(t, err)

	copies, err := svc.db.GetPendingCopies()
	require.NoError(t, err)
	require.Len(t, copies, 1)
	stale := copies[0]

	// The copy gets funded and executed while a failed-marking attempt still
	// holds the struct read back when it was pending
	_, err = svc.Execute(stale.TradeID)
	require.NoError(t, err)

	require.NoError(t, svc.markCopyFailed(&stale, "insufficient funds"))

	current, err := svc.GetTrade(stale.TradeID)
	require.NoError(t, err)
	assert.Equal(t, types.TradeStatusExecuted, current.Status)
	assert.NotNil(t, current.ExecutedAt)
	assert.Empty(t, current.FailureReason)

	// The debit from the execution stands
	resp, err := ledgerService.GetBalance(follower.UserID)
	require.NoError(t, err)
	assert.True(t, resp.Balance.Equal(decimal.NewFromInt(99500)))
}

func TestExecuteReportsTransitionOnce(t *testing.T) {
	svc, _, db := newTestService(t)
	user := createTestUser(t, db, decimal.NewFromInt(1000))
	asset := createTestAsset(t, db, "AAPL", decimal.NewFromInt(100))

	trade, err := svc.PlaceTrade(user.UserID, asset.AssetID, types.TradeTypeBuy, decimal.NewFromInt(1))
	require.NoError(t, err)

	_, transitioned, err := svc.execute(trade.TradeID)
	require.NoError(t, err)
	assert.True(t, transitioned)

	// A repeat call is a no-op and must not be reported as an execution
	_, transitioned, err = svc.execute(trade.TradeID)
	require.NoError(t, err)
	assert.False(t, transitioned)
}

func TestFollowValidation(t *testing.T) {
	svc, _, db := newTestService(t)
	trader := createTestUser(t, db, decimal.NewFromInt(1000))
	follower := createTestUser(t, db, decimal.NewFromInt(1000))

	profile, err := svc.RegisterTrader(trader.UserID, "Pro Trader")
	require.NoError(t, err)

	_, err = svc.Follow(follower.UserID, profile.TraderID, decimal.Zero)
	assert.True(t, types.IsValidationError(err))

	_, err = svc.Follow(follower.UserID, profile.TraderID, decimal.NewFromInt(101))
	assert.True(t, types.IsValidationError(err))

	_, err = svc.Follow(trader.UserID, profile.TraderID, decimal.NewFromInt(50))
	assert.True(t, types.IsValidationError(err))

	_, err = svc.RegisterTrader(trader.UserID, "Again")
	assert.ErrorIs(t, err, types.ErrInvalidState)
}
