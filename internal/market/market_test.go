package market

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vantora/brokerage-api/internal/database"
	"github.com/vantora/brokerage-api/internal/types"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := database.NewDatabase(dsn)
	require.NoError(t, err)
	return NewService(db, time.Minute), db
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

func TestGetAsset(t *testing.T) {
	svc, db := newTestService(t)
	asset := createTestAsset(t, db, "AAPL", decimal.NewFromInt(100))

	got, err := svc.GetAsset(asset.AssetID)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Symbol)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(100)))

	_, err = svc.GetAsset("AST_missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestListAssetsOrderedBySymbol(t *testing.T) {
	svc, db := newTestService(t)
	createTestAsset(t, db, "MSFT", decimal.NewFromInt(400))
	createTestAsset(t, db, "AAPL", decimal.NewFromInt(190))

	assets, err := svc.ListAssets()
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "AAPL", assets[0].Symbol)
	assert.Equal(t, "MSFT", assets[1].Symbol)
}

func TestTickKeepsPricesWithinWalkBounds(t *testing.T) {
	svc, db := newTestService(t)
	start := decimal.NewFromInt(1000)
	asset := createTestAsset(t, db, "AAPL", start)

	lower := start.Mul(decimal.NewFromFloat(0.98))
	upper := start.Mul(decimal.NewFromFloat(1.02))

	require.NoError(t, svc.tick())

	got, err := svc.GetAsset(asset.AssetID)
	require.NoError(t, err)
	assert.True(t, got.Price.GreaterThanOrEqual(lower),
		"price %s fell below the walk's lower bound %s", got.Price, lower)
	assert.True(t, got.Price.LessThanOrEqual(upper),
		"price %s exceeded the walk's upper bound %s", got.Price, upper)
	assert.True(t, got.Price.IsPositive())
}
