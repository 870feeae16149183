package database

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vantora/brokerage-api/internal/types"
	"gorm.io/gorm"
)

// Seed inserts the default tradable assets and investment plans when the
// corresponding tables are empty. Safe to call on every startup.
func Seed(db *gorm.DB) error {
	logger := log.With().Str("component", "seed").Logger()

	var assetCount int64
	if err := db.Model(&types.Asset{}).Count(&assetCount).Error; err != nil {
		return err
	}

	if assetCount == 0 {
		assets := []types.Asset{
			{AssetID: "AST_" + uuid.New().String(), Symbol: "AAPL", Name: "Apple Inc.", Type: types.AssetTypeStock, Price: decimal.NewFromFloat(189.50)},
			{AssetID: "AST_" + uuid.New().String(), Symbol: "MSFT", Name: "Microsoft Corp.", Type: types.AssetTypeStock, Price: decimal.NewFromFloat(415.20)},
			{AssetID: "AST_" + uuid.New().String(), Symbol: "BTC", Name: "Bitcoin", Type: types.AssetTypeCrypto, Price: decimal.NewFromFloat(64250.00)},
			{AssetID: "AST_" + uuid.New().String(), Symbol: "ETH", Name: "Ethereum", Type: types.AssetTypeCrypto, Price: decimal.NewFromFloat(3180.00)},
			{AssetID: "AST_" + uuid.New().String(), Symbol: "EURUSD", Name: "Euro / US Dollar", Type: types.AssetTypeForex, Price: decimal.NewFromFloat(1.0875)},
		}
		if err := db.Create(&assets).Error; err != nil {
			return err
		}
		logger.Info().Int("count", len(assets)).Msg("seeded default assets")
	}

	var planCount int64
	if err := db.Model(&types.InvestmentPlan{}).Count(&planCount).Error; err != nil {
		return err
	}

	if planCount == 0 {
		plans := []types.InvestmentPlan{
			{
				PlanID:         "PLN_" + uuid.New().String(),
				Name:           "Starter",
				MinAmount:      decimal.NewFromInt(100),
				MaxAmount:      decimal.NewNullDecimal(decimal.NewFromInt(5000)),
				ROIPercentage:  decimal.NewFromInt(5),
				LockPeriodDays: 30,
				Status:         types.PlanStatusActive,
			},
			{
				PlanID:         "PLN_" + uuid.New().String(),
				Name:           "Growth",
				MinAmount:      decimal.NewFromInt(1000),
				MaxAmount:      decimal.NewNullDecimal(decimal.NewFromInt(50000)),
				ROIPercentage:  decimal.NewFromInt(10),
				LockPeriodDays: 90,
				Status:         types.PlanStatusActive,
			},
			{
				PlanID:         "PLN_" + uuid.New().String(),
				Name:           "Institutional",
				MinAmount:      decimal.NewFromInt(25000),
				MaxAmount:      decimal.NullDecimal{}, // unbounded
				ROIPercentage:  decimal.NewFromInt(18),
				LockPeriodDays: 180,
				Status:         types.PlanStatusActive,
			},
		}
		if err := db.Create(&plans).Error; err != nil {
			return err
		}
		logger.Info().Int("count", len(plans)).Msg("seeded default investment plans")
	}

	return nil
}
