package database

import (
	"fmt"

	"github.com/vantora/brokerage-api/internal/database/migrations"
	"github.com/vantora/brokerage-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// Auto-migrate schemas
	err = db.AutoMigrate(
		&types.User{},
		&types.Asset{},
		&types.Trade{},
		&types.TraderProfile{},
		&types.CopyRelationship{},
		&types.InvestmentPlan{},
		&types.Investment{},
		&types.Transaction{},
	)
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddTradeIndexes(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.AddInvestmentIndexes(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}
