package migrations

import (
	"gorm.io/gorm"
)

// AddTradeIndexes creates the composite indexes the trade engine and copy
// fan-out query against.
func AddTradeIndexes(db *gorm.DB) error {
	// Using raw SQL for index creation to have more control over index types
	indexes := []string{
		// Composite index for the pending-copy execution queue
		`CREATE INDEX IF NOT EXISTS idx_trades_status_copied
		 ON trades(status, copied_from_trade_id)`,

		// Index for per-user trade history
		`CREATE INDEX IF NOT EXISTS idx_trades_user_status
		 ON trades(user_id, status)`,

		// Index for active follower lookups during fan-out
		`CREATE INDEX IF NOT EXISTS idx_copy_relationships_trader_status
		 ON copy_relationships(trader_id, status)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
