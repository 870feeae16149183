package migrations

import (
	"gorm.io/gorm"
)

// AddInvestmentIndexes creates the indexes the settlement sweep and the
// transaction review queue depend on.
func AddInvestmentIndexes(db *gorm.DB) error {
	indexes := []string{
		// Composite index for the maturity sweep (status = active AND end_date <= now)
		`CREATE INDEX IF NOT EXISTS idx_investments_status_end_date
		 ON investments(status, end_date)`,

		// Index for per-user investment history
		`CREATE INDEX IF NOT EXISTS idx_investments_user_id_status
		 ON investments(user_id, status)`,

		// Index for the admin review queue
		`CREATE INDEX IF NOT EXISTS idx_transactions_status_type
		 ON transactions(status, type)`,

		// Index for per-user transaction history ordered by time
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_created
		 ON transactions(user_id, created_at)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
