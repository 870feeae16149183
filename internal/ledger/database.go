package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/vantora/brokerage-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetUser(userID string) (*types.User, error) {
	return getUser(d.db, userID)
}

// GetUserTx reads the user inside the caller's transaction.
func (d *Database) GetUserTx(tx *gorm.DB, userID string) (*types.User, error) {
	return getUser(tx, userID)
}

func getUser(db *gorm.DB, userID string) (*types.User, error) {
	var user types.User
	if err := db.Where("user_id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpdateBalanceTx writes the new balance inside the caller's transaction.
func (d *Database) UpdateBalanceTx(tx *gorm.DB, userID string, balance decimal.Decimal) error {
	result := tx.Model(&types.User{}).
		Where("user_id = ?", userID).
		Update("balance", balance)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return types.ErrNotFound
	}
	return nil
}
