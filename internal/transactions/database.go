package transactions

import (
	"errors"

	"github.com/vantora/brokerage-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateTransaction(txn *types.Transaction) error {
	return d.db.Create(txn).Error
}

func (d *Database) GetTransaction(transactionID string) (*types.Transaction, error) {
	return getTransaction(d.db, transactionID)
}

// GetTransactionTx reads the transaction inside the caller's database transaction.
func (d *Database) GetTransactionTx(tx *gorm.DB, transactionID string) (*types.Transaction, error) {
	return getTransaction(tx, transactionID)
}

func getTransaction(db *gorm.DB, transactionID string) (*types.Transaction, error) {
	var txn types.Transaction
	if err := db.Where("transaction_id = ?", transactionID).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &txn, nil
}

// UpdateTransactionTx saves the transaction inside the caller's database transaction.
func (d *Database) UpdateTransactionTx(tx *gorm.DB, txn *types.Transaction) error {
	return tx.Save(txn).Error
}

func (d *Database) GetUserTransactions(userID string) ([]types.Transaction, error) {
	var txns []types.Transaction
	if err := d.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// GetPendingReviews returns deposits and withdrawals awaiting admin review.
func (d *Database) GetPendingReviews() ([]types.Transaction, error) {
	var txns []types.Transaction
	err := d.db.
		Where("status = ? AND type IN ?", types.TransactionStatusPending,
			[]string{types.TransactionTypeDeposit, types.TransactionTypeWithdrawal}).
		Order("created_at ASC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (d *Database) GetUser(userID string) (*types.User, error) {
	var user types.User
	if err := d.db.Where("user_id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}
