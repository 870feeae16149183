package investment

import (
	"errors"
	"time"

	"github.com/vantora/brokerage-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetPlan(planID string) (*types.InvestmentPlan, error) {
	var plan types.InvestmentPlan
	if err := d.db.Where("plan_id = ?", planID).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (d *Database) GetActivePlans() ([]types.InvestmentPlan, error) {
	var plans []types.InvestmentPlan
	err := d.db.
		Where("status = ?", types.PlanStatusActive).
		Order("min_amount ASC").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
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

func (d *Database) GetInvestment(investmentID string) (*types.Investment, error) {
	return getInvestment(d.db, investmentID)
}

// GetInvestmentTx reads the investment inside the caller's database transaction.
func (d *Database) GetInvestmentTx(tx *gorm.DB, investmentID string) (*types.Investment, error) {
	return getInvestment(tx, investmentID)
}

func getInvestment(db *gorm.DB, investmentID string) (*types.Investment, error) {
	var inv types.Investment
	if err := db.Where("investment_id = ?", investmentID).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// UpdateInvestmentTx saves the investment inside the caller's database transaction.
func (d *Database) UpdateInvestmentTx(tx *gorm.DB, inv *types.Investment) error {
	return tx.Save(inv).Error
}

func (d *Database) GetUserInvestments(userID string) ([]types.Investment, error) {
	var invs []types.Investment
	if err := d.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&invs).Error; err != nil {
		return nil, err
	}
	return invs, nil
}

// GetMaturedInvestments returns active investments whose term elapsed by now.
func (d *Database) GetMaturedInvestments(now time.Time) ([]types.Investment, error) {
	var invs []types.Investment
	err := d.db.
		Where("status = ? AND end_date <= ?", types.InvestmentStatusActive, now).
		Find(&invs).Error
	if err != nil {
		return nil, err
	}
	return invs, nil
}
