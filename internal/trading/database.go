package trading

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

func (d *Database) CreateTrade(trade *types.Trade) error {
	return d.db.Create(trade).Error
}

func (d *Database) GetTrade(tradeID string) (*types.Trade, error) {
	return getTrade(d.db, tradeID)
}

// GetTradeTx reads the trade inside the caller's database transaction.
func (d *Database) GetTradeTx(tx *gorm.DB, tradeID string) (*types.Trade, error) {
	return getTrade(tx, tradeID)
}

func getTrade(db *gorm.DB, tradeID string) (*types.Trade, error) {
	var trade types.Trade
	if err := db.Where("trade_id = ?", tradeID).First(&trade).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &trade, nil
}

// UpdateTradeTx saves the trade inside the caller's database transaction.
func (d *Database) UpdateTradeTx(tx *gorm.DB, trade *types.Trade) error {
	return tx.Save(trade).Error
}

func (d *Database) GetUserTrades(userID string) ([]types.Trade, error) {
	var trades []types.Trade
	if err := d.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

// GetPendingCopies returns follower copy-trades awaiting execution.
func (d *Database) GetPendingCopies() ([]types.Trade, error) {
	var trades []types.Trade
	err := d.db.
		Where("status = ? AND copied_from_trade_id <> ''", types.TradeStatusPending).
		Order("created_at ASC").
		Find(&trades).Error
	if err != nil {
		return nil, err
	}
	return trades, nil
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

func (d *Database) GetAsset(assetID string) (*types.Asset, error) {
	var asset types.Asset
	if err := d.db.Where("asset_id = ?", assetID).First(&asset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &asset, nil
}

func (d *Database) CreateTraderProfile(profile *types.TraderProfile) error {
	return d.db.Create(profile).Error
}

// GetTraderProfileByUserID returns the trader profile owned by userID, or
// nil when the user is not a followable trader.
func (d *Database) GetTraderProfileByUserID(userID string) (*types.TraderProfile, error) {
	var profile types.TraderProfile
	if err := d.db.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

func (d *Database) GetTraderProfile(traderID string) (*types.TraderProfile, error) {
	var profile types.TraderProfile
	if err := d.db.Where("trader_id = ?", traderID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &profile, nil
}

func (d *Database) CreateCopyRelationship(rel *types.CopyRelationship) error {
	return d.db.Create(rel).Error
}

func (d *Database) GetCopyRelationship(relationshipID string) (*types.CopyRelationship, error) {
	var rel types.CopyRelationship
	if err := d.db.Where("relationship_id = ?", relationshipID).First(&rel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &rel, nil
}

func (d *Database) UpdateCopyRelationship(rel *types.CopyRelationship) error {
	return d.db.Save(rel).Error
}

// GetActiveFollowers returns the active copy relationships following traderID.
func (d *Database) GetActiveFollowers(traderID string) ([]types.CopyRelationship, error) {
	var rels []types.CopyRelationship
	err := d.db.
		Where("trader_id = ? AND status = ?", traderID, types.CopyStatusActive).
		Find(&rels).Error
	if err != nil {
		return nil, err
	}
	return rels, nil
}
