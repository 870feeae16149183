package market

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vantora/brokerage-api/internal/types"
	"github.com/vantora/brokerage-api/pkg/response"
	"gorm.io/gorm"
)

// Service is the price-feed collaborator. The ledger core only ever reads an
// asset's current price; this mock feed stands in for the real ingestion
// pipeline by jittering prices with a bounded random walk.
type Service struct {
	db           *gorm.DB
	tickInterval time.Duration
}

// NewService creates a market service with the given database connection
func NewService(db *gorm.DB, tickInterval time.Duration) *Service {
	if tickInterval <= 0 {
		tickInterval = 30 * time.Second
	}
	return &Service{
		db:           db,
		tickInterval: tickInterval,
	}
}

// GetAsset retrieves an asset by its ID
func (s *Service) GetAsset(assetID string) (*types.Asset, error) {
	var asset types.Asset
	if err := s.db.Where("asset_id = ?", assetID).First(&asset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &asset, nil
}

// ListAssets returns all tradable assets.
func (s *Service) ListAssets() ([]types.Asset, error) {
	var assets []types.Asset
	if err := s.db.Order("symbol ASC").Find(&assets).Error; err != nil {
		return nil, err
	}
	return assets, nil
}

// Start runs the mock price feed until the context is cancelled.
func (s *Service) Start(ctx context.Context) {
	logger := log.With().Str("component", "price_feed").Logger()
	logger.Info().Dur("tick_interval", s.tickInterval).Msg("starting mock price feed")

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down price feed")
			return
		case <-ticker.C:
			if err := s.tick(); err != nil {
				logger.Error().Err(err).Msg("price feed tick failed")
			}
		}
	}
}

// tick applies a +/-2% random walk to every asset price.
func (s *Service) tick() error {
	assets, err := s.ListAssets()
	if err != nil {
		return err
	}

	for i := range assets {
		variance := decimal.NewFromFloat(1 + (rand.Float64()*0.04 - 0.02))
		newPrice := assets[i].Price.Mul(variance)

		err := s.db.Model(&types.Asset{}).
			Where("asset_id = ?", assets[i].AssetID).
			Updates(map[string]interface{}{
				"price":      newPrice,
				"updated_at": time.Now(),
			}).Error
		if err != nil {
			return err
		}

		log.Debug().
			Str("component", "price_feed").
			Str("symbol", assets[i].Symbol).
			Str("price", newPrice.String()).
			Msg("price updated")
	}

	return nil
}

// GinHandlers contains HTTP handlers for market endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for market endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// ListAssetsHandler handles GET requests for the tradable asset list
func (h *GinHandlers) ListAssetsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		assets, err := h.service.ListAssets()
		response.Handle(c, assets, err)
	}
}

// GetAssetHandler handles GET requests for a single asset
func (h *GinHandlers) GetAssetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		assetID := c.Param("asset_id")

		asset, err := h.service.GetAsset(assetID)
		response.Handle(c, asset, err)
	}
}
