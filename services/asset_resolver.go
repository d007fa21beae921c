package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Gsaudx/Advision-sub001/database"
	"github.com/Gsaudx/Advision-sub001/interfaces"
	"github.com/Gsaudx/Advision-sub001/models"
)

// DatabaseAssetResolver resolves tickers against the assets table,
// creating stock and option assets lazily on first use. Assets are
// immutable once created.
type DatabaseAssetResolver struct {
	store  *database.Storage
	logger *logrus.Logger
}

// NewDatabaseAssetResolver creates an asset resolver backed by the ledger store
func NewDatabaseAssetResolver(store *database.Storage) *DatabaseAssetResolver {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return &DatabaseAssetResolver{
		store:  store,
		logger: logger,
	}
}

// Resolve returns the stock asset for ticker, creating it on first use
func (r *DatabaseAssetResolver) Resolve(ctx context.Context, ticker string) (*models.Asset, error) {
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required: %w", ErrValidation)
	}

	asset, err := r.lookup(ctx, ticker)
	if err == nil {
		return asset, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	created := models.Asset{
		Ticker: ticker,
		Name:   ticker,
		Type:   models.AssetTypeStock,
	}
	if err := r.store.DB().WithContext(ctx).Create(&created).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the creation race; the winner's row is authoritative.
			return r.lookup(ctx, ticker)
		}
		return nil, fmt.Errorf("failed to create asset %s: %w", ticker, err)
	}

	r.logger.WithField("ticker", ticker).Info("Created stock asset")
	return &created, nil
}

// ResolveOption returns the option asset for ticker, creating it with
// the supplied contract terms on first use. The underlying stock asset
// is resolved (and created if needed) first.
func (r *DatabaseAssetResolver) ResolveOption(ctx context.Context, ticker string, spec interfaces.OptionSpec) (*models.Asset, error) {
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required: %w", ErrValidation)
	}

	asset, err := r.lookup(ctx, ticker)
	if err == nil {
		if asset.Type != models.AssetTypeOption {
			return nil, fmt.Errorf("asset %s is not an option: %w", ticker, ErrValidation)
		}
		return asset, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if spec.OptionType != models.OptionTypeCall && spec.OptionType != models.OptionTypePut {
		return nil, fmt.Errorf("option type must be CALL or PUT: %w", ErrValidation)
	}
	if !spec.StrikePrice.IsPositive() {
		return nil, fmt.Errorf("strike price must be positive: %w", ErrValidation)
	}
	if spec.UnderlyingTicker == "" {
		return nil, fmt.Errorf("underlying ticker is required: %w", ErrValidation)
	}

	underlying, err := r.Resolve(ctx, spec.UnderlyingTicker)
	if err != nil {
		return nil, err
	}

	exercise := spec.ExerciseType
	if exercise == "" {
		exercise = models.ExerciseStyleAmerican
	}

	created := models.Asset{
		Ticker: ticker,
		Name:   ticker,
		Type:   models.AssetTypeOption,
		OptionDetail: &models.OptionDetail{
			OptionType:        spec.OptionType,
			ExerciseType:      exercise,
			StrikePrice:       spec.StrikePrice,
			ExpirationDate:    spec.ExpirationDate,
			UnderlyingAssetID: underlying.ID,
		},
	}
	if err := r.store.DB().WithContext(ctx).Create(&created).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return r.lookup(ctx, ticker)
		}
		return nil, fmt.Errorf("failed to create option asset %s: %w", ticker, err)
	}

	r.logger.WithFields(logrus.Fields{
		"ticker":     ticker,
		"type":       spec.OptionType,
		"strike":     spec.StrikePrice,
		"underlying": spec.UnderlyingTicker,
	}).Info("Created option asset")
	return &created, nil
}

// Get returns an existing asset or not-found
func (r *DatabaseAssetResolver) Get(ctx context.Context, ticker string) (*models.Asset, error) {
	return r.lookup(ctx, ticker)
}

func (r *DatabaseAssetResolver) lookup(ctx context.Context, ticker string) (*models.Asset, error) {
	var asset models.Asset
	err := r.store.DB().WithContext(ctx).
		Preload("OptionDetail").
		Where("ticker = ?", ticker).
		First(&asset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("asset %s: %w", ticker, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load asset %s: %w", ticker, err)
	}
	return &asset, nil
}
