package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/Shah039zaib/b2automate/app/models"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

// planRepository implements the PlanRepository interface
type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new plan repository instance
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

// GetByID retrieves a plan by id regardless of its active flag
func (r *planRepository) GetByID(ctx context.Context, id uint) (*models.BillingPlan, error) {
	var plan models.BillingPlan
	if err := r.db.WithContext(ctx).First(&plan, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &plan, nil
}

// GetByProviderPriceRef resolves a provider price id to a plan. Active plans
// win when a price ref was reused.
func (r *planRepository) GetByProviderPriceRef(ctx context.Context, priceRef string) (*models.BillingPlan, error) {
	priceRef = strings.TrimSpace(priceRef)
	if priceRef == "" {
		return nil, ErrNotFound
	}
	var plan models.BillingPlan
	err := r.db.WithContext(ctx).
		Where("provider_price_ref = ?", priceRef).
		Order("is_active DESC, id ASC").
		First(&plan).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &plan, nil
}

// ListActive returns the plans open for new subscriptions, cheapest first
func (r *planRepository) ListActive(ctx context.Context) ([]models.BillingPlan, error) {
	var plans []models.BillingPlan
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("price_amount ASC, id ASC").
		Find(&plans).Error
	return plans, err
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
