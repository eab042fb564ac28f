package billing

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Shah039zaib/b2automate/app/models"
)

// Repository provides DB operations used by the billing engine. Methods called
// on the Repository handed to a Transaction callback run inside that
// transaction; Lock* methods take row locks held until commit.
type Repository interface {
	Transaction(ctx context.Context, fn func(tx Repository) error) error

	FindPlan(ctx context.Context, planID uint) (*models.BillingPlan, error)

	FindTenant(ctx context.Context, tenantID uint) (*models.Tenant, error)
	LockTenant(ctx context.Context, tenantID uint) (*models.Tenant, error)
	FindTenantByCustomerID(ctx context.Context, customerID string) (*models.Tenant, error)
	SaveTenantEntitlement(ctx context.Context, tenant *models.Tenant) error
	IncrementUsage(ctx context.Context, tenantID uint, epoch uint64) (bool, error)

	FindSubscriptionByTenant(ctx context.Context, tenantID uint) (*models.BillingSubscription, error)
	FindSubscriptionByProviderID(ctx context.Context, provider, subscriptionID string, lock bool) (*models.BillingSubscription, error)
	SaveSubscription(ctx context.Context, sub *models.BillingSubscription) error
	DeleteSubscription(ctx context.Context, id uint) error
	ListExpiredManualSubscriptions(ctx context.Context, before time.Time, limit int) ([]models.BillingSubscription, error)

	CreateManualPayment(ctx context.Context, payment *models.ManualPayment) error
	FindManualPayment(ctx context.Context, id uint) (*models.ManualPayment, error)
	ResolveManualPayment(ctx context.Context, id uint, status, reviewerID string, note *string, at time.Time) (bool, error)

	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	ClaimWebhookEvent(ctx context.Context, id uint, at time.Time) (bool, error)
	RecordWebhookFailure(ctx context.Context, id uint, processingError string) error
	ListDeferredWebhookEvents(ctx context.Context, createdBefore time.Time, maxAttempts, limit int) ([]models.BillingWebhookEvent, error)

	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) FindPlan(ctx context.Context, planID uint) (*models.BillingPlan, error) {
	var p models.BillingPlan
	if err := r.db.WithContext(ctx).First(&p, planID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, withDetail(ErrPlanNotFound, "id=%d", planID)
		}
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) FindTenant(ctx context.Context, tenantID uint) (*models.Tenant, error) {
	return r.findTenant(r.db.WithContext(ctx), tenantID)
}

func (r *gormRepository) LockTenant(ctx context.Context, tenantID uint) (*models.Tenant, error) {
	return r.findTenant(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), tenantID)
}

func (r *gormRepository) findTenant(db *gorm.DB, tenantID uint) (*models.Tenant, error) {
	var t models.Tenant
	if err := db.First(&t, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, withDetail(ErrTenantNotFound, "id=%d", tenantID)
		}
		return nil, err
	}
	return &t, nil
}

func (r *gormRepository) FindTenantByCustomerID(ctx context.Context, customerID string) (*models.Tenant, error) {
	var t models.Tenant
	err := r.db.WithContext(ctx).Where("billing_customer_id = ?", customerID).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, withDetail(ErrTenantNotFound, "customer=%s", customerID)
		}
		return nil, err
	}
	return &t, nil
}

func (r *gormRepository) SaveTenantEntitlement(ctx context.Context, tenant *models.Tenant) error {
	res := r.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ?", tenant.ID).
		Updates(tenant.EntitlementColumns())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return withDetail(ErrInvariantViolation, "entitlement write matched no tenant id=%d", tenant.ID)
	}
	return nil
}

func (r *gormRepository) IncrementUsage(ctx context.Context, tenantID uint, epoch uint64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ? AND ai_usage_epoch = ? AND ai_daily_usage < ai_daily_limit AND ai_monthly_usage < ai_monthly_limit", tenantID, epoch).
		Updates(map[string]interface{}{
			"ai_daily_usage":   gorm.Expr("ai_daily_usage + 1"),
			"ai_monthly_usage": gorm.Expr("ai_monthly_usage + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormRepository) FindSubscriptionByTenant(ctx context.Context, tenantID uint) (*models.BillingSubscription, error) {
	var sub models.BillingSubscription
	err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, withDetail(ErrSubscriptionNotFound, "tenant=%d", tenantID)
		}
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) FindSubscriptionByProviderID(ctx context.Context, provider, subscriptionID string, lock bool) (*models.BillingSubscription, error) {
	db := r.db.WithContext(ctx)
	if lock {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var sub models.BillingSubscription
	err := db.Where("provider = ? AND provider_subscription_id = ?", provider, subscriptionID).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, withDetail(ErrSubscriptionNotFound, "%s/%s", provider, subscriptionID)
		}
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) SaveSubscription(ctx context.Context, sub *models.BillingSubscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

func (r *gormRepository) DeleteSubscription(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.BillingSubscription{}, id).Error
}

func (r *gormRepository) ListExpiredManualSubscriptions(ctx context.Context, before time.Time, limit int) ([]models.BillingSubscription, error) {
	var subs []models.BillingSubscription
	err := r.db.WithContext(ctx).
		Where("provider = ? AND status IN ? AND current_period_end < ?",
			models.BillingProviderManual,
			[]string{models.BillingStatusActive, models.BillingStatusTrialing, models.BillingStatusPastDue},
			before).
		Order("current_period_end ASC").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) CreateManualPayment(ctx context.Context, payment *models.ManualPayment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *gormRepository) FindManualPayment(ctx context.Context, id uint) (*models.ManualPayment, error) {
	var p models.ManualPayment
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, withDetail(ErrPaymentNotFound, "id=%d", id)
		}
		return nil, err
	}
	return &p, nil
}

// ResolveManualPayment moves a payment out of pending. The WHERE clause makes
// it a compare-and-set: false means another reviewer got there first.
func (r *gormRepository) ResolveManualPayment(ctx context.Context, id uint, status, reviewerID string, note *string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.ManualPayment{}).
		Where("id = ? AND status = ?", id, models.ManualPaymentStatusPending).
		Updates(map[string]interface{}{
			"status":      status,
			"reviewed_by": reviewerID,
			"review_note": note,
			"reviewed_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.WithContext(ctx).Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

// ClaimWebhookEvent marks an event processed only if nobody else has. Run it
// in the same transaction as the event's ledger effects.
func (r *gormRepository) ClaimWebhookEvent(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).
		Where("id = ? AND processed_at IS NULL", id).
		Updates(map[string]interface{}{
			"processed_at":     at,
			"processing_error": "",
			"attempts":         gorm.Expr("attempts + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormRepository) RecordWebhookFailure(ctx context.Context, id uint, processingError string) error {
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).
		Where("id = ? AND processed_at IS NULL", id).
		Updates(map[string]interface{}{
			"processing_error": processingError,
			"attempts":         gorm.Expr("attempts + 1"),
		}).Error
}

func (r *gormRepository) ListDeferredWebhookEvents(ctx context.Context, createdBefore time.Time, maxAttempts, limit int) ([]models.BillingWebhookEvent, error) {
	var events []models.BillingWebhookEvent
	err := r.db.WithContext(ctx).
		Where("processed_at IS NULL AND created_at < ? AND attempts < ?", createdBefore, maxAttempts).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *gormRepository) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
