package models

import "time"

// Tenant owns the AI entitlement snapshot consumed by the response dispatcher.
// Usage counters are authoritative here; AIUsageEpoch increments on every
// reset so that in-flight increments can be fenced out.
type Tenant struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Name              string    `gorm:"type:varchar(200);not null" json:"name"`
	BillingEmail      string    `gorm:"type:varchar(200);default:''" json:"billing_email"`
	BillingCustomerID string    `gorm:"type:varchar(191);default:'';index" json:"billing_customer_id"`
	AIPlan            string    `gorm:"column:ai_plan;type:varchar(32);not null;default:'free'" json:"ai_plan"`
	AITier            string    `gorm:"column:ai_tier;type:varchar(32);not null;default:'FREE'" json:"ai_tier"`
	AIDailyLimit      int       `gorm:"column:ai_daily_limit;not null;default:50" json:"ai_daily_limit"`
	AIMonthlyLimit    int       `gorm:"column:ai_monthly_limit;not null;default:1000" json:"ai_monthly_limit"`
	AIDailyUsage      int       `gorm:"column:ai_daily_usage;not null;default:0" json:"ai_daily_usage"`
	AIMonthlyUsage    int       `gorm:"column:ai_monthly_usage;not null;default:0" json:"ai_monthly_usage"`
	AIUsageResetAt    time.Time `gorm:"column:ai_usage_reset_at;type:timestamp" json:"ai_usage_reset_at"`
	AIUsageEpoch      uint64    `gorm:"column:ai_usage_epoch;not null;default:0" json:"ai_usage_epoch"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// EntitlementColumns lists the columns written when an entitlement is applied.
// Updates must use these explicitly so zero values (reset counters) are persisted.
func (t *Tenant) EntitlementColumns() map[string]interface{} {
	return map[string]interface{}{
		"ai_plan":           t.AIPlan,
		"ai_tier":           t.AITier,
		"ai_daily_limit":    t.AIDailyLimit,
		"ai_monthly_limit":  t.AIMonthlyLimit,
		"ai_daily_usage":    t.AIDailyUsage,
		"ai_monthly_usage":  t.AIMonthlyUsage,
		"ai_usage_reset_at": t.AIUsageResetAt,
		"ai_usage_epoch":    t.AIUsageEpoch,
	}
}
