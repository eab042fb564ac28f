package models

import "time"

// BillingPlan is a subscribable plan. ProviderPriceRef maps a provider price id
// (e.g. a Stripe price) onto the plan; the AI fields are copied onto a tenant
// when the plan is granted.
type BillingPlan struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Name               string    `gorm:"type:varchar(100);not null" json:"name"`
	ProviderProductRef string    `gorm:"type:varchar(191);default:''" json:"provider_product_ref"`
	ProviderPriceRef   string    `gorm:"type:varchar(191);default:'';index" json:"provider_price_ref"`
	AIPlan             string    `gorm:"column:ai_plan;type:varchar(32);not null" json:"ai_plan"`
	AITier             string    `gorm:"column:ai_tier;type:varchar(32);not null" json:"ai_tier"`
	AIDailyLimit       int       `gorm:"column:ai_daily_limit;not null;default:0" json:"ai_daily_limit"`
	AIMonthlyLimit     int       `gorm:"column:ai_monthly_limit;not null;default:0" json:"ai_monthly_limit"`
	PriceAmount        int64     `gorm:"not null;default:0" json:"price_amount"`
	Currency           string    `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	IsActive           bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
