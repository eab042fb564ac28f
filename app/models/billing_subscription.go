package models

import "time"

// Billing provider constants used across billing-related models.
const (
	BillingProviderStripe = "stripe"
	BillingProviderManual = "manual"
)

const (
	BillingStatusActive            = "active"
	BillingStatusTrialing          = "trialing"
	BillingStatusPastDue           = "past_due"
	BillingStatusCanceled          = "canceled"
	BillingStatusUnpaid            = "unpaid"
	BillingStatusIncomplete        = "incomplete"
	BillingStatusIncompleteExpired = "incomplete_expired"
)

// BillingSubscription is the single authoritative subscription of a tenant.
// (Provider, ProviderSubscriptionID) is the idempotency key for webhook
// operations; manual subscriptions use a synthetic "manual:<payment>" id.
type BillingSubscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	TenantID               uint       `gorm:"not null;uniqueIndex" json:"tenant_id"`
	PlanID                 uint       `gorm:"not null;index" json:"plan_id"`
	Provider               string     `gorm:"type:varchar(20);not null;index:ux_billing_subscriptions_provider_subid,unique,priority:1;index:idx_billing_subscriptions_provider_status,priority:1" json:"provider"`
	ProviderCustomerID     string     `gorm:"type:varchar(191);default:''" json:"provider_customer_id"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);not null;index:ux_billing_subscriptions_provider_subid,unique,priority:2" json:"provider_subscription_id"`
	ManualPaymentID        *uint      `gorm:"index" json:"manual_payment_id,omitempty"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'active';index:idx_billing_subscriptions_provider_status,priority:2" json:"status"`
	CurrentPeriodStart     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time `gorm:"type:timestamp;default:null;index" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CanceledAt             *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
