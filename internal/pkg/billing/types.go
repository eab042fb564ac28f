package billing

import "time"

// Provider event types handled by the reconciler.
const (
	EventSubscriptionCreated = "customer.subscription.created"
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoicePaymentFail  = "invoice.payment_failed"
)

// ProviderEvent is a verified, typed billing-provider event. The transport
// resolves the provider price id to PlanID before handing it over.
type ProviderEvent struct {
	ID                     string     `json:"id"`
	Provider               string     `json:"provider"`
	Type                   string     `json:"type"`
	TenantID               uint       `json:"tenant_id,omitempty"`
	ExternalCustomerID     string     `json:"external_customer_id"`
	ExternalSubscriptionID string     `json:"external_subscription_id"`
	PlanID                 uint       `json:"plan_id,omitempty"`
	Status                 string     `json:"status,omitempty"`
	CurrentPeriodStart     *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      *bool      `json:"cancel_at_period_end,omitempty"`
	CanceledAt             *time.Time `json:"canceled_at,omitempty"`
}

// SubscriptionChanges is a partial update reported by the provider. Nil
// fields are left untouched.
type SubscriptionChanges struct {
	PlanID             *uint
	Status             *string
	CustomerID         *string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  *bool
	CanceledAt         *time.Time
}

// SubscriptionDescriptor tells grantEntitlement how the subscription row is
// managed. Exactly one of ProviderManaged or ManuallyManaged is set.
type SubscriptionDescriptor struct {
	Provider *ProviderManaged
	Manual   *ManuallyManaged
}

// ProviderManaged describes a subscription owned by the payment provider.
type ProviderManaged struct {
	Provider               string
	ExternalCustomerID     string
	ExternalSubscriptionID string
	Status                 string
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
	CanceledAt             *time.Time
}

// ManuallyManaged describes a synthetic subscription created by approving an
// offline payment; its period is fixed at approval time.
type ManuallyManaged struct {
	PaymentID   uint
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// ManualPaymentSubmission is the operator-facing input for a new offline payment.
type ManualPaymentSubmission struct {
	TenantID       uint   `json:"tenant_id" validate:"required"`
	PlanID         uint   `json:"plan_id" validate:"required"`
	Method         string `json:"method" validate:"required,oneof=wallet_a wallet_b bank_transfer"`
	SenderName     string `json:"sender_name" validate:"required,max=200"`
	SenderAccount  string `json:"sender_account" validate:"required,max=100"`
	TransactionRef string `json:"transaction_ref" validate:"omitempty,max=191"`
	ProofReference string `json:"proof_reference" validate:"required,max=512"`
	CouponCode     string `json:"coupon_code" validate:"omitempty,max=64"`
	OriginalPrice  int64  `json:"original_price" validate:"gte=0"`
	FinalPrice     int64  `json:"final_price" validate:"gte=0,ltefield=OriginalPrice"`
}

// Outcome is the result of handling one provider event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeDeferred  Outcome = "deferred"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeNoop      Outcome = "noop"
	OutcomeFailed    Outcome = "failed"
)
