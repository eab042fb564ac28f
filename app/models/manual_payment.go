package models

import "time"

const (
	ManualPaymentStatusPending  = "pending"
	ManualPaymentStatusApproved = "approved"
	ManualPaymentStatusRejected = "rejected"
)

const (
	ManualPaymentMethodWalletA      = "wallet_a"
	ManualPaymentMethodWalletB      = "wallet_b"
	ManualPaymentMethodBankTransfer = "bank_transfer"
)

// ManualPayment is an offline payment waiting for operator review.
// Status leaves pending exactly once; reviewed rows are never modified again.
type ManualPayment struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Reference      string     `gorm:"type:char(36);not null;uniqueIndex" json:"reference"`
	TenantID       uint       `gorm:"not null;index" json:"tenant_id"`
	PlanID         uint       `gorm:"not null;index" json:"plan_id"`
	Method         string     `gorm:"type:varchar(20);not null" json:"method"`
	SenderName     string     `gorm:"type:varchar(200);not null" json:"sender_name"`
	SenderAccount  string     `gorm:"type:varchar(100);not null" json:"sender_account"`
	TransactionRef string     `gorm:"type:varchar(191);default:''" json:"transaction_ref"`
	ProofReference string     `gorm:"type:varchar(512);not null" json:"proof_reference"`
	CouponCode     string     `gorm:"type:varchar(64);default:''" json:"coupon_code"`
	OriginalPrice  int64      `gorm:"not null" json:"original_price"`
	FinalPrice     int64      `gorm:"not null" json:"final_price"`
	Status         string     `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	ReviewedBy     *string    `gorm:"type:varchar(191);default:null" json:"reviewed_by,omitempty"`
	ReviewNote     *string    `gorm:"type:text" json:"review_note,omitempty"`
	ReviewedAt     *time.Time `gorm:"type:timestamp;default:null" json:"reviewed_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsPending reports whether the payment can still be reviewed.
func (p *ManualPayment) IsPending() bool {
	return p != nil && p.Status == ManualPaymentStatusPending
}
