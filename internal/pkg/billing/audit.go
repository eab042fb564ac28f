package billing

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/Shah039zaib/b2automate/app/models"
)

// Audit event types written by entitlement-changing paths.
const (
	AuditSubscriptionCreated   = "SUBSCRIPTION_CREATED"
	AuditSubscriptionUpdated   = "SUBSCRIPTION_UPDATED"
	AuditDowngradedToFree      = "SUBSCRIPTION_DOWNGRADED_TO_FREE"
	AuditManualPaymentApproved = "MANUAL_PAYMENT_APPROVED"
	AuditManualPaymentRejected = "MANUAL_PAYMENT_REJECTED"
)

// Downgrade reason codes recorded in audit metadata.
const (
	ReasonCanceledOrUnpaid    = "subscription_canceled_or_unpaid"
	ReasonSubscriptionDeleted = "subscription_deleted"
	ReasonManualPeriodLapsed  = "manual_period_lapsed"
)

// AuditEmitter records an entitlement-changing action. actor is nil for
// system actions.
type AuditEmitter interface {
	Record(ctx context.Context, tenantID uint, eventType string, actor *string, metadata map[string]interface{}) error
}

type repoAuditEmitter struct {
	repo Repository
}

// NewAuditEmitter writes audit records through repo. Bound to a transaction
// repository, the record commits or rolls back with the change it describes.
func NewAuditEmitter(repo Repository) AuditEmitter {
	return &repoAuditEmitter{repo: repo}
}

func (e *repoAuditEmitter) Record(ctx context.Context, tenantID uint, eventType string, actor *string, metadata map[string]interface{}) error {
	raw := []byte("{}")
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		raw = b
	}
	return e.repo.CreateAuditLog(ctx, &models.AuditLog{
		EventID:   uuid.NewString(),
		TenantID:  tenantID,
		EventType: eventType,
		ActorID:   actor,
		Metadata:  string(raw),
	})
}
