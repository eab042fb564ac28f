package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/Shah039zaib/b2automate/app/models"
	"github.com/Shah039zaib/b2automate/internal/pkg/metrics"
)

// ManualPayments runs the review workflow for offline payments. A payment is
// created pending and leaves that state exactly once, through Approve or
// Reject; approval grants entitlements through the same path as the provider.
type ManualPayments struct {
	ledger   *Ledger
	repo     Repository
	validate *validator.Validate
	proofs   ProofVerifier
}

// NewManualPayments creates the review workflow. A nil proofs accepts any
// non-blank proof reference.
func NewManualPayments(ledger *Ledger, proofs ProofVerifier) *ManualPayments {
	if proofs == nil {
		proofs = NonEmptyProof{}
	}
	return &ManualPayments{
		ledger:   ledger,
		repo:     ledger.repo,
		validate: validator.New(),
		proofs:   proofs,
	}
}

// Submit records a new pending payment.
func (m *ManualPayments) Submit(ctx context.Context, in ManualPaymentSubmission) (*models.ManualPayment, error) {
	in.normalize()
	if err := m.validate.StructCtx(ctx, in); err != nil {
		return nil, wrapCause(ErrInvalidSubmission, err)
	}

	ok, err := m.proofs.Exists(ctx, in.ProofReference)
	if err != nil {
		return nil, fmt.Errorf("verify proof of payment: %w", err)
	}
	if !ok {
		return nil, withDetail(ErrInvalidSubmission, "proof %q not found", in.ProofReference)
	}

	if _, err := m.repo.FindTenant(ctx, in.TenantID); err != nil {
		return nil, err
	}
	plan, err := m.repo.FindPlan(ctx, in.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, withDetail(ErrPlanNotFound, "plan %d is not offered", plan.ID)
	}

	payment := &models.ManualPayment{
		Reference:      uuid.NewString(),
		TenantID:       in.TenantID,
		PlanID:         plan.ID,
		Method:         in.Method,
		SenderName:     in.SenderName,
		SenderAccount:  in.SenderAccount,
		TransactionRef: in.TransactionRef,
		ProofReference: in.ProofReference,
		CouponCode:     in.CouponCode,
		OriginalPrice:  in.OriginalPrice,
		FinalPrice:     in.FinalPrice,
		Status:         models.ManualPaymentStatusPending,
	}
	if err := m.repo.CreateManualPayment(ctx, payment); err != nil {
		return nil, err
	}
	log.Infof("[Billing] Manual payment %d (%s) submitted for tenant %d, plan %d", payment.ID, payment.Reference, payment.TenantID, payment.PlanID)
	return payment, nil
}

// Get returns a payment by id.
func (m *ManualPayments) Get(ctx context.Context, id uint) (*models.ManualPayment, error) {
	return m.repo.FindManualPayment(ctx, id)
}

// Approve grants the payment's plan to its tenant for the configured period.
func (m *ManualPayments) Approve(ctx context.Context, id uint, reviewerID string, note *string) (*models.ManualPayment, error) {
	return m.review(ctx, id, reviewerID, note, models.ManualPaymentStatusApproved)
}

// Reject closes the payment without touching entitlements.
func (m *ManualPayments) Reject(ctx context.Context, id uint, reviewerID string, note *string) (*models.ManualPayment, error) {
	return m.review(ctx, id, reviewerID, note, models.ManualPaymentStatusRejected)
}

func (m *ManualPayments) review(ctx context.Context, id uint, reviewerID string, note *string, decision string) (*models.ManualPayment, error) {
	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" {
		metrics.ObserveManualReview(decision, "invalid")
		return nil, withDetail(ErrInvalidSubmission, "reviewer identity is required")
	}

	payment, err := m.repo.FindManualPayment(ctx, id)
	if err != nil {
		metrics.ObserveManualReview(decision, CodeOf(err))
		return nil, err
	}
	if !payment.IsPending() {
		metrics.ObserveManualReview(decision, ErrAlreadyReviewed.Code)
		return nil, withDetail(ErrAlreadyReviewed, "payment %d is %s", id, payment.Status)
	}

	now := m.ledger.now()
	err = m.ledger.inTx(ctx, func(tx Repository, ac *afterCommit) error {
		tenant, err := tx.LockTenant(ctx, payment.TenantID)
		if err != nil {
			return err
		}
		resolved, err := tx.ResolveManualPayment(ctx, id, decision, reviewerID, note, now)
		if err != nil {
			return err
		}
		if !resolved {
			return withDetail(ErrAlreadyReviewed, "payment %d was reviewed concurrently", id)
		}

		meta := map[string]interface{}{
			"payment_id":  payment.ID,
			"reference":   payment.Reference,
			"plan_id":     payment.PlanID,
			"method":      payment.Method,
			"final_price": payment.FinalPrice,
		}
		if note != nil {
			meta["note"] = *note
		}

		if decision == models.ManualPaymentStatusRejected {
			if err := m.ledger.audit(tx).Record(ctx, tenant.ID, AuditManualPaymentRejected, &reviewerID, meta); err != nil {
				return err
			}
			ac.notify(Notice{Kind: NoticeManualRejected, TenantID: tenant.ID, Email: tenant.BillingEmail, Reason: deref(note)})
			return nil
		}

		desc := SubscriptionDescriptor{Manual: &ManuallyManaged{
			PaymentID:   payment.ID,
			PeriodStart: now,
			PeriodEnd:   now.Add(m.ledger.cfg.ManualPeriod),
		}}
		sub, plan, err := m.ledger.grantEntitlement(ctx, tx, ac, tenant, payment.PlanID, desc, &reviewerID)
		if err != nil {
			return err
		}
		meta["subscription_id"] = sub.ID
		meta["period_end"] = desc.Manual.PeriodEnd.UTC().Format(time.RFC3339)
		if err := m.ledger.audit(tx).Record(ctx, tenant.ID, AuditManualPaymentApproved, &reviewerID, meta); err != nil {
			return err
		}
		ac.notify(Notice{Kind: NoticeManualApproved, TenantID: tenant.ID, Email: tenant.BillingEmail, PlanName: plan.Name})
		return nil
	})
	if err != nil {
		metrics.ObserveManualReview(decision, CodeOf(err))
		return nil, err
	}

	payment.Status = decision
	payment.ReviewedBy = &reviewerID
	payment.ReviewNote = note
	payment.ReviewedAt = &now
	metrics.ObserveManualReview(decision, "ok")
	log.Infof("[Billing] Manual payment %d %s by %s", payment.ID, decision, reviewerID)
	return payment, nil
}

func (in *ManualPaymentSubmission) normalize() {
	in.Method = strings.ToLower(strings.TrimSpace(in.Method))
	in.SenderName = strings.TrimSpace(in.SenderName)
	in.SenderAccount = strings.TrimSpace(in.SenderAccount)
	in.TransactionRef = strings.TrimSpace(in.TransactionRef)
	in.ProofReference = strings.TrimSpace(in.ProofReference)
	in.CouponCode = strings.ToUpper(strings.TrimSpace(in.CouponCode))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
