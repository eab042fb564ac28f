package billing

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/Shah039zaib/b2automate/app/models"
	"github.com/Shah039zaib/b2automate/internal/pkg/metrics"
)

const failureRecordTimeout = 5 * time.Second

// Reconciler turns verified provider events into ledger operations. Each
// event id is stored once; its ledger effect and the processed mark commit in
// the same transaction, so redelivery and concurrent delivery are no-ops.
type Reconciler struct {
	ledger *Ledger
	repo   Repository
	cfg    Config
}

// NewReconciler creates a reconciler driving ledger.
func NewReconciler(ledger *Ledger) *Reconciler {
	return &Reconciler{ledger: ledger, repo: ledger.repo, cfg: ledger.cfg}
}

// Handle processes one event. OutcomeDeferred comes with the not-found error
// that caused it; the event stays unprocessed and RetryDeferred picks it up.
func (r *Reconciler) Handle(ctx context.Context, ev ProviderEvent) (Outcome, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if strings.TrimSpace(ev.Provider) == "" {
		ev.Provider = r.cfg.Provider
	}
	ev.Provider = normalizeProvider(ev.Provider)
	if err := ev.validate(); err != nil {
		metrics.ObserveWebhookEvent(ev.Type, string(OutcomeFailed))
		return OutcomeFailed, err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return OutcomeFailed, err
	}
	created, stored, err := r.repo.CreateWebhookEventIfNotExists(ctx, &models.BillingWebhookEvent{
		Provider:        ev.Provider,
		ProviderEventID: ev.ID,
		EventType:       ev.Type,
		PayloadJSON:     string(payload),
	})
	if err != nil {
		metrics.ObserveWebhookEvent(ev.Type, string(OutcomeFailed))
		return OutcomeFailed, err
	}
	if !created && stored.ProcessedAt != nil {
		log.Infof("[Reconciler] Event %s/%s already processed", ev.Provider, ev.ID)
		metrics.ObserveWebhookEvent(ev.Type, string(OutcomeDuplicate))
		return OutcomeDuplicate, nil
	}

	outcome, err := r.process(ctx, stored.ID, ev)
	metrics.ObserveWebhookEvent(ev.Type, string(outcome))
	return outcome, err
}

// RetryDeferred re-runs stored events that are still unprocessed, oldest
// first. It returns how many of them were settled.
func (r *Reconciler) RetryDeferred(ctx context.Context) (int, error) {
	cutoff := r.ledger.now().Add(-r.cfg.RetryMinAge)
	events, err := r.repo.ListDeferredWebhookEvents(ctx, cutoff, r.cfg.MaxWebhookAttempts, r.cfg.SweepBatchSize)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, stored := range events {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		var ev ProviderEvent
		if err := json.Unmarshal([]byte(stored.PayloadJSON), &ev); err != nil {
			r.recordFailure(ctx, stored.ID, "undecodable payload: "+err.Error())
			continue
		}

		ectx, cancel := r.withTimeout(ctx)
		outcome, err := r.process(ectx, stored.ID, ev)
		cancel()
		metrics.ObserveWebhookEvent(ev.Type, string(outcome))
		if err != nil {
			if stored.Attempts+1 >= r.cfg.MaxWebhookAttempts {
				log.Errorf("[Reconciler] Giving up on event %s/%s after %d attempts: %v", stored.Provider, stored.ProviderEventID, stored.Attempts+1, err)
			}
			continue
		}
		settled++
	}
	if len(events) > 0 {
		log.Infof("[Reconciler] Retried %d deferred events, %d settled", len(events), settled)
	}
	return settled, nil
}

func (r *Reconciler) process(ctx context.Context, eventID uint, ev ProviderEvent) (Outcome, error) {
	outcome := OutcomeApplied
	err := r.ledger.inTx(ctx, func(tx Repository, ac *afterCommit) error {
		claimed, err := tx.ClaimWebhookEvent(ctx, eventID, r.ledger.now())
		if err != nil {
			return err
		}
		if !claimed {
			outcome = OutcomeDuplicate
			return nil
		}
		outcome, err = r.dispatch(ctx, tx, ac, ev)
		return err
	})
	if err == nil {
		return outcome, nil
	}

	// The claim rolled back with everything else; keep the reason for the
	// retry sweep.
	r.recordFailure(ctx, eventID, err.Error())
	if IsNotFound(err) {
		log.Infof("[Reconciler] Event %s/%s (%s) deferred: %v", ev.Provider, ev.ID, ev.Type, err)
		return OutcomeDeferred, err
	}
	log.Errorf("[Reconciler] Event %s/%s (%s) failed: %v", ev.Provider, ev.ID, ev.Type, err)
	return OutcomeFailed, err
}

func (r *Reconciler) dispatch(ctx context.Context, tx Repository, ac *afterCommit, ev ProviderEvent) (Outcome, error) {
	switch ev.Type {
	case EventSubscriptionCreated, EventCheckoutCompleted:
		tenant, err := r.resolveTenant(ctx, tx, ev)
		if err != nil {
			return OutcomeFailed, err
		}
		_, plan, err := r.ledger.grantEntitlement(ctx, tx, ac, tenant, ev.PlanID, SubscriptionDescriptor{Provider: ev.descriptor()}, nil)
		if err != nil {
			return OutcomeFailed, err
		}
		ac.notify(Notice{Kind: NoticePaymentSucceeded, TenantID: tenant.ID, Email: tenant.BillingEmail, PlanName: plan.Name})
		return OutcomeApplied, nil

	case EventSubscriptionUpdated:
		if _, _, err := r.ledger.updateFromPayment(ctx, tx, ac, ev.Provider, ev.ExternalSubscriptionID, ev.changes()); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeApplied, nil

	case EventInvoicePaymentFail:
		status := models.BillingStatusPastDue
		_, tenant, err := r.ledger.updateFromPayment(ctx, tx, ac, ev.Provider, ev.ExternalSubscriptionID, SubscriptionChanges{Status: &status})
		if err != nil {
			return OutcomeFailed, err
		}
		ac.notify(Notice{Kind: NoticePaymentFailed, TenantID: tenant.ID, Email: tenant.BillingEmail})
		return OutcomeApplied, nil

	case EventSubscriptionDeleted:
		deleted, err := r.ledger.deleteFromPayment(ctx, tx, ac, ev.Provider, ev.ExternalSubscriptionID)
		if err != nil {
			return OutcomeFailed, err
		}
		if !deleted {
			return OutcomeNoop, nil
		}
		return OutcomeApplied, nil

	default:
		log.Infof("[Reconciler] Ignoring event type %s (%s)", ev.Type, ev.ID)
		return OutcomeIgnored, nil
	}
}

// resolveTenant locks the tenant a creation event belongs to, by explicit id
// or by the provider customer id.
func (r *Reconciler) resolveTenant(ctx context.Context, tx Repository, ev ProviderEvent) (*models.Tenant, error) {
	tenantID := ev.TenantID
	if tenantID == 0 {
		if ev.ExternalCustomerID == "" {
			return nil, withDetail(ErrTenantNotFound, "event %s carries no tenant or customer", ev.ID)
		}
		t, err := tx.FindTenantByCustomerID(ctx, ev.ExternalCustomerID)
		if err != nil {
			return nil, err
		}
		tenantID = t.ID
	}
	return tx.LockTenant(ctx, tenantID)
}

func (r *Reconciler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.WebhookTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.WebhookTimeout)
}

func (r *Reconciler) recordFailure(ctx context.Context, eventID uint, msg string) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureRecordTimeout)
	defer cancel()
	if len(msg) > 1000 {
		msg = msg[:1000]
	}
	if err := r.repo.RecordWebhookFailure(fctx, eventID, msg); err != nil {
		log.Warnf("[Reconciler] Failed to record failure for event row %d: %v", eventID, err)
	}
}

func (ev ProviderEvent) validate() error {
	if strings.TrimSpace(ev.ID) == "" {
		return withDetail(ErrInvalidEvent, "missing event id")
	}
	switch ev.Type {
	case "":
		return withDetail(ErrInvalidEvent, "missing event type")
	case EventSubscriptionCreated, EventCheckoutCompleted, EventSubscriptionUpdated,
		EventSubscriptionDeleted, EventInvoicePaymentFail:
		if strings.TrimSpace(ev.ExternalSubscriptionID) == "" {
			return withDetail(ErrInvalidEvent, "event %s (%s) has no subscription id", ev.ID, ev.Type)
		}
	}
	return nil
}

func (ev ProviderEvent) descriptor() *ProviderManaged {
	d := &ProviderManaged{
		Provider:               ev.Provider,
		ExternalCustomerID:     ev.ExternalCustomerID,
		ExternalSubscriptionID: ev.ExternalSubscriptionID,
		Status:                 ev.Status,
		CurrentPeriodStart:     ev.CurrentPeriodStart,
		CurrentPeriodEnd:       ev.CurrentPeriodEnd,
		CanceledAt:             ev.CanceledAt,
	}
	if ev.CancelAtPeriodEnd != nil {
		d.CancelAtPeriodEnd = *ev.CancelAtPeriodEnd
	}
	return d
}

func (ev ProviderEvent) changes() SubscriptionChanges {
	c := SubscriptionChanges{
		CurrentPeriodStart: ev.CurrentPeriodStart,
		CurrentPeriodEnd:   ev.CurrentPeriodEnd,
		CancelAtPeriodEnd:  ev.CancelAtPeriodEnd,
		CanceledAt:         ev.CanceledAt,
	}
	if ev.PlanID != 0 {
		planID := ev.PlanID
		c.PlanID = &planID
	}
	if ev.Status != "" {
		status := ev.Status
		c.Status = &status
	}
	if ev.ExternalCustomerID != "" {
		customer := ev.ExternalCustomerID
		c.CustomerID = &customer
	}
	return c
}
