package billing

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/Shah039zaib/b2automate/app/models"
	"github.com/Shah039zaib/b2automate/internal/pkg/entitlements"
	"github.com/Shah039zaib/b2automate/internal/pkg/metrics"
)

// Ledger owns the single subscription record of each tenant and keeps the
// tenant's entitlement in step with it. Every public operation is one
// transaction anchored on the tenant row lock; the subscription write, the
// entitlement write and the audit record commit together or not at all.
type Ledger struct {
	repo     Repository
	cfg      Config
	now      func() time.Time
	audit    func(tx Repository) AuditEmitter
	cache    EntitlementInvalidator
	notifier Notifier
}

// NewLedger creates a ledger over repo.
func NewLedger(repo Repository, cfg Config) *Ledger {
	return &Ledger{
		repo:     repo,
		cfg:      cfg,
		now:      time.Now,
		audit:    NewAuditEmitter,
		cache:    nopInvalidator{},
		notifier: NopNotifier{},
	}
}

// WithCache sets the entitlement cache evicted after each commit.
func (l *Ledger) WithCache(c EntitlementInvalidator) *Ledger {
	if c != nil {
		l.cache = c
	}
	return l
}

// WithNotifier sets the best-effort notification sink.
func (l *Ledger) WithNotifier(n Notifier) *Ledger {
	if n != nil {
		l.notifier = n
	}
	return l
}

// WithClock overrides time.Now.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	if now != nil {
		l.now = now
	}
	return l
}

// inTx runs fn in one transaction and, only after it committed, the side
// effects fn collected.
func (l *Ledger) inTx(ctx context.Context, fn func(tx Repository, ac *afterCommit) error) error {
	ac := &afterCommit{}
	if err := l.repo.Transaction(ctx, func(tx Repository) error {
		return fn(tx, ac)
	}); err != nil {
		return err
	}
	ac.run(ctx, l.cache, l.notifier)
	return nil
}

// CreateFromPayment records a newly paid subscription for tenantID and grants
// the plan's entitlement. It is not idempotent on its own; callers guard it
// with their event or payment id.
func (l *Ledger) CreateFromPayment(ctx context.Context, tenantID, planID uint, desc SubscriptionDescriptor) (*models.BillingSubscription, error) {
	var sub *models.BillingSubscription
	err := l.inTx(ctx, func(tx Repository, ac *afterCommit) error {
		tenant, err := tx.LockTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		sub, _, err = l.grantEntitlement(ctx, tx, ac, tenant, planID, desc, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// UpdateFromPayment applies provider-reported changes to the subscription
// identified by (provider, externalSubscriptionID). ErrSubscriptionNotFound
// means the matching creation has not been processed yet; nothing is written.
func (l *Ledger) UpdateFromPayment(ctx context.Context, provider, externalSubscriptionID string, changes SubscriptionChanges) (*models.BillingSubscription, error) {
	var sub *models.BillingSubscription
	err := l.inTx(ctx, func(tx Repository, ac *afterCommit) error {
		var err error
		sub, _, err = l.updateFromPayment(ctx, tx, ac, provider, externalSubscriptionID, changes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// DeleteFromPayment downgrades the owning tenant and then removes the
// subscription row. A subscription that is already gone is a no-op.
func (l *Ledger) DeleteFromPayment(ctx context.Context, provider, externalSubscriptionID string) (bool, error) {
	var deleted bool
	err := l.inTx(ctx, func(tx Repository, ac *afterCommit) error {
		var err error
		deleted, err = l.deleteFromPayment(ctx, tx, ac, provider, externalSubscriptionID)
		return err
	})
	return deleted, err
}

// grantEntitlement is the shared creation path for webhook and manual
// payments. tenant must already be locked by tx. The resolved plan is
// returned alongside the subscription.
func (l *Ledger) grantEntitlement(
	ctx context.Context,
	tx Repository,
	ac *afterCommit,
	tenant *models.Tenant,
	planID uint,
	desc SubscriptionDescriptor,
	actor *string,
) (*models.BillingSubscription, *models.BillingPlan, error) {
	if err := desc.validate(); err != nil {
		return nil, nil, err
	}
	if planID == 0 {
		return nil, nil, withDetail(ErrPlanNotFound, "no plan id given")
	}
	plan, err := tx.FindPlan(ctx, planID)
	if err != nil {
		return nil, nil, err
	}

	provider, externalID := desc.key()
	owner, err := tx.FindSubscriptionByProviderID(ctx, provider, externalID, false)
	switch {
	case err == nil && owner.TenantID != tenant.ID:
		return nil, nil, withDetail(ErrSubscriptionConflict, "%s/%s is owned by tenant %d", provider, externalID, owner.TenantID)
	case err == nil && owner.PlanID == plan.ID && desc.Provider != nil:
		// A second creation-type event for a subscription we already hold
		// (checkout completed after subscription created). Refresh it
		// without resetting usage a second time.
		sub, _, err := l.updateFromPayment(ctx, tx, ac, provider, externalID, desc.Provider.changes())
		if err != nil {
			return nil, nil, err
		}
		return sub, plan, nil
	case err != nil && !errors.Is(err, ErrSubscriptionNotFound):
		return nil, nil, err
	}

	sub, err := tx.FindSubscriptionByTenant(ctx, tenant.ID)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, nil, err
	}
	superseded := ""
	if sub == nil {
		sub = &models.BillingSubscription{TenantID: tenant.ID}
	} else {
		superseded = sub.Provider + "/" + sub.ProviderSubscriptionID
	}
	sub.PlanID = plan.ID
	desc.applyTo(sub)
	if err := tx.SaveSubscription(ctx, sub); err != nil {
		return nil, nil, err
	}

	meta := map[string]interface{}{
		"subscription_id":          sub.ID,
		"plan_id":                  plan.ID,
		"provider":                 sub.Provider,
		"external_subscription_id": sub.ProviderSubscriptionID,
		"status":                   sub.Status,
	}
	if superseded != "" {
		meta["superseded"] = superseded
	}
	if err := l.audit(tx).Record(ctx, tenant.ID, AuditSubscriptionCreated, actor, meta); err != nil {
		return nil, nil, err
	}

	if !isEntitlingStatus(sub.Status) {
		// Recorded, but nothing was paid for yet.
		if entitlements.Snapshot(tenant).IsFree() {
			return sub, plan, nil
		}
		if err := l.downgradeToFree(ctx, tx, ac, tenant, ReasonCanceledOrUnpaid, actor, meta); err != nil {
			return nil, nil, err
		}
		return sub, plan, nil
	}

	entitlements.Apply(tenant, entitlements.FromPlan(plan), l.now())
	if err := tx.SaveTenantEntitlement(ctx, tenant); err != nil {
		return nil, nil, err
	}
	ac.invalidate(tenant.ID)
	log.Infof("[Billing] Granted plan %d (%s/%s) to tenant %d via %s", plan.ID, tenant.AIPlan, tenant.AITier, tenant.ID, sub.Provider)
	return sub, plan, nil
}

func (l *Ledger) updateFromPayment(
	ctx context.Context,
	tx Repository,
	ac *afterCommit,
	provider, externalSubscriptionID string,
	changes SubscriptionChanges,
) (*models.BillingSubscription, *models.Tenant, error) {
	provider = normalizeProvider(provider)
	current, err := tx.FindSubscriptionByProviderID(ctx, provider, externalSubscriptionID, false)
	if err != nil {
		return nil, nil, err
	}
	tenant, err := tx.LockTenant(ctx, current.TenantID)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return nil, nil, wrapCause(ErrInvariantViolation, err)
		}
		return nil, nil, err
	}
	// Re-read under lock; the row may have changed while we waited.
	sub, err := tx.FindSubscriptionByProviderID(ctx, provider, externalSubscriptionID, true)
	if err != nil {
		return nil, nil, err
	}
	if sub.TenantID != tenant.ID {
		return nil, nil, withDetail(ErrInvariantViolation, "subscription %d changed tenant during update", sub.ID)
	}

	prevStatus, prevPlanID := sub.Status, sub.PlanID
	var newPlan *models.BillingPlan
	if changes.PlanID != nil && *changes.PlanID != sub.PlanID {
		newPlan, err = tx.FindPlan(ctx, *changes.PlanID)
		if err != nil {
			return nil, nil, err
		}
		sub.PlanID = newPlan.ID
	}
	changes.applyTo(sub)
	if err := tx.SaveSubscription(ctx, sub); err != nil {
		return nil, nil, err
	}

	meta := map[string]interface{}{
		"subscription_id":          sub.ID,
		"external_subscription_id": sub.ProviderSubscriptionID,
		"status":                   sub.Status,
		"previous_status":          prevStatus,
		"plan_id":                  sub.PlanID,
		"previous_plan_id":         prevPlanID,
		"cancel_at_period_end":     sub.CancelAtPeriodEnd,
	}
	if err := l.audit(tx).Record(ctx, tenant.ID, AuditSubscriptionUpdated, nil, meta); err != nil {
		return nil, nil, err
	}

	switch {
	case isDowngradeStatus(sub.Status) && !isDowngradeStatus(prevStatus):
		if err := l.downgradeToFree(ctx, tx, ac, tenant, ReasonCanceledOrUnpaid, nil, meta); err != nil {
			return nil, nil, err
		}
	case isEntitlingStatus(sub.Status) && (newPlan != nil || !isEntitlingStatus(prevStatus)):
		plan := newPlan
		if plan == nil {
			if plan, err = tx.FindPlan(ctx, sub.PlanID); err != nil {
				return nil, nil, err
			}
		}
		entitlements.Apply(tenant, entitlements.FromPlan(plan), l.now())
		if err := tx.SaveTenantEntitlement(ctx, tenant); err != nil {
			return nil, nil, err
		}
		ac.invalidate(tenant.ID)
	}
	return sub, tenant, nil
}

func (l *Ledger) deleteFromPayment(
	ctx context.Context,
	tx Repository,
	ac *afterCommit,
	provider, externalSubscriptionID string,
) (bool, error) {
	provider = normalizeProvider(provider)
	current, err := tx.FindSubscriptionByProviderID(ctx, provider, externalSubscriptionID, false)
	if errors.Is(err, ErrSubscriptionNotFound) {
		log.Warnf("[Billing] Delete for unknown subscription %s/%s ignored", provider, externalSubscriptionID)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	tenant, err := tx.LockTenant(ctx, current.TenantID)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return false, wrapCause(ErrInvariantViolation, err)
		}
		return false, err
	}
	sub, err := tx.FindSubscriptionByProviderID(ctx, provider, externalSubscriptionID, true)
	if errors.Is(err, ErrSubscriptionNotFound) {
		log.Warnf("[Billing] Subscription %s/%s vanished before delete", provider, externalSubscriptionID)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	meta := map[string]interface{}{
		"subscription_id":          sub.ID,
		"external_subscription_id": sub.ProviderSubscriptionID,
		"plan_id":                  sub.PlanID,
	}
	// Downgrade before removing the row so no committed state pairs a
	// missing subscription with paid entitlements.
	if err := l.downgradeToFree(ctx, tx, ac, tenant, ReasonSubscriptionDeleted, nil, meta); err != nil {
		return false, err
	}
	if err := tx.DeleteSubscription(ctx, sub.ID); err != nil {
		return false, err
	}
	return true, nil
}

// downgradeToFree applies the fixed free entitlement and records why.
func (l *Ledger) downgradeToFree(
	ctx context.Context,
	tx Repository,
	ac *afterCommit,
	tenant *models.Tenant,
	reason string,
	actor *string,
	extra map[string]interface{},
) error {
	previous := entitlements.Snapshot(tenant)
	entitlements.Apply(tenant, entitlements.Free, l.now())
	if err := tx.SaveTenantEntitlement(ctx, tenant); err != nil {
		return err
	}

	meta := map[string]interface{}{
		"reason":        reason,
		"previous_plan": string(previous.Plan),
		"previous_tier": string(previous.Tier),
	}
	for k, v := range extra {
		if _, ok := meta[k]; !ok {
			meta[k] = v
		}
	}
	if err := l.audit(tx).Record(ctx, tenant.ID, AuditDowngradedToFree, actor, meta); err != nil {
		return err
	}

	ac.invalidate(tenant.ID)
	ac.notify(Notice{Kind: NoticeDowngraded, TenantID: tenant.ID, Email: tenant.BillingEmail, Reason: reason})
	ac.onCommit(func() { metrics.ObserveDowngrade(reason) })
	log.Infof("[Billing] Tenant %d downgraded to free (%s)", tenant.ID, reason)
	return nil
}

// ExpireManualSubscriptions downgrades tenants whose manually approved period
// has lapsed. Each subscription is handled in its own transaction so one
// failure does not block the rest of the batch.
func (l *Ledger) ExpireManualSubscriptions(ctx context.Context) (int, error) {
	now := l.now()
	subs, err := l.repo.ListExpiredManualSubscriptions(ctx, now, l.cfg.SweepBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, candidate := range subs {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		done := false
		err := l.inTx(ctx, func(tx Repository, ac *afterCommit) error {
			tenant, err := tx.LockTenant(ctx, candidate.TenantID)
			if err != nil {
				return err
			}
			sub, err := tx.FindSubscriptionByProviderID(ctx, models.BillingProviderManual, candidate.ProviderSubscriptionID, true)
			if errors.Is(err, ErrSubscriptionNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			// Renewed or replaced while we were listing.
			if sub.TenantID != tenant.ID || sub.CurrentPeriodEnd == nil || !sub.CurrentPeriodEnd.Before(now) || !isEntitlingStatus(sub.Status) {
				return nil
			}

			prevStatus := sub.Status
			sub.Status = models.BillingStatusCanceled
			sub.CanceledAt = &now
			if err := tx.SaveSubscription(ctx, sub); err != nil {
				return err
			}
			meta := map[string]interface{}{
				"subscription_id":          sub.ID,
				"external_subscription_id": sub.ProviderSubscriptionID,
				"status":                   sub.Status,
				"previous_status":          prevStatus,
				"period_end":               sub.CurrentPeriodEnd.UTC().Format(time.RFC3339),
			}
			if err := l.audit(tx).Record(ctx, tenant.ID, AuditSubscriptionUpdated, nil, meta); err != nil {
				return err
			}
			if err := l.downgradeToFree(ctx, tx, ac, tenant, ReasonManualPeriodLapsed, nil, meta); err != nil {
				return err
			}
			done = true
			return nil
		})
		if err != nil {
			log.Errorf("[Billing] Failed to expire manual subscription %d for tenant %d: %v", candidate.ID, candidate.TenantID, err)
			continue
		}
		if done {
			expired++
		}
	}
	return expired, nil
}

func (d SubscriptionDescriptor) validate() error {
	switch {
	case d.Provider != nil && d.Manual != nil, d.Provider == nil && d.Manual == nil:
		return withDetail(ErrInvalidEvent, "subscription descriptor must be provider-managed or manually-managed")
	case d.Provider != nil && d.Provider.ExternalSubscriptionID == "":
		return withDetail(ErrInvalidEvent, "external subscription id is required")
	case d.Manual != nil && (d.Manual.PaymentID == 0 || !d.Manual.PeriodEnd.After(d.Manual.PeriodStart)):
		return withDetail(ErrInvalidEvent, "manual subscription needs a payment and a positive period")
	}
	return nil
}

func (d SubscriptionDescriptor) key() (string, string) {
	if d.Manual != nil {
		return models.BillingProviderManual, manualSubscriptionID(d.Manual.PaymentID)
	}
	return normalizeProvider(d.Provider.Provider), d.Provider.ExternalSubscriptionID
}

func (d SubscriptionDescriptor) applyTo(sub *models.BillingSubscription) {
	sub.Provider, sub.ProviderSubscriptionID = d.key()
	if d.Manual != nil {
		paymentID := d.Manual.PaymentID
		start, end := d.Manual.PeriodStart, d.Manual.PeriodEnd
		sub.ProviderCustomerID = ""
		sub.ManualPaymentID = &paymentID
		sub.Status = models.BillingStatusActive
		sub.CurrentPeriodStart = &start
		sub.CurrentPeriodEnd = &end
		sub.CancelAtPeriodEnd = false
		sub.CanceledAt = nil
		return
	}
	p := d.Provider
	sub.ProviderCustomerID = p.ExternalCustomerID
	sub.ManualPaymentID = nil
	sub.Status = normalizeStatus(p.Status)
	sub.CurrentPeriodStart = p.CurrentPeriodStart
	sub.CurrentPeriodEnd = p.CurrentPeriodEnd
	sub.CancelAtPeriodEnd = p.CancelAtPeriodEnd
	sub.CanceledAt = p.CanceledAt
}

func (p *ProviderManaged) changes() SubscriptionChanges {
	status := normalizeStatus(p.Status)
	cancel := p.CancelAtPeriodEnd
	c := SubscriptionChanges{
		Status:             &status,
		CurrentPeriodStart: p.CurrentPeriodStart,
		CurrentPeriodEnd:   p.CurrentPeriodEnd,
		CancelAtPeriodEnd:  &cancel,
		CanceledAt:         p.CanceledAt,
	}
	if p.ExternalCustomerID != "" {
		customer := p.ExternalCustomerID
		c.CustomerID = &customer
	}
	return c
}

func (c SubscriptionChanges) applyTo(sub *models.BillingSubscription) {
	if c.Status != nil {
		sub.Status = normalizeStatus(*c.Status)
	}
	if c.CustomerID != nil {
		sub.ProviderCustomerID = *c.CustomerID
	}
	if c.CurrentPeriodStart != nil {
		sub.CurrentPeriodStart = c.CurrentPeriodStart
	}
	if c.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = c.CurrentPeriodEnd
	}
	if c.CancelAtPeriodEnd != nil {
		sub.CancelAtPeriodEnd = *c.CancelAtPeriodEnd
	}
	if c.CanceledAt != nil {
		sub.CanceledAt = c.CanceledAt
	}
}
