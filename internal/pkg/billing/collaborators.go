package billing

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// NoticeKind identifies a billing notification template.
type NoticeKind string

const (
	NoticePaymentSucceeded NoticeKind = "payment_succeeded"
	NoticePaymentFailed    NoticeKind = "payment_failed"
	NoticeManualApproved   NoticeKind = "manual_payment_approved"
	NoticeManualRejected   NoticeKind = "manual_payment_rejected"
	NoticeDowngraded       NoticeKind = "downgraded_to_free"
)

// Notice is a best-effort message to a tenant's billing contact.
type Notice struct {
	Kind     NoticeKind
	TenantID uint
	Email    string
	PlanName string
	Reason   string
}

// Notifier delivers notices. Implementations may be disabled; errors are
// logged and never fail the operation that produced the notice.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// NopNotifier drops every notice.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notice) error { return nil }

// EntitlementInvalidator evicts cached entitlement snapshots after commit.
type EntitlementInvalidator interface {
	InvalidateEntitlement(ctx context.Context, tenantID uint) error
}

type nopInvalidator struct{}

func (nopInvalidator) InvalidateEntitlement(context.Context, uint) error { return nil }

// ProofVerifier checks that a proof-of-payment reference points at something
// that exists (an uploaded screenshot, a bank reference).
type ProofVerifier interface {
	Exists(ctx context.Context, ref string) (bool, error)
}

// NonEmptyProof accepts any non-blank reference. Used when no proof store is
// configured.
type NonEmptyProof struct{}

func (NonEmptyProof) Exists(_ context.Context, ref string) (bool, error) {
	return strings.TrimSpace(ref) != "", nil
}

// afterCommit collects side effects that may only run once the transaction
// that caused them has committed.
type afterCommit struct {
	tenants []uint
	notices []Notice
	hooks   []func()
}

func (a *afterCommit) onCommit(fn func()) {
	a.hooks = append(a.hooks, fn)
}

func (a *afterCommit) invalidate(tenantID uint) {
	for _, id := range a.tenants {
		if id == tenantID {
			return
		}
	}
	a.tenants = append(a.tenants, tenantID)
}

func (a *afterCommit) notify(n Notice) {
	if strings.TrimSpace(n.Email) == "" {
		return
	}
	a.notices = append(a.notices, n)
}

const notifyTimeout = 30 * time.Second

func (a *afterCommit) run(ctx context.Context, cache EntitlementInvalidator, notifier Notifier) {
	for _, fn := range a.hooks {
		fn()
	}
	for _, id := range a.tenants {
		if err := cache.InvalidateEntitlement(ctx, id); err != nil {
			log.Warnf("[Billing] Failed to invalidate entitlement cache for tenant %d: %v", id, err)
		}
	}
	for _, n := range a.notices {
		go func(n Notice) {
			nctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			if err := notifier.Notify(nctx, n); err != nil {
				log.Warnf("[Billing] Notification %s for tenant %d failed: %v", n.Kind, n.TenantID, err)
			}
		}(n)
	}
}
