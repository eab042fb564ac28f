package controllers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/Shah039zaib/b2automate/app/models"
	"github.com/Shah039zaib/b2automate/app/repository"
	"github.com/Shah039zaib/b2automate/internal/pkg/billing"
	"github.com/Shah039zaib/b2automate/internal/pkg/entitlements"
	"github.com/Shah039zaib/b2automate/internal/pkg/usercontext"
)

// EventHandler consumes verified provider events.
type EventHandler interface {
	Handle(ctx context.Context, ev billing.ProviderEvent) (billing.Outcome, error)
}

// ManualReviewer is the manual payment workflow.
type ManualReviewer interface {
	Submit(ctx context.Context, in billing.ManualPaymentSubmission) (*models.ManualPayment, error)
	Get(ctx context.Context, id uint) (*models.ManualPayment, error)
	Approve(ctx context.Context, id uint, reviewerID string, note *string) (*models.ManualPayment, error)
	Reject(ctx context.Context, id uint, reviewerID string, note *string) (*models.ManualPayment, error)
}

// UsageConsumer charges AI requests against tenant caps.
type UsageConsumer interface {
	Consume(ctx context.Context, tenantID uint) (*models.Tenant, error)
}

// EntitlementStore is the read-through snapshot cache.
type EntitlementStore interface {
	Get(ctx context.Context, tenantID uint, dst interface{}) (bool, error)
	Set(ctx context.Context, tenantID uint, v interface{}) error
}

// BillingController serves the billing and entitlement API.
type BillingController struct {
	events  EventHandler
	manual  ManualReviewer
	usage   UsageConsumer
	plans   repository.PlanRepository
	tenants repository.TenantRepository
	cache   EntitlementStore
}

// NewBillingController wires the controller. cache may be nil.
func NewBillingController(events EventHandler, manual ManualReviewer, usage UsageConsumer, repos *repository.Repositories, cache EntitlementStore) *BillingController {
	return &BillingController{
		events:  events,
		manual:  manual,
		usage:   usage,
		plans:   repos.Plan,
		tenants: repos.Tenant,
		cache:   cache,
	}
}

// eventRequest is a forwarded provider event. The edge may send the
// provider price id instead of a plan id.
type eventRequest struct {
	billing.ProviderEvent
	PriceRef string `json:"price_ref,omitempty"`
}

type reviewRequest struct {
	Note *string `json:"note"`
}

// EntitlementSnapshot is the cached view of a tenant's plan and limits.
// Usage counters are not part of it.
type EntitlementSnapshot struct {
	TenantID uint `json:"tenant_id"`
	entitlements.State
}

// HandleProviderEvent feeds a signed provider event into the reconciler.
func (bc *BillingController) HandleProviderEvent(c *fiber.Ctx) error {
	var req eventRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid event payload")
	}

	ev := req.ProviderEvent
	if ev.PlanID == 0 && strings.TrimSpace(req.PriceRef) != "" {
		plan, err := bc.plans.GetByProviderPriceRef(c.UserContext(), req.PriceRef)
		switch {
		case err == nil:
			ev.PlanID = plan.ID
		case errors.Is(err, repository.ErrNotFound):
			// Left unresolved; create events defer until the catalog knows the price.
			log.Warnf("[Billing] Event %s references unknown price %q", ev.ID, req.PriceRef)
		default:
			return respondError(c, err)
		}
	}

	outcome, err := bc.events.Handle(c.UserContext(), ev)
	if outcome == billing.OutcomeDeferred {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"ok":      true,
			"outcome": outcome,
			"reason":  billing.CodeOf(err),
		})
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "outcome": outcome})
}

// HandleSubmitManualPayment records an offline payment for review.
func (bc *BillingController) HandleSubmitManualPayment(c *fiber.Ctx) error {
	var in billing.ManualPaymentSubmission
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid submission payload")
	}
	payment, err := bc.manual.Submit(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(manualPaymentJSON(payment))
}

// HandleGetManualPayment returns one payment.
func (bc *BillingController) HandleGetManualPayment(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid payment id")
	}
	payment, err := bc.manual.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(manualPaymentJSON(payment))
}

// HandleApproveManualPayment approves a pending payment as the calling reviewer.
func (bc *BillingController) HandleApproveManualPayment(c *fiber.Ctx) error {
	return bc.review(c, bc.manual.Approve)
}

// HandleRejectManualPayment rejects a pending payment as the calling reviewer.
func (bc *BillingController) HandleRejectManualPayment(c *fiber.Ctx) error {
	return bc.review(c, bc.manual.Reject)
}

func (bc *BillingController) review(c *fiber.Ctx, decide func(context.Context, uint, string, *string) (*models.ManualPayment, error)) error {
	reviewerID := usercontext.GetReviewerID(c)
	if reviewerID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "reviewer identity required"})
	}
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid payment id")
	}
	var req reviewRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid review payload")
		}
	}
	if req.Note != nil && strings.TrimSpace(*req.Note) == "" {
		req.Note = nil
	}

	payment, err := decide(c.UserContext(), id, reviewerID, req.Note)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(manualPaymentJSON(payment))
}

// HandleGetEntitlement returns the tenant's entitlement snapshot, served from
// cache when possible.
func (bc *BillingController) HandleGetEntitlement(c *fiber.Ctx) error {
	tenantID, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid tenant id")
	}
	ctx := c.UserContext()

	var snap EntitlementSnapshot
	if bc.cache != nil {
		hit, err := bc.cache.Get(ctx, tenantID, &snap)
		if err != nil {
			log.Warnf("[Cache] Entitlement read for tenant %d failed: %v", tenantID, err)
		}
		if hit {
			c.Set("X-Cache", "HIT")
			return c.JSON(snap)
		}
	}

	tenant, err := bc.tenants.GetByID(ctx, tenantID)
	if errors.Is(err, repository.ErrNotFound) {
		return respondError(c, billing.ErrTenantNotFound)
	}
	if err != nil {
		return respondError(c, err)
	}
	snap = EntitlementSnapshot{TenantID: tenant.ID, State: entitlements.Snapshot(tenant)}
	if bc.cache != nil {
		if err := bc.cache.Set(ctx, tenantID, snap); err != nil {
			log.Warnf("[Cache] Entitlement write for tenant %d failed: %v", tenantID, err)
		}
	}
	c.Set("X-Cache", "MISS")
	return c.JSON(snap)
}

// HandleConsumeUsage charges one AI request to the tenant. The route is
// restricted to internal callers by the router.
func (bc *BillingController) HandleConsumeUsage(c *fiber.Ctx) error {
	tenantID, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid tenant id")
	}

	tenant, err := bc.usage.Consume(c.UserContext(), tenantID)
	if errors.Is(err, billing.ErrUsageLimitReached) && tenant != nil {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":   billing.CodeOf(err),
			"message": err.Error(),
			"usage":   usageJSON(tenant),
		})
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "usage": usageJSON(tenant)})
}

// HandleListPlans lists the plans open for new subscriptions.
func (bc *BillingController) HandleListPlans(c *fiber.Ctx) error {
	plans, err := bc.plans.ListActive(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	out := make([]fiber.Map, 0, len(plans))
	for _, p := range plans {
		out = append(out, fiber.Map{
			"id":                 p.ID,
			"name":               p.Name,
			"provider_price_ref": p.ProviderPriceRef,
			"ai_plan":            p.AIPlan,
			"ai_tier":            p.AITier,
			"ai_daily_limit":     p.AIDailyLimit,
			"ai_monthly_limit":   p.AIMonthlyLimit,
			"price_amount":       p.PriceAmount,
			"currency":           p.Currency,
		})
	}
	return c.JSON(fiber.Map{"plans": out})
}

func manualPaymentJSON(p *models.ManualPayment) fiber.Map {
	return fiber.Map{
		"id":              p.ID,
		"reference":       p.Reference,
		"tenant_id":       p.TenantID,
		"plan_id":         p.PlanID,
		"method":          p.Method,
		"sender_name":     p.SenderName,
		"sender_account":  p.SenderAccount,
		"transaction_ref": p.TransactionRef,
		"proof_reference": p.ProofReference,
		"coupon_code":     p.CouponCode,
		"original_price":  p.OriginalPrice,
		"final_price":     p.FinalPrice,
		"status":          p.Status,
		"reviewed_by":     p.ReviewedBy,
		"review_note":     p.ReviewNote,
		"reviewed_at":     formatTimePtr(p.ReviewedAt),
		"created_at":      formatTimePtr(&p.CreatedAt),
	}
}

func usageJSON(t *models.Tenant) fiber.Map {
	return fiber.Map{
		"tenant_id":        t.ID,
		"ai_plan":          t.AIPlan,
		"ai_tier":          t.AITier,
		"ai_daily_usage":   t.AIDailyUsage,
		"ai_daily_limit":   t.AIDailyLimit,
		"ai_monthly_usage": t.AIMonthlyUsage,
		"ai_monthly_limit": t.AIMonthlyLimit,
	}
}
