package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to the controllers to keep behavior consistent
	"github.com/Shah039zaib/b2automate/app/controllers"
)

// APIServer implements the ServerInterface
type APIServer struct {
	billing *controllers.BillingController
}

// NewAPIServer creates a new API server instance
func NewAPIServer(billing *controllers.BillingController) *APIServer {
	return &APIServer{billing: billing}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// GetPlans lists the active plan catalog.
func (s *APIServer) GetPlans(c *fiber.Ctx) error {
	return s.billing.HandleListPlans(c)
}

// PostBillingEvent ingests a signed provider event. Signature checks run in
// the router before this handler.
func (s *APIServer) PostBillingEvent(c *fiber.Ctx) error {
	return s.billing.HandleProviderEvent(c)
}

// PostManualPayment submits an offline payment for review.
func (s *APIServer) PostManualPayment(c *fiber.Ctx) error {
	return s.billing.HandleSubmitManualPayment(c)
}

// GetManualPayment returns a manual payment.
// Controller reads id from route params; wrapper already validated it.
func (s *APIServer) GetManualPayment(c *fiber.Ctx, id uint) error {
	return s.billing.HandleGetManualPayment(c)
}

// PostManualPaymentApprove approves a pending manual payment.
func (s *APIServer) PostManualPaymentApprove(c *fiber.Ctx, id uint) error {
	return s.billing.HandleApproveManualPayment(c)
}

// PostManualPaymentReject rejects a pending manual payment.
func (s *APIServer) PostManualPaymentReject(c *fiber.Ctx, id uint) error {
	return s.billing.HandleRejectManualPayment(c)
}

// GetTenantEntitlement returns the tenant's entitlement snapshot.
func (s *APIServer) GetTenantEntitlement(c *fiber.Ctx, id uint) error {
	return s.billing.HandleGetEntitlement(c)
}

// PostTenantUsage charges one AI request to the tenant.
func (s *APIServer) PostTenantUsage(c *fiber.Ctx, id uint) error {
	return s.billing.HandleConsumeUsage(c)
}
