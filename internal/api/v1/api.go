package apiv1

import (
	"github.com/gofiber/fiber/v2"
)

// Pong defines model for Pong.
type Pong struct {
	Ping string `json:"ping"`
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// (GET /ping)
	GetPing(c *fiber.Ctx) error
	// (GET /plans)
	GetPlans(c *fiber.Ctx) error
	// (POST /billing/events)
	PostBillingEvent(c *fiber.Ctx) error
	// (POST /manual-payments)
	PostManualPayment(c *fiber.Ctx) error
	// (GET /manual-payments/{id})
	GetManualPayment(c *fiber.Ctx, id uint) error
	// (POST /manual-payments/{id}/approve)
	PostManualPaymentApprove(c *fiber.Ctx, id uint) error
	// (POST /manual-payments/{id}/reject)
	PostManualPaymentReject(c *fiber.Ctx, id uint) error
	// (GET /tenants/{id}/entitlement)
	GetTenantEntitlement(c *fiber.Ctx, id uint) error
	// (POST /tenants/{id}/usage)
	PostTenantUsage(c *fiber.Ctx, id uint) error
}

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

type withID func(c *fiber.Ctx, id uint) error

func (siw *ServerInterfaceWrapper) bindID(next withID) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "bad_request",
				"message": "Invalid format for parameter id",
			})
		}
		return next(c, uint(id))
	}
}

// RegisterHandlers creates http.Handler with routing matching the OpenAPI document.
func RegisterHandlers(router fiber.Router, si ServerInterface) {
	wrapper := ServerInterfaceWrapper{Handler: si}

	router.Get("/ping", si.GetPing)
	router.Get("/plans", si.GetPlans)
	router.Post("/billing/events", si.PostBillingEvent)
	router.Post("/manual-payments", si.PostManualPayment)
	router.Get("/manual-payments/:id", wrapper.bindID(si.GetManualPayment))
	router.Post("/manual-payments/:id/approve", wrapper.bindID(si.PostManualPaymentApprove))
	router.Post("/manual-payments/:id/reject", wrapper.bindID(si.PostManualPaymentReject))
	router.Get("/tenants/:id/entitlement", wrapper.bindID(si.GetTenantEntitlement))
	router.Post("/tenants/:id/usage", wrapper.bindID(si.PostTenantUsage))
}
