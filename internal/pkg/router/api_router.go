package router

import (
	apiv1 "github.com/Shah039zaib/b2automate/internal/api/v1"
	"github.com/Shah039zaib/b2automate/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// Internal callers are identified before the limiter so it can skip them.
	api := app.Group("/api",
		middleware.DetectInternalCaller(h.deps.InternalToken),
		newAPILimiter(h.deps.LimiterStorage, h.deps.InternalToken),
	)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	v1.Use("/billing/events", middleware.RequireEventSignature(h.deps.InternalToken))
	v1.Use("/manual-payments", middleware.RequireReviewerOrInternal)
	v1.Use("/tenants", middleware.RequireReviewerOrInternal)
	v1.Use("/plans", middleware.RequireReviewerOrInternal)

	// Decisions need a named reviewer; usage is charged by the dispatcher only.
	v1.Post("/manual-payments/:id/approve", middleware.RequireReviewer)
	v1.Post("/manual-payments/:id/reject", middleware.RequireReviewer)
	v1.Post("/tenants/:id/usage", middleware.RequireInternalToken(h.deps.InternalToken))

	apiServer := apiv1.NewAPIServer(h.deps.Billing)
	apiv1.RegisterHandlers(v1, apiServer)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
