package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Shah039zaib/b2automate/internal/pkg/middleware"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Apply reviewer context middleware globally as first middleware
	app.Use(middleware.ReviewerContextMiddleware)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	// prometheus metrics
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
