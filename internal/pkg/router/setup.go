package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Shah039zaib/b2automate/app/controllers"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the handlers and secrets the routes need.
type Dependencies struct {
	Billing *controllers.BillingController
	// InternalToken authenticates internal callers and keys event signatures.
	InternalToken string
	// LimiterStorage backs the API rate limiter; nil keeps counters in memory.
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// HttpRouter installs the global reviewer context first; the API routes
	// rely on it for their auth checks.
	setup(app, NewHttpRouter(), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
