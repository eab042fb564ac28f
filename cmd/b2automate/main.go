package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/Shah039zaib/b2automate/app/controllers"
	"github.com/Shah039zaib/b2automate/app/repository"
	"github.com/Shah039zaib/b2automate/internal/pkg/billing"
	"github.com/Shah039zaib/b2automate/internal/pkg/cache"
	"github.com/Shah039zaib/b2automate/internal/pkg/database"
	"github.com/Shah039zaib/b2automate/internal/pkg/env"
	"github.com/Shah039zaib/b2automate/internal/pkg/jobqueue"
	"github.com/Shah039zaib/b2automate/internal/pkg/mail"
	"github.com/Shah039zaib/b2automate/internal/pkg/proofstore"
	"github.com/Shah039zaib/b2automate/internal/pkg/router"
)

func main() {
	app, jobs := NewApplication()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatalf("[Server] %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[Server] Shutting down")
	jobs.Stop()
	if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
		log.Errorf("[Server] Shutdown failed: %v", err)
	}
}

func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitializeFactory(db)
	cfg := billing.LoadConfig()
	billingRepo := billing.NewRepository(db)

	entitlementCache := cache.NewEntitlementCache(cache.GetClient(), env.GetEnvDuration("ENTITLEMENT_CACHE_TTL", 5*time.Minute))
	ledger := billing.NewLedger(billingRepo, cfg).
		WithCache(entitlementCache).
		WithNotifier(mail.NewNotifier(mail.LoadConfig()))
	reconciler := billing.NewReconciler(ledger)
	manual := billing.NewManualPayments(ledger, newProofVerifier())
	usage := billing.NewUsageCounter(billingRepo)

	jobs := jobqueue.NewManager(jobqueue.BillingTasks(ledger, reconciler, cfg)...)
	if env.GetEnvBool("JOBS_ENABLED", true) {
		jobs.Start()
	}

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/b2automate to project root
		"../../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); err == nil {
			basePath = path
			break
		}
	}

	app := fiber.New(fiber.Config{
		AppName:   "b2automate",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	if basePath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: basePath + "public/docs/v1/openapi.yml",
			Path:     "v1",
		}))
	} else {
		log.Warn("[Server] OpenAPI document not found, /docs/api/v1 disabled")
	}

	// ROUTER
	billingController := controllers.NewBillingController(reconciler, manual, usage, repository.GetGlobalRepositories(), entitlementCache)
	router.InstallRouter(app, router.Dependencies{
		Billing:        billingController,
		InternalToken:  cfg.InternalToken,
		LimiterStorage: router.NewLimiterStorage(),
	})

	return app, jobs
}

// newProofVerifier checks proofs against the S3 bucket when configured and
// falls back to accepting any non-empty reference.
func newProofVerifier() billing.ProofVerifier {
	cfg, err := proofstore.LoadConfig()
	if err != nil {
		log.Fatalf("[ProofStore] %v", err)
	}
	if !cfg.IsEnabled() {
		return billing.NonEmptyProof{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := proofstore.NewClient(ctx, cfg)
	if err != nil {
		log.Fatalf("[ProofStore] %v", err)
	}
	return client
}
