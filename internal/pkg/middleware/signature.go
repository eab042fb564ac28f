package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/Shah039zaib/b2automate/internal/pkg/billing"
	"github.com/Shah039zaib/b2automate/internal/pkg/usercontext"
)

// HeaderEventSignature carries the hex HMAC-SHA256 of the raw event body.
const HeaderEventSignature = "X-Billing-Signature"

// RequireEventSignature rejects provider events whose body was not signed
// with secret by the payment edge.
func RequireEventSignature(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if strings.TrimSpace(secret) == "" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "unavailable", "message": "Event ingestion is not configured"})
		}
		if !billing.VerifyEventSignature(c.Body(), c.Get(HeaderEventSignature), secret) {
			log.Warnf("[Billing] rejected event with invalid signature from %s", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
		}

		rc := usercontext.GetReviewerContext(c)
		rc.IsInternal = true
		usercontext.SetReviewerContext(c, rc)
		return c.Next()
	}
}
