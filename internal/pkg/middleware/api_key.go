package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/Shah039zaib/b2automate/internal/pkg/usercontext"
)

// HeaderInternalToken carries the shared secret of internal callers
// (the AI response dispatcher and the payment edge).
const HeaderInternalToken = "X-Internal-Token"

// DetectInternalCaller marks requests carrying a valid internal token. A
// forwarded reviewer id is only kept when the gateway's token comes with it.
// It never rejects; pair it with RequireReviewer or RequireReviewerOrInternal.
func DetectInternalCaller(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rc := usercontext.GetReviewerContext(c)
		if matchesInternalToken(extractInternalToken(c), token) {
			rc.IsInternal = true
		} else if rc.IsReviewer {
			log.Warnf("[Auth] Ignoring reviewer id %q without internal token from %s", rc.ReviewerID, c.IP())
			rc.ReviewerID = ""
			rc.IsReviewer = false
		}
		usercontext.SetReviewerContext(c, rc)
		return c.Next()
	}
}

// RequireInternalToken authenticates requests from internal callers.
func RequireInternalToken(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if strings.TrimSpace(token) == "" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "unavailable", "message": "Internal API is not configured"})
		}
		presented := extractInternalToken(c)
		if presented == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing internal token"})
		}
		if !matchesInternalToken(presented, token) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid internal token"})
		}

		rc := usercontext.GetReviewerContext(c)
		rc.IsInternal = true
		usercontext.SetReviewerContext(c, rc)
		return c.Next()
	}
}

func matchesInternalToken(presented, expected string) bool {
	expected = strings.TrimSpace(expected)
	if presented == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}

func extractInternalToken(c *fiber.Ctx) string {
	token := strings.TrimSpace(c.Get(HeaderInternalToken))
	if token != "" {
		return token
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
