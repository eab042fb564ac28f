package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Shah039zaib/b2automate/internal/pkg/usercontext"
)

// RequireReviewer ensures an operator identity is attached and returns JSON 401 otherwise.
func RequireReviewer(c *fiber.Ctx) error {
	if !usercontext.IsReviewer(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "reviewer identity required",
		})
	}
	return c.Next()
}

// RequireReviewerOrInternal admits operators and trusted internal callers.
func RequireReviewerOrInternal(c *fiber.Ctx) error {
	if !usercontext.IsReviewer(c) && !usercontext.IsInternal(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "reviewer identity or internal token required",
		})
	}
	return c.Next()
}
