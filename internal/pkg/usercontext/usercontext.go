package usercontext

import "github.com/gofiber/fiber/v2"

// ReviewerContext represents the caller identity for a request
type ReviewerContext struct {
	ReviewerID string `json:"reviewer_id"`
	IsReviewer bool   `json:"is_reviewer"`
	IsInternal bool   `json:"is_internal"`
}

// GetReviewerContext retrieves the reviewer context from fiber context
// Returns an anonymous context if none is set
func GetReviewerContext(c *fiber.Ctx) ReviewerContext {
	if ctx, ok := c.Locals(KeyReviewerContext).(ReviewerContext); ok {
		return ctx
	}
	return ReviewerContext{}
}

// SetReviewerContext stores rc on the request
func SetReviewerContext(c *fiber.Ctx, rc ReviewerContext) {
	c.Locals(KeyReviewerContext, rc)
	c.Locals(KeyReviewerID, rc.ReviewerID)
	c.Locals(KeyInternalCaller, rc.IsInternal)
}

// IsReviewer checks if an operator identity is attached
func IsReviewer(c *fiber.Ctx) bool {
	return GetReviewerContext(c).IsReviewer
}

// IsInternal checks if the request came from a trusted internal caller
func IsInternal(c *fiber.Ctx) bool {
	return GetReviewerContext(c).IsInternal
}

// GetReviewerID returns the operator id, or empty string for anonymous requests
func GetReviewerID(c *fiber.Ctx) string {
	return GetReviewerContext(c).ReviewerID
}
