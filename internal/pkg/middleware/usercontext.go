package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Shah039zaib/b2automate/internal/pkg/usercontext"
)

const maxReviewerIDLength = 191

// ReviewerContextMiddleware sets up the reviewer context for every request.
// The gateway in front of the service authenticates operators and forwards
// their id; requests without it stay anonymous. DetectInternalCaller drops the
// id again unless the gateway's internal token accompanies it.
func ReviewerContextMiddleware(c *fiber.Ctx) error {
	rc := usercontext.GetReviewerContext(c)
	id := strings.TrimSpace(c.Get(usercontext.HeaderReviewerID))
	if id != "" && len(id) <= maxReviewerIDLength {
		rc.ReviewerID = id
		rc.IsReviewer = true
	}
	usercontext.SetReviewerContext(c, rc)
	return c.Next()
}
