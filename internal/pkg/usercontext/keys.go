package usercontext

// Shared Locals keys used across controllers and middlewares
const (
	KeyReviewerContext = "REVIEWER_CONTEXT"
	KeyReviewerID      = "reviewer_id"
	KeyInternalCaller  = "internal_caller"
)

// HeaderReviewerID carries the operator identity set by the auth gateway.
const HeaderReviewerID = "X-Reviewer-ID"
