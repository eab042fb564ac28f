package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shah039zaib/b2automate/internal/pkg/billing"
	"github.com/Shah039zaib/b2automate/internal/pkg/usercontext"
)

func echoContext(c *fiber.Ctx) error {
	return c.JSON(usercontext.GetReviewerContext(c))
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (int, string) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestReviewerContextMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/", ReviewerContextMiddleware, echoContext)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(usercontext.HeaderReviewerID, "  ops-7 ")
	status, body := doRequest(t, app, req)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, `"reviewer_id":"ops-7"`)
	assert.Contains(t, body, `"is_reviewer":true`)

	status, body = doRequest(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, `"is_reviewer":false`)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(usercontext.HeaderReviewerID, strings.Repeat("x", maxReviewerIDLength+1))
	_, body = doRequest(t, app, req)
	assert.Contains(t, body, `"is_reviewer":false`)
}

func TestRequireReviewer(t *testing.T) {
	app := fiber.New()
	app.Get("/", ReviewerContextMiddleware, RequireReviewer, echoContext)

	status, _ := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, fiber.StatusUnauthorized, status)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(usercontext.HeaderReviewerID, "ops-1")
	status, _ = doRequest(t, app, req)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestRequireInternalToken(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		header     string
		auth       string
		wantStatus int
	}{
		{name: "not configured", configured: "", header: "secret", wantStatus: fiber.StatusServiceUnavailable},
		{name: "missing", configured: "secret", wantStatus: fiber.StatusUnauthorized},
		{name: "wrong", configured: "secret", header: "nope", wantStatus: fiber.StatusUnauthorized},
		{name: "header", configured: "secret", header: "secret", wantStatus: fiber.StatusOK},
		{name: "bearer", configured: "secret", auth: "Bearer secret", wantStatus: fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Post("/", RequireInternalToken(tt.configured), echoContext)

			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				req.Header.Set(HeaderInternalToken, tt.header)
			}
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			status, body := doRequest(t, app, req)
			assert.Equal(t, tt.wantStatus, status)
			if status == fiber.StatusOK {
				assert.Contains(t, body, `"is_internal":true`)
			}
		})
	}
}

func TestRequireReviewerOrInternal(t *testing.T) {
	app := fiber.New()
	app.Get("/", ReviewerContextMiddleware, DetectInternalCaller("secret"), RequireReviewerOrInternal, echoContext)

	status, _ := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, fiber.StatusUnauthorized, status)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderInternalToken, "wrong")
	status, _ = doRequest(t, app, req)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderInternalToken, "secret")
	status, body := doRequest(t, app, req)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, `"is_internal":true`)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(usercontext.HeaderReviewerID, "ops-2")
	req.Header.Set(HeaderInternalToken, "secret")
	status, _ = doRequest(t, app, req)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestDetectInternalCallerDropsUntrustedReviewer(t *testing.T) {
	app := fiber.New()
	app.Post("/approve", ReviewerContextMiddleware, DetectInternalCaller("secret"), RequireReviewer, echoContext)

	// A reviewer header alone is not enough to act as a reviewer.
	req := httptest.NewRequest(http.MethodPost, "/approve", nil)
	req.Header.Set(usercontext.HeaderReviewerID, "ops-3")
	status, _ := doRequest(t, app, req)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	req = httptest.NewRequest(http.MethodPost, "/approve", nil)
	req.Header.Set(usercontext.HeaderReviewerID, "ops-3")
	req.Header.Set(HeaderInternalToken, "wrong")
	status, _ = doRequest(t, app, req)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	req = httptest.NewRequest(http.MethodPost, "/approve", nil)
	req.Header.Set(usercontext.HeaderReviewerID, "ops-3")
	req.Header.Set("Authorization", "Bearer secret")
	status, body := doRequest(t, app, req)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, `"reviewer_id":"ops-3"`)
	assert.Contains(t, body, `"is_reviewer":true`)
	assert.Contains(t, body, `"is_internal":true`)

	// Internal callers without a reviewer id are not reviewers.
	req = httptest.NewRequest(http.MethodPost, "/approve", nil)
	req.Header.Set(HeaderInternalToken, "secret")
	status, _ = doRequest(t, app, req)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestRequireEventSignature(t *testing.T) {
	payload := `{"id":"evt_1","type":"customer.subscription.created"}`

	app := fiber.New()
	app.Post("/", RequireEventSignature("whsec"), func(c *fiber.Ctx) error {
		return c.SendString(string(c.Body()))
	})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
	req.Header.Set(HeaderEventSignature, "sha256="+billing.SignEvent([]byte(payload), "whsec"))
	status, body := doRequest(t, app, req)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, payload, body)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload+" "))
	req.Header.Set(HeaderEventSignature, billing.SignEvent([]byte(payload), "whsec"))
	status, _ = doRequest(t, app, req)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	disabled := fiber.New()
	disabled.Post("/", RequireEventSignature(""), echoContext)
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
	req.Header.Set(HeaderEventSignature, billing.SignEvent([]byte(payload), ""))
	status, _ = doRequest(t, disabled, req)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
}
