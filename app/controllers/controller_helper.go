package controllers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/Shah039zaib/b2automate/internal/pkg/billing"
)

// statusForError maps a billing error kind onto an HTTP status.
func statusForError(err error) int {
	switch billing.KindOf(err) {
	case billing.KindNotFound:
		return fiber.StatusNotFound
	case billing.KindConflict:
		return fiber.StatusConflict
	case billing.KindPrecondition:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err as JSON. Internal failures are logged and hidden.
func respondError(c *fiber.Ctx, err error) error {
	status := statusForError(err)
	if status == fiber.StatusInternalServerError {
		log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
		return c.Status(status).JSON(fiber.Map{"error": "internal_server_error", "message": "Request failed"})
	}
	return c.Status(status).JSON(fiber.Map{"error": billing.CodeOf(err), "message": err.Error()})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": message})
}

// idParam reads a positive numeric route parameter.
func idParam(c *fiber.Ctx, name string) (uint, bool) {
	raw := strings.TrimSpace(c.Params(name))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
