package utils

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// ParseID reads a positive integer route parameter.
func ParseID(c *fiber.Ctx, param string) (int64, error) {
	raw := c.Params(param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", param, raw)
	}
	return id, nil
}

// ParseUserID validates an X-User-ID header value.
func ParseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return id, nil
}

// QueryLimit reads ?limit=, leaving clamping to the engine.
func QueryLimit(c *fiber.Ctx) int {
	return c.QueryInt("limit", 0)
}
