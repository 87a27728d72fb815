package utils

import (
	"net/http"

	"github.com/bidhouse/server/backend/models"
	"github.com/gofiber/fiber/v2"
)

// UserIDKey is the Locals key holding the caller's account id.
const UserIDKey = "user_id"

// SendJSON sends a JSON response using Fiber
func SendJSON(c *fiber.Ctx, statusCode int, data interface{}) error {
	return c.Status(statusCode).JSON(data)
}

// SendSuccess sends a successful JSON response
func SendSuccess(c *fiber.Ctx, data interface{}, message string) error {
	response := models.NewSuccessResponse(data, message)
	return SendJSON(c, http.StatusOK, response)
}

// SendCreated sends a created resource JSON response
func SendCreated(c *fiber.Ctx, data interface{}, message string) error {
	response := models.NewSuccessResponse(data, message)
	return SendJSON(c, http.StatusCreated, response)
}

// SendError sends an error JSON response
func SendError(c *fiber.Ctx, statusCode int, code, message string, details map[string]string) error {
	response := models.NewErrorResponse(code, message, details)
	return SendJSON(c, statusCode, response)
}

// SendBadRequest sends a bad request error response
func SendBadRequest(c *fiber.Ctx, message string, details map[string]string) error {
	return SendError(c, http.StatusBadRequest, "BAD_REQUEST", message, details)
}

// SendUnauthorized sends an unauthorized error response
func SendUnauthorized(c *fiber.Ctx, message string) error {
	return SendError(c, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

// SendForbidden sends a forbidden error response
func SendForbidden(c *fiber.Ctx, message string) error {
	return SendError(c, http.StatusForbidden, "FORBIDDEN", message, nil)
}

// SendNotFound sends a not found error response
func SendNotFound(c *fiber.Ctx, message string) error {
	return SendError(c, http.StatusNotFound, "NOT_FOUND", message, nil)
}

// SendConflict sends a conflict error response
func SendConflict(c *fiber.Ctx, code, message string) error {
	return SendError(c, http.StatusConflict, code, message, nil)
}

// SendUnprocessableEntity sends a failed-precondition response
func SendUnprocessableEntity(c *fiber.Ctx, code, message string, details map[string]string) error {
	return SendError(c, http.StatusUnprocessableEntity, code, message, details)
}

// SendTooManyRequests sends a rate limit response
func SendTooManyRequests(c *fiber.Ctx) error {
	return SendError(c, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED",
		"Too many requests. Please try again later.", nil)
}

// SendInternalServerError sends an internal server error response
func SendInternalServerError(c *fiber.Ctx, message string) error {
	return SendError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", message, nil)
}

// CurrentUserID returns the caller set by the RequireUser middleware
func CurrentUserID(c *fiber.Ctx) (int64, bool) {
	id, ok := c.Locals(UserIDKey).(int64)
	return id, ok && id > 0
}

// GetIPAddress extracts the client IP address
func GetIPAddress(c *fiber.Ctx) string {
	// Check X-Forwarded-For header first
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	// Check X-Real-IP header
	if xri := c.Get("X-Real-IP"); xri != "" {
		return xri
	}
	// Fallback to connection remote address
	return c.IP()
}

// GetUserAgent extracts the user agent
func GetUserAgent(c *fiber.Ctx) string {
	return c.Get("User-Agent")
}
