// Package http implements the Fiber API handlers.
package http

import (
	"mailsync_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// errorJSON maps an error to its HTTP status and a JSON body. AppErrors carry
// their own status; anything else is a 500.
func errorJSON(c *fiber.Ctx, err error) error {
	if appErr := apperr.AsAppError(err); appErr != nil {
		body := fiber.Map{
			"error": appErr.Message,
			"code":  appErr.Code,
		}
		if appErr.Details != nil {
			body["details"] = appErr.Details
		}
		return c.Status(appErr.Status).JSON(body)
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}

// currentUserID pulls the authenticated user ID set by the JWT middleware.
func currentUserID(c *fiber.Ctx) (string, bool) {
	userID, ok := c.Locals("user_id").(string)
	return userID, ok && userID != ""
}
