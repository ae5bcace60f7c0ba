package handlers

import (
	"errors"
	"strconv"

	"community-points/logging"
	"community-points/services"
	"community-points/utils"

	"github.com/gofiber/fiber/v2"
)

// respondError maps service errors to status codes. Anything unrecognised is logged
// and returned as a 500 without internals.
func respondError(c *fiber.Ctx, err error) error {
	var blocked *services.BlockedError
	if errors.As(err, &blocked) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":       "post content was blocked",
			"cause":       blocked.Result.Reason,
			"suggestions": blocked.Result.Suggestions,
		})
	}
	var invalid *utils.RequestValidationError
	if errors.As(err, &invalid) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "invalid request",
			"cause":  invalid.Error(),
			"fields": invalid.Fields,
		})
	}

	status, msg := fiber.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, utils.ErrInvalidPostURL), errors.Is(err, services.ErrQuestNotClaimable):
		status, msg = fiber.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrUserBanned),
		errors.Is(err, services.ErrAuthorMismatch),
		errors.Is(err, services.ErrNotPostOwner):
		status, msg = fiber.StatusForbidden, err.Error()
	case errors.Is(err, services.ErrPostNotFound),
		errors.Is(err, services.ErrPostMissing),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrQuestNotFound):
		status, msg = fiber.StatusNotFound, err.Error()
	case errors.Is(err, services.ErrAlreadySubmitted),
		errors.Is(err, services.ErrQuestAlreadyClaimed),
		errors.Is(err, services.ErrQuestExists),
		errors.Is(err, services.ErrInvalidPostState),
		errors.Is(err, services.ErrInsufficientPoints):
		status, msg = fiber.StatusConflict, err.Error()
	case errors.Is(err, services.ErrEngagementUnavailable), errors.Is(err, services.ErrRateLimited):
		// the chain's per-source errors stay in the logs
		logging.Warn().Err(err).Str("path", c.Path()).Msg("[HTTP] upstream unavailable")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "could not reach the platform, try again later",
			"cause": services.ErrEngagementUnavailable.Error(),
		})
	case errors.Is(err, services.ErrSnapshotDisabled):
		status, msg = fiber.StatusNotImplemented, err.Error()
	default:
		logging.Error().Err(err).Str("path", c.Path()).Msg("[HTTP] request failed")
	}

	if status == fiber.StatusInternalServerError {
		return c.Status(status).JSON(fiber.Map{"error": "request failed", "cause": msg})
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "invalid request body",
	})
}

func queryInt(c *fiber.Ctx, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
