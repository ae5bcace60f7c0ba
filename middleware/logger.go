package middleware

import (
	"errors"
	"time"

	"community-points/logging"
	"community-points/metrics"

	"github.com/gofiber/fiber/v2"
)

// RequestLogger logs one line per request and records the latency histogram.
// It expects requestid to have run first.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}

		route := c.Route().Path
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTP(c.Method(), route, status, elapsed)

		evt := logging.Info()
		switch {
		case status >= 500:
			evt = logging.Error().Err(err)
		case status >= 400:
			evt = logging.Warn()
		}
		evt.
			Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("latency", elapsed).
			Msg("[HTTP] request")
		return err
	}
}
