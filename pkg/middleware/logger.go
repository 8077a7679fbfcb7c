package middleware

import (
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/biximilien/Radiant-Sands/pkg/appcontext"
)

// Logger logs one line per request with latency and the acting identity.
// It runs after Context so the appcontext values are populated.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}

			ctx := c.Request().Context()
			elapsed := time.Since(start)

			logger.WithContext(ctx).WithFields(map[string]any{
				"request_id":      appcontext.GetRequestID(ctx),
				"organization_id": appcontext.GetOrganizationID(ctx),
				"user_id":         appcontext.GetUserID(ctx),
				"method":          req.Method,
				"uri":             req.RequestURI,
				"route":           c.Path(),
				"status":          res.Status,
				"remote_ip":       c.RealIP(),
				"user_agent":      req.UserAgent(),
				"response_time":   elapsed,
				"response_size":   strconv.FormatInt(res.Size, 10),
			}).Info("Request")

			return nil
		}
	}
}
