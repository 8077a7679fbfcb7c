package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/biximilien/Radiant-Sands/pkg/appcontext"
)

const (
	// HeaderOrganizationID is the header key for the acting organization
	HeaderOrganizationID = "X-Organization-ID"
	// HeaderUserID is the header key for user ID
	HeaderUserID = "X-User-ID"
	// HeaderAdmin is set by the auth proxy for operators with full access
	HeaderAdmin = "X-Admin"
)

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			// get request id from header
			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			organizationID := req.Header.Get(HeaderOrganizationID)
			userID := req.Header.Get(HeaderUserID)
			admin := req.Header.Get(HeaderAdmin) == "true"

			ctx := req.Context()
			ctx = appcontext.SetRequestID(ctx, requestID)
			ctx = appcontext.SetMethod(ctx, req.Method)
			ctx = appcontext.SetRoute(ctx, req.URL.Path)
			ctx = appcontext.SetRemoteIP(ctx, c.RealIP())
			ctx = appcontext.SetReferer(ctx, req.Referer())
			ctx = appcontext.SetOrganizationID(ctx, organizationID)
			ctx = appcontext.SetUserID(ctx, userID)
			ctx = appcontext.SetAdmin(ctx, admin)

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
