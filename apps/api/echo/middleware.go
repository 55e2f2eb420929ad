package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/murilobento/studiofisiopilates-sub000/core/user"
)

// capabilityMiddleware lets through active users whose role allows any of caps.
func capabilityMiddleware(auth *authenticator, caps ...user.Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := auth.contextUser(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}
			if len(caps) == 0 {
				return next(ctx)
			}
			for _, c := range caps {
				if usr.Can(c) {
					return next(ctx)
				}
			}
			return errHttpForbidden
		}
	}
}
