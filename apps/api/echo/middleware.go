package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/akela-hq/akela/core/unit"
)

var contextUnitRoleKey = "unitRole"

// superuserMiddleware restricts a route to superusers.
func superuserMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsSuperuser {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// unitScopeMiddleware restricts a route under /units/:unitID to users whose
// role in that unit grants perm. Superusers pass with the head leader role.
// Nonmembers get a 404 so unit IDs are not probeable.
func unitScopeMiddleware(perm string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}

			unitID := ctx.Param("unitID")
			if claims.IsSuperuser {
				ctx.Set(contextUnitRoleKey, unit.RoleLeaderHead)
				return next(ctx)
			}

			role, ok := claims.Units[unitID]
			if !ok {
				return errHttpNotFound
			}
			if !unit.RoleHasPerm(role, perm) {
				return errHttpForbidden
			}
			ctx.Set(contextUnitRoleKey, role)
			return next(ctx)
		}
	}
}

func getContextUnitRole(ctx echo.Context) string {
	if role, ok := ctx.Get(contextUnitRoleKey).(string); ok {
		return role
	}
	return ""
}
