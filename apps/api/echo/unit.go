package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/akela-hq/akela/core/unit"
	"github.com/akela-hq/akela/core/user"
)

type unitApi struct {
	svc      unit.Service
	userSvc  user.Service
	validate *validator.Validate
}

func registerUnitAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := unitApi{
		svc:      opts.UnitSvc,
		userSvc:  opts.UserSvc,
		validate: opts.Validate,
	}

	ug := g.Group("/units", jwt)
	ug.POST("", api.create)
	ug.GET("", api.queryMine)
	ug.GET("/roles", api.queryRoles)

	dg := ug.Group("/:unitID")
	dg.GET("", api.retrieve, unitScopeMiddleware(unit.PermViewUnit))
	dg.PUT("", api.update, unitScopeMiddleware(unit.PermManageUnit))

	mg := dg.Group("/memberships")
	mg.GET("", api.queryMemberships, unitScopeMiddleware(unit.PermViewUnit))
	mg.PUT("", api.setMembership, unitScopeMiddleware(unit.PermManageUnit))
	mg.DELETE("/:userID", api.removeMembership, unitScopeMiddleware(unit.PermManageUnit))
}

// Handlers

// create sets the calling user up as the unit's head leader.
func (api *unitApi) create(ctx echo.Context) error {
	var data unit.NewUnit
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUnit")
	}
	rctx := ctx.Request().Context()
	if err := data.Validate(rctx, api.validate, api.svc); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	un, err := api.svc.Create(rctx, data, ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "creating unit")
	}
	return ctx.JSON(http.StatusCreated, un)
}

func (api *unitApi) queryMine(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	units, err := api.svc.QueryForUser(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying units")
	}
	if units == nil {
		units = []unit.Unit{}
	}
	return ctx.JSON(http.StatusOK, units)
}

func (api *unitApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, unit.Roles)
}

func (api *unitApi) retrieve(ctx echo.Context) error {
	un, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("unitID"))
	if err != nil {
		return errors.Wrap(err, "finding unit by ID")
	}
	return ctx.JSON(http.StatusOK, un)
}

func (api *unitApi) update(ctx echo.Context) error {
	rctx := ctx.Request().Context()
	un, err := api.svc.GetByID(rctx, ctx.Param("unitID"))
	if err != nil {
		return errors.Wrap(err, "finding unit by ID")
	}

	var data unit.UpdateUnit
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUnit")
	}
	if err := data.Validate(un, api.validate); err != nil {
		return err
	}

	un, err = api.svc.Update(rctx, un.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating unit")
	}
	return ctx.JSON(http.StatusOK, un)
}

func (api *unitApi) queryMemberships(ctx echo.Context) error {
	mships, err := api.svc.Memberships(ctx.Request().Context(), ctx.Param("unitID"))
	if err != nil {
		return errors.Wrap(err, "querying memberships")
	}
	if mships == nil {
		mships = []unit.Membership{}
	}
	return ctx.JSON(http.StatusOK, mships)
}

func (api *unitApi) setMembership(ctx echo.Context) error {
	var data unit.NewMembership
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMembership")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	m, err := api.svc.SetMembership(ctx.Request().Context(), ctx.Param("unitID"), data)
	if err != nil {
		return errors.Wrap(err, "setting membership")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *unitApi) removeMembership(ctx echo.Context) error {
	if err := api.svc.RemoveMembership(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("userID")); err != nil {
		return errors.Wrap(err, "removing membership")
	}
	return ctx.NoContent(http.StatusNoContent)
}
