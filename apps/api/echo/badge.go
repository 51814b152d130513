package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/akela-hq/akela/core/badge"
	"github.com/akela-hq/akela/core/unit"
)

type badgeApi struct {
	svc      badge.Service
	validate *validator.Validate
}

func registerBadgeAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := badgeApi{
		svc:      opts.BadgeSvc,
		validate: opts.Validate,
	}

	// the badge catalog is shared by all units; only superusers curate it
	bg := g.Group("/badges", jwt)
	bg.GET("", api.query)
	bg.POST("", api.create, superuserMiddleware())

	dg := bg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, superuserMiddleware())
	dg.DELETE("", api.destroy, superuserMiddleware())

	view := unitScopeMiddleware(unit.PermViewUnit)
	manage := unitScopeMiddleware(unit.PermManageBadges)

	ag := g.Group("/units/:unitID", jwt)
	ag.GET("/awards", api.recentAwards, view)
	ag.GET("/members/:memberID/awards", api.memberAwards, view)
	ag.PUT("/members/:memberID/awards", api.award, manage)
	ag.DELETE("/members/:memberID/awards/:badgeID", api.revoke, manage)
}

// Handlers

func (api *badgeApi) create(ctx echo.Context) error {
	var data badge.NewBadge
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBadge")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	bdg, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating badge")
	}
	return ctx.JSON(http.StatusCreated, bdg)
}

func (api *badgeApi) query(ctx echo.Context) error {
	badges, err := api.svc.Query(ctx.Request().Context(), ctx.QueryParam("section"))
	if err != nil {
		return errors.Wrap(err, "querying badges")
	}
	if badges == nil {
		badges = []badge.Badge{}
	}
	return ctx.JSON(http.StatusOK, badges)
}

func (api *badgeApi) retrieve(ctx echo.Context) error {
	bdg, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding badge by ID")
	}
	return ctx.JSON(http.StatusOK, bdg)
}

func (api *badgeApi) update(ctx echo.Context) error {
	rctx := ctx.Request().Context()
	bdg, err := api.svc.GetByID(rctx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding badge by ID")
	}

	var data badge.UpdateBadge
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateBadge")
	}
	if err := data.Validate(bdg, api.validate); err != nil {
		return err
	}

	bdg, err = api.svc.Update(rctx, bdg.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating badge")
	}
	return ctx.JSON(http.StatusOK, bdg)
}

func (api *badgeApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting badge")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Awards

func (api *badgeApi) award(ctx echo.Context) error {
	var data badge.NewAward
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAward")
	}
	data.MemberID = ctx.Param("memberID")
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	awd, err := api.svc.Award(ctx.Request().Context(), ctx.Param("unitID"), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "awarding badge")
	}
	return ctx.JSON(http.StatusOK, awd)
}

func (api *badgeApi) revoke(ctx echo.Context) error {
	err := api.svc.Revoke(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("memberID"), ctx.Param("badgeID"))
	if err != nil {
		return errors.Wrap(err, "revoking award")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *badgeApi) memberAwards(ctx echo.Context) error {
	awards, err := api.svc.MemberAwards(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("memberID"))
	if err != nil {
		return errors.Wrap(err, "querying member awards")
	}
	if awards == nil {
		awards = []badge.Award{}
	}
	return ctx.JSON(http.StatusOK, awards)
}

func (api *badgeApi) recentAwards(ctx echo.Context) error {
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))
	awards, err := api.svc.RecentAwards(ctx.Request().Context(), ctx.Param("unitID"), limit)
	if err != nil {
		return errors.Wrap(err, "querying recent awards")
	}
	if awards == nil {
		awards = []badge.Award{}
	}
	return ctx.JSON(http.StatusOK, awards)
}
