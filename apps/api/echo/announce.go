package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/akela-hq/akela/core/announce"
	"github.com/akela-hq/akela/core/unit"
)

type announceApi struct {
	svc      announce.Service
	validate *validator.Validate
}

func registerAnnounceAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := announceApi{
		svc:      opts.AnnounceSvc,
		validate: opts.Validate,
	}

	send := unitScopeMiddleware(unit.PermSendAnnouncements)

	ag := g.Group("/units/:unitID/announcements", jwt, send)
	ag.POST("", api.create)
	ag.GET("", api.query)

	dg := ag.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.POST("/publish", api.publish)
	dg.POST("/cancel", api.cancel)
	dg.GET("/deliveries", api.deliveries)
}

// Handlers

func (api *announceApi) create(ctx echo.Context) error {
	var data announce.NewAnnouncement
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAnnouncement")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	ann, err := api.svc.Create(ctx.Request().Context(), ctx.Param("unitID"), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "creating announcement")
	}
	return ctx.JSON(http.StatusCreated, ann)
}

func (api *announceApi) query(ctx echo.Context) error {
	filter := new(announce.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []announce.Announcement{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	anns, err := api.svc.Query(ctx.Request().Context(), ctx.Param("unitID"), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying announcements")
	}
	if anns == nil {
		anns = []announce.Announcement{}
	}
	return ctx.JSON(http.StatusOK, anns)
}

func (api *announceApi) retrieve(ctx echo.Context) error {
	ann, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding announcement by ID")
	}
	return ctx.JSON(http.StatusOK, ann)
}

func (api *announceApi) update(ctx echo.Context) error {
	var data announce.UpdateAnnouncement
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAnnouncement")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ann, err := api.svc.Update(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating announcement")
	}
	return ctx.JSON(http.StatusOK, ann)
}

func (api *announceApi) publish(ctx echo.Context) error {
	ann, err := api.svc.Publish(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "publishing announcement")
	}
	return ctx.JSON(http.StatusOK, ann)
}

func (api *announceApi) cancel(ctx echo.Context) error {
	ann, err := api.svc.Cancel(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling announcement")
	}
	return ctx.JSON(http.StatusOK, ann)
}

func (api *announceApi) deliveries(ctx echo.Context) error {
	dls, err := api.svc.Deliveries(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying deliveries")
	}
	if dls == nil {
		dls = []announce.Delivery{}
	}
	return ctx.JSON(http.StatusOK, dls)
}
