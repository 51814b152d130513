package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/akela-hq/akela/core/member"
	"github.com/akela-hq/akela/core/unit"
)

type memberApi struct {
	svc      member.Service
	validate *validator.Validate
}

func registerMemberAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := memberApi{
		svc:      opts.MemberSvc,
		validate: opts.Validate,
	}

	view := unitScopeMiddleware(unit.PermViewUnit)
	manage := unitScopeMiddleware(unit.PermManageMembers)

	mg := g.Group("/units/:unitID/members", jwt)
	mg.POST("", api.create, manage)
	mg.GET("", api.query, view)
	mg.DELETE("", api.destroyMultiple, manage)
	mg.POST("/import", api.importCensus, unitScopeMiddleware(unit.PermImportCensus))

	dg := mg.Group("/:id")
	dg.GET("", api.retrieve, view)
	dg.PUT("", api.update, manage)
	dg.GET("/guardians", api.queryGuardiansOf, view)
	dg.PUT("/guardians/:guardianID", api.linkGuardian, manage)
	dg.DELETE("/guardians/:guardianID", api.unlinkGuardian, manage)

	gg := g.Group("/units/:unitID/guardians", jwt)
	gg.POST("", api.createGuardian, manage)
	gg.GET("", api.queryGuardians, view)

	gd := gg.Group("/:id")
	gd.GET("", api.retrieveGuardian, view)
	gd.PUT("", api.updateGuardian, manage)
	gd.DELETE("", api.destroyGuardian, manage)
	gd.GET("/members", api.queryMembersOf, view)
}

// Handlers

func (api *memberApi) create(ctx echo.Context) error {
	var data member.NewMember
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMember")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	mbr, err := api.svc.Create(ctx.Request().Context(), ctx.Param("unitID"), data)
	if err != nil {
		return errors.Wrap(err, "creating member")
	}
	return ctx.JSON(http.StatusCreated, mbr)
}

func (api *memberApi) query(ctx echo.Context) error {
	filter := new(member.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []member.Member{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	members, err := api.svc.Query(ctx.Request().Context(), ctx.Param("unitID"), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying members")
	}
	if members == nil {
		members = []member.Member{}
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *memberApi) retrieve(ctx echo.Context) error {
	mbr, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding member by ID")
	}
	return ctx.JSON(http.StatusOK, mbr)
}

func (api *memberApi) update(ctx echo.Context) error {
	rctx := ctx.Request().Context()
	mbr, err := api.svc.GetByID(rctx, ctx.Param("unitID"), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding member by ID")
	}

	var data member.UpdateMember
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateMember")
	}
	if err := data.Validate(mbr, api.validate); err != nil {
		return err
	}

	mbr, err = api.svc.Update(rctx, ctx.Param("unitID"), mbr.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating member")
	}
	return ctx.JSON(http.StatusOK, mbr)
}

func (api *memberApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("unitID"), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting members")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *memberApi) importCensus(ctx echo.Context) error {
	fh, err := ctx.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "a csv file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer func() { _ = f.Close() }()

	res, err := api.svc.ImportCensus(ctx.Request().Context(), ctx.Param("unitID"), member.ImportOptions{Reader: f})
	if err != nil {
		return errors.Wrap(err, "importing census")
	}
	return ctx.JSON(http.StatusOK, res)
}

// Guardians

func (api *memberApi) createGuardian(ctx echo.Context) error {
	var data member.NewGuardian
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGuardian")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	grd, err := api.svc.CreateGuardian(ctx.Request().Context(), ctx.Param("unitID"), data)
	if err != nil {
		return errors.Wrap(err, "creating guardian")
	}
	return ctx.JSON(http.StatusCreated, grd)
}

func (api *memberApi) queryGuardians(ctx echo.Context) error {
	guardians, err := api.svc.QueryGuardians(ctx.Request().Context(), ctx.Param("unitID"), ctx.QueryParam("search"))
	if err != nil {
		return errors.Wrap(err, "querying guardians")
	}
	if guardians == nil {
		guardians = []member.Guardian{}
	}
	return ctx.JSON(http.StatusOK, guardians)
}

func (api *memberApi) retrieveGuardian(ctx echo.Context) error {
	grd, err := api.svc.GetGuardianByID(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding guardian by ID")
	}
	return ctx.JSON(http.StatusOK, grd)
}

func (api *memberApi) updateGuardian(ctx echo.Context) error {
	rctx := ctx.Request().Context()
	grd, err := api.svc.GetGuardianByID(rctx, ctx.Param("unitID"), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding guardian by ID")
	}

	var data member.UpdateGuardian
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateGuardian")
	}
	if err := data.Validate(grd, api.validate); err != nil {
		return err
	}

	grd, err = api.svc.UpdateGuardian(rctx, ctx.Param("unitID"), grd.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating guardian")
	}
	return ctx.JSON(http.StatusOK, grd)
}

func (api *memberApi) destroyGuardian(ctx echo.Context) error {
	if err := api.svc.DeleteGuardian(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting guardian")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Links

func (api *memberApi) linkGuardian(ctx echo.Context) error {
	var data LinkGuardianRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LinkGuardianRequest")
	}

	err := api.svc.LinkGuardian(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("id"), ctx.Param("guardianID"), data.Relationship)
	if err != nil {
		return errors.Wrap(err, "linking guardian")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *memberApi) unlinkGuardian(ctx echo.Context) error {
	err := api.svc.UnlinkGuardian(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("id"), ctx.Param("guardianID"))
	if err != nil {
		return errors.Wrap(err, "unlinking guardian")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *memberApi) queryGuardiansOf(ctx echo.Context) error {
	guardians, err := api.svc.GuardiansOf(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying member guardians")
	}
	if guardians == nil {
		guardians = []member.Guardian{}
	}
	return ctx.JSON(http.StatusOK, guardians)
}

func (api *memberApi) queryMembersOf(ctx echo.Context) error {
	members, err := api.svc.MembersOf(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying guardian members")
	}
	if members == nil {
		members = []member.Member{}
	}
	return ctx.JSON(http.StatusOK, members)
}

type LinkGuardianRequest struct {
	Relationship string `json:"relationship"`
}
