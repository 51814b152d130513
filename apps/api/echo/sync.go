package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/akela-hq/akela/core/syncop"
	"github.com/akela-hq/akela/core/unit"
)

type syncApi struct {
	svc      syncop.Service
	validate *validator.Validate
}

func registerSyncAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := syncApi{
		svc:      opts.SyncSvc,
		validate: opts.Validate,
	}

	sg := g.Group("/units/:unitID/sync", jwt)
	// guardians are read-only; helpers and leaders replay offline writes
	sg.POST("", api.applyBatch, unitScopeMiddleware(unit.PermManageMeetings))
	sg.GET("/changes", api.changes, unitScopeMiddleware(unit.PermViewUnit))
}

// Handlers

func (api *syncApi) applyBatch(ctx echo.Context) error {
	var batch syncop.Batch
	if err := ctx.Bind(&batch); err != nil {
		return errors.Wrap(err, "binding to Batch")
	}
	if err := api.validate.Struct(&batch); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	results := api.svc.ApplyBatch(ctx.Request().Context(), ctx.Param("unitID"), claims.Subject, batch.Ops)
	return ctx.JSON(http.StatusOK, BatchResponse{Results: results})
}

func (api *syncApi) changes(ctx echo.Context) error {
	var since time.Time
	if raw := ctx.QueryParam("since"); raw != "" {
		var err error
		if since, err = time.Parse(time.RFC3339, raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be RFC3339")
		}
	}

	now := time.Now().UTC()
	changes, err := api.svc.Changes(ctx.Request().Context(), ctx.Param("unitID"), since)
	if err != nil {
		return errors.Wrap(err, "querying changes")
	}
	if changes == nil {
		changes = []syncop.Change{}
	}
	return ctx.JSON(http.StatusOK, ChangesResponse{Changes: changes, ServerTime: now})
}

type (
	BatchResponse struct {
		Results []syncop.OpResult `json:"results"`
	}

	// ChangesResponse carries ServerTime so the client can use it as the next
	// `since` without clock skew.
	ChangesResponse struct {
		Changes    []syncop.Change `json:"changes"`
		ServerTime time.Time       `json:"server_time"`
	}
)
