package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/akela-hq/akela/core/meeting"
	"github.com/akela-hq/akela/core/unit"
)

type meetingApi struct {
	svc      meeting.Service
	validate *validator.Validate
}

func registerMeetingAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := meetingApi{
		svc:      opts.MeetingSvc,
		validate: opts.Validate,
	}

	view := unitScopeMiddleware(unit.PermViewUnit)
	manage := unitScopeMiddleware(unit.PermManageMeetings)

	mg := g.Group("/units/:unitID/meetings", jwt)
	mg.POST("", api.create, manage)
	mg.GET("", api.query, view)

	dg := mg.Group("/:id")
	dg.GET("", api.retrieve, view)
	dg.PUT("", api.update, manage)
	dg.DELETE("", api.destroy, manage)

	cg := dg.Group("/checklist", manage)
	cg.POST("", api.addChecklistItem)
	cg.PUT("/:itemID", api.setChecklistItemDone)
	cg.DELETE("/:itemID", api.removeChecklistItem)

	dg.POST("/attendance", api.markAttendance, manage)
	dg.GET("/attendance", api.attendance, view)

	g.GET("/units/:unitID/members/:id/attendance", api.memberAttendance, jwt, view)
}

// Handlers

func (api *meetingApi) create(ctx echo.Context) error {
	var data meeting.NewMeeting
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMeeting")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	mtg, err := api.svc.Create(ctx.Request().Context(), ctx.Param("unitID"), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "creating meeting")
	}
	return ctx.JSON(http.StatusCreated, mtg)
}

func (api *meetingApi) query(ctx echo.Context) error {
	filter := new(meeting.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []meeting.Meeting{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	meetings, err := api.svc.Query(ctx.Request().Context(), ctx.Param("unitID"), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying meetings")
	}
	if meetings == nil {
		meetings = []meeting.Meeting{}
	}
	return ctx.JSON(http.StatusOK, meetings)
}

func (api *meetingApi) retrieve(ctx echo.Context) error {
	mtg, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding meeting by ID")
	}
	return ctx.JSON(http.StatusOK, mtg)
}

func (api *meetingApi) update(ctx echo.Context) error {
	var data meeting.UpdateMeeting
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateMeeting")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	mtg, err := api.svc.Update(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating meeting")
	}
	return ctx.JSON(http.StatusOK, mtg)
}

func (api *meetingApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting meeting")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Checklist

func (api *meetingApi) addChecklistItem(ctx echo.Context) error {
	var data ChecklistItemRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChecklistItemRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	item, err := api.svc.AddChecklistItem(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("id"), data.Label)
	if err != nil {
		return errors.Wrap(err, "adding checklist item")
	}
	return ctx.JSON(http.StatusCreated, item)
}

func (api *meetingApi) setChecklistItemDone(ctx echo.Context) error {
	var data ChecklistItemDoneRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChecklistItemDoneRequest")
	}

	err := api.svc.SetChecklistItemDone(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("id"), ctx.Param("itemID"), data.Done)
	if err != nil {
		return errors.Wrap(err, "setting checklist item")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *meetingApi) removeChecklistItem(ctx echo.Context) error {
	err := api.svc.RemoveChecklistItem(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("id"), ctx.Param("itemID"))
	if err != nil {
		return errors.Wrap(err, "removing checklist item")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Attendance

func (api *meetingApi) markAttendance(ctx echo.Context) error {
	var data meeting.MarkAttendance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkAttendance")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	err = api.svc.MarkAttendance(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("id"), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "marking attendance")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *meetingApi) attendance(ctx echo.Context) error {
	marks, err := api.svc.Attendance(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying attendance")
	}
	if marks == nil {
		marks = []meeting.Attendance{}
	}
	return ctx.JSON(http.StatusOK, marks)
}

func (api *meetingApi) memberAttendance(ctx echo.Context) error {
	var query MemberAttendanceRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to MemberAttendanceRequest")
	}

	marks, summary, err := api.svc.MemberAttendance(ctx.Request().Context(), ctx.Param("unitID"), ctx.Param("id"), query.From, query.To)
	if err != nil {
		return errors.Wrap(err, "querying member attendance")
	}
	if marks == nil {
		marks = []meeting.Attendance{}
	}
	return ctx.JSON(http.StatusOK, MemberAttendanceResponse{Marks: marks, Summary: summary})
}

type (
	ChecklistItemRequest struct {
		Label string `json:"label" validate:"required"`
	}

	ChecklistItemDoneRequest struct {
		Done bool `json:"done"`
	}

	MemberAttendanceRequest struct {
		From time.Time `query:"from"`
		To   time.Time `query:"to"`
	}

	MemberAttendanceResponse struct {
		Marks   []meeting.Attendance      `json:"marks"`
		Summary meeting.AttendanceSummary `json:"summary"`
	}
)
