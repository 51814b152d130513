package meeting

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/akela-hq/akela/core"
)

var (
	// errors
	ErrNotFound           = errors.New("meeting not found")
	ErrItemNotFound       = errors.New("checklist item not found")
	ErrMemberNotInUnit    = errors.New("member does not belong to this unit")
	ErrMeetingNotEditable = errors.New("meeting is cancelled")
)

type (
	Repository interface {
		CreateMeeting(ctx context.Context, mtg Meeting, exec ...core.DBExecutor) (Meeting, error)
		// GetMeeting loads the meeting and its checklist.
		GetMeeting(ctx context.Context, unitID, id string, exec ...core.DBExecutor) (Meeting, error)
		QueryMeetings(ctx context.Context, unitID string, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Meeting, error)
		UpdateMeeting(ctx context.Context, mtg Meeting, exec ...core.DBExecutor) (Meeting, error)
		DeleteMeeting(ctx context.Context, unitID, id string, exec ...core.DBExecutor) error

		AddChecklistItem(ctx context.Context, item ChecklistItem, exec ...core.DBExecutor) (ChecklistItem, error)
		SetChecklistItemDone(ctx context.Context, meetingID, itemID string, done bool, exec ...core.DBExecutor) error
		DeleteChecklistItem(ctx context.Context, meetingID, itemID string, exec ...core.DBExecutor) error

		// UpsertAttendance records marks for a meeting; one row per (meeting, member).
		// Marks for members outside the meeting's unit fail with ErrMemberNotInUnit.
		UpsertAttendance(ctx context.Context, meetingID string, marks []Attendance, exec ...core.DBExecutor) error
		QueryAttendance(ctx context.Context, meetingID string, exec ...core.DBExecutor) ([]Attendance, error)
		QueryMemberAttendance(ctx context.Context, unitID, memberID string, from, to time.Time, exec ...core.DBExecutor) ([]Attendance, error)
		SummarizeMemberAttendance(ctx context.Context, unitID, memberID string, from, to time.Time, exec ...core.DBExecutor) (AttendanceSummary, error)
	}

	Service interface {
		Create(ctx context.Context, unitID, createdBy string, nm NewMeeting) (Meeting, error)
		GetByID(ctx context.Context, unitID, id string) (Meeting, error)
		Query(ctx context.Context, unitID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Meeting, error)
		Update(ctx context.Context, unitID, id string, um UpdateMeeting) (Meeting, error)
		Delete(ctx context.Context, unitID, id string) error

		AddChecklistItem(ctx context.Context, unitID, meetingID, label string) (ChecklistItem, error)
		SetChecklistItemDone(ctx context.Context, unitID, meetingID, itemID string, done bool) error
		RemoveChecklistItem(ctx context.Context, unitID, meetingID, itemID string) error

		MarkAttendance(ctx context.Context, unitID, meetingID, recordedBy string, ma MarkAttendance) error
		Attendance(ctx context.Context, unitID, meetingID string) ([]Attendance, error)
		MemberAttendance(ctx context.Context, unitID, memberID string, from, to time.Time) ([]Attendance, AttendanceSummary, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, unitID, createdBy string, nm NewMeeting) (Meeting, error) {
	now := time.Now().UTC()
	mtg := Meeting{
		UnitID:    unitID,
		Title:     nm.Title,
		StartsAt:  nm.StartsAt.UTC(),
		EndsAt:    nm.EndsAt.UTC(),
		Location:  nm.Location,
		Program:   nm.Program,
		Status:    nm.Status,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, label := range nm.Checklist {
		mtg.Checklist = append(mtg.Checklist, ChecklistItem{Label: core.CleanString(label), Position: i})
	}
	return svc.repo.CreateMeeting(ctx, mtg)
}

func (svc *service) GetByID(ctx context.Context, unitID, id string) (Meeting, error) {
	return svc.repo.GetMeeting(ctx, unitID, id)
}

func (svc *service) Query(ctx context.Context, unitID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Meeting, error) {
	return svc.repo.QueryMeetings(ctx, unitID, filter, ordering)
}

func (svc *service) Update(ctx context.Context, unitID, id string, um UpdateMeeting) (Meeting, error) {
	orig, err := svc.repo.GetMeeting(ctx, unitID, id)
	if err != nil {
		return Meeting{}, err
	}
	mtg := orig
	if um.Title != "" {
		mtg.Title = um.Title
	}
	if um.StartsAt != nil {
		mtg.StartsAt = um.StartsAt.UTC()
	}
	if um.EndsAt != nil {
		mtg.EndsAt = um.EndsAt.UTC()
	}
	if um.Location != nil {
		mtg.Location = *um.Location
	}
	if um.Program != nil {
		mtg.Program = *um.Program
	}
	if um.Status != "" {
		mtg.Status = um.Status
	}
	mtg.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateMeeting(ctx, mtg)
}

func (svc *service) Delete(ctx context.Context, unitID, id string) error {
	return svc.repo.DeleteMeeting(ctx, unitID, id)
}

func (svc *service) AddChecklistItem(ctx context.Context, unitID, meetingID, label string) (ChecklistItem, error) {
	mtg, err := svc.repo.GetMeeting(ctx, unitID, meetingID)
	if err != nil {
		return ChecklistItem{}, err
	}
	item := ChecklistItem{
		MeetingID: mtg.ID,
		Label:     core.CleanString(label),
		Position:  len(mtg.Checklist),
	}
	if item.Label == "" {
		return ChecklistItem{}, core.NewValidationError(nil, core.FieldError{Field: "label", Error: "this field is required"})
	}
	return svc.repo.AddChecklistItem(ctx, item)
}

func (svc *service) SetChecklistItemDone(ctx context.Context, unitID, meetingID, itemID string, done bool) error {
	if _, err := svc.repo.GetMeeting(ctx, unitID, meetingID); err != nil {
		return err
	}
	return svc.repo.SetChecklistItemDone(ctx, meetingID, itemID, done)
}

func (svc *service) RemoveChecklistItem(ctx context.Context, unitID, meetingID, itemID string) error {
	if _, err := svc.repo.GetMeeting(ctx, unitID, meetingID); err != nil {
		return err
	}
	return svc.repo.DeleteChecklistItem(ctx, meetingID, itemID)
}

func (svc *service) MarkAttendance(ctx context.Context, unitID, meetingID, recordedBy string, ma MarkAttendance) error {
	mtg, err := svc.repo.GetMeeting(ctx, unitID, meetingID)
	if err != nil {
		return err
	}
	if mtg.Status == StatusCancelled {
		return core.NewValidationError(ErrMeetingNotEditable)
	}
	now := time.Now().UTC()
	marks := make([]Attendance, 0, len(ma.Marks))
	for _, mark := range ma.Marks {
		marks = append(marks, Attendance{
			MeetingID:  mtg.ID,
			MemberID:   mark.MemberID,
			Status:     mark.Status,
			RecordedBy: recordedBy,
			RecordedAt: now,
		})
	}
	return svc.repo.UpsertAttendance(ctx, mtg.ID, marks)
}

func (svc *service) Attendance(ctx context.Context, unitID, meetingID string) ([]Attendance, error) {
	if _, err := svc.repo.GetMeeting(ctx, unitID, meetingID); err != nil {
		return nil, err
	}
	return svc.repo.QueryAttendance(ctx, meetingID)
}

func (svc *service) MemberAttendance(ctx context.Context, unitID, memberID string, from, to time.Time) ([]Attendance, AttendanceSummary, error) {
	atts, err := svc.repo.QueryMemberAttendance(ctx, unitID, memberID, from, to)
	if err != nil {
		return nil, AttendanceSummary{}, err
	}
	summary, err := svc.repo.SummarizeMemberAttendance(ctx, unitID, memberID, from, to)
	if err != nil {
		return nil, AttendanceSummary{}, err
	}
	return atts, summary, nil
}
