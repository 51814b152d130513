package meeting

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/akela-hq/akela/core"
)

// Meeting statuses
const (
	StatusDraft     = "draft"
	StatusPlanned   = "planned"
	StatusDone      = "done"
	StatusCancelled = "cancelled"
)

// Attendance statuses
const (
	AttendancePresent = "present"
	AttendanceAbsent  = "absent"
	AttendanceExcused = "excused"
	AttendanceLate    = "late"
)

type (
	ChecklistItem struct {
		ID        string `json:"id"`
		MeetingID string `json:"meeting_id"`
		Label     string `json:"label"`
		Done      bool   `json:"done"`
		Position  int    `json:"position"`
	}

	Meeting struct {
		ID        string          `json:"id"`
		UnitID    string          `json:"unit_id"`
		Title     string          `json:"title"`
		StartsAt  time.Time       `json:"starts_at"` // UTC
		EndsAt    time.Time       `json:"ends_at"`   // UTC
		Location  string          `json:"location"`
		Program   string          `json:"program"` // program / preparation notes
		Status    string          `json:"status"`
		Checklist []ChecklistItem `json:"checklist,omitempty"`
		CreatedBy string          `json:"created_by"`
		CreatedAt time.Time       `json:"created_at"` // UTC
		UpdatedAt time.Time       `json:"updated_at"` // UTC
	}

	Attendance struct {
		MeetingID  string    `json:"meeting_id"`
		MemberID   string    `json:"member_id"`
		Status     string    `json:"status"`
		RecordedBy string    `json:"recorded_by"`
		RecordedAt time.Time `json:"recorded_at"` // UTC

		// joined for listings
		MemberName string `json:"member_name,omitempty"`
	}

	// AttendanceSummary aggregates a member's attendance over a range.
	AttendanceSummary struct {
		MemberID string `json:"member_id"`
		Total    int    `json:"total"`
		Present  int    `json:"present"`
		Late     int    `json:"late"`
		Excused  int    `json:"excused"`
		Absent   int    `json:"absent"`
	}
)

// Rate is the attended share (present + late) of recorded meetings.
func (s AttendanceSummary) Rate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Present+s.Late) / float64(s.Total)
}

// NewMeeting contains information needed to create a new Meeting.
type NewMeeting struct {
	Title     string    `json:"title" validate:"required"`
	StartsAt  time.Time `json:"starts_at" validate:"required"`
	EndsAt    time.Time `json:"ends_at"`
	Location  string    `json:"location"`
	Program   string    `json:"program"`
	Status    string    `json:"status" validate:"omitempty,oneof=draft planned"`
	Checklist []string  `json:"checklist" validate:"omitempty,dive,required"`
}

func (nm *NewMeeting) Validate(validate *validator.Validate) error {
	nm.Title = core.CleanString(nm.Title)
	nm.Location = core.CleanString(nm.Location)
	if nm.Status == "" {
		nm.Status = StatusDraft
	}
	if err := validate.Struct(nm); err != nil {
		return err
	}
	if !nm.EndsAt.IsZero() && nm.EndsAt.Before(nm.StartsAt) {
		return core.NewValidationError(nil, core.FieldError{Field: "ends_at", Error: "must be after starts_at"})
	}
	return nil
}

// UpdateMeeting defines what information may be provided to modify an existing Meeting.
type UpdateMeeting struct {
	Title    string     `json:"title"`
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
	Location *string    `json:"location"`
	Program  *string    `json:"program"`
	Status   string     `json:"status" validate:"omitempty,oneof=draft planned done cancelled"`
}

func (um *UpdateMeeting) Validate(validate *validator.Validate) error {
	um.Title = core.CleanString(um.Title)
	um.Status = core.CleanString(um.Status, true /* lower */)
	return validate.Struct(um)
}

// AttendanceMark is one member's attendance entry in a bulk mark request.
type AttendanceMark struct {
	MemberID string `json:"member_id" validate:"required,uuid4"`
	Status   string `json:"status" validate:"required,oneof=present absent excused late"`
}

// MarkAttendance is the bulk attendance payload for one meeting.
type MarkAttendance struct {
	Marks []AttendanceMark `json:"marks" validate:"required,min=1,dive"`
}

func (ma *MarkAttendance) Validate(validate *validator.Validate) error {
	return validate.Struct(ma)
}

// QueryFilter filters a unit's meetings.
type QueryFilter struct {
	Status string    `query:"status"`
	From   time.Time `query:"from"`
	To     time.Time `query:"to"`
}

func (qf *QueryFilter) Clean() {
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}
