package announce

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/akela-hq/akela/core"
)

// Announcement statuses
const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Audiences
const (
	AudienceAllGuardians = "all_guardians"
	AudienceLeaders      = "leaders"
	AudienceMembers      = "members" // guardians of the selected members
)

// Channels
const (
	ChannelEmail    = "email"
	ChannelPush     = "push"
	ChannelWhatsApp = "whatsapp"
)

// Delivery statuses
const (
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
	DeliverySkipped = "skipped" // recipient has no address/subscription/opt-in for the channel
)

type (
	Announcement struct {
		ID          string     `json:"id"`
		UnitID      string     `json:"unit_id"`
		AuthorID    string     `json:"author_id"`
		Subject     string     `json:"subject"`
		Body        string     `json:"body"`
		Audience    string     `json:"audience"`
		MemberIDs   []string   `json:"member_ids,omitempty"` // when Audience == AudienceMembers
		Channels    []string   `json:"channels"`
		ScheduledAt *time.Time `json:"scheduled_at"` // nil = send immediately
		Status      string     `json:"status"`
		SentCount   int        `json:"sent_count"`
		FailedCount int        `json:"failed_count"`
		SkipCount   int        `json:"skip_count"`
		SentAt      time.Time  `json:"sent_at"`
		CreatedAt   time.Time  `json:"created_at"` // UTC
		UpdatedAt   time.Time  `json:"updated_at"` // UTC
	}

	// Delivery is one (recipient, channel) outcome of a dispatched announcement.
	Delivery struct {
		ID             string    `json:"id"`
		AnnouncementID string    `json:"announcement_id"`
		RecipientType  string    `json:"recipient_type"` // "guardian" or "user"
		RecipientID    string    `json:"recipient_id"`
		RecipientName  string    `json:"recipient_name"`
		Channel        string    `json:"channel"`
		Status         string    `json:"status"`
		Detail         string    `json:"detail"`
		CreatedAt      time.Time `json:"created_at"` // UTC
	}

	// Recipient is a resolved announcement target with its channel addresses.
	Recipient struct {
		Type          string // "guardian" or "user"
		ID            string
		Name          string
		Email         string
		Phone         string
		WhatsAppOptIn bool
		PushSub       core.PushSubscription
	}
)

func (a Announcement) IsDue(now time.Time) bool {
	if a.Status != StatusScheduled {
		return false
	}
	return a.ScheduledAt == nil || !a.ScheduledAt.After(now)
}

func (a Announcement) HasChannel(ch string) bool {
	for _, c := range a.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// NewAnnouncement contains information needed to create an Announcement.
type NewAnnouncement struct {
	Subject     string     `json:"subject" validate:"required"`
	Body        string     `json:"body" validate:"required"`
	Audience    string     `json:"audience" validate:"required,oneof=all_guardians leaders members"`
	MemberIDs   []string   `json:"member_ids" validate:"omitempty,dive,uuid4"`
	Channels    []string   `json:"channels" validate:"required,min=1,dive,oneof=email push whatsapp"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	Draft       bool       `json:"draft"`
}

func (na *NewAnnouncement) Validate(validate *validator.Validate) error {
	na.Subject = core.CleanString(na.Subject)
	na.Audience = core.CleanString(na.Audience, true /* lower */)
	if err := validate.Struct(na); err != nil {
		return err
	}
	if na.Audience == AudienceMembers && len(na.MemberIDs) == 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "member_ids", Error: "this field is required"})
	}
	if na.ScheduledAt != nil && na.ScheduledAt.Before(time.Now().Add(-time.Minute)) {
		return core.NewValidationError(nil, core.FieldError{Field: "scheduled_at", Error: "cannot schedule in the past"})
	}
	return nil
}

// UpdateAnnouncement modifies a draft or reschedules a scheduled announcement.
type UpdateAnnouncement struct {
	Subject     string     `json:"subject"`
	Body        string     `json:"body"`
	Audience    string     `json:"audience" validate:"omitempty,oneof=all_guardians leaders members"`
	MemberIDs   []string   `json:"member_ids" validate:"omitempty,dive,uuid4"`
	Channels    []string   `json:"channels" validate:"omitempty,min=1,dive,oneof=email push whatsapp"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

func (ua *UpdateAnnouncement) Validate(validate *validator.Validate) error {
	ua.Subject = core.CleanString(ua.Subject)
	ua.Audience = core.CleanString(ua.Audience, true /* lower */)
	return validate.Struct(ua)
}

// QueryFilter filters a unit's announcements.
type QueryFilter struct {
	Status string `query:"status"`
}

func (qf *QueryFilter) Clean() {
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}
