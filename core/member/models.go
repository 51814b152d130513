package member

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/akela-hq/akela/core"
)

type (
	// Member is a participant (scout) in a unit.
	Member struct {
		ID           string    `json:"id"`
		UnitID       string    `json:"unit_id"`
		CensusID     string    `json:"census_id"` // external census number; empty when not registered
		Name         string    `json:"name"`
		BirthDate    time.Time `json:"birth_date"`
		Group        string    `json:"group"` // patrol / six / lodge within the unit
		Allergies    string    `json:"allergies"`
		Notes        string    `json:"notes"`
		PhotoConsent bool      `json:"photo_consent"`
		IsActive     *bool     `json:"is_active"`
		CreatedAt    time.Time `json:"created_at"` // UTC
		UpdatedAt    time.Time `json:"updated_at"` // UTC
	}

	// Guardian is a parent or carer contact, linkable to several members.
	Guardian struct {
		ID            string                `json:"id"`
		UnitID        string                `json:"unit_id"`
		Name          string                `json:"name"`
		Email         string                `json:"email"`
		Phone         string                `json:"phone"`
		WhatsAppOptIn bool                  `json:"whatsapp_opt_in"`
		PushSub       core.PushSubscription `json:"-"`
		CreatedAt     time.Time             `json:"created_at"` // UTC
		UpdatedAt     time.Time             `json:"updated_at"` // UTC

		// joined for listings
		Relationship string `json:"relationship,omitempty"`
	}

	// GuardianLink ties a guardian to a member with a relationship label.
	GuardianLink struct {
		MemberID     string `json:"member_id"`
		GuardianID   string `json:"guardian_id"`
		Relationship string `json:"relationship"`
	}
)

func (m *Member) SetActive(active bool) { m.IsActive = &active }

func (m *Member) Active() bool { return m.IsActive != nil && *m.IsActive }

func (g Guardian) CanWhatsApp() bool { return g.WhatsAppOptIn && g.Phone != "" }

func (g Guardian) CanPush() bool { return !g.PushSub.IsZero() }

// NewMember contains information needed to create a new Member.
type NewMember struct {
	CensusID     string    `json:"census_id"`
	Name         string    `json:"name" validate:"required"`
	BirthDate    time.Time `json:"birth_date" validate:"required"`
	Group        string    `json:"group"`
	Allergies    string    `json:"allergies"`
	Notes        string    `json:"notes"`
	PhotoConsent bool      `json:"photo_consent"`
}

func (nm *NewMember) Validate(validate *validator.Validate) error {
	nm.CensusID = core.CleanString(nm.CensusID)
	nm.Name = core.CleanString(nm.Name)
	nm.Group = core.CleanString(nm.Group)
	return validate.Struct(nm)
}

// UpdateMember defines what information may be provided to modify an existing Member.
type UpdateMember struct {
	CensusID     string     `json:"census_id"`
	Name         string     `json:"name"`
	BirthDate    *time.Time `json:"birth_date"`
	Group        *string    `json:"group"`
	Allergies    *string    `json:"allergies"`
	Notes        *string    `json:"notes"`
	PhotoConsent *bool      `json:"photo_consent"`
	IsActive     *bool      `json:"is_active"`
}

func (um *UpdateMember) Validate(origMbr Member, validate *validator.Validate) error {
	name := core.CleanString(um.Name)
	if name != "" {
		um.Name = name
	} else {
		um.Name = origMbr.Name
	}
	um.CensusID = core.CleanString(um.CensusID)
	if um.CensusID == "" {
		um.CensusID = origMbr.CensusID
	}
	return validate.Struct(um)
}

// NewGuardian contains information needed to create a new Guardian.
type NewGuardian struct {
	Name          string `json:"name" validate:"required"`
	Email         string `json:"email" validate:"omitempty,email"`
	Phone         string `json:"phone" validate:"omitempty,phone"`
	WhatsAppOptIn bool   `json:"whatsapp_opt_in"`
	Relationship  string `json:"relationship"`
	MemberID      string `json:"member_id" validate:"omitempty,uuid4"` // link on creation
}

func (ng *NewGuardian) Validate(validate *validator.Validate) error {
	ng.Name = core.CleanString(ng.Name)
	ng.Email = core.CleanString(ng.Email, true /* lower */)
	ng.Phone = core.CleanPhone(ng.Phone)
	ng.Relationship = core.CleanString(ng.Relationship, true /* lower */)
	return validate.Struct(ng)
}

// UpdateGuardian defines what information may be provided to modify an existing Guardian.
type UpdateGuardian struct {
	Name          string                 `json:"name"`
	Email         string                 `json:"email" validate:"omitempty,email"`
	Phone         string                 `json:"phone" validate:"omitempty,phone"`
	WhatsAppOptIn *bool                  `json:"whatsapp_opt_in"`
	PushSub       *core.PushSubscription `json:"push_subscription"`
}

func (ug *UpdateGuardian) Validate(origGrd Guardian, validate *validator.Validate) error {
	name := core.CleanString(ug.Name)
	if name != "" {
		ug.Name = name
	} else {
		ug.Name = origGrd.Name
	}
	email := core.CleanString(ug.Email, true /* lower */)
	if email != "" {
		ug.Email = email
	} else {
		ug.Email = origGrd.Email
	}
	phone := core.CleanPhone(ug.Phone)
	if phone != "" {
		ug.Phone = phone
	} else {
		ug.Phone = origGrd.Phone
	}
	return validate.Struct(ug)
}

// QueryFilter filters members of a unit.
type QueryFilter struct {
	Search   string `query:"search"` // matches name or census id
	Group    string `query:"group"`
	IsActive *bool  `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Group = core.CleanString(qf.Group)
}

// GetFilter selects a single Member within a unit; the first non-empty field applies.
type GetFilter struct {
	ID       string
	CensusID string
	// NameAndBirthDate matches on both, used as census import fallback.
	Name      string
	BirthDate time.Time
}
