package badge

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/akela-hq/akela/core"
)

type (
	// Badge is a catalog entry; the catalog is shared across units.
	Badge struct {
		ID          string    `json:"id"`
		Code        string    `json:"code"`
		Name        string    `json:"name"`
		Section     string    `json:"section"`
		Description string    `json:"description"`
		CreatedAt   time.Time `json:"created_at"` // UTC
		UpdatedAt   time.Time `json:"updated_at"` // UTC
	}

	// Award records a badge awarded to a member. One row per (member, badge);
	// re-awarding updates date and note.
	Award struct {
		ID        string    `json:"id"`
		MemberID  string    `json:"member_id"`
		BadgeID   string    `json:"badge_id"`
		AwardedBy string    `json:"awarded_by"`
		AwardedAt time.Time `json:"awarded_at"` // UTC
		Note      string    `json:"note"`

		// joined for listings
		BadgeCode  string `json:"badge_code,omitempty"`
		BadgeName  string `json:"badge_name,omitempty"`
		MemberName string `json:"member_name,omitempty"`
	}
)

// NewBadge contains information needed to create a catalog Badge.
type NewBadge struct {
	Code        string `json:"code" validate:"required,min=2,alphanum_"`
	Name        string `json:"name" validate:"required"`
	Section     string `json:"section" validate:"required,oneof=beavers cubs scouts venturers rovers"`
	Description string `json:"description"`
}

func (nb *NewBadge) Validate(validate *validator.Validate) error {
	nb.Code = core.CleanString(nb.Code, true /* lower */)
	nb.Name = core.CleanString(nb.Name)
	nb.Section = core.CleanString(nb.Section, true /* lower */)
	return validate.Struct(nb)
}

// UpdateBadge defines what information may be provided to modify a catalog Badge.
type UpdateBadge struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func (ub *UpdateBadge) Validate(origBdg Badge, validate *validator.Validate) error {
	name := core.CleanString(ub.Name)
	if name != "" {
		ub.Name = name
	} else {
		ub.Name = origBdg.Name
	}
	return validate.Struct(ub)
}

// NewAward awards a badge to a member.
type NewAward struct {
	MemberID  string     `json:"member_id" validate:"required,uuid4"`
	BadgeID   string     `json:"badge_id" validate:"required,uuid4"`
	AwardedAt *time.Time `json:"awarded_at"`
	Note      string     `json:"note"`
}

func (na *NewAward) Validate(validate *validator.Validate) error {
	na.Note = core.CleanString(na.Note)
	return validate.Struct(na)
}
