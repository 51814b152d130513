package unit

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/akela-hq/akela/core"
)

// Roles, scoped to a unit membership.
const (
	RoleLeaderHead = "leader:head"
	RoleLeader     = "leader:"
	RoleHelper     = "helper:"
	RoleGuardian   = "guardian:"
)

// Permissions granted by roles.
const (
	PermViewUnit          = "view_unit"
	PermManageUnit        = "manage_unit"
	PermManageMembers     = "manage_members"
	PermManageMeetings    = "manage_meetings"
	PermManageBadges      = "manage_badges"
	PermSendAnnouncements = "send_announcements"
	PermImportCensus      = "import_census"
)

var (
	AllRoles = []string{RoleLeaderHead, RoleLeader, RoleHelper, RoleGuardian}

	rolePriorities = map[string]int{
		RoleLeaderHead: 30,
		RoleLeader:     21,
		RoleHelper:     11,
		RoleGuardian:   1,
	}

	// rolePerms maps a role prefix to the permissions it grants.
	// A membership role grants the union of every prefix it matches.
	rolePerms = map[string][]string{
		RoleGuardian: {PermViewUnit},
		RoleHelper:   {PermViewUnit, PermManageMeetings},
		RoleLeader: {
			PermViewUnit, PermManageMembers, PermManageMeetings,
			PermManageBadges, PermSendAnnouncements, PermImportCensus,
		},
		RoleLeaderHead: {
			PermViewUnit, PermManageUnit, PermManageMembers, PermManageMeetings,
			PermManageBadges, PermSendAnnouncements, PermImportCensus,
		},
	}

	Roles = []Role{
		{Name: "Guardian", Value: RoleGuardian},
		{Name: "Helper", Value: RoleHelper},
		{Name: "Leader", Value: RoleLeader},
		{Name: "Head Leader", Value: RoleLeaderHead},
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

// RoleHasPerm reports whether role grants perm. Unknown role variants fall
// back to their group prefix ("leader:head" -> "leader:").
func RoleHasPerm(role, perm string) bool {
	perms, ok := rolePerms[role]
	if !ok {
		if i := strings.Index(role, ":"); i >= 0 {
			perms = rolePerms[role[:i+1]]
		}
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Sections
const (
	SectionBeavers   = "beavers"
	SectionCubs      = "cubs"
	SectionScouts    = "scouts"
	SectionVenturers = "venturers"
	SectionRovers    = "rovers"
)

type (
	Settings struct {
		EmailEnabled    bool `json:"email_enabled"`
		PushEnabled     bool `json:"push_enabled"`
		WhatsAppEnabled bool `json:"whatsapp_enabled"`
	}

	Unit struct {
		ID        string    `json:"id"`
		Slug      string    `json:"slug"`
		Name      string    `json:"name"`
		Section   string    `json:"section"`
		Timezone  string    `json:"timezone"`
		Settings  Settings  `json:"settings"`
		CreatedAt time.Time `json:"created_at"` // UTC
		UpdatedAt time.Time `json:"updated_at"` // UTC
	}

	Membership struct {
		ID        string    `json:"id"`
		UnitID    string    `json:"unit_id"`
		UserID    string    `json:"user_id"`
		Role      string    `json:"role"`
		CreatedAt time.Time `json:"created_at"` // UTC
		UpdatedAt time.Time `json:"updated_at"` // UTC

		// joined for listings; not stored on the membership row
		UserName  string `json:"user_name,omitempty"`
		UserEmail string `json:"user_email,omitempty"`
	}
)

func (m Membership) IsHead() bool { return m.Role == RoleLeaderHead }

func (m Membership) HasPerm(perm string) bool { return RoleHasPerm(m.Role, perm) }

// NewUnit contains information needed to create a new Unit.
type NewUnit struct {
	Name     string `json:"name" validate:"required"`
	Slug     string `json:"slug" validate:"required,min=3,alphanum_"`
	Section  string `json:"section" validate:"required,oneof=beavers cubs scouts venturers rovers"`
	Timezone string `json:"timezone"`
}

func (nu *NewUnit) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Slug = core.CleanString(nu.Slug, true /* lower */)
	nu.Section = core.CleanString(nu.Section, true /* lower */)
	nu.Timezone = core.CleanString(nu.Timezone)
	if nu.Timezone == "" {
		nu.Timezone = "UTC"
	}

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckSlugUniqueness(ctx, nu.Slug)
}

// UpdateUnit defines what information may be provided to modify an existing Unit.
type UpdateUnit struct {
	Name     string    `json:"name"`
	Timezone string    `json:"timezone"`
	Settings *Settings `json:"settings"`
}

func (uu *UpdateUnit) Validate(origUnit Unit, validate *validator.Validate) error {
	name := core.CleanString(uu.Name)
	if name != "" {
		uu.Name = name
	} else {
		uu.Name = origUnit.Name
	}
	tz := core.CleanString(uu.Timezone)
	if tz != "" {
		uu.Timezone = tz
	} else {
		uu.Timezone = origUnit.Timezone
	}
	return validate.Struct(uu)
}

// NewMembership adds or changes a user's role in a unit.
type NewMembership struct {
	UserID string `json:"user_id" validate:"required,uuid4"`
	Role   string `json:"role" validate:"required,unitrole"`
}

func (nm *NewMembership) Validate(validate *validator.Validate) error {
	nm.Role = core.CleanString(nm.Role, true /* lower */)
	return validate.Struct(nm)
}
