package unit

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/akela-hq/akela/core"
)

var (
	// errors
	ErrNotFound           = errors.New("unit not found")
	ErrSlugExists         = errors.New("a unit with this slug already exists")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrLastHeadLeader     = errors.New("a unit must keep at least one head leader")
)

type (
	Repository interface {
		CheckSlugUniqueness(ctx context.Context, slug string, exec ...core.DBExecutor) error
		CreateUnit(ctx context.Context, un Unit, headMembership Membership, exec ...core.DBExecutor) (Unit, error)
		GetUnit(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Unit, error)
		QueryUnitsForUser(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Unit, error)
		UpdateUnit(ctx context.Context, un Unit, exec ...core.DBExecutor) (Unit, error)

		GetMembership(ctx context.Context, unitID, userID string, exec ...core.DBExecutor) (Membership, error)
		QueryMemberships(ctx context.Context, unitID string, exec ...core.DBExecutor) ([]Membership, error)
		QueryMembershipsForUser(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Membership, error)
		UpsertMembership(ctx context.Context, m Membership, exec ...core.DBExecutor) (Membership, error)
		DeleteMembership(ctx context.Context, unitID, userID string, exec ...core.DBExecutor) error
		CountHeadLeaders(ctx context.Context, unitID string, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		CheckSlugUniqueness(ctx context.Context, slug string) error
		Create(ctx context.Context, nu NewUnit, ownerUserID string) (Unit, error)
		GetByID(ctx context.Context, id string) (Unit, error)
		GetBySlug(ctx context.Context, slug string) (Unit, error)
		QueryForUser(ctx context.Context, userID string) ([]Unit, error)
		Update(ctx context.Context, id string, uu UpdateUnit) (Unit, error)

		GetMembership(ctx context.Context, unitID, userID string) (Membership, error)
		Memberships(ctx context.Context, unitID string) ([]Membership, error)
		MembershipsForUser(ctx context.Context, userID string) ([]Membership, error)
		SetMembership(ctx context.Context, unitID string, nm NewMembership) (Membership, error)
		RemoveMembership(ctx context.Context, unitID, userID string) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) CheckSlugUniqueness(ctx context.Context, slug string) error {
	if err := svc.repo.CheckSlugUniqueness(ctx, slug); err != nil {
		if err == ErrSlugExists {
			return core.NewValidationError(err, core.FieldError{Field: "slug", Error: err.Error()})
		}
		return err
	}
	return nil
}

// Create creates the unit and makes ownerUserID its head leader.
func (svc *service) Create(ctx context.Context, nu NewUnit, ownerUserID string) (Unit, error) {
	now := time.Now().UTC()
	un := Unit{
		Slug:     nu.Slug,
		Name:     nu.Name,
		Section:  nu.Section,
		Timezone: nu.Timezone,
		Settings: Settings{
			EmailEnabled:    true,
			PushEnabled:     true,
			WhatsAppEnabled: false,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	head := Membership{
		UserID:    ownerUserID,
		Role:      RoleLeaderHead,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateUnit(ctx, un, head)
}

func (svc *service) GetByID(ctx context.Context, id string) (Unit, error) {
	return svc.repo.GetUnit(ctx, GetFilter{ID: id})
}

func (svc *service) GetBySlug(ctx context.Context, slug string) (Unit, error) {
	return svc.repo.GetUnit(ctx, GetFilter{Slug: core.CleanString(slug, true /* lower */)})
}

func (svc *service) QueryForUser(ctx context.Context, userID string) ([]Unit, error) {
	return svc.repo.QueryUnitsForUser(ctx, userID)
}

func (svc *service) Update(ctx context.Context, id string, uu UpdateUnit) (Unit, error) {
	un := Unit{
		ID:        id,
		Name:      uu.Name,
		Timezone:  uu.Timezone,
		UpdatedAt: time.Now().UTC(),
	}
	if uu.Settings != nil {
		un.Settings = *uu.Settings
	}
	return svc.repo.UpdateUnit(ctx, un)
}

func (svc *service) GetMembership(ctx context.Context, unitID, userID string) (Membership, error) {
	return svc.repo.GetMembership(ctx, unitID, userID)
}

func (svc *service) Memberships(ctx context.Context, unitID string) ([]Membership, error) {
	return svc.repo.QueryMemberships(ctx, unitID)
}

func (svc *service) MembershipsForUser(ctx context.Context, userID string) ([]Membership, error) {
	return svc.repo.QueryMembershipsForUser(ctx, userID)
}

func (svc *service) SetMembership(ctx context.Context, unitID string, nm NewMembership) (Membership, error) {
	if err := svc.checkLastHead(ctx, unitID, nm.UserID, nm.Role == RoleLeaderHead); err != nil {
		return Membership{}, err
	}
	now := time.Now().UTC()
	m := Membership{
		UnitID:    unitID,
		UserID:    nm.UserID,
		Role:      nm.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.UpsertMembership(ctx, m)
}

func (svc *service) RemoveMembership(ctx context.Context, unitID, userID string) error {
	if err := svc.checkLastHead(ctx, unitID, userID, false); err != nil {
		return err
	}
	return svc.repo.DeleteMembership(ctx, unitID, userID)
}

// checkLastHead blocks demoting or removing a unit's only head leader.
// keepsHead is true when the change leaves userID as a head leader.
func (svc *service) checkLastHead(ctx context.Context, unitID, userID string, keepsHead bool) error {
	if keepsHead {
		return nil
	}
	m, err := svc.repo.GetMembership(ctx, unitID, userID)
	if err != nil {
		if err == ErrMembershipNotFound {
			return nil // new membership, nothing to demote
		}
		return errors.Wrap(err, "finding membership")
	}
	if !m.IsHead() {
		return nil
	}
	cnt, err := svc.repo.CountHeadLeaders(ctx, unitID)
	if err != nil {
		return errors.Wrap(err, "counting head leaders")
	}
	if cnt <= 1 {
		return core.NewValidationError(ErrLastHeadLeader, core.FieldError{Field: "role", Error: ErrLastHeadLeader.Error()})
	}
	return nil
}

// GetFilter selects a single Unit; the first non-empty field applies.
type GetFilter struct {
	ID   string
	Slug string
}
