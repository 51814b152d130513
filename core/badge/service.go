package badge

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/akela-hq/akela/core"
)

var (
	// errors
	ErrNotFound        = errors.New("badge not found")
	ErrAwardNotFound   = errors.New("award not found")
	ErrCodeExists      = errors.New("a badge with this code already exists")
	ErrMemberNotInUnit = errors.New("member does not belong to this unit")
)

type (
	Repository interface {
		CheckCodeUniqueness(ctx context.Context, code string, exec ...core.DBExecutor) error
		CreateBadge(ctx context.Context, bdg Badge, exec ...core.DBExecutor) (Badge, error)
		GetBadge(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Badge, error)
		QueryBadges(ctx context.Context, section string, exec ...core.DBExecutor) ([]Badge, error)
		UpdateBadge(ctx context.Context, bdg Badge, exec ...core.DBExecutor) (Badge, error)
		DeleteBadge(ctx context.Context, id string, exec ...core.DBExecutor) error

		// UpsertAward keeps one row per (member, badge); re-award updates date and note.
		// Awards for members outside unitID fail with ErrMemberNotInUnit.
		UpsertAward(ctx context.Context, unitID string, awd Award, exec ...core.DBExecutor) (Award, error)
		DeleteAward(ctx context.Context, unitID, memberID, badgeID string, exec ...core.DBExecutor) error
		QueryAwardsForMember(ctx context.Context, unitID, memberID string, exec ...core.DBExecutor) ([]Award, error)
		QueryAwardsForUnit(ctx context.Context, unitID string, limit int, exec ...core.DBExecutor) ([]Award, error)
	}

	Service interface {
		CheckCodeUniqueness(ctx context.Context, code string) error
		Create(ctx context.Context, nb NewBadge) (Badge, error)
		GetByID(ctx context.Context, id string) (Badge, error)
		Query(ctx context.Context, section string) ([]Badge, error)
		Update(ctx context.Context, id string, ub UpdateBadge) (Badge, error)
		Delete(ctx context.Context, id string) error

		Award(ctx context.Context, unitID, awardedBy string, na NewAward) (Award, error)
		Revoke(ctx context.Context, unitID, memberID, badgeID string) error
		MemberAwards(ctx context.Context, unitID, memberID string) ([]Award, error)
		RecentAwards(ctx context.Context, unitID string, limit int) ([]Award, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) CheckCodeUniqueness(ctx context.Context, code string) error {
	if err := svc.repo.CheckCodeUniqueness(ctx, code); err != nil {
		if err == ErrCodeExists {
			return core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nb NewBadge) (Badge, error) {
	if err := svc.CheckCodeUniqueness(ctx, nb.Code); err != nil {
		return Badge{}, err
	}
	now := time.Now().UTC()
	bdg := Badge{
		Code:        nb.Code,
		Name:        nb.Name,
		Section:     nb.Section,
		Description: nb.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateBadge(ctx, bdg)
}

func (svc *service) GetByID(ctx context.Context, id string) (Badge, error) {
	return svc.repo.GetBadge(ctx, GetFilter{ID: id})
}

func (svc *service) Query(ctx context.Context, section string) ([]Badge, error) {
	return svc.repo.QueryBadges(ctx, core.CleanString(section, true /* lower */))
}

func (svc *service) Update(ctx context.Context, id string, ub UpdateBadge) (Badge, error) {
	orig, err := svc.repo.GetBadge(ctx, GetFilter{ID: id})
	if err != nil {
		return Badge{}, err
	}
	bdg := orig
	bdg.Name = ub.Name
	if ub.Description != nil {
		bdg.Description = *ub.Description
	}
	bdg.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateBadge(ctx, bdg)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteBadge(ctx, id)
}

func (svc *service) Award(ctx context.Context, unitID, awardedBy string, na NewAward) (Award, error) {
	if _, err := svc.repo.GetBadge(ctx, GetFilter{ID: na.BadgeID}); err != nil {
		return Award{}, err
	}
	awardedAt := time.Now().UTC()
	if na.AwardedAt != nil {
		awardedAt = na.AwardedAt.UTC()
	}
	awd := Award{
		MemberID:  na.MemberID,
		BadgeID:   na.BadgeID,
		AwardedBy: awardedBy,
		AwardedAt: awardedAt,
		Note:      na.Note,
	}
	return svc.repo.UpsertAward(ctx, unitID, awd)
}

func (svc *service) Revoke(ctx context.Context, unitID, memberID, badgeID string) error {
	return svc.repo.DeleteAward(ctx, unitID, memberID, badgeID)
}

func (svc *service) MemberAwards(ctx context.Context, unitID, memberID string) ([]Award, error) {
	return svc.repo.QueryAwardsForMember(ctx, unitID, memberID)
}

func (svc *service) RecentAwards(ctx context.Context, unitID string, limit int) ([]Award, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return svc.repo.QueryAwardsForUnit(ctx, unitID, limit)
}

// GetFilter selects a single Badge; the first non-empty field applies.
type GetFilter struct {
	ID   string
	Code string
}
