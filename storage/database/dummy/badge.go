package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/akela-hq/akela/core"
	"github.com/akela-hq/akela/core/badge"
)

type badgeRepository struct {
	db *DB
}

var _ badge.Repository = (*badgeRepository)(nil) // interface compliance check

func NewBadgeRepository(db *DB) badge.Repository {
	return &badgeRepository{db: db}
}

func (repo *badgeRepository) CheckCodeUniqueness(_ context.Context, code string, _ ...core.DBExecutor) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, bdg := range repo.db.badges {
		if bdg.Code == code {
			return badge.ErrCodeExists
		}
	}
	return nil
}

func (repo *badgeRepository) CreateBadge(_ context.Context, bdg badge.Badge, _ ...core.DBExecutor) (badge.Badge, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	bdg.ID = uuid.NewString()
	repo.db.badges[bdg.ID] = &bdg
	return bdg, nil
}

func (repo *badgeRepository) GetBadge(_ context.Context, filter badge.GetFilter, _ ...core.DBExecutor) (badge.Badge, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	switch {
	case filter.ID != "":
		if bdg, ok := repo.db.badges[filter.ID]; ok {
			return *bdg, nil
		}
	case filter.Code != "":
		for _, bdg := range repo.db.badges {
			if bdg.Code == filter.Code {
				return *bdg, nil
			}
		}
	default:
		return badge.Badge{}, errors.New("empty badge filter")
	}
	return badge.Badge{}, badge.ErrNotFound
}

func (repo *badgeRepository) QueryBadges(_ context.Context, section string, _ ...core.DBExecutor) ([]badge.Badge, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var badges []badge.Badge
	for _, bdg := range repo.db.badges {
		if section != "" && bdg.Section != section {
			continue
		}
		badges = append(badges, *bdg)
	}
	sort.Slice(badges, func(i, j int) bool { return badges[i].Code < badges[j].Code })
	return badges, nil
}

func (repo *badgeRepository) UpdateBadge(_ context.Context, bdg badge.Badge, _ ...core.DBExecutor) (badge.Badge, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.badges[bdg.ID]; !ok {
		return badge.Badge{}, badge.ErrNotFound
	}
	repo.db.badges[bdg.ID] = &bdg
	return bdg, nil
}

func (repo *badgeRepository) DeleteBadge(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.badges[id]; !ok {
		return badge.ErrNotFound
	}
	delete(repo.db.badges, id)
	return nil
}

func (repo *badgeRepository) UpsertAward(_ context.Context, unitID string, awd badge.Award, _ ...core.DBExecutor) (badge.Award, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	mbr, ok := repo.db.members[awd.MemberID]
	if !ok || mbr.UnitID != unitID {
		return badge.Award{}, badge.ErrMemberNotInUnit
	}

	k := key(awd.MemberID, awd.BadgeID)
	if existing, ok := repo.db.awards[k]; ok {
		existing.AwardedBy = awd.AwardedBy
		existing.AwardedAt = awd.AwardedAt
		existing.Note = awd.Note
		return repo.decorate(*existing), nil
	}
	awd.ID = uuid.NewString()
	repo.db.awards[k] = &awd
	return repo.decorate(awd), nil
}

func (repo *badgeRepository) decorate(awd badge.Award) badge.Award {
	if bdg, ok := repo.db.badges[awd.BadgeID]; ok {
		awd.BadgeCode, awd.BadgeName = bdg.Code, bdg.Name
	}
	if mbr, ok := repo.db.members[awd.MemberID]; ok {
		awd.MemberName = mbr.Name
	}
	return awd
}

func (repo *badgeRepository) DeleteAward(_ context.Context, unitID, memberID, badgeID string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if mbr, ok := repo.db.members[memberID]; !ok || mbr.UnitID != unitID {
		return badge.ErrAwardNotFound
	}
	k := key(memberID, badgeID)
	if _, ok := repo.db.awards[k]; !ok {
		return badge.ErrAwardNotFound
	}
	delete(repo.db.awards, k)
	return nil
}

func (repo *badgeRepository) QueryAwardsForMember(_ context.Context, unitID, memberID string, _ ...core.DBExecutor) ([]badge.Award, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var awards []badge.Award
	for _, awd := range repo.db.awards {
		if awd.MemberID != memberID {
			continue
		}
		if mbr, ok := repo.db.members[memberID]; !ok || mbr.UnitID != unitID {
			continue
		}
		awards = append(awards, repo.decorate(*awd))
	}
	sort.Slice(awards, func(i, j int) bool { return awards[i].AwardedAt.After(awards[j].AwardedAt) })
	return awards, nil
}

func (repo *badgeRepository) QueryAwardsForUnit(_ context.Context, unitID string, limit int, _ ...core.DBExecutor) ([]badge.Award, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var awards []badge.Award
	for _, awd := range repo.db.awards {
		mbr, ok := repo.db.members[awd.MemberID]
		if !ok || mbr.UnitID != unitID {
			continue
		}
		awards = append(awards, repo.decorate(*awd))
	}
	sort.Slice(awards, func(i, j int) bool { return awards[i].AwardedAt.After(awards[j].AwardedAt) })
	if limit > 0 && len(awards) > limit {
		awards = awards[:limit]
	}
	return awards, nil
}
