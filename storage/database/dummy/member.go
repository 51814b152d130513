package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/akela-hq/akela/core"
	"github.com/akela-hq/akela/core/member"
)

type memberRepository struct {
	db *DB
}

var _ member.Repository = (*memberRepository)(nil) // interface compliance check

func NewMemberRepository(db *DB) member.Repository {
	return &memberRepository{db: db}
}

func (repo *memberRepository) CreateMember(_ context.Context, mbr member.Member, _ ...core.DBExecutor) (member.Member, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	mbr.ID = uuid.NewString()
	repo.db.members[mbr.ID] = &mbr
	return mbr, nil
}

func (repo *memberRepository) GetMember(_ context.Context, unitID string, filter member.GetFilter, _ ...core.DBExecutor) (member.Member, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, mbr := range repo.db.members {
		if mbr.UnitID != unitID {
			continue
		}
		switch {
		case filter.ID != "":
			if mbr.ID == filter.ID {
				return *mbr, nil
			}
		case filter.CensusID != "":
			if mbr.CensusID == filter.CensusID {
				return *mbr, nil
			}
		case filter.Name != "" && !filter.BirthDate.IsZero():
			if strings.EqualFold(mbr.Name, filter.Name) && mbr.BirthDate.Equal(filter.BirthDate) {
				return *mbr, nil
			}
		default:
			return member.Member{}, errors.New("empty member filter")
		}
	}
	return member.Member{}, member.ErrNotFound
}

func (repo *memberRepository) QueryMembers(_ context.Context, unitID string, filter *member.QueryFilter, _ []core.DBOrdering, _ ...core.DBExecutor) ([]member.Member, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var members []member.Member
	for _, mbr := range repo.db.members {
		if mbr.UnitID != unitID {
			continue
		}
		if filter != nil {
			if filter.Search != "" {
				search := strings.ToLower(filter.Search)
				if !strings.Contains(strings.ToLower(mbr.Name), search) &&
					!strings.Contains(strings.ToLower(mbr.CensusID), search) {
					continue
				}
			}
			if filter.Group != "" && mbr.Group != filter.Group {
				continue
			}
			if filter.IsActive != nil && mbr.Active() != *filter.IsActive {
				continue
			}
		}
		members = append(members, *mbr)
	}
	sort.Slice(members, func(i, j int) bool {
		return strings.ToLower(members[i].Name) < strings.ToLower(members[j].Name)
	})
	return members, nil
}

func (repo *memberRepository) UpdateMember(_ context.Context, mbr member.Member, _ ...core.DBExecutor) (member.Member, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	existing, ok := repo.db.members[mbr.ID]
	if !ok || existing.UnitID != mbr.UnitID {
		return member.Member{}, member.ErrNotFound
	}
	mbr.UpdatedAt = time.Now().UTC()
	repo.db.members[mbr.ID] = &mbr
	return mbr, nil
}

func (repo *memberRepository) DeleteMembersByID(_ context.Context, unitID string, ids []string, _ ...core.DBExecutor) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var n int
	for _, id := range ids {
		if mbr, ok := repo.db.members[id]; ok && mbr.UnitID == unitID {
			delete(repo.db.members, id)
			n++
		}
	}
	return n, nil
}

func (repo *memberRepository) CensusIDTakenElsewhere(_ context.Context, unitID, censusID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, mbr := range repo.db.members {
		if mbr.CensusID == censusID && mbr.UnitID != unitID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *memberRepository) CreateGuardian(_ context.Context, grd member.Guardian, _ ...core.DBExecutor) (member.Guardian, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	grd.ID = uuid.NewString()
	repo.db.guardians[grd.ID] = &grd
	return grd, nil
}

func (repo *memberRepository) GetGuardian(_ context.Context, unitID string, filter member.GuardianGetFilter, _ ...core.DBExecutor) (member.Guardian, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, grd := range repo.db.guardians {
		if grd.UnitID != unitID {
			continue
		}
		switch {
		case filter.ID != "":
			if grd.ID == filter.ID {
				return *grd, nil
			}
		case filter.Email != "":
			if strings.EqualFold(grd.Email, filter.Email) {
				return *grd, nil
			}
		default:
			return member.Guardian{}, errors.New("empty guardian filter")
		}
	}
	return member.Guardian{}, member.ErrGuardianNotFound
}

func (repo *memberRepository) QueryGuardians(_ context.Context, unitID, search string, _ ...core.DBExecutor) ([]member.Guardian, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var guardians []member.Guardian
	for _, grd := range repo.db.guardians {
		if grd.UnitID != unitID {
			continue
		}
		if search != "" {
			s := strings.ToLower(search)
			if !strings.Contains(strings.ToLower(grd.Name), s) &&
				!strings.Contains(strings.ToLower(grd.Email), s) &&
				!strings.Contains(grd.Phone, s) {
				continue
			}
		}
		guardians = append(guardians, *grd)
	}
	sort.Slice(guardians, func(i, j int) bool {
		return strings.ToLower(guardians[i].Name) < strings.ToLower(guardians[j].Name)
	})
	return guardians, nil
}

func (repo *memberRepository) UpdateGuardian(_ context.Context, grd member.Guardian, _ ...core.DBExecutor) (member.Guardian, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	existing, ok := repo.db.guardians[grd.ID]
	if !ok || existing.UnitID != grd.UnitID {
		return member.Guardian{}, member.ErrGuardianNotFound
	}
	grd.UpdatedAt = time.Now().UTC()
	repo.db.guardians[grd.ID] = &grd
	return grd, nil
}

func (repo *memberRepository) DeleteGuardian(_ context.Context, unitID, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if grd, ok := repo.db.guardians[id]; ok && grd.UnitID == unitID {
		delete(repo.db.guardians, id)
		return nil
	}
	return member.ErrGuardianNotFound
}

func (repo *memberRepository) LinkGuardian(_ context.Context, link member.GuardianLink, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.links[key(link.MemberID, link.GuardianID)] = &link
	return nil
}

func (repo *memberRepository) UnlinkGuardian(_ context.Context, memberID, guardianID string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	delete(repo.db.links, key(memberID, guardianID))
	return nil
}

func (repo *memberRepository) QueryGuardiansForMember(_ context.Context, memberID string, _ ...core.DBExecutor) ([]member.Guardian, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var guardians []member.Guardian
	for _, link := range repo.db.links {
		if link.MemberID != memberID {
			continue
		}
		if grd, ok := repo.db.guardians[link.GuardianID]; ok {
			g := *grd
			g.Relationship = link.Relationship
			guardians = append(guardians, g)
		}
	}
	sort.Slice(guardians, func(i, j int) bool {
		return strings.ToLower(guardians[i].Name) < strings.ToLower(guardians[j].Name)
	})
	return guardians, nil
}

func (repo *memberRepository) QueryMembersForGuardian(_ context.Context, guardianID string, _ ...core.DBExecutor) ([]member.Member, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var members []member.Member
	for _, link := range repo.db.links {
		if link.GuardianID != guardianID {
			continue
		}
		if mbr, ok := repo.db.members[link.MemberID]; ok {
			members = append(members, *mbr)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		return strings.ToLower(members[i].Name) < strings.ToLower(members[j].Name)
	})
	return members, nil
}
