package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/akela-hq/akela/core"
	"github.com/akela-hq/akela/core/unit"
)

type unitRepository struct {
	db *DB
}

var _ unit.Repository = (*unitRepository)(nil) // interface compliance check

func NewUnitRepository(db *DB) unit.Repository {
	return &unitRepository{db: db}
}

func (repo *unitRepository) CheckSlugUniqueness(_ context.Context, slug string, _ ...core.DBExecutor) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, un := range repo.db.units {
		if un.Slug == slug {
			return unit.ErrSlugExists
		}
	}
	return nil
}

func (repo *unitRepository) CreateUnit(_ context.Context, un unit.Unit, headMembership unit.Membership, _ ...core.DBExecutor) (unit.Unit, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	un.ID = uuid.NewString()
	repo.db.units[un.ID] = &un

	headMembership.ID = uuid.NewString()
	headMembership.UnitID = un.ID
	headMembership.CreatedAt, headMembership.UpdatedAt = un.CreatedAt, un.UpdatedAt
	repo.db.memberships[key(un.ID, headMembership.UserID)] = &headMembership
	return un, nil
}

func (repo *unitRepository) GetUnit(_ context.Context, filter unit.GetFilter, _ ...core.DBExecutor) (unit.Unit, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	switch {
	case filter.ID != "":
		if un, ok := repo.db.units[filter.ID]; ok {
			return *un, nil
		}
	case filter.Slug != "":
		for _, un := range repo.db.units {
			if un.Slug == filter.Slug {
				return *un, nil
			}
		}
	default:
		return unit.Unit{}, errors.New("empty unit filter")
	}
	return unit.Unit{}, unit.ErrNotFound
}

func (repo *unitRepository) QueryUnitsForUser(_ context.Context, userID string, _ ...core.DBExecutor) ([]unit.Unit, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var units []unit.Unit
	for _, m := range repo.db.memberships {
		if m.UserID == userID {
			if un, ok := repo.db.units[m.UnitID]; ok {
				units = append(units, *un)
			}
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Name < units[j].Name })
	return units, nil
}

func (repo *unitRepository) UpdateUnit(_ context.Context, un unit.Unit, _ ...core.DBExecutor) (unit.Unit, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.units[un.ID]; !ok {
		return unit.Unit{}, unit.ErrNotFound
	}
	un.UpdatedAt = time.Now().UTC()
	repo.db.units[un.ID] = &un
	return un, nil
}

func (repo *unitRepository) GetMembership(_ context.Context, unitID, userID string, _ ...core.DBExecutor) (unit.Membership, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if m, ok := repo.db.memberships[key(unitID, userID)]; ok {
		return repo.withUser(*m), nil
	}
	return unit.Membership{}, unit.ErrMembershipNotFound
}

func (repo *unitRepository) withUser(m unit.Membership) unit.Membership {
	if usr, ok := repo.db.users[m.UserID]; ok {
		m.UserName, m.UserEmail = usr.Name, usr.Email
	}
	return m
}

func (repo *unitRepository) QueryMemberships(_ context.Context, unitID string, _ ...core.DBExecutor) ([]unit.Membership, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var memberships []unit.Membership
	for _, m := range repo.db.memberships {
		if m.UnitID == unitID {
			memberships = append(memberships, repo.withUser(*m))
		}
	}
	sort.Slice(memberships, func(i, j int) bool {
		return strings.ToLower(memberships[i].UserName) < strings.ToLower(memberships[j].UserName)
	})
	return memberships, nil
}

func (repo *unitRepository) QueryMembershipsForUser(_ context.Context, userID string, _ ...core.DBExecutor) ([]unit.Membership, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var memberships []unit.Membership
	for _, m := range repo.db.memberships {
		if m.UserID == userID {
			memberships = append(memberships, repo.withUser(*m))
		}
	}
	return memberships, nil
}

func (repo *unitRepository) UpsertMembership(_ context.Context, m unit.Membership, _ ...core.DBExecutor) (unit.Membership, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	now := time.Now().UTC()
	if existing, ok := repo.db.memberships[key(m.UnitID, m.UserID)]; ok {
		existing.Role = m.Role
		existing.UpdatedAt = now
		return repo.withUser(*existing), nil
	}
	m.ID = uuid.NewString()
	m.CreatedAt, m.UpdatedAt = now, now
	repo.db.memberships[key(m.UnitID, m.UserID)] = &m
	return repo.withUser(m), nil
}

func (repo *unitRepository) DeleteMembership(_ context.Context, unitID, userID string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.memberships[key(unitID, userID)]; !ok {
		return unit.ErrMembershipNotFound
	}
	delete(repo.db.memberships, key(unitID, userID))
	return nil
}

func (repo *unitRepository) CountHeadLeaders(_ context.Context, unitID string, _ ...core.DBExecutor) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	for _, m := range repo.db.memberships {
		if m.UnitID == unitID && m.Role == unit.RoleLeaderHead {
			count++
		}
	}
	return count, nil
}
