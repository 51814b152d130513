package dummydb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/akela-hq/akela/core"
	"github.com/akela-hq/akela/core/member"
	"github.com/akela-hq/akela/core/meeting"
	"github.com/akela-hq/akela/core/syncop"
)

type syncRepository struct {
	db       *DB
	members  member.Repository
	meetings meeting.Repository
}

var _ syncop.Repository = (*syncRepository)(nil) // interface compliance check

func NewSyncRepository(db *DB, members member.Repository, meetings meeting.Repository) syncop.Repository {
	return &syncRepository{db: db, members: members, meetings: meetings}
}

func (repo *syncRepository) GetAppliedOp(_ context.Context, opID string, _ ...core.DBExecutor) (syncop.AppliedOp, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rec, ok := repo.db.syncOps[opID]; ok {
		return *rec, nil
	}
	return syncop.AppliedOp{}, syncop.ErrOpNotFound
}

func (repo *syncRepository) RecordAppliedOp(_ context.Context, rec syncop.AppliedOp, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.syncOps[rec.OpID]; !ok {
		repo.db.syncOps[rec.OpID] = &rec
	}
	return nil
}

func (repo *syncRepository) EntityUpdatedAt(_ context.Context, unitID, entity, entityID string, _ ...core.DBExecutor) (time.Time, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	switch entity {
	case syncop.EntityMember:
		if mbr, ok := repo.db.members[entityID]; ok && mbr.UnitID == unitID {
			return mbr.UpdatedAt, nil
		}
	case syncop.EntityGuardian:
		if grd, ok := repo.db.guardians[entityID]; ok && grd.UnitID == unitID {
			return grd.UpdatedAt, nil
		}
	case syncop.EntityMeeting:
		if mtg, ok := repo.db.meetings[entityID]; ok && mtg.UnitID == unitID {
			return mtg.UpdatedAt, nil
		}
	case syncop.EntityAttendance:
		var latest time.Time
		for _, mark := range repo.db.attendance {
			if mark.MeetingID == entityID && mark.RecordedAt.After(latest) {
				latest = mark.RecordedAt
			}
		}
		if !latest.IsZero() {
			return latest, nil
		}
	default:
		return time.Time{}, errors.Errorf("unknown entity %q", entity)
	}
	return time.Time{}, syncop.ErrEntityNotFound
}

func (repo *syncRepository) ApplyOp(ctx context.Context, unitID, userID string, op syncop.Op, _ ...core.DBExecutor) (string, error) {
	switch op.Entity {
	case syncop.EntityMember:
		switch op.Action {
		case syncop.ActionCreate:
			var mbr member.Member
			if err := json.Unmarshal(op.Payload, &mbr); err != nil {
				return "", errors.Wrap(err, "decoding member payload")
			}
			mbr.UnitID = unitID
			mbr.SetActive(true)
			created, err := repo.members.CreateMember(ctx, mbr)
			return created.ID, err
		case syncop.ActionUpdate:
			existing, err := repo.members.GetMember(ctx, unitID, member.GetFilter{ID: op.EntityID})
			if err != nil {
				return op.EntityID, err
			}
			if err = json.Unmarshal(op.Payload, &existing); err != nil {
				return op.EntityID, errors.Wrap(err, "decoding member payload")
			}
			existing.ID, existing.UnitID = op.EntityID, unitID
			_, err = repo.members.UpdateMember(ctx, existing)
			return op.EntityID, err
		case syncop.ActionDelete:
			_, err := repo.members.DeleteMembersByID(ctx, unitID, []string{op.EntityID})
			return op.EntityID, err
		}

	case syncop.EntityGuardian:
		switch op.Action {
		case syncop.ActionCreate:
			var grd member.Guardian
			if err := json.Unmarshal(op.Payload, &grd); err != nil {
				return "", errors.Wrap(err, "decoding guardian payload")
			}
			grd.UnitID = unitID
			created, err := repo.members.CreateGuardian(ctx, grd)
			return created.ID, err
		case syncop.ActionUpdate:
			existing, err := repo.members.GetGuardian(ctx, unitID, member.GuardianGetFilter{ID: op.EntityID})
			if err != nil {
				return op.EntityID, err
			}
			if err = json.Unmarshal(op.Payload, &existing); err != nil {
				return op.EntityID, errors.Wrap(err, "decoding guardian payload")
			}
			existing.ID, existing.UnitID = op.EntityID, unitID
			_, err = repo.members.UpdateGuardian(ctx, existing)
			return op.EntityID, err
		case syncop.ActionDelete:
			return op.EntityID, repo.members.DeleteGuardian(ctx, unitID, op.EntityID)
		}

	case syncop.EntityMeeting:
		switch op.Action {
		case syncop.ActionCreate:
			var mtg meeting.Meeting
			if err := json.Unmarshal(op.Payload, &mtg); err != nil {
				return "", errors.Wrap(err, "decoding meeting payload")
			}
			mtg.UnitID = unitID
			mtg.CreatedBy = userID
			if mtg.Status == "" {
				mtg.Status = meeting.StatusPlanned
			}
			created, err := repo.meetings.CreateMeeting(ctx, mtg)
			return created.ID, err
		case syncop.ActionUpdate:
			existing, err := repo.meetings.GetMeeting(ctx, unitID, op.EntityID)
			if err != nil {
				return op.EntityID, err
			}
			if err = json.Unmarshal(op.Payload, &existing); err != nil {
				return op.EntityID, errors.Wrap(err, "decoding meeting payload")
			}
			existing.ID, existing.UnitID = op.EntityID, unitID
			_, err = repo.meetings.UpdateMeeting(ctx, existing)
			return op.EntityID, err
		case syncop.ActionDelete:
			return op.EntityID, repo.meetings.DeleteMeeting(ctx, unitID, op.EntityID)
		}

	case syncop.EntityAttendance:
		var payload struct {
			Marks []struct {
				MemberID string `json:"member_id"`
				Status   string `json:"status"`
			} `json:"marks"`
		}
		if err := json.Unmarshal(op.Payload, &payload); err != nil {
			return op.EntityID, errors.Wrap(err, "decoding attendance payload")
		}
		now := time.Now().UTC()
		marks := make([]meeting.Attendance, 0, len(payload.Marks))
		for _, m := range payload.Marks {
			marks = append(marks, meeting.Attendance{
				MeetingID:  op.EntityID,
				MemberID:   m.MemberID,
				Status:     m.Status,
				RecordedBy: userID,
				RecordedAt: now,
			})
		}
		return op.EntityID, repo.meetings.UpsertAttendance(ctx, op.EntityID, marks)
	}
	return "", errors.Errorf("unknown op %s/%s", op.Entity, op.Action)
}

func (repo *syncRepository) QueryChanges(_ context.Context, unitID string, since time.Time, _ ...core.DBExecutor) ([]syncop.Change, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var changes []syncop.Change
	for _, mbr := range repo.db.members {
		if mbr.UnitID == unitID && mbr.UpdatedAt.After(since) {
			payload, _ := json.Marshal(mbr)
			changes = append(changes, syncop.Change{
				Entity:    syncop.EntityMember,
				EntityID:  mbr.ID,
				Payload:   payload,
				UpdatedAt: mbr.UpdatedAt,
			})
		}
	}
	for _, grd := range repo.db.guardians {
		if grd.UnitID == unitID && grd.UpdatedAt.After(since) {
			payload, _ := json.Marshal(grd)
			changes = append(changes, syncop.Change{
				Entity:    syncop.EntityGuardian,
				EntityID:  grd.ID,
				Payload:   payload,
				UpdatedAt: grd.UpdatedAt,
			})
		}
	}
	for _, mtg := range repo.db.meetings {
		if mtg.UnitID == unitID && mtg.UpdatedAt.After(since) {
			payload, _ := json.Marshal(mtg)
			changes = append(changes, syncop.Change{
				Entity:    syncop.EntityMeeting,
				EntityID:  mtg.ID,
				Payload:   payload,
				UpdatedAt: mtg.UpdatedAt,
			})
		}
	}
	return changes, nil
}
