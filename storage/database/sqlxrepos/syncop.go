package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/akela-hq/akela/core"
	"github.com/akela-hq/akela/core/member"
	"github.com/akela-hq/akela/core/meeting"
	"github.com/akela-hq/akela/core/syncop"
)

// syncRepository replays client ops through the regular member and meeting
// repositories, so sync writes go through exactly the same SQL as API writes.
type syncRepository struct {
	repoBase
	members  member.Repository
	meetings meeting.Repository
}

var _ syncop.Repository = (*syncRepository)(nil) // interface compliance check

func NewSyncRepository(db *sqlx.DB, members member.Repository, meetings meeting.Repository) *syncRepository {
	return &syncRepository{repoBase: repoBase{db: db}, members: members, meetings: meetings}
}

func (repo syncRepository) GetAppliedOp(ctx context.Context, opID string, exec ...core.DBExecutor) (syncop.AppliedOp, error) {
	query := rebind(`SELECT op_id, unit_id, user_id, entity, action, entity_id, status, detail, created_at
FROM sync_op WHERE op_id = ?`)

	var row struct {
		OpID      string      `db:"op_id"`
		UnitID    string      `db:"unit_id"`
		UserID    string      `db:"user_id"`
		Entity    string      `db:"entity"`
		Action    string      `db:"action"`
		EntityID  null.String `db:"entity_id"`
		Status    string      `db:"status"`
		Detail    string      `db:"detail"`
		CreatedAt time.Time   `db:"created_at"`
	}
	if err := repo.getExec(exec).GetContext(ctx, &row, query, opID); err != nil {
		if err == sql.ErrNoRows {
			return syncop.AppliedOp{}, syncop.ErrOpNotFound
		}
		return syncop.AppliedOp{}, errors.Wrap(err, "getting sync op")
	}
	return syncop.AppliedOp{
		OpID:      row.OpID,
		UnitID:    row.UnitID,
		UserID:    row.UserID,
		Entity:    row.Entity,
		Action:    row.Action,
		EntityID:  row.EntityID.String,
		Status:    row.Status,
		Detail:    row.Detail,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (repo syncRepository) RecordAppliedOp(ctx context.Context, rec syncop.AppliedOp, exec ...core.DBExecutor) error {
	query := rebind(`INSERT INTO sync_op (op_id, unit_id, user_id, entity, action, entity_id, status, detail, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (op_id) DO NOTHING`)
	_, err := repo.getExec(exec).ExecContext(ctx, query,
		rec.OpID, rec.UnitID, rec.UserID, rec.Entity, rec.Action,
		null.NewString(rec.EntityID, rec.EntityID != ""),
		rec.Status, rec.Detail, rec.CreatedAt.UTC(),
	)
	return errors.Wrap(err, "recording sync op")
}

func (repo syncRepository) EntityUpdatedAt(ctx context.Context, unitID, entity, entityID string, exec ...core.DBExecutor) (time.Time, error) {
	var query string
	args := []interface{}{entityID, unitID}
	switch entity {
	case syncop.EntityMember:
		query = "SELECT updated_at FROM member WHERE id = ? AND unit_id = ? AND deleted_at IS NULL"
	case syncop.EntityGuardian:
		query = "SELECT updated_at FROM guardian WHERE id = ? AND unit_id = ? AND deleted_at IS NULL"
	case syncop.EntityMeeting:
		query = "SELECT updated_at FROM meeting WHERE id = ? AND unit_id = ? AND deleted_at IS NULL"
	case syncop.EntityAttendance:
		// attendance rows key on the meeting; last mark wins per member
		query = `SELECT MAX(a.recorded_at) FROM attendance a
JOIN meeting mt ON mt.id = a.meeting_id
WHERE a.meeting_id = ? AND mt.unit_id = ?`
	default:
		return time.Time{}, errors.Errorf("unknown entity %q", entity)
	}

	var at null.Time
	if err := repo.getExec(exec).GetContext(ctx, &at, rebind(query), args...); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, syncop.ErrEntityNotFound
		}
		return time.Time{}, errors.Wrap(err, "getting entity version")
	}
	if !at.Valid {
		return time.Time{}, syncop.ErrEntityNotFound
	}
	return at.Time, nil
}

func (repo syncRepository) ApplyOp(ctx context.Context, unitID, userID string, op syncop.Op, exec ...core.DBExecutor) (string, error) {
	switch op.Entity {
	case syncop.EntityMember:
		return repo.applyMemberOp(ctx, unitID, op, exec...)
	case syncop.EntityGuardian:
		return repo.applyGuardianOp(ctx, unitID, op, exec...)
	case syncop.EntityMeeting:
		return repo.applyMeetingOp(ctx, unitID, userID, op, exec...)
	case syncop.EntityAttendance:
		return repo.applyAttendanceOp(ctx, unitID, userID, op, exec...)
	}
	return "", errors.Errorf("unknown entity %q", op.Entity)
}

func (repo syncRepository) applyMemberOp(ctx context.Context, unitID string, op syncop.Op, exec ...core.DBExecutor) (string, error) {
	switch op.Action {
	case syncop.ActionCreate:
		var mbr member.Member
		if err := json.Unmarshal(op.Payload, &mbr); err != nil {
			return "", errors.Wrap(err, "decoding member payload")
		}
		now := time.Now().UTC()
		mbr.UnitID = unitID
		mbr.SetActive(true)
		mbr.CreatedAt, mbr.UpdatedAt = now, now
		created, err := repo.members.CreateMember(ctx, mbr, exec...)
		return created.ID, err

	case syncop.ActionUpdate:
		existing, err := repo.members.GetMember(ctx, unitID, member.GetFilter{ID: op.EntityID}, exec...)
		if err != nil {
			return op.EntityID, err
		}
		if err = json.Unmarshal(op.Payload, &existing); err != nil {
			return op.EntityID, errors.Wrap(err, "decoding member payload")
		}
		existing.ID, existing.UnitID = op.EntityID, unitID
		_, err = repo.members.UpdateMember(ctx, existing, exec...)
		return op.EntityID, err

	case syncop.ActionDelete:
		_, err := repo.members.DeleteMembersByID(ctx, unitID, []string{op.EntityID}, exec...)
		return op.EntityID, err
	}
	return "", errors.Errorf("unknown action %q", op.Action)
}

func (repo syncRepository) applyGuardianOp(ctx context.Context, unitID string, op syncop.Op, exec ...core.DBExecutor) (string, error) {
	switch op.Action {
	case syncop.ActionCreate:
		var grd member.Guardian
		if err := json.Unmarshal(op.Payload, &grd); err != nil {
			return "", errors.Wrap(err, "decoding guardian payload")
		}
		now := time.Now().UTC()
		grd.UnitID = unitID
		grd.CreatedAt, grd.UpdatedAt = now, now
		created, err := repo.members.CreateGuardian(ctx, grd, exec...)
		return created.ID, err

	case syncop.ActionUpdate:
		existing, err := repo.members.GetGuardian(ctx, unitID, member.GuardianGetFilter{ID: op.EntityID}, exec...)
		if err != nil {
			return op.EntityID, err
		}
		if err = json.Unmarshal(op.Payload, &existing); err != nil {
			return op.EntityID, errors.Wrap(err, "decoding guardian payload")
		}
		existing.ID, existing.UnitID = op.EntityID, unitID
		_, err = repo.members.UpdateGuardian(ctx, existing, exec...)
		return op.EntityID, err

	case syncop.ActionDelete:
		return op.EntityID, repo.members.DeleteGuardian(ctx, unitID, op.EntityID, exec...)
	}
	return "", errors.Errorf("unknown action %q", op.Action)
}

func (repo syncRepository) applyMeetingOp(ctx context.Context, unitID, userID string, op syncop.Op, exec ...core.DBExecutor) (string, error) {
	switch op.Action {
	case syncop.ActionCreate:
		var mtg meeting.Meeting
		if err := json.Unmarshal(op.Payload, &mtg); err != nil {
			return "", errors.Wrap(err, "decoding meeting payload")
		}
		now := time.Now().UTC()
		mtg.UnitID = unitID
		mtg.CreatedBy = userID
		if mtg.Status == "" {
			mtg.Status = meeting.StatusPlanned
		}
		mtg.CreatedAt, mtg.UpdatedAt = now, now
		created, err := repo.meetings.CreateMeeting(ctx, mtg, exec...)
		return created.ID, err

	case syncop.ActionUpdate:
		existing, err := repo.meetings.GetMeeting(ctx, unitID, op.EntityID, exec...)
		if err != nil {
			return op.EntityID, err
		}
		if err = json.Unmarshal(op.Payload, &existing); err != nil {
			return op.EntityID, errors.Wrap(err, "decoding meeting payload")
		}
		existing.ID, existing.UnitID = op.EntityID, unitID
		_, err = repo.meetings.UpdateMeeting(ctx, existing, exec...)
		return op.EntityID, err

	case syncop.ActionDelete:
		return op.EntityID, repo.meetings.DeleteMeeting(ctx, unitID, op.EntityID, exec...)
	}
	return "", errors.Errorf("unknown action %q", op.Action)
}

func (repo syncRepository) applyAttendanceOp(ctx context.Context, unitID, userID string, op syncop.Op, exec ...core.DBExecutor) (string, error) {
	// attendance ops address the meeting; the payload lists marks
	var payload struct {
		Marks []struct {
			MemberID string `json:"member_id"`
			Status   string `json:"status"`
		} `json:"marks"`
	}
	if err := json.Unmarshal(op.Payload, &payload); err != nil {
		return op.EntityID, errors.Wrap(err, "decoding attendance payload")
	}
	if _, err := repo.meetings.GetMeeting(ctx, unitID, op.EntityID, exec...); err != nil {
		return op.EntityID, err
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
	return op.EntityID, repo.meetings.UpsertAttendance(ctx, op.EntityID, marks, exec...)
}

type changeRow struct {
	EntityID  string          `db:"entity_id"`
	Payload   json.RawMessage `db:"payload"`
	Deleted   bool            `db:"deleted"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func (repo syncRepository) QueryChanges(ctx context.Context, unitID string, since time.Time, exec ...core.DBExecutor) ([]syncop.Change, error) {
	queries := []struct {
		entity string
		query  string
	}{
		{syncop.EntityMember, `SELECT id AS entity_id, row_to_json(member)::jsonb - 'deleted_at' AS payload,
deleted_at IS NOT NULL AS deleted, updated_at
FROM member WHERE unit_id = ? AND updated_at > ?`},
		{syncop.EntityGuardian, `SELECT id AS entity_id, row_to_json(guardian)::jsonb - 'deleted_at' AS payload,
deleted_at IS NOT NULL AS deleted, updated_at
FROM guardian WHERE unit_id = ? AND updated_at > ?`},
		{syncop.EntityMeeting, `SELECT id AS entity_id, row_to_json(meeting)::jsonb - 'deleted_at' AS payload,
deleted_at IS NOT NULL AS deleted, updated_at
FROM meeting WHERE unit_id = ? AND updated_at > ?`},
		{syncop.EntityAttendance, `SELECT a.meeting_id AS entity_id, json_agg(json_build_object('member_id', a.member_id, 'status', a.status)) AS payload,
false AS deleted, MAX(a.recorded_at) AS updated_at
FROM attendance a
JOIN meeting mt ON mt.id = a.meeting_id
WHERE mt.unit_id = ? AND a.recorded_at > ?
GROUP BY a.meeting_id`},
	}

	var changes []syncop.Change
	for _, q := range queries {
		var rows []changeRow
		if err := repo.getExec(exec).SelectContext(ctx, &rows, rebind(q.query), unitID, since.UTC()); err != nil {
			return nil, errors.Wrapf(err, "querying %s changes", q.entity)
		}
		for _, row := range rows {
			changes = append(changes, syncop.Change{
				Entity:    q.entity,
				EntityID:  row.EntityID,
				Payload:   row.Payload,
				Deleted:   row.Deleted,
				UpdatedAt: row.UpdatedAt,
			})
		}
	}
	return changes, nil
}
