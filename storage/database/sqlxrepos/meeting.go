package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/akela-hq/akela/core"
	"github.com/akela-hq/akela/core/meeting"
)

const meetingColumns = `id, unit_id, title, starts_at, ends_at, location, program, status, created_by, created_at, updated_at`

type meetingRow struct {
	ID        string      `db:"id"`
	UnitID    string      `db:"unit_id"`
	Title     string      `db:"title"`
	StartsAt  time.Time   `db:"starts_at"`
	EndsAt    null.Time   `db:"ends_at"`
	Location  string      `db:"location"`
	Program   string      `db:"program"`
	Status    string      `db:"status"`
	CreatedBy null.String `db:"created_by"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func (r meetingRow) toMeeting() meeting.Meeting {
	return meeting.Meeting{
		ID:        r.ID,
		UnitID:    r.UnitID,
		Title:     r.Title,
		StartsAt:  r.StartsAt,
		EndsAt:    r.EndsAt.Time,
		Location:  r.Location,
		Program:   r.Program,
		Status:    r.Status,
		CreatedBy: r.CreatedBy.String,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type checklistItemRow struct {
	ID        string `db:"id"`
	MeetingID string `db:"meeting_id"`
	Label     string `db:"label"`
	Done      bool   `db:"done"`
	Position  int    `db:"position"`
}

func (r checklistItemRow) toItem() meeting.ChecklistItem {
	return meeting.ChecklistItem(r)
}

type attendanceRow struct {
	MeetingID  string      `db:"meeting_id"`
	MemberID   string      `db:"member_id"`
	Status     string      `db:"status"`
	RecordedBy null.String `db:"recorded_by"`
	RecordedAt time.Time   `db:"recorded_at"`
	MemberName string      `db:"member_name"`
}

func (r attendanceRow) toAttendance() meeting.Attendance {
	return meeting.Attendance{
		MeetingID:  r.MeetingID,
		MemberID:   r.MemberID,
		Status:     r.Status,
		RecordedBy: r.RecordedBy.String,
		RecordedAt: r.RecordedAt,
		MemberName: r.MemberName,
	}
}

type meetingRepository struct {
	repoBase
}

var _ meeting.Repository = (*meetingRepository)(nil) // interface compliance check

func NewMeetingRepository(db *sqlx.DB) *meetingRepository {
	return &meetingRepository{repoBase{db: db}}
}

func (repo meetingRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return meeting.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo meetingRepository) CreateMeeting(ctx context.Context, mtg meeting.Meeting, exec ...core.DBExecutor) (meeting.Meeting, error) {
	mtg.ID = uuid.NewString()

	insertMeeting := rebind(`INSERT INTO meeting
(id, unit_id, title, starts_at, ends_at, location, program, status, created_by, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	run := func(e core.DBExecutor) error {
		_, err := e.ExecContext(ctx, insertMeeting,
			mtg.ID, mtg.UnitID, mtg.Title, mtg.StartsAt.UTC(),
			null.NewTime(mtg.EndsAt.UTC(), !mtg.EndsAt.IsZero()),
			mtg.Location, mtg.Program, mtg.Status,
			null.NewString(mtg.CreatedBy, mtg.CreatedBy != ""),
			mtg.CreatedAt.UTC(), mtg.UpdatedAt.UTC(),
		)
		if err != nil {
			return errors.Wrap(err, "inserting meeting")
		}
		for i := range mtg.Checklist {
			mtg.Checklist[i].ID = uuid.NewString()
			mtg.Checklist[i].MeetingID = mtg.ID
			mtg.Checklist[i].Position = i
			if err = repo.insertChecklistItem(ctx, e, mtg.Checklist[i]); err != nil {
				return err
			}
		}
		return nil
	}

	if len(exec) > 0 {
		if err := run(exec[0]); err != nil {
			return meeting.Meeting{}, err
		}
		return mtg, nil
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return meeting.Meeting{}, errors.Wrap(err, "beginning transaction")
	}
	if err = run(tx); err != nil {
		_ = tx.Rollback()
		return meeting.Meeting{}, err
	}
	if err = tx.Commit(); err != nil {
		return meeting.Meeting{}, errors.Wrap(err, "committing transaction")
	}
	return mtg, nil
}

func (repo meetingRepository) insertChecklistItem(ctx context.Context, e core.DBExecutor, item meeting.ChecklistItem) error {
	query := rebind(`INSERT INTO meeting_checklist_item (id, meeting_id, label, done, position) VALUES (?, ?, ?, ?, ?)`)
	_, err := e.ExecContext(ctx, query, item.ID, item.MeetingID, item.Label, item.Done, item.Position)
	return errors.Wrap(err, "inserting checklist item")
}

func (repo meetingRepository) GetMeeting(ctx context.Context, unitID, id string, exec ...core.DBExecutor) (meeting.Meeting, error) {
	query := rebind(`SELECT ` + meetingColumns + ` FROM meeting WHERE id = ? AND unit_id = ? AND deleted_at IS NULL`)

	var row meetingRow
	if err := repo.getExec(exec).GetContext(ctx, &row, query, id, unitID); err != nil {
		return meeting.Meeting{}, repo.trapNoRowsErr(err, "getting meeting")
	}
	mtg := row.toMeeting()

	itemsQuery := rebind(`SELECT id, meeting_id, label, done, position FROM meeting_checklist_item
WHERE meeting_id = ? ORDER BY position ASC`)
	var items []checklistItemRow
	if err := repo.getExec(exec).SelectContext(ctx, &items, itemsQuery, id); err != nil {
		return meeting.Meeting{}, errors.Wrap(err, "getting checklist")
	}
	for _, item := range items {
		mtg.Checklist = append(mtg.Checklist, item.toItem())
	}
	return mtg, nil
}

func (repo meetingRepository) QueryMeetings(ctx context.Context, unitID string, filter *meeting.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]meeting.Meeting, error) {
	query := `SELECT ` + meetingColumns + ` FROM meeting`
	where := []string{"unit_id = ?", "deleted_at IS NULL"}
	args := []interface{}{unitID}
	if filter != nil {
		if filter.Status != "" {
			where = append(where, "status = ?")
			args = append(args, filter.Status)
		}
		if !filter.From.IsZero() {
			where = append(where, "starts_at >= ?")
			args = append(args, filter.From.UTC())
		}
		if !filter.To.IsZero() {
			where = append(where, "starts_at <= ?")
			args = append(args, filter.To.UTC())
		}
	}
	query += " WHERE " + strings.Join(where, " AND ")
	query += orderBy(ordering, "starts_at DESC")

	var rows []meetingRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying meetings")
	}
	meetings := make([]meeting.Meeting, 0, len(rows))
	for _, row := range rows {
		meetings = append(meetings, row.toMeeting())
	}
	return meetings, nil
}

func (repo meetingRepository) UpdateMeeting(ctx context.Context, mtg meeting.Meeting, exec ...core.DBExecutor) (meeting.Meeting, error) {
	query := rebind(`UPDATE meeting
SET title = ?, starts_at = ?, ends_at = ?, location = ?, program = ?, status = ?, updated_at = ?
WHERE id = ? AND unit_id = ? AND deleted_at IS NULL
RETURNING ` + meetingColumns)

	var row meetingRow
	err := repo.getExec(exec).GetContext(ctx, &row, query,
		mtg.Title, mtg.StartsAt.UTC(),
		null.NewTime(mtg.EndsAt.UTC(), !mtg.EndsAt.IsZero()),
		mtg.Location, mtg.Program, mtg.Status,
		time.Now().UTC(), mtg.ID, mtg.UnitID,
	)
	if err != nil {
		return meeting.Meeting{}, repo.trapNoRowsErr(err, "updating meeting")
	}
	updated := row.toMeeting()
	updated.Checklist = mtg.Checklist
	return updated, nil
}

func (repo meetingRepository) DeleteMeeting(ctx context.Context, unitID, id string, exec ...core.DBExecutor) error {
	query := rebind("UPDATE meeting SET deleted_at = now(), updated_at = now() WHERE id = ? AND unit_id = ? AND deleted_at IS NULL")
	res, err := repo.getExec(exec).ExecContext(ctx, query, id, unitID)
	if err != nil {
		return errors.Wrap(err, "deleting meeting")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return meeting.ErrNotFound
	}
	return nil
}

func (repo meetingRepository) AddChecklistItem(ctx context.Context, item meeting.ChecklistItem, exec ...core.DBExecutor) (meeting.ChecklistItem, error) {
	item.ID = uuid.NewString()
	query := rebind(`INSERT INTO meeting_checklist_item (id, meeting_id, label, done, position)
VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM meeting_checklist_item WHERE meeting_id = ?))
RETURNING id, meeting_id, label, done, position`)

	var row checklistItemRow
	err := repo.getExec(exec).GetContext(ctx, &row, query, item.ID, item.MeetingID, item.Label, item.Done, item.MeetingID)
	if err != nil {
		return meeting.ChecklistItem{}, errors.Wrap(err, "inserting checklist item")
	}
	return row.toItem(), nil
}

func (repo meetingRepository) SetChecklistItemDone(ctx context.Context, meetingID, itemID string, done bool, exec ...core.DBExecutor) error {
	query := rebind("UPDATE meeting_checklist_item SET done = ? WHERE id = ? AND meeting_id = ?")
	res, err := repo.getExec(exec).ExecContext(ctx, query, done, itemID, meetingID)
	if err != nil {
		return errors.Wrap(err, "updating checklist item")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return meeting.ErrItemNotFound
	}
	return nil
}

func (repo meetingRepository) DeleteChecklistItem(ctx context.Context, meetingID, itemID string, exec ...core.DBExecutor) error {
	query := rebind("DELETE FROM meeting_checklist_item WHERE id = ? AND meeting_id = ?")
	res, err := repo.getExec(exec).ExecContext(ctx, query, itemID, meetingID)
	if err != nil {
		return errors.Wrap(err, "deleting checklist item")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return meeting.ErrItemNotFound
	}
	return nil
}

func (repo meetingRepository) UpsertAttendance(ctx context.Context, meetingID string, marks []meeting.Attendance, exec ...core.DBExecutor) error {
	upsert := rebind(`INSERT INTO attendance (meeting_id, member_id, status, recorded_by, recorded_at)
SELECT ?, ?, ?, ?, ?
WHERE EXISTS (SELECT 1 FROM member m JOIN meeting mt ON mt.unit_id = m.unit_id WHERE m.id = ? AND mt.id = ? AND m.deleted_at IS NULL)
ON CONFLICT (meeting_id, member_id) DO UPDATE SET status = EXCLUDED.status, recorded_by = EXCLUDED.recorded_by, recorded_at = EXCLUDED.recorded_at`)

	run := func(e core.DBExecutor) error {
		for _, mark := range marks {
			res, err := e.ExecContext(ctx, upsert,
				meetingID, mark.MemberID, mark.Status,
				null.NewString(mark.RecordedBy, mark.RecordedBy != ""),
				mark.RecordedAt.UTC(), mark.MemberID, meetingID,
			)
			if err != nil {
				if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "foreign_key_violation" {
					return meeting.ErrMemberNotInUnit
				}
				return errors.Wrap(err, "upserting attendance")
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return meeting.ErrMemberNotInUnit
			}
		}
		return nil
	}

	if len(exec) > 0 {
		return run(exec[0])
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = run(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (repo meetingRepository) QueryAttendance(ctx context.Context, meetingID string, exec ...core.DBExecutor) ([]meeting.Attendance, error) {
	query := rebind(`SELECT a.meeting_id, a.member_id, a.status, a.recorded_by, a.recorded_at, m.name AS member_name
FROM attendance a
JOIN member m ON m.id = a.member_id
WHERE a.meeting_id = ?
ORDER BY m.name ASC`)

	var rows []attendanceRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query, meetingID); err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	marks := make([]meeting.Attendance, 0, len(rows))
	for _, row := range rows {
		marks = append(marks, row.toAttendance())
	}
	return marks, nil
}

func (repo meetingRepository) QueryMemberAttendance(ctx context.Context, unitID, memberID string, from, to time.Time, exec ...core.DBExecutor) ([]meeting.Attendance, error) {
	query := `SELECT a.meeting_id, a.member_id, a.status, a.recorded_by, a.recorded_at
FROM attendance a
JOIN meeting mt ON mt.id = a.meeting_id
WHERE mt.unit_id = ? AND a.member_id = ?`
	args := []interface{}{unitID, memberID}
	if !from.IsZero() {
		query += " AND mt.starts_at >= ?"
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += " AND mt.starts_at <= ?"
		args = append(args, to.UTC())
	}
	query += " ORDER BY mt.starts_at DESC"

	var rows []attendanceRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying member attendance")
	}
	marks := make([]meeting.Attendance, 0, len(rows))
	for _, row := range rows {
		marks = append(marks, row.toAttendance())
	}
	return marks, nil
}

func (repo meetingRepository) SummarizeMemberAttendance(ctx context.Context, unitID, memberID string, from, to time.Time, exec ...core.DBExecutor) (meeting.AttendanceSummary, error) {
	query := `SELECT
COUNT(*) AS total,
COUNT(*) FILTER (WHERE a.status = 'present') AS present,
COUNT(*) FILTER (WHERE a.status = 'late') AS late,
COUNT(*) FILTER (WHERE a.status = 'excused') AS excused,
COUNT(*) FILTER (WHERE a.status = 'absent') AS absent
FROM attendance a
JOIN meeting mt ON mt.id = a.meeting_id
WHERE mt.unit_id = ? AND a.member_id = ?`
	args := []interface{}{unitID, memberID}
	if !from.IsZero() {
		query += " AND mt.starts_at >= ?"
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += " AND mt.starts_at <= ?"
		args = append(args, to.UTC())
	}

	var row struct {
		Total   int `db:"total"`
		Present int `db:"present"`
		Late    int `db:"late"`
		Excused int `db:"excused"`
		Absent  int `db:"absent"`
	}
	if err := repo.getExec(exec).GetContext(ctx, &row, rebind(query), args...); err != nil {
		return meeting.AttendanceSummary{}, errors.Wrap(err, "summarizing attendance")
	}
	return meeting.AttendanceSummary{
		MemberID: memberID,
		Total:    row.Total,
		Present:  row.Present,
		Late:     row.Late,
		Excused:  row.Excused,
		Absent:   row.Absent,
	}, nil
}
