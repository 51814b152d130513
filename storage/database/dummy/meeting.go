package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/akela-hq/akela/core"
	"github.com/akela-hq/akela/core/meeting"
)

type meetingRepository struct {
	db *DB
}

var _ meeting.Repository = (*meetingRepository)(nil) // interface compliance check

func NewMeetingRepository(db *DB) meeting.Repository {
	return &meetingRepository{db: db}
}

func (repo *meetingRepository) CreateMeeting(_ context.Context, mtg meeting.Meeting, _ ...core.DBExecutor) (meeting.Meeting, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	mtg.ID = uuid.NewString()
	for i := range mtg.Checklist {
		mtg.Checklist[i].ID = uuid.NewString()
		mtg.Checklist[i].MeetingID = mtg.ID
		mtg.Checklist[i].Position = i
	}
	repo.db.meetings[mtg.ID] = &mtg
	return mtg, nil
}

func (repo *meetingRepository) GetMeeting(_ context.Context, unitID, id string, _ ...core.DBExecutor) (meeting.Meeting, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if mtg, ok := repo.db.meetings[id]; ok && mtg.UnitID == unitID {
		out := *mtg
		out.Checklist = append([]meeting.ChecklistItem(nil), mtg.Checklist...)
		return out, nil
	}
	return meeting.Meeting{}, meeting.ErrNotFound
}

func (repo *meetingRepository) QueryMeetings(_ context.Context, unitID string, filter *meeting.QueryFilter, _ []core.DBOrdering, _ ...core.DBExecutor) ([]meeting.Meeting, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var meetings []meeting.Meeting
	for _, mtg := range repo.db.meetings {
		if mtg.UnitID != unitID {
			continue
		}
		if filter != nil {
			if filter.Status != "" && mtg.Status != filter.Status {
				continue
			}
			if !filter.From.IsZero() && mtg.StartsAt.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && mtg.StartsAt.After(filter.To) {
				continue
			}
		}
		meetings = append(meetings, *mtg)
	}
	sort.Slice(meetings, func(i, j int) bool { return meetings[i].StartsAt.After(meetings[j].StartsAt) })
	return meetings, nil
}

func (repo *meetingRepository) UpdateMeeting(_ context.Context, mtg meeting.Meeting, _ ...core.DBExecutor) (meeting.Meeting, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	existing, ok := repo.db.meetings[mtg.ID]
	if !ok || existing.UnitID != mtg.UnitID {
		return meeting.Meeting{}, meeting.ErrNotFound
	}
	mtg.Checklist = existing.Checklist
	mtg.UpdatedAt = time.Now().UTC()
	repo.db.meetings[mtg.ID] = &mtg
	return mtg, nil
}

func (repo *meetingRepository) DeleteMeeting(_ context.Context, unitID, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if mtg, ok := repo.db.meetings[id]; ok && mtg.UnitID == unitID {
		delete(repo.db.meetings, id)
		return nil
	}
	return meeting.ErrNotFound
}

func (repo *meetingRepository) AddChecklistItem(_ context.Context, item meeting.ChecklistItem, _ ...core.DBExecutor) (meeting.ChecklistItem, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	mtg, ok := repo.db.meetings[item.MeetingID]
	if !ok {
		return meeting.ChecklistItem{}, meeting.ErrNotFound
	}
	item.ID = uuid.NewString()
	item.Position = len(mtg.Checklist)
	mtg.Checklist = append(mtg.Checklist, item)
	return item, nil
}

func (repo *meetingRepository) SetChecklistItemDone(_ context.Context, meetingID, itemID string, done bool, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	mtg, ok := repo.db.meetings[meetingID]
	if !ok {
		return meeting.ErrItemNotFound
	}
	for i := range mtg.Checklist {
		if mtg.Checklist[i].ID == itemID {
			mtg.Checklist[i].Done = done
			return nil
		}
	}
	return meeting.ErrItemNotFound
}

func (repo *meetingRepository) DeleteChecklistItem(_ context.Context, meetingID, itemID string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	mtg, ok := repo.db.meetings[meetingID]
	if !ok {
		return meeting.ErrItemNotFound
	}
	for i := range mtg.Checklist {
		if mtg.Checklist[i].ID == itemID {
			mtg.Checklist = append(mtg.Checklist[:i], mtg.Checklist[i+1:]...)
			return nil
		}
	}
	return meeting.ErrItemNotFound
}

func (repo *meetingRepository) UpsertAttendance(_ context.Context, meetingID string, marks []meeting.Attendance, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	mtg, ok := repo.db.meetings[meetingID]
	if !ok {
		return meeting.ErrNotFound
	}
	for _, mark := range marks {
		mbr, ok := repo.db.members[mark.MemberID]
		if !ok || mbr.UnitID != mtg.UnitID {
			return meeting.ErrMemberNotInUnit
		}
		mark.MeetingID = meetingID
		repo.db.attendance[key(meetingID, mark.MemberID)] = &mark
	}
	return nil
}

func (repo *meetingRepository) QueryAttendance(_ context.Context, meetingID string, _ ...core.DBExecutor) ([]meeting.Attendance, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var marks []meeting.Attendance
	for _, mark := range repo.db.attendance {
		if mark.MeetingID != meetingID {
			continue
		}
		m := *mark
		if mbr, ok := repo.db.members[m.MemberID]; ok {
			m.MemberName = mbr.Name
		}
		marks = append(marks, m)
	}
	sort.Slice(marks, func(i, j int) bool { return marks[i].MemberName < marks[j].MemberName })
	return marks, nil
}

func (repo *meetingRepository) QueryMemberAttendance(_ context.Context, unitID, memberID string, from, to time.Time, _ ...core.DBExecutor) ([]meeting.Attendance, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	marks := repo.memberMarks(unitID, memberID, from, to)
	sort.Slice(marks, func(i, j int) bool { return marks[i].RecordedAt.After(marks[j].RecordedAt) })
	return marks, nil
}

func (repo *meetingRepository) memberMarks(unitID, memberID string, from, to time.Time) []meeting.Attendance {
	var marks []meeting.Attendance
	for _, mark := range repo.db.attendance {
		if mark.MemberID != memberID {
			continue
		}
		mtg, ok := repo.db.meetings[mark.MeetingID]
		if !ok || mtg.UnitID != unitID {
			continue
		}
		if !from.IsZero() && mtg.StartsAt.Before(from) {
			continue
		}
		if !to.IsZero() && mtg.StartsAt.After(to) {
			continue
		}
		marks = append(marks, *mark)
	}
	return marks
}

func (repo *meetingRepository) SummarizeMemberAttendance(_ context.Context, unitID, memberID string, from, to time.Time, _ ...core.DBExecutor) (meeting.AttendanceSummary, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	summary := meeting.AttendanceSummary{MemberID: memberID}
	for _, mark := range repo.memberMarks(unitID, memberID, from, to) {
		summary.Total++
		switch mark.Status {
		case meeting.AttendancePresent:
			summary.Present++
		case meeting.AttendanceLate:
			summary.Late++
		case meeting.AttendanceExcused:
			summary.Excused++
		case meeting.AttendanceAbsent:
			summary.Absent++
		}
	}
	return summary, nil
}
