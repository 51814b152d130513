package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/akela-hq/akela/core"
	"github.com/akela-hq/akela/core/badge"
)

const badgeColumns = `id, code, name, section, description, created_at, updated_at`

type badgeRow struct {
	ID          string    `db:"id"`
	Code        string    `db:"code"`
	Name        string    `db:"name"`
	Section     string    `db:"section"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r badgeRow) toBadge() badge.Badge {
	return badge.Badge(r)
}

type awardRow struct {
	ID         string      `db:"id"`
	MemberID   string      `db:"member_id"`
	BadgeID    string      `db:"badge_id"`
	AwardedBy  null.String `db:"awarded_by"`
	AwardedAt  time.Time   `db:"awarded_at"`
	Note       string      `db:"note"`
	BadgeCode  string      `db:"badge_code"`
	BadgeName  string      `db:"badge_name"`
	MemberName string      `db:"member_name"`
}

func (r awardRow) toAward() badge.Award {
	return badge.Award{
		ID:         r.ID,
		MemberID:   r.MemberID,
		BadgeID:    r.BadgeID,
		AwardedBy:  r.AwardedBy.String,
		AwardedAt:  r.AwardedAt,
		Note:       r.Note,
		BadgeCode:  r.BadgeCode,
		BadgeName:  r.BadgeName,
		MemberName: r.MemberName,
	}
}

type badgeRepository struct {
	repoBase
}

var _ badge.Repository = (*badgeRepository)(nil) // interface compliance check

func NewBadgeRepository(db *sqlx.DB) *badgeRepository {
	return &badgeRepository{repoBase{db: db}}
}

func (repo badgeRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return badge.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo badgeRepository) CheckCodeUniqueness(ctx context.Context, code string, exec ...core.DBExecutor) error {
	var exists bool
	query := rebind("SELECT EXISTS (SELECT 1 FROM badge WHERE code = ?)")
	if err := repo.getExec(exec).GetContext(ctx, &exists, query, code); err != nil {
		return errors.Wrap(err, "checking badge code")
	}
	if exists {
		return badge.ErrCodeExists
	}
	return nil
}

func (repo badgeRepository) CreateBadge(ctx context.Context, bdg badge.Badge, exec ...core.DBExecutor) (badge.Badge, error) {
	bdg.ID = uuid.NewString()
	query := rebind(`INSERT INTO badge (id, code, name, section, description, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING ` + badgeColumns)

	var row badgeRow
	err := repo.getExec(exec).GetContext(ctx, &row, query,
		bdg.ID, bdg.Code, bdg.Name, bdg.Section, bdg.Description, bdg.CreatedAt.UTC(), bdg.UpdatedAt.UTC(),
	)
	if err != nil {
		return badge.Badge{}, errors.Wrap(err, "inserting badge")
	}
	return row.toBadge(), nil
}

func (repo badgeRepository) GetBadge(ctx context.Context, filter badge.GetFilter, exec ...core.DBExecutor) (badge.Badge, error) {
	query := `SELECT ` + badgeColumns + ` FROM badge WHERE `
	var args []interface{}
	switch {
	case filter.ID != "":
		query += "id = ?"
		args = append(args, filter.ID)
	case filter.Code != "":
		query += "code = ?"
		args = append(args, filter.Code)
	default:
		return badge.Badge{}, errors.New("empty badge filter")
	}

	var row badgeRow
	if err := repo.getExec(exec).GetContext(ctx, &row, rebind(query), args...); err != nil {
		return badge.Badge{}, repo.trapNoRowsErr(err, "getting badge")
	}
	return row.toBadge(), nil
}

func (repo badgeRepository) QueryBadges(ctx context.Context, section string, exec ...core.DBExecutor) ([]badge.Badge, error) {
	query := `SELECT ` + badgeColumns + ` FROM badge`
	var args []interface{}
	if section != "" {
		query += " WHERE section = ?"
		args = append(args, section)
	}
	query += " ORDER BY code ASC"

	var rows []badgeRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying badges")
	}
	badges := make([]badge.Badge, 0, len(rows))
	for _, row := range rows {
		badges = append(badges, row.toBadge())
	}
	return badges, nil
}

func (repo badgeRepository) UpdateBadge(ctx context.Context, bdg badge.Badge, exec ...core.DBExecutor) (badge.Badge, error) {
	query := rebind(`UPDATE badge SET name = ?, section = ?, description = ?, updated_at = ?
WHERE id = ?
RETURNING ` + badgeColumns)

	var row badgeRow
	err := repo.getExec(exec).GetContext(ctx, &row, query,
		bdg.Name, bdg.Section, bdg.Description, time.Now().UTC(), bdg.ID,
	)
	if err != nil {
		return badge.Badge{}, repo.trapNoRowsErr(err, "updating badge")
	}
	return row.toBadge(), nil
}

func (repo badgeRepository) DeleteBadge(ctx context.Context, id string, exec ...core.DBExecutor) error {
	query := rebind("DELETE FROM badge WHERE id = ?")
	res, err := repo.getExec(exec).ExecContext(ctx, query, id)
	if err != nil {
		return errors.Wrap(err, "deleting badge")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return badge.ErrNotFound
	}
	return nil
}

func (repo badgeRepository) UpsertAward(ctx context.Context, unitID string, awd badge.Award, exec ...core.DBExecutor) (badge.Award, error) {
	query := rebind(`INSERT INTO badge_award (id, member_id, badge_id, awarded_by, awarded_at, note)
SELECT ?, ?, ?, ?, ?, ?
WHERE EXISTS (SELECT 1 FROM member WHERE id = ? AND unit_id = ? AND deleted_at IS NULL)
ON CONFLICT (member_id, badge_id) DO UPDATE SET awarded_by = EXCLUDED.awarded_by, awarded_at = EXCLUDED.awarded_at, note = EXCLUDED.note
RETURNING id, member_id, badge_id, awarded_by, awarded_at, note`)

	var row awardRow
	err := repo.getExec(exec).GetContext(ctx, &row, query,
		uuid.NewString(), awd.MemberID, awd.BadgeID,
		null.NewString(awd.AwardedBy, awd.AwardedBy != ""),
		awd.AwardedAt.UTC(), awd.Note, awd.MemberID, unitID,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return badge.Award{}, badge.ErrMemberNotInUnit
		}
		return badge.Award{}, errors.Wrap(err, "upserting award")
	}
	return row.toAward(), nil
}

func (repo badgeRepository) DeleteAward(ctx context.Context, unitID, memberID, badgeID string, exec ...core.DBExecutor) error {
	query := rebind(`DELETE FROM badge_award
WHERE member_id = ? AND badge_id = ?
AND member_id IN (SELECT id FROM member WHERE unit_id = ?)`)
	res, err := repo.getExec(exec).ExecContext(ctx, query, memberID, badgeID, unitID)
	if err != nil {
		return errors.Wrap(err, "deleting award")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return badge.ErrAwardNotFound
	}
	return nil
}

func (repo badgeRepository) QueryAwardsForMember(ctx context.Context, unitID, memberID string, exec ...core.DBExecutor) ([]badge.Award, error) {
	query := rebind(`SELECT a.id, a.member_id, a.badge_id, a.awarded_by, a.awarded_at, a.note,
b.code AS badge_code, b.name AS badge_name, m.name AS member_name
FROM badge_award a
JOIN badge b ON b.id = a.badge_id
JOIN member m ON m.id = a.member_id
WHERE a.member_id = ? AND m.unit_id = ?
ORDER BY a.awarded_at DESC`)
	return repo.queryAwards(ctx, query, exec, memberID, unitID)
}

func (repo badgeRepository) QueryAwardsForUnit(ctx context.Context, unitID string, limit int, exec ...core.DBExecutor) ([]badge.Award, error) {
	query := rebind(`SELECT a.id, a.member_id, a.badge_id, a.awarded_by, a.awarded_at, a.note,
b.code AS badge_code, b.name AS badge_name, m.name AS member_name
FROM badge_award a
JOIN badge b ON b.id = a.badge_id
JOIN member m ON m.id = a.member_id
WHERE m.unit_id = ?
ORDER BY a.awarded_at DESC
LIMIT ?`)
	return repo.queryAwards(ctx, query, exec, unitID, limit)
}

func (repo badgeRepository) queryAwards(ctx context.Context, query string, exec []core.DBExecutor, args ...interface{}) ([]badge.Award, error) {
	var rows []awardRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying awards")
	}
	awards := make([]badge.Award, 0, len(rows))
	for _, row := range rows {
		awards = append(awards, row.toAward())
	}
	return awards, nil
}
