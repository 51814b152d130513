package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/akela-hq/akela/core"
	"github.com/akela-hq/akela/core/member"
)

const memberColumns = `id, unit_id, census_id, name, birth_date, group_name, allergies, notes,
photo_consent, is_active, created_at, updated_at`

type memberRow struct {
	ID           string    `db:"id"`
	UnitID       string    `db:"unit_id"`
	CensusID     string    `db:"census_id"`
	Name         string    `db:"name"`
	BirthDate    time.Time `db:"birth_date"`
	GroupName    string    `db:"group_name"`
	Allergies    string    `db:"allergies"`
	Notes        string    `db:"notes"`
	PhotoConsent bool      `db:"photo_consent"`
	IsActive     null.Bool `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r memberRow) toMember() member.Member {
	return member.Member{
		ID:           r.ID,
		UnitID:       r.UnitID,
		CensusID:     r.CensusID,
		Name:         r.Name,
		BirthDate:    r.BirthDate,
		Group:        r.GroupName,
		Allergies:    r.Allergies,
		Notes:        r.Notes,
		PhotoConsent: r.PhotoConsent,
		IsActive:     r.IsActive.Ptr(),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

const guardianColumns = `id, unit_id, name, email, phone, whatsapp_opt_in,
push_endpoint, push_p256dh, push_auth, created_at, updated_at`

type guardianRow struct {
	ID            string    `db:"id"`
	UnitID        string    `db:"unit_id"`
	Name          string    `db:"name"`
	Email         string    `db:"email"`
	Phone         string    `db:"phone"`
	WhatsAppOptIn bool      `db:"whatsapp_opt_in"`
	PushEndpoint  string    `db:"push_endpoint"`
	PushP256dh    string    `db:"push_p256dh"`
	PushAuth      string    `db:"push_auth"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
	Relationship  string    `db:"relationship"`
}

func (r guardianRow) toGuardian() member.Guardian {
	return member.Guardian{
		ID:            r.ID,
		UnitID:        r.UnitID,
		Name:          r.Name,
		Email:         r.Email,
		Phone:         r.Phone,
		WhatsAppOptIn: r.WhatsAppOptIn,
		PushSub: core.PushSubscription{
			Endpoint: r.PushEndpoint,
			P256dh:   r.PushP256dh,
			Auth:     r.PushAuth,
		},
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		Relationship: r.Relationship,
	}
}

type memberRepository struct {
	repoBase
}

var _ member.Repository = (*memberRepository)(nil) // interface compliance check

func NewMemberRepository(db *sqlx.DB) *memberRepository {
	return &memberRepository{repoBase{db: db}}
}

func (repo memberRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return member.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo memberRepository) CreateMember(ctx context.Context, mbr member.Member, exec ...core.DBExecutor) (member.Member, error) {
	mbr.ID = uuid.NewString()
	query := rebind(`INSERT INTO member
(id, unit_id, census_id, name, birth_date, group_name, allergies, notes, photo_consent, is_active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + memberColumns)

	var row memberRow
	err := repo.getExec(exec).GetContext(ctx, &row, query,
		mbr.ID, mbr.UnitID, mbr.CensusID, mbr.Name, mbr.BirthDate, mbr.Group, mbr.Allergies, mbr.Notes,
		mbr.PhotoConsent, mbr.Active(), mbr.CreatedAt.UTC(), mbr.UpdatedAt.UTC(),
	)
	if err != nil {
		return member.Member{}, errors.Wrap(err, "inserting member")
	}
	return row.toMember(), nil
}

func (repo memberRepository) GetMember(ctx context.Context, unitID string, filter member.GetFilter, exec ...core.DBExecutor) (member.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM member WHERE unit_id = ? AND deleted_at IS NULL AND `
	args := []interface{}{unitID}
	switch {
	case filter.ID != "":
		query += "id = ?"
		args = append(args, filter.ID)
	case filter.CensusID != "":
		query += "census_id = ?"
		args = append(args, filter.CensusID)
	case filter.Name != "" && !filter.BirthDate.IsZero():
		query += "lower(name) = lower(?) AND birth_date = ?"
		args = append(args, filter.Name, filter.BirthDate)
	default:
		return member.Member{}, errors.New("empty member filter")
	}

	var row memberRow
	if err := repo.getExec(exec).GetContext(ctx, &row, rebind(query), args...); err != nil {
		return member.Member{}, repo.trapNoRowsErr(err, "getting member")
	}
	return row.toMember(), nil
}

func (repo memberRepository) QueryMembers(ctx context.Context, unitID string, filter *member.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]member.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM member`
	where := []string{"unit_id = ?", "deleted_at IS NULL"}
	args := []interface{}{unitID}
	if filter != nil {
		if filter.Search != "" {
			where = append(where, "(name ILIKE ? OR census_id ILIKE ?)")
			like := "%" + filter.Search + "%"
			args = append(args, like, like)
		}
		if filter.Group != "" {
			where = append(where, "group_name = ?")
			args = append(args, filter.Group)
		}
		if filter.IsActive != nil {
			where = append(where, "is_active = ?")
			args = append(args, *filter.IsActive)
		}
	}
	query += " WHERE " + strings.Join(where, " AND ")
	query += orderBy(ordering, "name ASC")

	var rows []memberRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying members")
	}
	members := make([]member.Member, 0, len(rows))
	for _, row := range rows {
		members = append(members, row.toMember())
	}
	return members, nil
}

func (repo memberRepository) UpdateMember(ctx context.Context, mbr member.Member, exec ...core.DBExecutor) (member.Member, error) {
	query := rebind(`UPDATE member
SET census_id = ?, name = ?, birth_date = ?, group_name = ?, allergies = ?, notes = ?, photo_consent = ?, is_active = ?, updated_at = ?
WHERE id = ? AND unit_id = ? AND deleted_at IS NULL
RETURNING ` + memberColumns)

	var row memberRow
	err := repo.getExec(exec).GetContext(ctx, &row, query,
		mbr.CensusID, mbr.Name, mbr.BirthDate, mbr.Group, mbr.Allergies, mbr.Notes, mbr.PhotoConsent, mbr.Active(),
		time.Now().UTC(), mbr.ID, mbr.UnitID,
	)
	if err != nil {
		return member.Member{}, repo.trapNoRowsErr(err, "updating member")
	}
	return row.toMember(), nil
}

func (repo memberRepository) DeleteMembersByID(ctx context.Context, unitID string, ids []string, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	// soft delete; rows stay addressable as sync tombstones
	query, args, err := sqlx.In("UPDATE member SET deleted_at = now(), updated_at = now() WHERE unit_id = ? AND deleted_at IS NULL AND id IN (?)", unitID, ids)
	if err != nil {
		return 0, errors.Wrap(err, "building member delete query")
	}
	res, err := repo.getExec(exec).ExecContext(ctx, rebind(query), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting members")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (repo memberRepository) CensusIDTakenElsewhere(ctx context.Context, unitID, censusID string, exec ...core.DBExecutor) (bool, error) {
	var taken bool
	query := rebind("SELECT EXISTS (SELECT 1 FROM member WHERE census_id = ? AND unit_id <> ? AND deleted_at IS NULL)")
	if err := repo.getExec(exec).GetContext(ctx, &taken, query, censusID, unitID); err != nil {
		return false, errors.Wrap(err, "checking census id")
	}
	return taken, nil
}

func (repo memberRepository) CreateGuardian(ctx context.Context, grd member.Guardian, exec ...core.DBExecutor) (member.Guardian, error) {
	grd.ID = uuid.NewString()
	query := rebind(`INSERT INTO guardian
(id, unit_id, name, email, phone, whatsapp_opt_in, push_endpoint, push_p256dh, push_auth, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + guardianColumns)

	var row guardianRow
	err := repo.getExec(exec).GetContext(ctx, &row, query,
		grd.ID, grd.UnitID, grd.Name, grd.Email, grd.Phone, grd.WhatsAppOptIn,
		grd.PushSub.Endpoint, grd.PushSub.P256dh, grd.PushSub.Auth,
		grd.CreatedAt.UTC(), grd.UpdatedAt.UTC(),
	)
	if err != nil {
		return member.Guardian{}, errors.Wrap(err, "inserting guardian")
	}
	return row.toGuardian(), nil
}

func (repo memberRepository) GetGuardian(ctx context.Context, unitID string, filter member.GuardianGetFilter, exec ...core.DBExecutor) (member.Guardian, error) {
	query := `SELECT ` + guardianColumns + ` FROM guardian WHERE unit_id = ? AND deleted_at IS NULL AND `
	args := []interface{}{unitID}
	switch {
	case filter.ID != "":
		query += "id = ?"
		args = append(args, filter.ID)
	case filter.Email != "":
		query += "lower(email) = lower(?)"
		args = append(args, filter.Email)
	default:
		return member.Guardian{}, errors.New("empty guardian filter")
	}

	var row guardianRow
	if err := repo.getExec(exec).GetContext(ctx, &row, rebind(query), args...); err != nil {
		if err == sql.ErrNoRows {
			return member.Guardian{}, member.ErrGuardianNotFound
		}
		return member.Guardian{}, errors.Wrap(err, "getting guardian")
	}
	return row.toGuardian(), nil
}

func (repo memberRepository) QueryGuardians(ctx context.Context, unitID, search string, exec ...core.DBExecutor) ([]member.Guardian, error) {
	query := `SELECT ` + guardianColumns + ` FROM guardian WHERE unit_id = ? AND deleted_at IS NULL`
	args := []interface{}{unitID}
	if search != "" {
		query += " AND (name ILIKE ? OR email ILIKE ? OR phone ILIKE ?)"
		like := "%" + search + "%"
		args = append(args, like, like, like)
	}
	query += " ORDER BY name ASC"

	var rows []guardianRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying guardians")
	}
	guardians := make([]member.Guardian, 0, len(rows))
	for _, row := range rows {
		guardians = append(guardians, row.toGuardian())
	}
	return guardians, nil
}

func (repo memberRepository) UpdateGuardian(ctx context.Context, grd member.Guardian, exec ...core.DBExecutor) (member.Guardian, error) {
	query := rebind(`UPDATE guardian
SET name = ?, email = ?, phone = ?, whatsapp_opt_in = ?, push_endpoint = ?, push_p256dh = ?, push_auth = ?, updated_at = ?
WHERE id = ? AND unit_id = ? AND deleted_at IS NULL
RETURNING ` + guardianColumns)

	var row guardianRow
	err := repo.getExec(exec).GetContext(ctx, &row, query,
		grd.Name, grd.Email, grd.Phone, grd.WhatsAppOptIn,
		grd.PushSub.Endpoint, grd.PushSub.P256dh, grd.PushSub.Auth,
		time.Now().UTC(), grd.ID, grd.UnitID,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return member.Guardian{}, member.ErrGuardianNotFound
		}
		return member.Guardian{}, errors.Wrap(err, "updating guardian")
	}
	return row.toGuardian(), nil
}

func (repo memberRepository) DeleteGuardian(ctx context.Context, unitID, id string, exec ...core.DBExecutor) error {
	query := rebind("UPDATE guardian SET deleted_at = now(), updated_at = now() WHERE id = ? AND unit_id = ? AND deleted_at IS NULL")
	res, err := repo.getExec(exec).ExecContext(ctx, query, id, unitID)
	if err != nil {
		return errors.Wrap(err, "deleting guardian")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return member.ErrGuardianNotFound
	}
	return nil
}

func (repo memberRepository) LinkGuardian(ctx context.Context, link member.GuardianLink, exec ...core.DBExecutor) error {
	query := rebind(`INSERT INTO member_guardian (member_id, guardian_id, relationship)
VALUES (?, ?, ?)
ON CONFLICT (member_id, guardian_id) DO UPDATE SET relationship = EXCLUDED.relationship`)
	_, err := repo.getExec(exec).ExecContext(ctx, query, link.MemberID, link.GuardianID, link.Relationship)
	return errors.Wrap(err, "linking guardian")
}

func (repo memberRepository) UnlinkGuardian(ctx context.Context, memberID, guardianID string, exec ...core.DBExecutor) error {
	query := rebind("DELETE FROM member_guardian WHERE member_id = ? AND guardian_id = ?")
	_, err := repo.getExec(exec).ExecContext(ctx, query, memberID, guardianID)
	return errors.Wrap(err, "unlinking guardian")
}

func (repo memberRepository) QueryGuardiansForMember(ctx context.Context, memberID string, exec ...core.DBExecutor) ([]member.Guardian, error) {
	query := rebind(`SELECT g.id, g.unit_id, g.name, g.email, g.phone, g.whatsapp_opt_in,
g.push_endpoint, g.push_p256dh, g.push_auth, g.created_at, g.updated_at, mg.relationship
FROM guardian g
JOIN member_guardian mg ON mg.guardian_id = g.id
WHERE mg.member_id = ? AND g.deleted_at IS NULL
ORDER BY g.name ASC`)

	var rows []guardianRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query, memberID); err != nil {
		return nil, errors.Wrap(err, "querying member guardians")
	}
	guardians := make([]member.Guardian, 0, len(rows))
	for _, row := range rows {
		guardians = append(guardians, row.toGuardian())
	}
	return guardians, nil
}

func (repo memberRepository) QueryMembersForGuardian(ctx context.Context, guardianID string, exec ...core.DBExecutor) ([]member.Member, error) {
	query := rebind(`SELECT m.id, m.unit_id, m.census_id, m.name, m.birth_date, m.group_name, m.allergies, m.notes,
m.photo_consent, m.is_active, m.created_at, m.updated_at
FROM member m
JOIN member_guardian mg ON mg.member_id = m.id
WHERE mg.guardian_id = ? AND m.deleted_at IS NULL
ORDER BY m.name ASC`)

	var rows []memberRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query, guardianID); err != nil {
		return nil, errors.Wrap(err, "querying guardian members")
	}
	members := make([]member.Member, 0, len(rows))
	for _, row := range rows {
		members = append(members, row.toMember())
	}
	return members, nil
}
