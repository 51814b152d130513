package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/akela-hq/akela/core"
	"github.com/akela-hq/akela/core/unit"
)

const unitColumns = `id, slug, name, section, timezone, email_enabled, push_enabled, whatsapp_enabled, created_at, updated_at`

type unitRow struct {
	ID              string    `db:"id"`
	Slug            string    `db:"slug"`
	Name            string    `db:"name"`
	Section         string    `db:"section"`
	Timezone        string    `db:"timezone"`
	EmailEnabled    bool      `db:"email_enabled"`
	PushEnabled     bool      `db:"push_enabled"`
	WhatsAppEnabled bool      `db:"whatsapp_enabled"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r unitRow) toUnit() unit.Unit {
	return unit.Unit{
		ID:       r.ID,
		Slug:     r.Slug,
		Name:     r.Name,
		Section:  r.Section,
		Timezone: r.Timezone,
		Settings: unit.Settings{
			EmailEnabled:    r.EmailEnabled,
			PushEnabled:     r.PushEnabled,
			WhatsAppEnabled: r.WhatsAppEnabled,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

const membershipColumns = `m.id, m.unit_id, m.user_id, m.role, m.created_at, m.updated_at, u.name AS user_name, u.email AS user_email`

type membershipRow struct {
	ID        string    `db:"id"`
	UnitID    string    `db:"unit_id"`
	UserID    string    `db:"user_id"`
	Role      string    `db:"role"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
	UserName  string    `db:"user_name"`
	UserEmail string    `db:"user_email"`
}

func (r membershipRow) toMembership() unit.Membership {
	return unit.Membership{
		ID:        r.ID,
		UnitID:    r.UnitID,
		UserID:    r.UserID,
		Role:      r.Role,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		UserName:  r.UserName,
		UserEmail: r.UserEmail,
	}
}

type unitRepository struct {
	repoBase
}

var _ unit.Repository = (*unitRepository)(nil) // interface compliance check

func NewUnitRepository(db *sqlx.DB) *unitRepository {
	return &unitRepository{repoBase{db: db}}
}

func (repo unitRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return unit.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo unitRepository) CheckSlugUniqueness(ctx context.Context, slug string, exec ...core.DBExecutor) error {
	var exists bool
	query := rebind("SELECT EXISTS (SELECT 1 FROM unit WHERE slug = ?)")
	if err := repo.getExec(exec).GetContext(ctx, &exists, query, slug); err != nil {
		return errors.Wrap(err, "checking slug uniqueness")
	}
	if exists {
		return unit.ErrSlugExists
	}
	return nil
}

func (repo unitRepository) CreateUnit(ctx context.Context, un unit.Unit, headMembership unit.Membership, exec ...core.DBExecutor) (unit.Unit, error) {
	un.ID = uuid.NewString()

	insertUnit := rebind(`INSERT INTO unit
(id, slug, name, section, timezone, email_enabled, push_enabled, whatsapp_enabled, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	insertMembership := rebind(`INSERT INTO unit_membership (id, unit_id, user_id, role, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`)

	run := func(e core.DBExecutor) error {
		if _, err := e.ExecContext(ctx, insertUnit,
			un.ID, un.Slug, un.Name, un.Section, un.Timezone,
			un.Settings.EmailEnabled, un.Settings.PushEnabled, un.Settings.WhatsAppEnabled,
			un.CreatedAt.UTC(), un.UpdatedAt.UTC(),
		); err != nil {
			return errors.Wrap(err, "inserting unit")
		}
		_, err := e.ExecContext(ctx, insertMembership,
			uuid.NewString(), un.ID, headMembership.UserID, headMembership.Role,
			un.CreatedAt.UTC(), un.UpdatedAt.UTC(),
		)
		return errors.Wrap(err, "inserting head membership")
	}

	if len(exec) > 0 {
		// caller manages the transaction
		if err := run(exec[0]); err != nil {
			return unit.Unit{}, err
		}
		return un, nil
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return unit.Unit{}, errors.Wrap(err, "beginning transaction")
	}
	if err = run(tx); err != nil {
		_ = tx.Rollback()
		return unit.Unit{}, err
	}
	if err = tx.Commit(); err != nil {
		return unit.Unit{}, errors.Wrap(err, "committing transaction")
	}
	return un, nil
}

func (repo unitRepository) GetUnit(ctx context.Context, filter unit.GetFilter, exec ...core.DBExecutor) (unit.Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM unit WHERE `
	var args []interface{}
	switch {
	case filter.ID != "":
		query += "id = ?"
		args = append(args, filter.ID)
	case filter.Slug != "":
		query += "slug = ?"
		args = append(args, filter.Slug)
	default:
		return unit.Unit{}, errors.New("empty unit filter")
	}

	var row unitRow
	if err := repo.getExec(exec).GetContext(ctx, &row, rebind(query), args...); err != nil {
		return unit.Unit{}, repo.trapNoRowsErr(err, "getting unit")
	}
	return row.toUnit(), nil
}

func (repo unitRepository) QueryUnitsForUser(ctx context.Context, userID string, exec ...core.DBExecutor) ([]unit.Unit, error) {
	query := rebind(`SELECT ` + unitColumns + ` FROM unit
WHERE id IN (SELECT unit_id FROM unit_membership WHERE user_id = ?)
ORDER BY name ASC`)

	var rows []unitRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, errors.Wrap(err, "querying units")
	}
	units := make([]unit.Unit, 0, len(rows))
	for _, row := range rows {
		units = append(units, row.toUnit())
	}
	return units, nil
}

func (repo unitRepository) UpdateUnit(ctx context.Context, un unit.Unit, exec ...core.DBExecutor) (unit.Unit, error) {
	query := rebind(`UPDATE unit
SET slug = ?, name = ?, section = ?, timezone = ?, email_enabled = ?, push_enabled = ?, whatsapp_enabled = ?, updated_at = ?
WHERE id = ?
RETURNING ` + unitColumns)

	var row unitRow
	err := repo.getExec(exec).GetContext(ctx, &row, query,
		un.Slug, un.Name, un.Section, un.Timezone,
		un.Settings.EmailEnabled, un.Settings.PushEnabled, un.Settings.WhatsAppEnabled,
		time.Now().UTC(), un.ID,
	)
	if err != nil {
		return unit.Unit{}, repo.trapNoRowsErr(err, "updating unit")
	}
	return row.toUnit(), nil
}

func (repo unitRepository) GetMembership(ctx context.Context, unitID, userID string, exec ...core.DBExecutor) (unit.Membership, error) {
	query := rebind(`SELECT ` + membershipColumns + ` FROM unit_membership m
JOIN "user" u ON u.id = m.user_id
WHERE m.unit_id = ? AND m.user_id = ?`)

	var row membershipRow
	if err := repo.getExec(exec).GetContext(ctx, &row, query, unitID, userID); err != nil {
		if err == sql.ErrNoRows {
			return unit.Membership{}, unit.ErrMembershipNotFound
		}
		return unit.Membership{}, errors.Wrap(err, "getting membership")
	}
	return row.toMembership(), nil
}

func (repo unitRepository) QueryMemberships(ctx context.Context, unitID string, exec ...core.DBExecutor) ([]unit.Membership, error) {
	query := rebind(`SELECT ` + membershipColumns + ` FROM unit_membership m
JOIN "user" u ON u.id = m.user_id
WHERE m.unit_id = ?
ORDER BY u.name ASC`)
	return repo.queryMemberships(ctx, query, unitID, exec)
}

func (repo unitRepository) QueryMembershipsForUser(ctx context.Context, userID string, exec ...core.DBExecutor) ([]unit.Membership, error) {
	query := rebind(`SELECT ` + membershipColumns + ` FROM unit_membership m
JOIN "user" u ON u.id = m.user_id
WHERE m.user_id = ?`)
	return repo.queryMemberships(ctx, query, userID, exec)
}

func (repo unitRepository) queryMemberships(ctx context.Context, query, arg string, exec []core.DBExecutor) ([]unit.Membership, error) {
	var rows []membershipRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query, arg); err != nil {
		return nil, errors.Wrap(err, "querying memberships")
	}
	memberships := make([]unit.Membership, 0, len(rows))
	for _, row := range rows {
		memberships = append(memberships, row.toMembership())
	}
	return memberships, nil
}

func (repo unitRepository) UpsertMembership(ctx context.Context, m unit.Membership, exec ...core.DBExecutor) (unit.Membership, error) {
	now := time.Now().UTC()
	query := rebind(`INSERT INTO unit_membership (id, unit_id, user_id, role, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (unit_id, user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = EXCLUDED.updated_at
RETURNING id, unit_id, user_id, role, created_at, updated_at`)

	var row membershipRow
	err := repo.getExec(exec).GetContext(ctx, &row, query, uuid.NewString(), m.UnitID, m.UserID, m.Role, now, now)
	if err != nil {
		return unit.Membership{}, errors.Wrap(err, "upserting membership")
	}
	return row.toMembership(), nil
}

func (repo unitRepository) DeleteMembership(ctx context.Context, unitID, userID string, exec ...core.DBExecutor) error {
	query := rebind("DELETE FROM unit_membership WHERE unit_id = ? AND user_id = ?")
	res, err := repo.getExec(exec).ExecContext(ctx, query, unitID, userID)
	if err != nil {
		return errors.Wrap(err, "deleting membership")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return unit.ErrMembershipNotFound
	}
	return nil
}

func (repo unitRepository) CountHeadLeaders(ctx context.Context, unitID string, exec ...core.DBExecutor) (int, error) {
	var count int
	query := rebind("SELECT COUNT(*) FROM unit_membership WHERE unit_id = ? AND role = ?")
	if err := repo.getExec(exec).GetContext(ctx, &count, query, unitID, unit.RoleLeaderHead); err != nil {
		return 0, errors.Wrap(err, "counting head leaders")
	}
	return count, nil
}
