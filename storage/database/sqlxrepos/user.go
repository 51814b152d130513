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
	"github.com/akela-hq/akela/core/user"
)

const userColumns = `id, name, username, email, phone, is_active, is_superuser, password_hash,
push_endpoint, push_p256dh, push_auth, last_login, created_at, updated_at`

type userRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	Phone        string    `db:"phone"`
	IsActive     null.Bool `db:"is_active"`
	IsSuperuser  bool      `db:"is_superuser"`
	PasswordHash []byte    `db:"password_hash"`
	PushEndpoint string    `db:"push_endpoint"`
	PushP256dh   string    `db:"push_p256dh"`
	PushAuth     string    `db:"push_auth"`
	LastLogin    null.Time `db:"last_login"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r userRow) toUser() user.User {
	return user.User{
		ID:           r.ID,
		Name:         r.Name,
		Username:     r.Username,
		Email:        r.Email,
		Phone:        r.Phone,
		IsActive:     r.IsActive.Ptr(),
		IsSuperuser:  r.IsSuperuser,
		PasswordHash: r.PasswordHash,
		PushSub: core.PushSubscription{
			Endpoint: r.PushEndpoint,
			P256dh:   r.PushP256dh,
			Auth:     r.PushAuth,
		},
		LastLogin: r.LastLogin.Time,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type userRepository struct {
	repoBase
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{repoBase{db: db}}
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	query := `SELECT EXISTS (SELECT 1 FROM "user" WHERE (lower(username) = lower(?) OR lower(email) = lower(?))`
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		in, inArgs, err := sqlx.In("id NOT IN (?)", ids)
		if err != nil {
			return errors.Wrap(err, "building user uniqueness query")
		}
		query += " AND " + in
		args = append(args, inArgs...)
	}
	query += ")"

	var exists bool
	if err := repo.getExec(exec).GetContext(ctx, &exists, rebind(query), args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	if exists {
		return user.ErrUserExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.NewString()
	query := rebind(`INSERT INTO "user"
(id, name, username, email, phone, is_active, is_superuser, password_hash, push_endpoint, push_p256dh, push_auth, last_login, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + userColumns)

	var row userRow
	err := repo.getExec(exec).GetContext(ctx, &row, query,
		usr.ID, usr.Name, usr.Username, usr.Email, usr.Phone, usr.Active(), usr.IsSuperuser, usr.PasswordHash,
		usr.PushSub.Endpoint, usr.PushSub.P256dh, usr.PushSub.Auth,
		null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
		usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(),
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return row.toUser(), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	query := `SELECT ` + userColumns + ` FROM "user"`
	var where []string
	var args []interface{}
	if filter != nil {
		if filter.Search != "" {
			where = append(where, "(name ILIKE ? OR username ILIKE ? OR email ILIKE ?)")
			like := "%" + filter.Search + "%"
			args = append(args, like, like, like)
		}
		if filter.IsActive != nil {
			where = append(where, "is_active = ?")
			args = append(args, *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			where = append(where, "created_at >= ?")
			args = append(args, filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			where = append(where, "created_at <= ?")
			args = append(args, filter.CreatedTo.UTC())
		}
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += orderBy(ordering, "created_at DESC")

	var rows []userRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	query := `SELECT ` + userColumns + ` FROM "user" WHERE `
	var args []interface{}
	switch {
	case filter.ID != "":
		query += "id = ?"
		args = append(args, filter.ID)
	case filter.Username != "":
		query += "lower(username) = lower(?)"
		args = append(args, filter.Username)
	case filter.Email != "":
		query += "lower(email) = lower(?)"
		args = append(args, filter.Email)
	case len(filter.UsernameOrEmail) > 0:
		username := filter.UsernameOrEmail[0]
		email := username
		if len(filter.UsernameOrEmail) > 1 {
			email = filter.UsernameOrEmail[1]
		}
		query += "(lower(username) = lower(?) OR lower(email) = lower(?))"
		args = append(args, username, email)
	default:
		return user.User{}, errors.New("empty user filter")
	}

	var row userRow
	if err := repo.getExec(exec).GetContext(ctx, &row, rebind(query), args...); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "getting user")
	}
	return row.toUser(), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	query := rebind(`UPDATE "user"
SET name = ?, username = ?, email = ?, phone = ?, is_active = ?, is_superuser = ?, password_hash = ?,
    push_endpoint = ?, push_p256dh = ?, push_auth = ?, last_login = ?, updated_at = ?
WHERE id = ?
RETURNING ` + userColumns)

	var row userRow
	err := repo.getExec(exec).GetContext(ctx, &row, query,
		usr.Name, usr.Username, usr.Email, usr.Phone, usr.Active(), usr.IsSuperuser, usr.PasswordHash,
		usr.PushSub.Endpoint, usr.PushSub.P256dh, usr.PushSub.Auth,
		null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
		time.Now().UTC(), usr.ID,
	)
	if err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "updating user")
	}
	return row.toUser(), nil
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		existing, err := repo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{usr.Username, usr.Email}}, exec...)
		switch errors.Cause(err) {
		case nil:
			usr.ID = existing.ID
		case user.ErrNotFound:
			return repo.CreateUser(ctx, usr, exec...)
		default:
			return user.User{}, err
		}
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM "user" WHERE id IN (?)`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "building user delete query")
	}
	res, err := repo.getExec(exec).ExecContext(ctx, rebind(query), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
