package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/user"
	"github.com/trezcool/markit/storage/database"
)

const userColumns = `id, name, email, COALESCE(nickname, '') AS nickname, avatar, is_active, roles,
	password_hash, created_at, modified_at, last_login`

var userOrderColumns = map[string]string{
	"id":         "id",
	"name":       "name",
	"email":      "email",
	"created_at": "created_at",
	"last_login": "last_login",
}

type userRow struct {
	ID           int64          `db:"id"`
	Name         string         `db:"name"`
	Email        string         `db:"email"`
	Nickname     string         `db:"nickname"`
	Avatar       string         `db:"avatar"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	ModifiedAt   time.Time      `db:"modified_at"`
	LastLogin    sql.NullTime   `db:"last_login"`
}

func (row userRow) user() user.User {
	return user.User{
		ID:           row.ID,
		Name:         row.Name,
		Email:        row.Email,
		Nickname:     row.Nickname,
		Avatar:       row.Avatar,
		IsActive:     row.IsActive,
		Roles:        []string(row.Roles),
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt,
		ModifiedAt:   row.ModifiedAt,
		LastLogin:    row.LastLogin.Time,
	}
}

func usersFrom(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.user())
	}
	return users
}

// rolesArray never binds NULL, roles is NOT NULL.
func rolesArray(roles []string) pq.StringArray {
	if roles == nil {
		return pq.StringArray{}
	}
	return roles
}

type userRepository struct {
	baseRepository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{baseRepository{exec: exec}}
}

// uniqueErr maps unique violations to the user errors.
func (repo userRepository) uniqueErr(err error, msg string) error {
	switch {
	case database.IsUniqueViolation(err, "users_name_key"):
		return user.ErrNameExists
	case database.IsUniqueViolation(err, "users_email_key"):
		return user.ErrEmailExists
	case database.IsUniqueViolation(err, "users_nickname_key"):
		return user.ErrNicknameExists
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUniqueness(
	ctx context.Context,
	name, email, nickname string,
	excludedIDs []int64,
	exec ...core.DBExecutor,
) error {
	q := "SELECT " + userColumns + " FROM users WHERE (name = ? OR email = ? OR (nickname <> '' AND nickname = ?))"
	args := []interface{}{name, email, nickname}
	if len(excludedIDs) > 0 {
		q += " AND id NOT IN (?)"
		args = append(args, excludedIDs)
	}

	var rows []userRow
	if err := selectIn(ctx, repo.getExec(exec), &rows, q+" ORDER BY id", args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, row := range rows {
		switch {
		case row.Name == name:
			return user.ErrNameExists
		case row.Email == email:
			return user.ErrEmailExists
		case nickname != "" && row.Nickname == nickname:
			return user.ErrNicknameExists
		}
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	q := `INSERT INTO users (name, email, nickname, avatar, is_active, roles, password_hash, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`
	id, err := insert(ctx, repo.getExec(exec), q,
		usr.Name, usr.Email, nullString(usr.Nickname), usr.Avatar, usr.IsActive, rolesArray(usr.Roles),
		usr.PasswordHash, usr.CreatedAt.UTC(), usr.ModifiedAt.UTC())
	if err != nil {
		return user.User{}, repo.uniqueErr(err, "inserting user")
	}
	usr.ID = id
	return usr, nil
}

func (repo userRepository) QueryUsers(
	ctx context.Context,
	filter *user.QueryFilter,
	ordering []core.DBOrdering,
	exec ...core.DBExecutor,
) ([]user.User, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter != nil {
		// users with Name, Nickname or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			where = append(where, "(name ILIKE ? OR nickname ILIKE ? OR email ILIKE ?)")
			args = append(args, val, val, val)
		}
		if len(filter.Roles) > 0 {
			where = append(where, "roles && ?")
			args = append(args, pq.Array(filter.Roles))
		}
		if filter.IsActive != nil {
			where = append(where, "is_active = ?")
			args = append(args, *filter.IsActive)
		}
	}

	q := "SELECT " + userColumns + " FROM users"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY " + core.OrderByClause(ordering, userOrderColumns, "id ASC")

	var rows []userRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return usersFrom(rows), nil
}

func (repo userRepository) SearchUsers(ctx context.Context, name string, limit int, exec ...core.DBExecutor) ([]user.User, error) {
	val := "%" + name + "%"
	q := "SELECT " + userColumns + " FROM users WHERE name ILIKE ? OR nickname ILIKE ? ORDER BY name LIMIT ?"

	var rows []userRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, q, val, val, limit); err != nil {
		return nil, errors.Wrap(err, "searching users")
	}
	return usersFrom(rows), nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	q := "SELECT " + userColumns + " FROM users WHERE "
	var args []interface{}
	switch {
	case filter.ID != 0:
		q += "id = ?"
		args = append(args, filter.ID)
	case filter.Name != "":
		q += "name = ?"
		args = append(args, filter.Name)
	case filter.Email != "":
		q += "email = ?"
		args = append(args, filter.Email)
	case filter.NameOrEmail != "":
		q += "(name = ? OR email = ?)"
		args = append(args, filter.NameOrEmail, filter.NameOrEmail)
	default:
		return user.User{}, user.ErrNotFound
	}

	row, err := getOne[userRow](ctx, repo.getExec(exec), q+" LIMIT 1", args...)
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return row.user(), nil
}

func (repo userRepository) GetUsersByID(ctx context.Context, ids []int64, exec ...core.DBExecutor) ([]user.User, error) {
	if len(ids) == 0 {
		return []user.User{}, nil
	}
	var rows []userRow
	q := "SELECT " + userColumns + " FROM users WHERE id IN (?) ORDER BY id"
	if err := selectIn(ctx, repo.getExec(exec), &rows, q, ids); err != nil {
		return nil, errors.Wrap(err, "querying users by ID")
	}
	return usersFrom(rows), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	var lastLogin sql.NullTime
	if !usr.LastLogin.IsZero() {
		lastLogin = sql.NullTime{Time: usr.LastLogin.UTC(), Valid: true}
	}
	q := `UPDATE users SET name = ?, email = ?, nickname = ?, avatar = ?, is_active = ?, roles = ?,
		password_hash = ?, modified_at = ?, last_login = ? WHERE id = ?`
	n, err := execAffected(ctx, repo.getExec(exec), q,
		usr.Name, usr.Email, nullString(usr.Nickname), usr.Avatar, usr.IsActive, rolesArray(usr.Roles),
		usr.PasswordHash, usr.ModifiedAt.UTC(), lastLogin, usr.ID)
	if err != nil {
		return user.User{}, repo.uniqueErr(err, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []int64, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := execAffected(ctx, repo.getExec(exec), "DELETE FROM users WHERE id = ANY(?)", pq.Array(ids))
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return n, nil
}
