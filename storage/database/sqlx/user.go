package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/murilobento/studiofisiopilates-sub000/core"
	"github.com/murilobento/studiofisiopilates-sub000/core/user"
)

const userColumns = `id, name, username, email, is_active, role, commission_rate, password_hash, created_at, updated_at, last_login`

var userOrderings = map[string]bool{"name": true, "username": true, "email": true, "created_at": true, "last_login": true}

type userRow struct {
	ID             string              `db:"id"`
	Name           string              `db:"name"`
	Username       null.String         `db:"username"`
	Email          null.String         `db:"email"`
	IsActive       bool                `db:"is_active"`
	Role           string              `db:"role"`
	CommissionRate decimal.NullDecimal `db:"commission_rate"`
	PasswordHash   []byte              `db:"password_hash"`
	CreatedAt      time.Time           `db:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at"`
	LastLogin      null.Time           `db:"last_login"`
}

func toUserRow(usr user.User) userRow {
	row := userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		IsActive:     usr.IsActive,
		Role:         string(usr.Role),
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
	if usr.CommissionRate != nil {
		row.CommissionRate = decimal.NullDecimal{Decimal: *usr.CommissionRate, Valid: true}
	}
	return row
}

func (row userRow) user() user.User {
	usr := user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username.String,
		Email:        row.Email.String,
		IsActive:     row.IsActive,
		Role:         user.Role(row.Role),
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
		LastLogin:    row.LastLogin.Time.UTC(),
	}
	if row.CommissionRate.Valid {
		rate := row.CommissionRate.Decimal
		usr.CommissionRate = &rate
	}
	return usr
}

type userRepository struct {
	*Store
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(s *Store) *userRepository {
	return &userRepository{Store: s}
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	var w where
	w.add("(username = ? OR email = ?)", username, email)
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		w.add("id NOT IN (?)", ids)
	}

	ext := repo.ext(ctx)
	q, args, err := bind(ext, "SELECT username, email FROM users"+w.String()+" LIMIT 1", w.args...)
	if err != nil {
		return err
	}
	var found struct {
		Username null.String `db:"username"`
		Email    null.String `db:"email"`
	}
	err = ext.GetContext(ctx, &found, q, args...)
	switch {
	case err == nil:
	case err == sql.ErrNoRows:
		return nil
	default:
		return dbErr(err, nil, "checking user uniqueness")
	}
	if username != "" && found.Username.String == username {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	row := toUserRow(usr)
	_, err := sqlx.NamedExecContext(ctx, repo.ext(ctx), `
		INSERT INTO users (`+userColumns+`)
		VALUES (:id, :name, :username, :email, :is_active, :role, :commission_rate, :password_hash, :created_at, :updated_at, :last_login)`,
		row)
	if err != nil {
		if isUniqueViolation(err, "users_username_key") {
			return user.User{}, user.ErrUsernameExists
		}
		if isUniqueViolation(err, "users_email_key") {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, dbErr(err, nil, "inserting user")
	}
	return row.user(), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	var w where
	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			w.add("(name ILIKE ? OR username ILIKE ? OR email ILIKE ?)", val, val, val)
		}
		if filter.Role != "" {
			w.add("role = ?", string(filter.Role))
		}
		if filter.IsActive != nil {
			w.add("is_active = ?", *filter.IsActive)
		}
	}

	ext := repo.ext(ctx)
	q, args, err := bind(ext, "SELECT "+userColumns+" FROM users"+w.String()+orderBy(ordering, userOrderings, "created_at ASC"), w.args...)
	if err != nil {
		return nil, err
	}
	var rows []userRow
	if err = ext.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, dbErr(err, nil, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.user())
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var w where
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		w.add("id = ?", filter.ID)
	case filter.UsernameOrEmail != "":
		w.add("(username = ? OR email = ?)", filter.UsernameOrEmail, filter.UsernameOrEmail)
	default:
		return user.User{}, user.ErrNotFound
	}

	ext := repo.ext(ctx)
	q, args, err := bind(ext, "SELECT "+userColumns+" FROM users"+w.String()+" LIMIT 1", w.args...)
	if err != nil {
		return user.User{}, err
	}
	var row userRow
	if err = ext.GetContext(ctx, &row, q, args...); err != nil {
		return user.User{}, dbErr(err, user.ErrNotFound, "getting user")
	}
	return row.user(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	row := toUserRow(usr)
	res, err := sqlx.NamedExecContext(ctx, repo.ext(ctx), `
		UPDATE users SET
			name = :name, username = :username, email = :email, is_active = :is_active, role = :role,
			commission_rate = :commission_rate, password_hash = :password_hash,
			updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`,
		row)
	if err != nil {
		if isUniqueViolation(err, "users_email_key") {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, dbErr(err, nil, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return row.user(), nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	ext := repo.ext(ctx)
	q, args, err := bind(ext, "DELETE FROM users WHERE id IN (?)", ids)
	if err != nil {
		return err
	}
	_, err = ext.ExecContext(ctx, q, args...)
	return dbErr(err, nil, "deleting users")
}
