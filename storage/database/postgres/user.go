package pgrepos

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/user"
)

const userColumns = `id, first_name, last_name, email, is_active, email_verified, age_level, roles,
	password_hash, created_at, updated_at, last_login`

// userOrderings maps the orderings callers may request to columns.
var userOrderings = map[string]string{
	"first_name": "lower(first_name)",
	"last_name":  "lower(last_name)",
	"email":      "lower(email)",
	"created_at": "created_at",
	"last_login": "last_login",
}

type userRow struct {
	ID            string         `db:"id"`
	FirstName     string         `db:"first_name"`
	LastName      string         `db:"last_name"`
	Email         string         `db:"email"`
	IsActive      bool           `db:"is_active"`
	EmailVerified bool           `db:"email_verified"`
	AgeLevel      string         `db:"age_level"`
	Roles         pq.StringArray `db:"roles"`
	PasswordHash  []byte         `db:"password_hash"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
	LastLogin     null.Time      `db:"last_login"`
}

func toUserRow(usr user.User) userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return userRow{
		ID:            usr.ID,
		FirstName:     usr.FirstName,
		LastName:      usr.LastName,
		Email:         usr.Email,
		IsActive:      usr.IsActive,
		EmailVerified: usr.EmailVerified,
		AgeLevel:      usr.AgeLevel,
		Roles:         roles,
		PasswordHash:  usr.PasswordHash,
		CreatedAt:     usr.CreatedAt.UTC(),
		UpdatedAt:     usr.UpdatedAt.UTC(),
		LastLogin:     null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (row userRow) user() user.User {
	return user.User{
		ID:            row.ID,
		FirstName:     row.FirstName,
		LastName:      row.LastName,
		Email:         row.Email,
		IsActive:      row.IsActive,
		EmailVerified: row.EmailVerified,
		AgeLevel:      row.AgeLevel,
		Roles:         row.Roles,
		PasswordHash:  row.PasswordHash,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
		LastLogin:     row.LastLogin.Time.UTC(),
	}
}

type tokenRow struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	Token     string    `db:"token"`
	ExpiresAt time.Time `db:"expires_at"`
	Used      bool      `db:"used"`
	CreatedAt time.Time `db:"created_at"`
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...user.User) error {
	excluded := make([]string, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded = append(excluded, u.ID)
	}

	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1) AND NOT (id::text = ANY($2)))`
	if err := repo.db.GetContext(ctx, &exists, q, email, pq.StringArray(excluded)); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = newID()
	q := `INSERT INTO users (` + userColumns + `) VALUES (:id, :first_name, :last_name, :email, :is_active,
		:email_verified, :age_level, :roles, :password_hash, :created_at, :updated_at, :last_login)`
	if _, err := repo.db.NamedExecContext(ctx, q, toUserRow(usr)); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, orderings []core.DBOrdering) ([]user.User, error) {
	var w where
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		w.add("(lower(first_name) LIKE ? OR lower(last_name) LIKE ? OR lower(email) LIKE ?)", pattern, pattern, pattern)
	}
	if len(filter.Roles) > 0 {
		patterns := make([]string, 0, len(filter.Roles))
		for _, role := range filter.Roles {
			patterns = append(patterns, role+"%")
		}
		w.add("EXISTS (SELECT 1 FROM unnest(roles) AS r WHERE r LIKE ANY(?))", pq.StringArray(patterns))
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}
	if !filter.CreatedFrom.IsZero() {
		w.add("created_at >= ?", filter.CreatedFrom.UTC())
	}
	if !filter.CreatedTo.IsZero() {
		w.add("created_at <= ?", filter.CreatedTo.UTC())
	}

	order := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		if col, ok := userOrderings[ord.Field]; ok {
			order = append(order, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	if len(order) == 0 {
		order = append(order, "created_at DESC")
	}

	var rows []userRow
	q := `SELECT ` + userColumns + ` FROM users` + w.String() + ` ORDER BY ` + strings.Join(order, ", ")
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
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
	case filter.Email != "":
		w.add("lower(email) = lower(?)", filter.Email)
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	q := `SELECT ` + userColumns + ` FROM users` + w.String() + ` LIMIT 1`
	if err := repo.db.GetContext(ctx, &row, q, w.args...); err != nil {
		return user.User{}, trapNoRows(err, user.ErrNotFound, "getting user")
	}
	return row.user(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `UPDATE users SET first_name = :first_name, last_name = :last_name, email = :email,
		is_active = :is_active, email_verified = :email_verified, age_level = :age_level, roles = :roles,
		password_hash = :password_hash, updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, toUserRow(usr))
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if ids = validIDs(ids); len(ids) == 0 {
		return nil
	}
	_, err := repo.db.ExecContext(ctx, `DELETE FROM users WHERE id = ANY($1::uuid[])`, pq.StringArray(ids))
	return errors.Wrap(err, "deleting users")
}

func (repo *userRepository) CreateVerificationToken(ctx context.Context, tok user.VerificationToken) (user.VerificationToken, error) {
	tok.ID = newID()
	q := `INSERT INTO email_verification_tokens (id, email, token, expires_at, used, created_at)
		VALUES (:id, :email, :token, :expires_at, :used, :created_at)`
	row := tokenRow(tok)
	row.ExpiresAt, row.CreatedAt = tok.ExpiresAt.UTC(), tok.CreatedAt.UTC()
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return user.VerificationToken{}, errors.Wrap(err, "inserting verification token")
	}
	return tok, nil
}

func (repo *userRepository) GetVerificationToken(ctx context.Context, token string) (user.VerificationToken, error) {
	var row tokenRow
	q := `SELECT id, email, token, expires_at, used, created_at FROM email_verification_tokens WHERE token = $1`
	if err := repo.db.GetContext(ctx, &row, q, token); err != nil {
		return user.VerificationToken{}, trapNoRows(err, user.ErrTokenNotFound, "getting verification token")
	}
	return user.VerificationToken(row), nil
}

func (repo *userRepository) MarkVerificationTokenUsed(ctx context.Context, id string) error {
	if !validID(id) {
		return user.ErrTokenNotFound
	}
	res, err := repo.db.ExecContext(ctx, `UPDATE email_verification_tokens SET used = true WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "marking verification token used")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.ErrTokenNotFound
	}
	return nil
}

func (repo *userRepository) DeleteUnusedVerificationTokens(ctx context.Context, email string) error {
	q := `DELETE FROM email_verification_tokens WHERE NOT used AND lower(email) = lower($1)`
	_, err := repo.db.ExecContext(ctx, q, email)
	return errors.Wrap(err, "deleting unused verification tokens")
}

func (repo *userRepository) DeleteExpiredVerificationTokens(ctx context.Context, before time.Time) (int, error) {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM email_verification_tokens WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "deleting expired verification tokens")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
