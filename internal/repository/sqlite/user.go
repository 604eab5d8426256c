package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/yamdb/internal/apperror"
	"github.com/sakif/yamdb/internal/model"
	"github.com/sakif/yamdb/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB stores accounts in the users table.
type UserDB struct {
	conn *sql.DB
}

const userColumns = `id, username, email, role, first_name, last_name, bio,
	confirmation_code, is_superuser, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u    model.User
		code sql.NullString
	)
	if err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.Role,
		&u.FirstName, &u.LastName, &u.Bio,
		&code, &u.IsSuperuser, &u.CreatedAt,
	); err != nil {
		return nil, err
	}
	if code.Valid {
		u.ConfirmationCode = &code.String
	}
	return &u, nil
}

// Create inserts u with a fresh xid. A taken username or email surfaces as
// apperror.ErrConflict naming the column.
func (s *UserDB) Create(ctx context.Context, u *model.User) error {
	u.ID = xid.New().String()
	u.CreatedAt = time.Now().UTC()
	if u.Role == "" {
		u.Role = model.RoleUser
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.Role,
		u.FirstName, u.LastName, u.Bio,
		u.ConfirmationCode, u.IsSuperuser, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return userConflict(err)
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", u.Username, err)
	}
	return nil
}

func (s *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.getOne(ctx, "id", id,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (s *UserDB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.getOne(ctx, "username", username,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

func (s *UserDB) GetByUsernameAndEmail(ctx context.Context, username, email string) (*model.User, error) {
	return s.getOne(ctx, "username", username,
		`SELECT `+userColumns+` FROM users WHERE username = ? AND email = ?`, username, email)
}

func (s *UserDB) getOne(ctx context.Context, key, value, query string, args ...any) (*model.User, error) {
	u, err := scanUser(s.conn.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s %q: %w", key, value, err)
	}
	return u, nil
}

func (s *UserDB) TakenField(ctx context.Context, username, email string) (string, error) {
	var takenUsername, takenEmail bool
	err := s.conn.QueryRowContext(ctx,
		`SELECT
		   EXISTS (SELECT 1 FROM users WHERE username = ?),
		   EXISTS (SELECT 1 FROM users WHERE email = ?)`,
		username, email,
	).Scan(&takenUsername, &takenEmail)
	if err != nil {
		return "", fmt.Errorf("sqlite: checking taken username/email: %w", err)
	}

	switch {
	case takenUsername:
		return "username", nil
	case takenEmail:
		return "email", nil
	default:
		return "", nil
	}
}

// EnsureConfirmationCode is a compare-and-set: two racing callers agree on
// whichever code landed first.
func (s *UserDB) EnsureConfirmationCode(ctx context.Context, id, code string) (string, error) {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE users SET confirmation_code = ?
		 WHERE id = ? AND confirmation_code IS NULL`,
		code, id,
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: setting confirmation code for %s: %w", id, err)
	}

	var stored sql.NullString
	err = s.conn.QueryRowContext(ctx,
		`SELECT confirmation_code FROM users WHERE id = ?`, id,
	).Scan(&stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperror.NotFound("user", id)
		}
		return "", fmt.Errorf("sqlite: reading confirmation code for %s: %w", id, err)
	}
	return stored.String, nil
}

// List orders by username. search matches a username substring.
func (s *UserDB) List(ctx context.Context, search string, opts repository.ListOptions) ([]model.User, int, error) {
	opts = opts.Normalize()
	pattern := likePattern(search)

	var total int
	if err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username LIKE ? ESCAPE '\'`, pattern,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting users: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE username LIKE ? ESCAPE '\'
		 ORDER BY username
		 LIMIT ? OFFSET ?`,
		pattern, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, opts.Limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating users: %w", err)
	}

	return users, total, nil
}

// Update writes every mutable column of u. The confirmation code and
// creation time are left alone.
func (s *UserDB) Update(ctx context.Context, u *model.User) error {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE users
		 SET username = ?, email = ?, role = ?, first_name = ?, last_name = ?,
		     bio = ?, is_superuser = ?
		 WHERE id = ?`,
		u.Username, u.Email, u.Role, u.FirstName, u.LastName,
		u.Bio, u.IsSuperuser,
		u.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return userConflict(err)
		}
		return fmt.Errorf("sqlite: updating user %s: %w", u.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", u.ID)
	}
	return nil
}

// Delete removes the account together with its reviews and comments.
func (s *UserDB) Delete(ctx context.Context, id string) error {
	result, err := s.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

func userConflict(err error) error {
	field := violatedColumn(err)
	switch field {
	case "username", "email":
		return apperror.Conflict(field, "a user with that "+field+" already exists")
	default:
		return apperror.Conflict("", "username or email already taken")
	}
}
