package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"farm-market/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const userColumns = `id, email, password_hash, full_name, phone, date_of_birth, role, email_verified,
	email_verification_token, email_verification_expires_at, failed_login_attempts, locked_until,
	password_reset_token, password_reset_expires_at, last_login_at, created_at, updated_at`

func insertUser(ctx context.Context, q sqlx.ExtContext, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = utc(u.CreatedAt)
	u.UpdatedAt = u.CreatedAt
	if u.Role == "" {
		u.Role = models.RoleConsumer
	}

	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.Email, u.PasswordHash, u.FullName, u.Phone, u.DateOfBirth, u.Role, u.EmailVerified,
		u.EmailVerificationToken, u.EmailVerificationExpiresAt, u.FailedLoginAttempts, u.LockedUntil,
		u.PasswordResetToken, u.PasswordResetExpiresAt, u.LastLoginAt, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// CreateUser inserts u. A taken email is ErrDuplicate.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	return insertUser(ctx, s.db, u)
}

// CreateFarmerAccount inserts the user and its farmer profile together.
func (s *Store) CreateFarmerAccount(ctx context.Context, u *models.User, f *models.Farmer) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := insertUser(ctx, tx, u); err != nil {
			return err
		}
		f.UserID = u.ID
		return insertFarmer(ctx, tx, f)
	})
}

func (s *Store) getUserWhere(ctx context.Context, where string, arg any) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, s.db.Rebind("SELECT "+userColumns+" FROM users WHERE "+where), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUserWhere(ctx, "id = ?", id)
}

// GetUserByEmail matches the email case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUserWhere(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) GetUserByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	return s.getUserWhere(ctx, "email_verification_token = ?", token)
}

func (s *Store) GetUserByResetToken(ctx context.Context, token string) (*models.User, error) {
	return s.getUserWhere(ctx, "password_reset_token = ?", token)
}

func (s *Store) execUser(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return expectRow(res)
}

// MarkEmailVerified sets the verified flag and consumes the token.
func (s *Store) MarkEmailVerified(ctx context.Context, id string, now time.Time) error {
	return s.execUser(ctx, `
		UPDATE users SET email_verified = ?, email_verification_token = NULL,
			email_verification_expires_at = NULL, updated_at = ?
		WHERE id = ?`, true, utc(now), id)
}

// RecordFailedLogin stores the new failure count and optional lock.
func (s *Store) RecordFailedLogin(ctx context.Context, id string, attempts int, lockedUntil *time.Time, now time.Time) error {
	return s.execUser(ctx,
		"UPDATE users SET failed_login_attempts = ?, locked_until = ?, updated_at = ? WHERE id = ?",
		attempts, utcPtr(lockedUntil), utc(now), id)
}

// RecordSuccessfulLogin clears failures and stamps last_login_at.
func (s *Store) RecordSuccessfulLogin(ctx context.Context, id string, now time.Time) error {
	now = utc(now)
	return s.execUser(ctx,
		"UPDATE users SET failed_login_attempts = 0, locked_until = NULL, last_login_at = ?, updated_at = ? WHERE id = ?",
		now, now, id)
}

func (s *Store) SetPasswordResetToken(ctx context.Context, id, token string, expiresAt, now time.Time) error {
	return s.execUser(ctx,
		"UPDATE users SET password_reset_token = ?, password_reset_expires_at = ?, updated_at = ? WHERE id = ?",
		token, utc(expiresAt), utc(now), id)
}

// ResetPassword stores the new hash, consumes the reset token and unlocks the account.
func (s *Store) ResetPassword(ctx context.Context, id, passwordHash string, now time.Time) error {
	return s.execUser(ctx, `
		UPDATE users SET password_hash = ?, password_reset_token = NULL, password_reset_expires_at = NULL,
			failed_login_attempts = 0, locked_until = NULL, updated_at = ?
		WHERE id = ?`, passwordHash, utc(now), id)
}

// UpdateUserProfile writes the self-service account fields.
func (s *Store) UpdateUserProfile(ctx context.Context, u *models.User, now time.Time) error {
	u.UpdatedAt = utc(now)
	return s.execUser(ctx,
		"UPDATE users SET full_name = ?, phone = ?, date_of_birth = ?, updated_at = ? WHERE id = ?",
		u.FullName, u.Phone, u.DateOfBirth, u.UpdatedAt, u.ID)
}

func (s *Store) UpdateUserRole(ctx context.Context, id string, role models.Role, now time.Time) error {
	return s.execUser(ctx, "UPDATE users SET role = ?, updated_at = ? WHERE id = ?", role, utc(now), id)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM users WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return expectRow(res)
}

// ListUsers pages through users, newest first.
func (s *Store) ListUsers(ctx context.Context, f models.UserFilter) ([]models.User, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Role != "" {
		where = append(where, "role = ?")
		args = append(args, f.Role)
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		where = append(where, "(LOWER(email) LIKE ? OR LOWER(full_name) LIKE ?)")
		args = append(args, pattern, pattern)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind("SELECT COUNT(*) FROM users"+clause), args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	users := []models.User{}
	pageArgs := append(append([]any{}, args...), f.PageSize, f.Offset())
	err := s.db.SelectContext(ctx, &users, s.db.Rebind(
		"SELECT "+userColumns+" FROM users"+clause+" ORDER BY created_at DESC, id LIMIT ? OFFSET ?"), pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}
