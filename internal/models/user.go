package models

import "time"

// Role is a user's role. Roles are ordered: admin > farmer > consumer.
type Role string

const (
	RoleConsumer Role = "consumer"
	RoleFarmer   Role = "farmer"
	RoleAdmin    Role = "admin"
)

var roleRank = map[Role]int{
	RoleConsumer: 1,
	RoleFarmer:   2,
	RoleAdmin:    3,
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// RoleAtLeast reports whether r grants at least the permissions of min.
func RoleAtLeast(r, min Role) bool {
	return roleRank[r] >= roleRank[min]
}

// User is an account. PasswordHash and the token fields never leave the
// service layer.
type User struct {
	ID                         string     `db:"id" json:"id"`
	Email                      string     `db:"email" json:"email"`
	PasswordHash               string     `db:"password_hash" json:"-"`
	FullName                   string     `db:"full_name" json:"full_name"`
	Phone                      *string    `db:"phone" json:"phone"`
	DateOfBirth                *string    `db:"date_of_birth" json:"date_of_birth"`
	Role                       Role       `db:"role" json:"role"`
	EmailVerified              bool       `db:"email_verified" json:"email_verified"`
	EmailVerificationToken     *string    `db:"email_verification_token" json:"-"`
	EmailVerificationExpiresAt *time.Time `db:"email_verification_expires_at" json:"-"`
	FailedLoginAttempts        int        `db:"failed_login_attempts" json:"-"`
	LockedUntil                *time.Time `db:"locked_until" json:"-"`
	PasswordResetToken         *string    `db:"password_reset_token" json:"-"`
	PasswordResetExpiresAt     *time.Time `db:"password_reset_expires_at" json:"-"`
	LastLoginAt                *time.Time `db:"last_login_at" json:"last_login_at"`
	CreatedAt                  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt                  time.Time  `db:"updated_at" json:"updated_at"`
}

// LockedAt reports whether the account is locked at now.
func (u *User) LockedAt(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// UserFilter narrows the admin user listing.
type UserFilter struct {
	Role     Role
	Search   string
	Page     int
	PageSize int
}

func (f UserFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}
