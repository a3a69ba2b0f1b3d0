package entity

import "time"

// account status values in the generic store
const (
	StatusActive   = "active"
	StatusLocked   = "locked"
	StatusDisabled = "disabled"
)

// User is a row of the `users` table: administrators and citizens.
type User struct {
	ID                  int64      `db:"id"`
	Username            *string    `db:"username"`
	Email               *string    `db:"email"`
	PhoneNumber         *string    `db:"phone_number"`
	PasswordHash        *string    `db:"password_hash"`
	PasswordAlgo        *string    `db:"password_algo"`
	PasswordUpdatedAt   *time.Time `db:"password_updated_at"`
	Role                string     `db:"role"`
	Status              string     `db:"status"` // active / locked / disabled
	LoginFailedAttempts int        `db:"login_failed_attempts"`
	LockedUntil         *time.Time `db:"locked_until"`
	LastLoginAt         *time.Time `db:"last_login_at"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}
