package models

import "time"

// AdminUser is the persistent admin account. The lockout counters
// (FailedLoginAttempts, LockedUntil) are the only state the abuse-control
// core persists; everything else it tracks is process-local.
type AdminUser struct {
	ID                  string
	Username            string
	PasswordHash        string // empty when a password has never been set
	Status              string // "active" or "inactive"
	RoleID              string
	RoleName            string
	Permissions         []string // permission slugs resolved from the role
	FailedLoginAttempts int
	LockedUntil         *time.Time // always UTC
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// UserData is the session snapshot of an authenticated user. It is captured
// at login and carried by the in-memory session, so permission checks do not
// hit the store on every request.
type UserData struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// HasPermission reports whether the snapshot carries the given permission
// slug. Accounts predating role permissions have an empty slug list; callers
// fall back to role-name checks for those.
func (u UserData) HasPermission(slug string) bool {
	for _, p := range u.Permissions {
		if p == slug {
			return true
		}
	}
	return false
}
