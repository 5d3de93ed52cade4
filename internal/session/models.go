package session

import "time"

// Role is the closed set of account roles.
// The zero value RoleNone grants nothing.
type Role int

const (
	RoleNone Role = iota
	RoleAdmin
	RoleOwner
)

// ParseRole converts a stored role string. Anything other than
// "admin" or "owner" yields RoleNone and false.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "admin":
		return RoleAdmin, true
	case "owner":
		return RoleOwner, true
	default:
		return RoleNone, false
	}
}

// Valid reports whether r is one of the enumerated roles
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleOwner
}

// MarshalText encodes the role by name
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleOwner:
		return "owner"
	default:
		return "none"
	}
}

// State is the lifecycle state of a session
type State int

const (
	// StateActive holds while now < ExpiresAt.
	StateActive State = iota
	// StateEnded is terminal: expired or deleted.
	StateEnded
)

// Session binds an opaque token to an account until ExpiresAt
type Session struct {
	Token     string    `json:"token"`
	AccountID string    `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// StateAt returns the session state at the given instant.
func (s Session) StateAt(now time.Time) State {
	if now.Before(s.ExpiresAt) {
		return StateActive
	}
	return StateEnded
}

// Account is the owner of a session as stored.
// Role is kept as the raw stored string; use ParseRole at the boundary.
type Account struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	PasswordHash string `json:"-"`
}

// Record is one row of the session lookup: the session joined with its account.
// Account is nil when the session is orphaned.
type Record struct {
	Session Session
	Account *Account
}

// Identity is the account part of a Principal
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Principal is the authenticated caller of one request. It is never persisted.
type Principal struct {
	Token   string   `json:"-"`
	Account Identity `json:"account"`
}
