package repo

import (
	"strings"
	"time"
)

// Role is the account type stored in users.user_type.
type Role string

const (
	RoleSuperAdmin     Role = "super_admin"
	RoleModeratorAdmin Role = "moderator_admin"
	RoleSalesRep       Role = "sales_rep"
	RoleCustomer       Role = "customer"
	// RoleUnknown marks a user_type value the bot does not recognise.
	RoleUnknown Role = "unknown"
)

// ParseRole maps a stored user_type to a Role. Separators and case are ignored
// so "SalesRep", "sales-rep" and "sales_rep" all match.
func ParseRole(s string) Role {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("_", "", "-", "", " ", "").Replace(key)
	switch key {
	case "superadmin":
		return RoleSuperAdmin
	case "moderatoradmin", "moderator":
		return RoleModeratorAdmin
	case "salesrep", "sales":
		return RoleSalesRep
	case "customer":
		return RoleCustomer
	default:
		return RoleUnknown
	}
}

// Account represents the users table row as seen by the bot.
type Account struct {
	ID          int64
	DisplayName string
	Phone       *string
	Role        Role
	// Active is nil when users.is_active is NULL.
	Active *bool
}

// ChatMapping represents the chat_user_mappings table row.
type ChatMapping struct {
	ID         int64
	ChatUserID int64
	AccountID  int64
	Active     bool
}

// Identity is an active mapping joined to its account.
type Identity struct {
	Mapping ChatMapping
	Account Account
}

// Visit represents a row in field_visits.
type Visit struct {
	ID          string
	AccountID   int64
	ChatUserID  int64
	DisplayName string
	Phone       *string
	Latitude    float64
	Longitude   float64
	VisitDate   time.Time
	MapsLink    string
	CustomerTag *string
	CreatedAt   time.Time
}
