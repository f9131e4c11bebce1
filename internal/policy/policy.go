// Package policy decides whether a resolved chat user may submit location
// events.
//
// Rules, in order:
//   - no active chat mapping: denied (unmapped)
//   - customer accounts, or an unrecognised role: denied (role_excluded),
//     whether or not the account is active
//   - account inactive: denied (inactive)
//   - everyone else (super admins, moderator admins, sales reps): allowed
package policy

import (
	"field-visit-bot/internal/identity"
	"field-visit-bot/internal/repo"
)

// ActiveWhenUnset is the value assumed when an account's active flag is NULL.
const ActiveWhenUnset = true

// Reason explains a Decision.
type Reason string

const (
	ReasonUnmapped     Reason = "unmapped"
	ReasonInactive     Reason = "inactive"
	ReasonRoleExcluded Reason = "role_excluded"
	ReasonAllowed      Reason = "allowed"
)

// Decision is the result of Evaluate. Account is set whenever a mapping was
// found, including on denial, so replies can be role-specific.
type Decision struct {
	Allowed bool
	Reason  Reason
	Account *repo.Account
}

// Evaluate applies the access rules to a resolution. It has no side effects.
func Evaluate(res identity.Resolution) Decision {
	if !res.Found {
		return Decision{Reason: ReasonUnmapped}
	}

	acct := res.Account
	if !isStaff(acct.Role) {
		return Decision{Reason: ReasonRoleExcluded, Account: &acct}
	}
	if !isActive(acct) {
		return Decision{Reason: ReasonInactive, Account: &acct}
	}
	return Decision{Allowed: true, Reason: ReasonAllowed, Account: &acct}
}

// IsAdmin reports whether role may run administrative commands.
func IsAdmin(role repo.Role) bool {
	return role == repo.RoleSuperAdmin || role == repo.RoleModeratorAdmin
}

func isStaff(role repo.Role) bool {
	switch role {
	case repo.RoleSuperAdmin, repo.RoleModeratorAdmin, repo.RoleSalesRep:
		return true
	default:
		return false
	}
}

func isActive(acct repo.Account) bool {
	if acct.Active == nil {
		return ActiveWhenUnset
	}
	return *acct.Active
}
