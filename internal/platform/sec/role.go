// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

// # User Roles

// UserRole is the authorization label stored on an account. It carries no
// policy of its own.
type UserRole string

const (
	// Default role for standard registered users
	RoleUser UserRole = "user"

	// Operators of the platform
	RoleAdmin UserRole = "admin"

	// Owners with unrestricted access
	RoleSuperAdmin UserRole = "super_admin"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}
