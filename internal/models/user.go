// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// Role is the enumerated role tag attached to every identity. Authentication
// itself is external; tokens arrive with the role already resolved.
type Role string

const (
	RolePetOwner     Role = "petOwner"
	RoleVeterinarian Role = "veterinarian"
	RoleStaff        Role = "staff"
	RoleAdmin        Role = "admin"
)

// Capability names a behavior gate. Handlers branch on capability
// membership rather than comparing role strings in place.
type Capability string

const (
	// CapabilityClinicalContext gates clinical detail in messages and
	// notification templates (patient context panels, medical previews).
	CapabilityClinicalContext Capability = "clinical_context"
	// CapabilityManageUsers gates administrative user management.
	CapabilityManageUsers Capability = "manage_users"
)

var roleCapabilities = map[Role]map[Capability]struct{}{
	RoleVeterinarian: {
		CapabilityClinicalContext: {},
	},
	RoleStaff: {
		CapabilityClinicalContext: {},
	},
	RoleAdmin: {
		CapabilityClinicalContext: {},
		CapabilityManageUsers:     {},
	},
}

// Can reports whether the role grants the capability.
func (r Role) Can(c Capability) bool {
	caps, ok := roleCapabilities[r]
	if !ok {
		return false
	}
	_, ok = caps[c]
	return ok
}

// Valid reports whether the role is one of the known tags.
func (r Role) Valid() bool {
	switch r {
	case RolePetOwner, RoleVeterinarian, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// User is the identity projection this subsystem consumes. The account
// lifecycle (signup, password, verification) lives in the auth module.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null" json:"username"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Role      Role      `gorm:"type:varchar(24);default:'petOwner'" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary is the participant shape embedded in broadcast payloads.
type Summary struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Summarize returns the broadcast-safe projection of the user.
func (u *User) Summarize() *Summary {
	if u == nil {
		return nil
	}
	return &Summary{ID: u.ID, Username: u.Username, Role: u.Role}
}
