package models

import (
	"github.com/google/uuid"
)

// Role names used across the context hierarchy
const (
	RolePlatformSuperAdmin = "platform_super_admin"
	RoleEnterpriseOwner    = "enterprise_owner"
	RoleEnterpriseAdmin    = "enterprise_admin"
	RoleSeatAdmin          = "seat_admin"
	RoleSeatMember         = "seat_member"
	RoleAuditor            = "auditor"
)

// Permission grants an (resource, action) pair, optionally narrowed to a
// single resource instance.
type Permission struct {
	Resource   string     `json:"resource"`
	Action     string     `json:"action"`
	ResourceID *uuid.UUID `json:"resource_id,omitempty"`
}

// Allows reports whether this permission covers the given resource/action
// pair. A permission without a ResourceID covers every instance.
func (p Permission) Allows(resource, action string, resourceID *uuid.UUID) bool {
	if p.Resource != resource || p.Action != action {
		return false
	}
	if p.ResourceID == nil {
		return true
	}
	return resourceID != nil && *p.ResourceID == *resourceID
}

// RolePermission maps a role to a granted permission. Rows are cached per
// role by the authorization layer.
type RolePermission struct {
	Role       string     `json:"role" db:"role"`
	Permission Permission `json:"permission"`
	IsGranted  bool       `json:"is_granted" db:"is_granted"`
}

// TableName returns the table name for the RolePermission model
func (RolePermission) TableName() string {
	return "role_permissions"
}
