package models

// RoleName names one of the seeded roles.
type RoleName string

const (
	RoleVisitor RoleName = "visitor"
	RoleUser    RoleName = "user"
	RoleAdmin   RoleName = "admin"
)

// Permission is a single capability a role may grant.
type Permission string

const (
	PermissionJoinRooms      Permission = "join_rooms"
	PermissionCreateRooms    Permission = "create_rooms"
	PermissionCreateGroups   Permission = "create_groups"
	PermissionManageUsers    Permission = "manage_users"
	PermissionManageSettings Permission = "manage_settings"
)

// Capabilities is the set of permissions held by a role.
type Capabilities map[Permission]struct{}

// NewCapabilities builds a capability set from a list of permissions.
func NewCapabilities(perms ...Permission) Capabilities {
	c := make(Capabilities, len(perms))
	for _, p := range perms {
		c[p] = struct{}{}
	}
	return c
}

// Has reports whether the set grants p.
func (c Capabilities) Has(p Permission) bool {
	_, ok := c[p]
	return ok
}

// Role is a named set of permissions.
type Role struct {
	ID          int          `json:"id"`
	Name        RoleName     `json:"name"`
	Description string       `json:"description"`
	Permissions Capabilities `json:"-"`
}

// DefaultCapabilities is the permission table seeded into the roles tables.
var DefaultCapabilities = map[RoleName]Capabilities{
	RoleVisitor: NewCapabilities(PermissionJoinRooms),
	RoleUser:    NewCapabilities(PermissionJoinRooms, PermissionCreateRooms, PermissionCreateGroups),
	RoleAdmin: NewCapabilities(PermissionJoinRooms, PermissionCreateRooms, PermissionCreateGroups,
		PermissionManageUsers, PermissionManageSettings),
}
