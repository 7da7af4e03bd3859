package rbac

import (
	"context"
	"time"
)

// RoleRow is a role as persisted by the data store.
type RoleRow struct {
	Name        string   `bson:"name"`
	DisplayName string   `bson:"display_name"`
	Description string   `bson:"description"`
	Icon        string   `bson:"icon"`
	Permissions []string `bson:"permissions"`
}

// AdminRow is an admin as persisted by the data store, with resolved
// role names. An admin with zero roles does not exist: removing the last
// role deletes the row.
type AdminRow struct {
	UserID      int64     `bson:"user_id"`
	DisplayName string    `bson:"display_name"`
	Roles       []string  `bson:"roles"`
	AddedAt     time.Time `bson:"added_at"`
}

// AdminStore is the persistence contract consumed by Manager.
// Implementations return rows as stored; all interpretation of role names
// against the catalog happens in Manager.
type AdminStore interface {
	CreateRoleIfNotExists(ctx context.Context, role RoleRow) error
	GetRole(ctx context.Context, name string) (RoleRow, bool, error)
	GetAllRoles(ctx context.Context) ([]RoleRow, error)

	GetAdminRoles(ctx context.Context, userID int64) ([]string, error)
	IsAdmin(ctx context.Context, userID int64) (bool, error)
	GetAdmin(ctx context.Context, userID int64) (AdminRow, bool, error)
	GetAllAdmins(ctx context.Context) ([]AdminRow, error)
	CountAdminsWithRole(ctx context.Context, roleName string) (int, error)

	AssignRoleToAdmin(ctx context.Context, userID int64, roleName, displayName string) error
	RemoveRoleFromAdmin(ctx context.Context, userID int64, roleName string) error
	RemoveAdmin(ctx context.Context, userID int64) error
}

func (r RoleRow) toRole() Role {
	perms := make(PermissionSet, len(r.Permissions))
	for _, p := range r.Permissions {
		perms[Permission(p)] = struct{}{}
	}
	return Role{
		Name:        r.Name,
		DisplayName: r.DisplayName,
		Description: r.Description,
		Icon:        r.Icon,
		Permissions: perms,
	}
}
