package storage

import (
	"context"
	"time"

	"github.com/joomcode/errorx"
	"github.com/maxbolgarin/errm"

	"github.com/armorybot/armory/internal/rbac"
)

// AdminRepository persists admin roles and role assignments in two
// collections: one for the role catalog rows and one per-admin document
// with the list of assigned role names.
type AdminRepository struct {
	roles  *Collection
	admins *Collection
}

// NewAdminRepository creates a repository over the roles and admins collections.
func NewAdminRepository(db *MongoDB) *AdminRepository {
	return &AdminRepository{
		roles:  db.Collection(RolesCollectionName),
		admins: db.Collection(AdminsCollectionName),
	}
}

// EnsureIndexes creates the unique indexes the repository relies on.
func (r *AdminRepository) EnsureIndexes(ctx context.Context) error {
	if err := r.roles.CreateUniqueIndex(ctx, "name"); err != nil {
		return errm.Wrap(err, "roles index")
	}
	if err := r.admins.CreateUniqueIndex(ctx, "user_id"); err != nil {
		return errm.Wrap(err, "admins index")
	}
	return nil
}

// CreateRoleIfNotExists inserts a catalog role, ignoring duplicates so
// seeding stays idempotent.
func (r *AdminRepository) CreateRoleIfNotExists(ctx context.Context, role rbac.RoleRow) error {
	err := r.roles.Insert(ctx, role)
	switch {
	case errorx.IsDuplicate(err):
		return nil
	case err != nil:
		return errm.Wrap(err, "insert role", "role", role.Name)
	}
	return nil
}

func (r *AdminRepository) GetRole(ctx context.Context, name string) (rbac.RoleRow, bool, error) {
	var row rbac.RoleRow
	err := r.roles.FindOne(ctx, &row, Filter{"name": name})
	switch {
	case errorx.IsNotFound(err):
		return rbac.RoleRow{}, false, nil
	case err != nil:
		return rbac.RoleRow{}, false, errm.Wrap(err, "find role", "role", name)
	}
	return row, true, nil
}

func (r *AdminRepository) GetAllRoles(ctx context.Context) ([]rbac.RoleRow, error) {
	var rows []rbac.RoleRow
	if err := r.roles.FindAll(ctx, &rows); err != nil {
		return nil, errm.Wrap(err, "find all roles")
	}
	return rows, nil
}

func (r *AdminRepository) GetAdminRoles(ctx context.Context, userID int64) ([]string, error) {
	admin, found, err := r.GetAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return admin.Roles, nil
}

func (r *AdminRepository) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	count, err := r.admins.Count(ctx, Filter{"user_id": userID})
	if err != nil {
		return false, errm.Wrap(err, "count admins", "user_id", userID)
	}
	return count > 0, nil
}

func (r *AdminRepository) GetAdmin(ctx context.Context, userID int64) (rbac.AdminRow, bool, error) {
	var row rbac.AdminRow
	err := r.admins.FindOne(ctx, &row, Filter{"user_id": userID})
	switch {
	case errorx.IsNotFound(err):
		return rbac.AdminRow{}, false, nil
	case err != nil:
		return rbac.AdminRow{}, false, errm.Wrap(err, "find admin", "user_id", userID)
	}
	return row, true, nil
}

func (r *AdminRepository) GetAllAdmins(ctx context.Context) ([]rbac.AdminRow, error) {
	var rows []rbac.AdminRow
	if err := r.admins.FindAll(ctx, &rows); err != nil {
		return nil, errm.Wrap(err, "find all admins")
	}
	return rows, nil
}

func (r *AdminRepository) CountAdminsWithRole(ctx context.Context, roleName string) (int, error) {
	count, err := r.admins.Count(ctx, Filter{"roles": roleName})
	if err != nil {
		return 0, errm.Wrap(err, "count admins with role", "role", roleName)
	}
	return int(count), nil
}

// AssignRoleToAdmin adds a role to the admin's role set, creating the
// admin document on first assignment.
func (r *AdminRepository) AssignRoleToAdmin(ctx context.Context, userID int64, roleName, displayName string) error {
	filter := Filter{"user_id": userID}
	onInsert := Updates{"added_at": time.Now().UTC()}

	if err := r.admins.AddToSet(ctx, filter, "roles", roleName, onInsert); err != nil {
		return errm.Wrap(err, "add role", "user_id", userID, "role", roleName)
	}

	if displayName != "" {
		if err := r.admins.SetFields(ctx, filter, Updates{"display_name": displayName}); err != nil {
			return errm.Wrap(err, "set display name", "user_id", userID)
		}
	}
	return nil
}

// RemoveRoleFromAdmin removes a role from the admin's role set.
// An admin left with zero roles is deleted: such a row grants nothing and
// would only confuse admin listings.
func (r *AdminRepository) RemoveRoleFromAdmin(ctx context.Context, userID int64, roleName string) error {
	filter := Filter{"user_id": userID}

	err := r.admins.Pull(ctx, filter, "roles", roleName)
	switch {
	case errorx.IsNotFound(err):
		return nil
	case err != nil:
		return errm.Wrap(err, "pull role", "user_id", userID, "role", roleName)
	}

	admin, found, err := r.GetAdmin(ctx, userID)
	if err != nil {
		return err
	}
	if found && len(admin.Roles) == 0 {
		return r.RemoveAdmin(ctx, userID)
	}
	return nil
}

// RemoveAdmin deletes the admin document with all its roles.
func (r *AdminRepository) RemoveAdmin(ctx context.Context, userID int64) error {
	err := r.admins.Delete(ctx, Filter{"user_id": userID})
	switch {
	case errorx.IsNotFound(err):
		return nil
	case err != nil:
		return errm.Wrap(err, "delete admin", "user_id", userID)
	}
	return nil
}
