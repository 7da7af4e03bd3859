// Package rbac resolves Telegram user ids into authorization decisions.
// Roles come from a fixed in-code catalog seeded into the data store at
// startup; per-user assignments live in the store and are cached with a
// short TTL, so a wrong answer can never outlive the staleness window or
// survive an explicit invalidation after a mutation.
package rbac

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"

	"github.com/armorybot/armory/internal/cache"
)

var (
	// ErrUnknownRole is returned by mutations referencing a role that is
	// not in the catalog and not in the store.
	ErrUnknownRole = errm.New("unknown role")

	// ErrLastSuperAdmin is returned by mutations that would leave the
	// system without a single super admin.
	ErrLastSuperAdmin = errm.New("cannot remove the last super admin")
)

const (
	// permissionTTL bounds the staleness of cached per-user permissions.
	// is_admin and is_super_admin checks bypass this cache entirely:
	// the most dangerous checks always hit the store.
	permissionTTL = 120 * time.Second

	cacheCapacity = 4096
)

// Logger is an interface for logging messages.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options contains Manager additional options.
type Options struct {
	// PermissionTTL is the staleness bound of per-user cached role and
	// permission sets. Default: 120 seconds.
	PermissionTTL time.Duration

	// CacheCapacity bounds each per-user cache. Default: 4096 entries.
	CacheCapacity int

	// Logger is used for degraded-path reporting. Default: noop.
	Logger Logger
}

// Manager translates user ids into authorization decisions.
// It is constructed once at process start and passed by reference to every
// consumer; it holds no global state.
type Manager struct {
	store AdminStore
	log   Logger

	userRoles *cache.Cache[[]Role]
	userPerms *cache.Cache[PermissionSet]
	ttl       time.Duration

	catalog *loadOnce[[]Role]
}

// NewManager creates a Manager over the given store.
func NewManager(store AdminStore, optsRaw ...Options) *Manager {
	opts := lang.First(optsRaw)
	opts.PermissionTTL = lang.Check(opts.PermissionTTL, permissionTTL)
	opts.CacheCapacity = lang.Check(opts.CacheCapacity, cacheCapacity)
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	return &Manager{
		store:     store,
		log:       opts.Logger,
		userRoles: cache.New[[]Role](opts.CacheCapacity, opts.PermissionTTL),
		userPerms: cache.New[PermissionSet](opts.CacheCapacity, opts.PermissionTTL),
		ttl:       opts.PermissionTTL,
		catalog:   &loadOnce[[]Role]{},
	}
}

// SeedRoles persists the in-code role catalog into the store.
// It is idempotent and called once at process startup: existing rows are
// left untouched, missing ones are created.
func (m *Manager) SeedRoles(ctx context.Context) error {
	for _, role := range Catalog() {
		err := m.store.CreateRoleIfNotExists(ctx, RoleRow{
			Name:        role.Name,
			DisplayName: role.DisplayName,
			Description: role.Description,
			Icon:        role.Icon,
			Permissions: role.Permissions.Strings(),
		})
		if err != nil {
			return errm.Wrap(err, "create role", "role", role.Name)
		}
	}
	m.log.Info("role catalog seeded", "roles", len(Catalog()))
	return nil
}

// GetAllRoles returns the role definitions, loaded from the store exactly
// once for the Manager's lifetime. A load failure degrades to the in-code
// catalog and is retried on the next call.
func (m *Manager) GetAllRoles(ctx context.Context) []Role {
	return m.catalog.get(func() ([]Role, bool) {
		rows, err := m.store.GetAllRoles(ctx)
		if err != nil {
			m.log.Error("cannot load roles from store, using built-in catalog", "error", err)
			return Catalog(), false
		}
		if len(rows) == 0 {
			// Store not seeded yet.
			return Catalog(), true
		}
		roles := make([]Role, 0, len(rows))
		for _, row := range rows {
			roles = append(roles, row.toRole())
		}
		return roles, true
	})
}

// GetRole resolves a role by name against the loaded definitions first,
// falling back to a direct store lookup only if the list does not know it.
func (m *Manager) GetRole(ctx context.Context, name string) (Role, bool) {
	for _, role := range m.GetAllRoles(ctx) {
		if role.Name == name {
			return role, true
		}
	}

	row, found, err := m.store.GetRole(ctx, name)
	if err != nil {
		m.log.Error("cannot load role from store", "error", err, "role", name)
		return Role{}, false
	}
	if !found {
		return Role{}, false
	}
	return row.toRole(), true
}

// GetUserRoles returns the roles assigned to the user, cached for the
// permission TTL. A store failure degrades to no roles (fail closed).
func (m *Manager) GetUserRoles(ctx context.Context, userID int64) []Role {
	key := userRolesKey(userID)
	if roles, ok := m.userRoles.Get(key); ok {
		return roles
	}

	names, err := m.store.GetAdminRoles(ctx, userID)
	if err != nil {
		m.log.Error("cannot load admin roles, denying access", "error", err, "user_id", userID)
		names = nil
	}

	roles := make([]Role, 0, len(names))
	for _, name := range names {
		role, ok := m.GetRole(ctx, name)
		if !ok {
			m.log.Warn("admin holds a role missing from the catalog", "role", name, "user_id", userID)
			continue
		}
		roles = append(roles, role)
	}

	m.userRoles.SetTTL(key, roles, m.ttl)
	return roles
}

// GetUserPermissions returns the union of permissions over all roles the
// user holds, cached for the permission TTL.
func (m *Manager) GetUserPermissions(ctx context.Context, userID int64) PermissionSet {
	key := userPermsKey(userID)
	if perms, ok := m.userPerms.Get(key); ok {
		return perms
	}

	perms := make(PermissionSet)
	for _, role := range m.GetUserRoles(ctx, userID) {
		perms = perms.Union(role.Permissions)
	}

	m.userPerms.SetTTL(key, perms, m.ttl)
	return perms
}

// HasPermission reports whether at least one of the user's roles grants
// the permission.
func (m *Manager) HasPermission(ctx context.Context, userID int64, p Permission) bool {
	return m.GetUserPermissions(ctx, userID).Has(p)
}

// HasAnyPermission reports whether the user holds at least one of the
// given permissions.
func (m *Manager) HasAnyPermission(ctx context.Context, userID int64, perms ...Permission) bool {
	userPerms := m.GetUserPermissions(ctx, userID)
	for _, p := range perms {
		if userPerms.Has(p) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user has an admin row in the store.
// This check is deliberately not cached here: it is the fast gate in front
// of the permission union and staleness is more security sensitive.
func (m *Manager) IsAdmin(ctx context.Context, userID int64) bool {
	ok, err := m.store.IsAdmin(ctx, userID)
	if err != nil {
		m.log.Error("cannot check admin row, denying access", "error", err, "user_id", userID)
		return false
	}
	return ok
}

// IsSuperAdmin reports whether the user holds the super admin role.
// It fetches the role names fresh on every call, bypassing the permission
// cache, so the highest privilege has the tightest staleness bound.
func (m *Manager) IsSuperAdmin(ctx context.Context, userID int64) bool {
	names, err := m.store.GetAdminRoles(ctx, userID)
	if err != nil {
		m.log.Error("cannot check super admin, denying access", "error", err, "user_id", userID)
		return false
	}
	return slices.Contains(names, SuperAdminRole)
}

// AssignRole grants a role to the user and invalidates the user's cached
// role and permission sets, so the next read is guaranteed fresh.
func (m *Manager) AssignRole(ctx context.Context, userID int64, roleName, displayName string) error {
	role, ok := m.GetRole(ctx, roleName)
	if !ok {
		return ErrUnknownRole
	}

	if err := m.store.AssignRoleToAdmin(ctx, userID, role.Name, displayName); err != nil {
		return errm.Wrap(err, "assign role", "role", role.Name, "user_id", userID)
	}

	m.invalidateUser(userID)
	return nil
}

// RemoveRoleFromAdmin revokes a single role. Removing the user's last
// role deletes the admin row. Removing the last super admin system-wide
// is refused before any store mutation or cache invalidation happens.
func (m *Manager) RemoveRoleFromAdmin(ctx context.Context, userID int64, roleName string) error {
	if roleName == SuperAdminRole {
		if err := m.checkSuperAdminFloor(ctx, userID); err != nil {
			return err
		}
	}

	if err := m.store.RemoveRoleFromAdmin(ctx, userID, roleName); err != nil {
		return errm.Wrap(err, "remove role", "role", roleName, "user_id", userID)
	}

	m.invalidateUser(userID)
	return nil
}

// RemoveAdmin deletes the admin row and all role assignments of the user.
// Refused if the user is the last super admin.
func (m *Manager) RemoveAdmin(ctx context.Context, userID int64) error {
	if err := m.checkSuperAdminFloor(ctx, userID); err != nil {
		return err
	}

	if err := m.store.RemoveAdmin(ctx, userID); err != nil {
		return errm.Wrap(err, "remove admin", "user_id", userID)
	}

	m.invalidateUser(userID)
	return nil
}

// RemoveRole is the legacy single-role path: it removes the user as an
// admin entirely. Kept because the admin menu's quick-demote action uses
// full removal semantics.
func (m *Manager) RemoveRole(ctx context.Context, userID int64) error {
	return m.RemoveAdmin(ctx, userID)
}

// GetAdminList returns all admins with their resolved role names.
func (m *Manager) GetAdminList(ctx context.Context) ([]AdminRow, error) {
	return m.store.GetAllAdmins(ctx)
}

// GetModePermissions returns the game modes whose attachments the user
// may manage: "br", "mp", both or none.
func (m *Manager) GetModePermissions(ctx context.Context, userID int64) []string {
	perms := m.GetUserPermissions(ctx, userID)

	modes := make([]string, 0, 2)
	if perms.Has(PermManageAttachmentsBR) {
		modes = append(modes, "br")
	}
	if perms.Has(PermManageAttachmentsMP) {
		modes = append(modes, "mp")
	}
	return modes
}

// GetGuideModePermissions returns the game modes whose guides the user may
// manage. Holding the settings permission grants both modes.
func (m *Manager) GetGuideModePermissions(ctx context.Context, userID int64) []string {
	perms := m.GetUserPermissions(ctx, userID)

	modes := make([]string, 0, 2)
	if perms.Has(PermManageGuidesBR) || perms.Has(PermManageSettings) {
		modes = append(modes, "br")
	}
	if perms.Has(PermManageGuidesMP) || perms.Has(PermManageSettings) {
		modes = append(modes, "mp")
	}
	return modes
}

// CacheStats returns the diagnostic counters of the resolver's caches,
// keyed by cache name.
func (m *Manager) CacheStats() map[string]cache.Stats {
	return map[string]cache.Stats{
		"user_roles": m.userRoles.Stats(),
		"user_perms": m.userPerms.Stats(),
	}
}

// checkSuperAdminFloor refuses the mutation if the user holds the super
// admin role and no other admin does. A store failure also refuses the
// mutation: uncertainty must not allow dropping the last super admin.
func (m *Manager) checkSuperAdminFloor(ctx context.Context, userID int64) error {
	names, err := m.store.GetAdminRoles(ctx, userID)
	if err != nil {
		return errm.Wrap(err, "check super admin floor", "user_id", userID)
	}
	if !slices.Contains(names, SuperAdminRole) {
		return nil
	}

	count, err := m.store.CountAdminsWithRole(ctx, SuperAdminRole)
	if err != nil {
		return errm.Wrap(err, "count super admins", "user_id", userID)
	}
	if count <= 1 {
		return ErrLastSuperAdmin
	}
	return nil
}

func (m *Manager) invalidateUser(userID int64) {
	m.userRoles.Invalidate(userRolesKey(userID))
	m.userPerms.Invalidate(userPermsKey(userID))
}

func userRolesKey(userID int64) string {
	return fmt.Sprintf("user_roles_%d", userID)
}

func userPermsKey(userID int64) string {
	return fmt.Sprintf("user_perms_%d", userID)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}
