package rbac_test

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/maxbolgarin/errm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armorybot/armory/internal/rbac"
)

var errStoreDown = errm.New("store is down")

// fakeAdminStore is a stateful in-memory implementation of rbac.AdminStore
// with per-method error injection and call counters.
type fakeAdminStore struct {
	mu        sync.Mutex
	roles     map[string]rbac.RoleRow
	roleOrder []string
	admins    map[int64]*rbac.AdminRow

	adminRolesCalls int
	createRoleCalls int

	failAdminRoles bool
	failIsAdmin    bool
	failCount      bool
}

func newFakeAdminStore() *fakeAdminStore {
	return &fakeAdminStore{
		roles:  make(map[string]rbac.RoleRow),
		admins: make(map[int64]*rbac.AdminRow),
	}
}

func (s *fakeAdminStore) CreateRoleIfNotExists(_ context.Context, role rbac.RoleRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createRoleCalls++
	if _, ok := s.roles[role.Name]; ok {
		return nil
	}
	s.roles[role.Name] = role
	s.roleOrder = append(s.roleOrder, role.Name)
	return nil
}

func (s *fakeAdminStore) GetRole(_ context.Context, name string) (rbac.RoleRow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.roles[name]
	return row, ok, nil
}

func (s *fakeAdminStore) GetAllRoles(_ context.Context) ([]rbac.RoleRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]rbac.RoleRow, 0, len(s.roleOrder))
	for _, name := range s.roleOrder {
		out = append(out, s.roles[name])
	}
	return out, nil
}

func (s *fakeAdminStore) GetAdminRoles(_ context.Context, userID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adminRolesCalls++
	if s.failAdminRoles {
		return nil, errStoreDown
	}
	admin, ok := s.admins[userID]
	if !ok {
		return nil, nil
	}
	return slices.Clone(admin.Roles), nil
}

func (s *fakeAdminStore) IsAdmin(_ context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIsAdmin {
		return false, errStoreDown
	}
	_, ok := s.admins[userID]
	return ok, nil
}

func (s *fakeAdminStore) GetAdmin(_ context.Context, userID int64) (rbac.AdminRow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	admin, ok := s.admins[userID]
	if !ok {
		return rbac.AdminRow{}, false, nil
	}
	return *admin, true, nil
}

func (s *fakeAdminStore) GetAllAdmins(_ context.Context) ([]rbac.AdminRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]rbac.AdminRow, 0, len(s.admins))
	for _, admin := range s.admins {
		out = append(out, *admin)
	}
	return out, nil
}

func (s *fakeAdminStore) CountAdminsWithRole(_ context.Context, roleName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCount {
		return 0, errStoreDown
	}
	count := 0
	for _, admin := range s.admins {
		if slices.Contains(admin.Roles, roleName) {
			count++
		}
	}
	return count, nil
}

func (s *fakeAdminStore) AssignRoleToAdmin(_ context.Context, userID int64, roleName, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	admin, ok := s.admins[userID]
	if !ok {
		admin = &rbac.AdminRow{UserID: userID, DisplayName: displayName}
		s.admins[userID] = admin
	}
	if !slices.Contains(admin.Roles, roleName) {
		admin.Roles = append(admin.Roles, roleName)
	}
	return nil
}

func (s *fakeAdminStore) RemoveRoleFromAdmin(_ context.Context, userID int64, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	admin, ok := s.admins[userID]
	if !ok || !slices.Contains(admin.Roles, roleName) {
		return errm.New("role not assigned")
	}
	admin.Roles = slices.DeleteFunc(admin.Roles, func(r string) bool { return r == roleName })
	if len(admin.Roles) == 0 {
		// An admin with zero roles is not an admin.
		delete(s.admins, userID)
	}
	return nil
}

func (s *fakeAdminStore) RemoveAdmin(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.admins[userID]; !ok {
		return errm.New("admin not found")
	}
	delete(s.admins, userID)
	return nil
}

func newTestManager(t *testing.T) (*rbac.Manager, *fakeAdminStore) {
	t.Helper()
	store := newFakeAdminStore()
	m := rbac.NewManager(store)
	require.NoError(t, m.SeedRoles(context.Background()))
	return m, store
}

func TestSeedRolesIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newFakeAdminStore()
	m := rbac.NewManager(store)

	require.NoError(t, m.SeedRoles(ctx))
	require.NoError(t, m.SeedRoles(ctx))

	rows, err := store.GetAllRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, len(rbac.Catalog()))

	row, found, err := store.GetRole(ctx, "support_admin")
	require.NoError(t, err)
	require.True(t, found)
	assert.ElementsMatch(t,
		rbac.NewPermissionSet(rbac.PermManageTickets, rbac.PermManageFAQs, rbac.PermViewFeedback).Strings(),
		row.Permissions,
	)
}

func TestPermissionUnionIsOrAcrossRoles(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	require.NoError(t, m.AssignRole(ctx, 42, "br_admin", "BR"))
	require.NoError(t, m.AssignRole(ctx, 42, "support_admin", "BR"))

	assert.True(t, m.HasPermission(ctx, 42, rbac.PermManageAttachmentsBR))
	assert.True(t, m.HasPermission(ctx, 42, rbac.PermManageTickets))
	assert.False(t, m.HasPermission(ctx, 42, rbac.PermManageAdmins))
}

func TestCacheInvalidationOnMutation(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	// Populate the cache with the empty permission set.
	assert.Empty(t, m.GetUserPermissions(ctx, 7))

	require.NoError(t, m.AssignRole(ctx, 7, "support_admin", "Support"))

	// The very next read must be fresh, regardless of TTL.
	assert.True(t, m.HasPermission(ctx, 7, rbac.PermManageTickets))
}

func TestCacheRemoveFreshness(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	require.NoError(t, m.AssignRole(ctx, 7, "support_admin", "Support"))
	require.True(t, m.HasPermission(ctx, 7, rbac.PermManageTickets))

	require.NoError(t, m.RemoveRoleFromAdmin(ctx, 7, "support_admin"))
	assert.False(t, m.HasPermission(ctx, 7, rbac.PermManageTickets))
}

func TestGetUserRolesIsCached(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	require.NoError(t, m.AssignRole(ctx, 9, "mp_admin", "MP"))

	m.GetUserRoles(ctx, 9)
	calls := store.adminRolesCalls
	m.GetUserRoles(ctx, 9)
	m.GetUserRoles(ctx, 9)
	assert.Equal(t, calls, store.adminRolesCalls)
}

func TestFailClosedOnStoreError(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	require.NoError(t, m.AssignRole(ctx, 11, "br_admin", "BR"))

	store.failAdminRoles = true
	store.failIsAdmin = true

	// No cached entry for this user: the resolve path hits the failing
	// store and must deny everything.
	assert.False(t, m.HasPermission(ctx, 11, rbac.PermManageAttachmentsBR))
	assert.False(t, m.HasPermission(ctx, 11, rbac.PermViewAnalytics))
	assert.False(t, m.IsAdmin(ctx, 11))
	assert.False(t, m.IsSuperAdmin(ctx, 11))
}

func TestSuperAdminFloor(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	require.NoError(t, m.AssignRole(ctx, 1, rbac.SuperAdminRole, "Boss"))

	err := m.RemoveRoleFromAdmin(ctx, 1, rbac.SuperAdminRole)
	assert.ErrorIs(t, err, rbac.ErrLastSuperAdmin)

	err = m.RemoveAdmin(ctx, 1)
	assert.ErrorIs(t, err, rbac.ErrLastSuperAdmin)

	count, err := store.CountAdminsWithRole(ctx, rbac.SuperAdminRole)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// With a second super admin the removal goes through.
	require.NoError(t, m.AssignRole(ctx, 2, rbac.SuperAdminRole, "Deputy"))
	require.NoError(t, m.RemoveRoleFromAdmin(ctx, 1, rbac.SuperAdminRole))

	count, err = store.CountAdminsWithRole(ctx, rbac.SuperAdminRole)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSuperAdminFloorRefusedOnCountError(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	require.NoError(t, m.AssignRole(ctx, 1, rbac.SuperAdminRole, "Boss"))
	require.NoError(t, m.AssignRole(ctx, 2, rbac.SuperAdminRole, "Deputy"))

	store.failCount = true
	err := m.RemoveAdmin(ctx, 1)
	require.Error(t, err)
	assert.True(t, m.IsAdmin(ctx, 1))
}

func TestIsSuperAdminBypassesPermissionCache(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	require.NoError(t, m.AssignRole(ctx, 5, "support_admin", "Support"))

	// Warm the 120s permission cache.
	require.True(t, m.HasPermission(ctx, 5, rbac.PermManageTickets))
	assert.False(t, m.IsSuperAdmin(ctx, 5))

	// Mutate the store behind the resolver's back: the cached permission
	// set stays stale, but the super admin check reads fresh.
	require.NoError(t, store.AssignRoleToAdmin(ctx, 5, rbac.SuperAdminRole, "Support"))

	assert.True(t, m.IsSuperAdmin(ctx, 5))
	assert.False(t, m.HasPermission(ctx, 5, rbac.PermManageAdmins))
}

func TestAssignUnknownRole(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	err := m.AssignRole(ctx, 3, "no_such_role", "X")
	assert.ErrorIs(t, err, rbac.ErrUnknownRole)
	assert.False(t, m.IsAdmin(ctx, 3))
}

func TestModePermissions(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	require.NoError(t, m.AssignRole(ctx, 21, "br_admin", "BR"))
	assert.Equal(t, []string{"br"}, m.GetModePermissions(ctx, 21))
	assert.Equal(t, []string{"br"}, m.GetGuideModePermissions(ctx, 21))

	require.NoError(t, m.AssignRole(ctx, 22, "full_content_admin", "Content"))
	assert.Equal(t, []string{"br", "mp"}, m.GetModePermissions(ctx, 22))

	assert.Empty(t, m.GetModePermissions(ctx, 23))
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	require.NoError(t, m.AssignRole(ctx, 1, rbac.SuperAdminRole, "Boss"))
	require.NoError(t, m.AssignRole(ctx, 1001, "support_admin", "Helper"))

	assert.True(t, m.HasPermission(ctx, 1001, rbac.PermManageTickets))
	assert.False(t, m.HasPermission(ctx, 1001, rbac.PermManageAdmins))

	require.NoError(t, m.RemoveRoleFromAdmin(ctx, 1001, "support_admin"))

	admins, err := m.GetAdminList(ctx)
	require.NoError(t, err)
	for _, admin := range admins {
		assert.NotEqual(t, int64(1001), admin.UserID)
	}
	assert.False(t, m.HasPermission(ctx, 1001, rbac.PermManageTickets))
	assert.False(t, m.IsAdmin(ctx, 1001))
}

func TestCacheStats(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	m.GetUserPermissions(ctx, 100) // miss
	m.GetUserPermissions(ctx, 100) // hit

	stats := m.CacheStats()
	assert.Equal(t, uint64(1), stats["user_perms"].Hits)
	assert.Equal(t, uint64(1), stats["user_perms"].Misses)
}
