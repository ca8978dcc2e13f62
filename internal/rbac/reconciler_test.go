package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillcms/quill/internal/shared"
)

// ============================================================================
// MOCK STORE
// ============================================================================

type mockStore struct {
	roles      map[int64]*Role
	perms      map[int64]*Permission
	rolePerms  map[int64]map[int64]struct{}
	userRoles  map[int64]map[int64]struct{}
	users      map[string]int64
	nextRoleID int64
	nextPermID int64

	failCreatePermission bool
}

func newMockStore() *mockStore {
	return &mockStore{
		roles:      make(map[int64]*Role),
		perms:      make(map[int64]*Permission),
		rolePerms:  make(map[int64]map[int64]struct{}),
		userRoles:  make(map[int64]map[int64]struct{}),
		users:      make(map[string]int64),
		nextRoleID: 1,
		nextPermID: 1,
	}
}

func (m *mockStore) tx() TxFunc {
	return func(ctx context.Context, fn func(Store) error) error {
		return fn(m)
	}
}

func (m *mockStore) addRole(name string, systemed bool) int64 {
	id := m.nextRoleID
	m.nextRoleID++
	m.roles[id] = &Role{ID: id, Name: name, Systemed: systemed}
	m.rolePerms[id] = make(map[int64]struct{})
	return id
}

func (m *mockStore) addPermission(name, action, subject string) int64 {
	id := m.nextPermID
	m.nextPermID++
	m.perms[id] = &Permission{ID: id, Name: name, Action: action, Subject: subject}
	return id
}

func (m *mockStore) roleByName(name string) *Role {
	for _, role := range m.roles {
		if role.Name == name {
			return role
		}
	}
	return nil
}

func (m *mockStore) permByName(name string) *Permission {
	for _, perm := range m.perms {
		if perm.Name == name {
			return perm
		}
	}
	return nil
}

func (m *mockStore) rolePermNames(roleID int64) []string {
	var names []string
	for permID := range m.rolePerms[roleID] {
		names = append(names, m.perms[permID].Name)
	}
	return names
}

func (m *mockStore) FindRoleByName(ctx context.Context, name string) (*Role, error) {
	role := m.roleByName(name)
	if role == nil {
		return nil, shared.ErrNotFound
	}
	cp := *role
	for permID := range m.rolePerms[role.ID] {
		cp.Permissions = append(cp.Permissions, *m.perms[permID])
	}
	return &cp, nil
}

func (m *mockStore) CreateSystemedRole(ctx context.Context, def RoleDef) (int64, error) {
	id := m.addRole(def.Name, true)
	m.roles[id].Label = def.Label
	m.roles[id].Description = def.Description
	return id, nil
}

func (m *mockStore) MarkRoleSystemed(ctx context.Context, id int64) error {
	role, ok := m.roles[id]
	if !ok {
		return shared.ErrNotFound
	}
	role.Systemed = true
	return nil
}

func (m *mockStore) ListSystemedRoles(ctx context.Context) ([]Role, error) {
	var out []Role
	for _, role := range m.roles {
		if role.Systemed {
			out = append(out, *role)
		}
	}
	return out, nil
}

func (m *mockStore) DeleteRoles(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		delete(m.roles, id)
		delete(m.rolePerms, id)
	}
	return nil
}

func (m *mockStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	var out []Permission
	for _, perm := range m.perms {
		out = append(out, *perm)
	}
	return out, nil
}

func (m *mockStore) CreatePermission(ctx context.Context, def PermissionDef) error {
	if m.failCreatePermission {
		return errors.New("disk full")
	}
	m.addPermission(def.Name, def.Rule.Action, def.Rule.Subject)
	return nil
}

func (m *mockStore) UpdatePermission(ctx context.Context, id int64, def PermissionDef) error {
	perm, ok := m.perms[id]
	if !ok {
		return shared.ErrNotFound
	}
	perm.Label = def.Label
	perm.Description = def.Description
	perm.Action = def.Rule.Action
	perm.Subject = def.Rule.Subject
	return nil
}

func (m *mockStore) DeletePermissions(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		delete(m.perms, id)
		for _, attached := range m.rolePerms {
			delete(attached, id)
		}
	}
	return nil
}

func (m *mockStore) PermissionIDsByName(ctx context.Context, names []string) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, name := range names {
		if perm := m.permByName(name); perm != nil {
			out[name] = perm.ID
		}
	}
	return out, nil
}

func (m *mockStore) ListRolesWithPermissions(ctx context.Context, exceptName string) ([]Role, error) {
	var out []Role
	for _, role := range m.roles {
		if role.Name == exceptName {
			continue
		}
		cp := *role
		for permID := range m.rolePerms[role.ID] {
			cp.Permissions = append(cp.Permissions, *m.perms[permID])
		}
		out = append(out, cp)
	}
	return out, nil
}

func (m *mockStore) AttachRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	for _, id := range permissionIDs {
		m.rolePerms[roleID][id] = struct{}{}
	}
	return nil
}

func (m *mockStore) DetachRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	for _, id := range permissionIDs {
		delete(m.rolePerms[roleID], id)
	}
	return nil
}

func (m *mockStore) FindUserIDByUsername(ctx context.Context, username string) (int64, error) {
	id, ok := m.users[username]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return id, nil
}

func (m *mockStore) UserHasRole(ctx context.Context, userID, roleID int64) (bool, error) {
	_, ok := m.userRoles[userID][roleID]
	return ok, nil
}

func (m *mockStore) AttachUserRole(ctx context.Context, userID, roleID int64) error {
	if m.userRoles[userID] == nil {
		m.userRoles[userID] = make(map[int64]struct{})
	}
	m.userRoles[userID][roleID] = struct{}{}
	return nil
}

// ============================================================================
// TESTS
// ============================================================================

func declaredRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.AddPermissions([]PermissionDef{
		{Name: "post.create", Rule: Rule{Action: ActionCreate, Subject: "post"}},
		{Name: "post.manage", Rule: Rule{Action: ActionManage, Subject: "post"}},
	}))
	require.NoError(t, reg.AddRoles([]RoleDef{
		{Name: RoleUser, Permissions: []string{"post.create"}},
		{Name: "content-manage", Permissions: []string{"post.manage"}},
	}))
	return reg
}

func TestReconcileFreshDatabase(t *testing.T) {
	store := newMockStore()
	rc := NewReconciler(declaredRegistry(t), store.tx(), discardLogger(), "admin")

	require.NoError(t, rc.Run(context.Background()))

	for _, name := range []string{RoleUser, RoleSuperAdmin, "content-manage"} {
		role := store.roleByName(name)
		require.NotNil(t, role, name)
		assert.True(t, role.Systemed, name)
	}
	require.NotNil(t, store.permByName(PermSystemManage))
	require.NotNil(t, store.permByName("post.create"))

	userRole := store.roleByName(RoleUser)
	assert.ElementsMatch(t, []string{"post.create"}, store.rolePermNames(userRole.ID))

	superRole := store.roleByName(RoleSuperAdmin)
	assert.ElementsMatch(t, []string{PermSystemManage}, store.rolePermNames(superRole.ID))
}

func TestReconcileIsIdempotent(t *testing.T) {
	store := newMockStore()
	rc := NewReconciler(declaredRegistry(t), store.tx(), discardLogger(), "admin")

	require.NoError(t, rc.Run(context.Background()))
	rolesAfterFirst := len(store.roles)
	permsAfterFirst := len(store.perms)

	require.NoError(t, rc.Run(context.Background()))
	assert.Equal(t, rolesAfterFirst, len(store.roles))
	assert.Equal(t, permsAfterFirst, len(store.perms))
}

func TestReconcileAdoptsExistingRole(t *testing.T) {
	store := newMockStore()
	store.addRole(RoleUser, false)
	rc := NewReconciler(declaredRegistry(t), store.tx(), discardLogger(), "admin")

	require.NoError(t, rc.Run(context.Background()))

	role := store.roleByName(RoleUser)
	require.NotNil(t, role)
	assert.True(t, role.Systemed)
}

func TestReconcileDeletesOrphanSystemedRoles(t *testing.T) {
	store := newMockStore()
	store.addRole("legacy-role", true)
	manualID := store.addRole("manual-role", false)
	rc := NewReconciler(declaredRegistry(t), store.tx(), discardLogger(), "admin")

	require.NoError(t, rc.Run(context.Background()))

	assert.Nil(t, store.roleByName("legacy-role"))
	// Manually created roles are never reaped.
	assert.NotNil(t, store.roles[manualID])
}

func TestReconcilePrunesStalePermissions(t *testing.T) {
	store := newMockStore()
	store.addPermission("legacy.export", "export", "report")
	rc := NewReconciler(declaredRegistry(t), store.tx(), discardLogger(), "admin")

	require.NoError(t, rc.Run(context.Background()))

	assert.Nil(t, store.permByName("legacy.export"))
	assert.NotNil(t, store.permByName(PermSystemManage))
}

func TestReconcilePinsSuperAdminGrants(t *testing.T) {
	store := newMockStore()
	superID := store.addRole(RoleSuperAdmin, true)
	strayID := store.addPermission("stray.perm", ActionRead, "stray")
	store.rolePerms[superID][strayID] = struct{}{}
	rc := NewReconciler(declaredRegistry(t), store.tx(), discardLogger(), "admin")

	require.NoError(t, rc.Run(context.Background()))

	assert.ElementsMatch(t, []string{PermSystemManage}, store.rolePermNames(superID))
}

func TestReconcileAttachesSuperUser(t *testing.T) {
	store := newMockStore()
	store.users["admin"] = 7
	rc := NewReconciler(declaredRegistry(t), store.tx(), discardLogger(), "admin")

	require.NoError(t, rc.Run(context.Background()))

	superRole := store.roleByName(RoleSuperAdmin)
	has, err := store.UserHasRole(context.Background(), 7, superRole.ID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestReconcileMissingSuperUserIsNotFatal(t *testing.T) {
	store := newMockStore()
	rc := NewReconciler(declaredRegistry(t), store.tx(), discardLogger(), "admin")

	assert.NoError(t, rc.Run(context.Background()))
}

func TestReconcileStoreFailurePropagates(t *testing.T) {
	store := newMockStore()
	store.failCreatePermission = true
	rc := NewReconciler(declaredRegistry(t), store.tx(), discardLogger(), "admin")

	err := rc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync permissions")
}

func TestReconcileSealsRegistry(t *testing.T) {
	reg := declaredRegistry(t)
	store := newMockStore()
	rc := NewReconciler(reg, store.tx(), discardLogger(), "admin")

	require.NoError(t, rc.Run(context.Background()))
	assert.ErrorIs(t, reg.AddRoles([]RoleDef{{Name: "late"}}), ErrFinalized)
}
