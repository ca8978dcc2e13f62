package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contentRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.AddPermissions([]PermissionDef{
		{Name: "post.create", Rule: Rule{Action: ActionCreate, Subject: "post"}},
		{
			Name: "post.owner",
			Rule: Rule{Action: ActionOwner, Subject: "post"},
			Conditions: func(p *Principal) Condition {
				return Condition{"author.id": p.ID}
			},
		},
		{Name: "post.manage", Rule: Rule{Action: ActionManage, Subject: "post"}},
	}))
	return reg
}

func TestCompileMergesDirectBeforeRoles(t *testing.T) {
	reg := contentRegistry(t)
	p := &Principal{
		ID: 1,
		Permissions: []Permission{
			{Name: "post.create", Action: ActionCreate, Subject: "post"},
		},
		Roles: []Role{
			{Name: "writer", Permissions: []Permission{
				// Same name reachable through the role; the direct grant wins.
				{Name: "post.create", Action: ActionCreate, Subject: "post"},
				{Name: "post.owner", Action: ActionOwner, Subject: "post"},
			}},
		},
	}

	ab := Compile(reg, p)
	assert.Len(t, ab.Rules(), 2)
	assert.True(t, ab.Can(ActionCreate, "post"))
	assert.True(t, ab.Can(ActionOwner, "post"))
}

func TestCanCreateButNotDelete(t *testing.T) {
	reg := contentRegistry(t)
	p := &Principal{
		ID: 1,
		Roles: []Role{
			{Name: "user", Permissions: []Permission{
				{Name: "post.create", Action: ActionCreate, Subject: "post"},
			}},
		},
	}

	ab := Compile(reg, p)
	assert.True(t, ab.Can(ActionCreate, "post"))
	assert.False(t, ab.Can(ActionDelete, "post"))
	assert.False(t, ab.Can(ActionCreate, "comment"))
}

func TestManageImpliesEveryAction(t *testing.T) {
	reg := contentRegistry(t)
	p := &Principal{
		ID: 1,
		Permissions: []Permission{
			{Name: "post.manage", Action: ActionManage, Subject: "post"},
		},
	}

	ab := Compile(reg, p)
	for _, action := range []string{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionRestore, ActionOwner} {
		assert.True(t, ab.Can(action, "post"), action)
	}
	assert.False(t, ab.Can(ActionRead, "comment"))
}

func TestSystemManageMatchesEverything(t *testing.T) {
	reg := NewRegistry()
	p := &Principal{
		ID: 1,
		Roles: []Role{
			{Name: RoleSuperAdmin, Permissions: []Permission{
				{Name: PermSystemManage, Action: ActionManage, Subject: SubjectAll},
			}},
		},
	}

	ab := Compile(reg, p)
	assert.True(t, ab.Can(ActionDelete, "post"))
	assert.True(t, ab.Can(ActionManage, "role"))
	assert.True(t, ab.Can(ActionOwner, "comment"))
}

func TestConditionScopesRuleToMatchingTargets(t *testing.T) {
	reg := contentRegistry(t)
	p := &Principal{
		ID: 42,
		Permissions: []Permission{
			{Name: "post.owner", Action: ActionOwner, Subject: "post"},
		},
	}

	ab := Compile(reg, p)
	mine := Target{"id": int64(10), "author": map[string]any{"id": int64(42)}}
	theirs := Target{"id": int64(11), "author": map[string]any{"id": int64(7)}}

	assert.True(t, ab.Can(ActionOwner, "post", mine))
	assert.False(t, ab.Can(ActionOwner, "post", theirs))
	// Without a target the conditional rule still grants the action class.
	assert.True(t, ab.Can(ActionOwner, "post"))
}

func TestConditionNumericNormalization(t *testing.T) {
	reg := contentRegistry(t)
	p := &Principal{
		ID: 42,
		Permissions: []Permission{
			{Name: "post.owner", Action: ActionOwner, Subject: "post"},
		},
	}

	ab := Compile(reg, p)
	// JSON decoding tends to produce float64 while the DB yields int64.
	target := Target{"author": map[string]any{"id": float64(42)}}
	assert.True(t, ab.Can(ActionOwner, "post", target))
}

func TestConditionMissingPathDenies(t *testing.T) {
	reg := contentRegistry(t)
	p := &Principal{
		ID: 42,
		Permissions: []Permission{
			{Name: "post.owner", Action: ActionOwner, Subject: "post"},
		},
	}

	ab := Compile(reg, p)
	assert.False(t, ab.Can(ActionOwner, "post", Target{"id": int64(10)}))
}

func TestUndeclaredPermissionKeepsStaticRule(t *testing.T) {
	reg := NewRegistry()
	p := &Principal{
		ID: 1,
		Permissions: []Permission{
			// Granted manually in the database, never declared in code.
			{Name: "custom.export", Action: "export", Subject: "report"},
		},
	}

	ab := Compile(reg, p)
	assert.True(t, ab.Can("export", "report"))
	assert.False(t, ab.Can("export", "post"))
}
