package rbac

import (
	"reflect"
	"strings"
)

// Target carries the fields of a row a condition is evaluated against.
// Nested fields are nested maps, so "author.id" reads Target["author"]["id"].
type Target map[string]any

// CompiledRule is a single capability: an action on a subject, optionally
// scoped by a condition already instantiated for the principal.
type CompiledRule struct {
	Action    string
	Subject   string
	Condition Condition
}

// Ability is the immutable, request-scoped capability set compiled from a
// principal's roles and direct permissions.
type Ability struct {
	rules []CompiledRule
}

// Compile builds the ability for a principal snapshot. Direct permissions
// come first, then permissions reachable through roles, deduplicated by name
// with the first occurrence winning. Condition factories from the declared
// catalog are invoked against the principal; permissions with no declared
// counterpart keep their static action/subject with no condition.
func Compile(reg *Registry, p *Principal) *Ability {
	merged := make([]Permission, 0, len(p.Permissions))
	seen := make(map[string]struct{})
	appendPerm := func(perm Permission) {
		if _, ok := seen[perm.Name]; ok {
			return
		}
		seen[perm.Name] = struct{}{}
		merged = append(merged, perm)
	}
	for _, perm := range p.Permissions {
		appendPerm(perm)
	}
	for _, role := range p.Roles {
		for _, perm := range role.Permissions {
			appendPerm(perm)
		}
	}

	rules := make([]CompiledRule, 0, len(merged))
	for _, perm := range merged {
		rule := CompiledRule{Action: perm.Action, Subject: perm.Subject}
		if def, ok := reg.Permission(perm.Name); ok && def.Conditions != nil {
			rule.Condition = def.Conditions(p)
		}
		rules = append(rules, rule)
	}
	return &Ability{rules: rules}
}

// Can reports whether the ability grants the action on the subject. When a
// target is supplied, rules carrying a condition only match if every
// condition field equals the corresponding target field.
func (a *Ability) Can(action, subject string, target ...Target) bool {
	var t Target
	if len(target) > 0 {
		t = target[0]
	}
	for _, rule := range a.rules {
		if !actionMatches(rule.Action, action) || !subjectMatches(rule.Subject, subject) {
			continue
		}
		if rule.Condition == nil || t == nil {
			return true
		}
		if conditionMatches(rule.Condition, t) {
			return true
		}
	}
	return false
}

// Rules returns a copy of the compiled rules.
func (a *Ability) Rules() []CompiledRule {
	return append([]CompiledRule(nil), a.rules...)
}

func actionMatches(granted, requested string) bool {
	return granted == requested || granted == ActionManage
}

func subjectMatches(granted, requested string) bool {
	return granted == requested || granted == SubjectAll
}

func conditionMatches(cond Condition, t Target) bool {
	for path, want := range cond {
		got, ok := lookupPath(t, path)
		if !ok || !valuesEqual(want, got) {
			return false
		}
	}
	return true
}

func lookupPath(t Target, path string) (any, bool) {
	var current any = map[string]any(t)
	for _, part := range strings.Split(path, ".") {
		node, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = node[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Target:
		return m, true
	case Condition:
		return m, true
	default:
		return nil, false
	}
}

func valuesEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
