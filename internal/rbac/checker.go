package rbac

import (
	"context"
	"errors"
	"net/http"
)

// ErrTargetNotFound signals that an ownership resolver could not load one of
// the rows referenced by the request. The guard treats it as a denial.
var ErrTargetNotFound = errors.New("rbac: target not found")

// Checker is a unit of authorization logic evaluated against the compiled
// ability. Checkers must be side-effect-free; the guard runs them
// concurrently with no ordering guarantee.
type Checker interface {
	Check(ctx context.Context, ab *Ability, r *http.Request) (bool, error)
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context, ab *Ability, r *http.Request) (bool, error)

// Check implements Checker.
func (f CheckerFunc) Check(ctx context.Context, ab *Ability, r *http.Request) (bool, error) {
	return f(ctx, ab, r)
}

// Can returns a static checker testing a fixed action/subject pair.
func Can(action, subject string) Checker {
	return CheckerFunc(func(ctx context.Context, ab *Ability, r *http.Request) (bool, error) {
		return ab.Can(action, subject), nil
	})
}

// TargetResolver loads the rows referenced by the in-flight request, shaped
// as targets for condition evaluation. Resolvers capture their repository at
// wiring time. Returning ErrTargetNotFound (possibly wrapped) denies.
type TargetResolver func(ctx context.Context, r *http.Request) ([]Target, error)

// Owner returns an ownership checker for the subject. Principals holding a
// manage-class permission bypass the ownership test; otherwise the principal
// must hold the owner permission and every resolved target must satisfy its
// condition.
func Owner(subject string, resolve TargetResolver) Checker {
	return CheckerFunc(func(ctx context.Context, ab *Ability, r *http.Request) (bool, error) {
		if ab.Can(ActionManage, subject) {
			return true, nil
		}
		if !ab.Can(ActionOwner, subject) {
			return false, nil
		}
		targets, err := resolve(ctx, r)
		if err != nil {
			if errors.Is(err, ErrTargetNotFound) {
				return false, nil
			}
			return false, err
		}
		for _, target := range targets {
			if !ab.Can(ActionOwner, subject, target) {
				return false, nil
			}
		}
		return true, nil
	})
}
