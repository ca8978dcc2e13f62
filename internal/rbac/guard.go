package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/quillcms/quill/internal/platform/httpx"
	"github.com/quillcms/quill/internal/shared"
)

// TokenResolver validates a presented credential and yields the principal id.
// Implemented by shared.TokenManager.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (int64, error)
}

// Guard is the request-time authorization orchestrator. It authenticates the
// credential, resolves the checkers declared for the operation, loads the
// principal's grant graph, compiles the ability and requires every checker
// to pass.
type Guard struct {
	tokens     TokenResolver
	principals PrincipalStore
	registry   *Registry
	ops        *Operations
	logger     *slog.Logger
}

// NewGuard constructs a Guard.
func NewGuard(tokens TokenResolver, principals PrincipalStore, registry *Registry, ops *Operations, logger *slog.Logger) *Guard {
	return &Guard{tokens: tokens, principals: principals, registry: registry, ops: ops, logger: logger}
}

var errDenied = errors.New("rbac: denied")

// Protect returns middleware enforcing the operation declared under key.
// An operation with no declared checkers admits any authenticated request;
// guest operations additionally admit requests with no credential.
func (g *Guard) Protect(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			op, declared := g.ops.Nearest(key)

			token := shared.BearerToken(r)
			if token == "" {
				if op.Guest {
					next.ServeHTTP(w, r)
					return
				}
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "credentials required")
				return
			}

			userID, err := g.tokens.Resolve(ctx, token)
			if err != nil {
				if !errors.Is(err, shared.ErrInvalidToken) {
					g.logger.Error("resolve token", slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
				return
			}

			ctx = shared.ContextWithIdentity(ctx, &shared.Identity{UserID: userID, Token: token})
			r = r.WithContext(ctx)

			if !declared || len(op.Checkers) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := g.principals.FindPrincipal(ctx, userID)
			if err != nil {
				if !errors.Is(err, shared.ErrNotFound) {
					g.logger.Error("load principal", slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
				return
			}

			ability := Compile(g.registry, principal)
			if g.allow(ctx, op.Checkers, ability, r) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
		})
	}
}

// allow fans the checkers out concurrently and requires all of them to pass.
// A failing checker cancels the group context so in-flight siblings can stop
// issuing further reads.
func (g *Guard) allow(ctx context.Context, checkers []Checker, ability *Ability, r *http.Request) bool {
	group, gctx := errgroup.WithContext(ctx)
	for _, checker := range checkers {
		checker := checker
		group.Go(func() error {
			ok, err := runChecker(gctx, checker, ability, r)
			if err != nil {
				g.logger.Error("checker failed", slog.Any("error", err))
				return errDenied
			}
			if !ok {
				return errDenied
			}
			return nil
		})
	}
	return group.Wait() == nil
}

// runChecker converts checker panics into failed checks so no authorization
// logic ever escapes the guard's boolean contract.
func runChecker(ctx context.Context, checker Checker, ability *Ability, r *http.Request) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			err = fmt.Errorf("rbac: checker panic: %v", rec)
		}
	}()
	return checker.Check(ctx, ability, r)
}
