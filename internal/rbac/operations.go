package rbac

import (
	"strings"
	"sync"
)

// Operation carries the authorization metadata declared for one protected
// operation. Guest operations admit requests with no credential at all.
type Operation struct {
	Checkers []Checker
	Guest    bool
}

// Operations is the explicit registration table mapping operation keys such
// as "content.post.update" to their checker lists. Modules populate it at
// route-registration time; it is read-only once traffic starts.
type Operations struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

// NewOperations constructs an empty operation table.
func NewOperations() *Operations {
	return &Operations{ops: make(map[string]Operation)}
}

// Register declares the metadata for an operation key. Registering the same
// key again replaces the earlier declaration.
func (o *Operations) Register(key string, op Operation) {
	o.mu.Lock()
	o.ops[key] = op
	o.mu.Unlock()
}

// Nearest resolves the operation for a key with get-nearest semantics: the
// exact key wins, otherwise dot-separated prefixes are tried from most to
// least specific ("content.post.update", then "content.post", then
// "content").
func (o *Operations) Nearest(key string) (Operation, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for {
		if op, ok := o.ops[key]; ok {
			return op, true
		}
		idx := strings.LastIndexByte(key, '.')
		if idx < 0 {
			return Operation{}, false
		}
		key = key[:idx]
	}
}
