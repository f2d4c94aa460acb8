package eval

import "sync"

// Env is a lexically scoped environment: a mutable name→Value map plus an
// optional parent link. Lambdas capture an *Env by reference, so the whole
// chain is guarded by a mutex rather than assumed single-owner, per spec
// §3's "Environments are shared under a mutex" invariant.
type Env struct {
	mu     sync.Mutex
	vars   map[string]Value
	parent *Env
}

// NewEnv creates a fresh environment, optionally chained to parent.
func NewEnv(parent *Env) *Env {
	return &Env{vars: make(map[string]Value), parent: parent}
}

// Init binds name in the innermost (this) scope. Per spec §4.5, a Void
// right-hand side is rejected.
func (e *Env) Init(name string, v Value) error {
	if v.IsVoid() {
		return &RuntimeError{Msg: "let cannot bind Void to " + name}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vars[name] = v
	return nil
}

// Assign rewrites the nearest enclosing binding for name, walking the
// parent chain. It fails if name is unbound anywhere in the chain.
func (e *Env) Assign(name string, v Value) error {
	for env := e; env != nil; env = env.parent {
		env.mu.Lock()
		if _, ok := env.vars[name]; ok {
			env.vars[name] = v
			env.mu.Unlock()
			return nil
		}
		env.mu.Unlock()
	}
	return &RuntimeError{Msg: "assignment to undefined name " + name}
}

// Lookup walks the parent chain; an unbound name yields Void rather than
// an error, per spec §4.5's "Name" rule.
func (e *Env) Lookup(name string) Value {
	for env := e; env != nil; env = env.parent {
		env.mu.Lock()
		v, ok := env.vars[name]
		env.mu.Unlock()
		if ok {
			return v
		}
	}
	return VoidValue()
}
