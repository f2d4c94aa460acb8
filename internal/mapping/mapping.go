// Package mapping holds the runtime's MappingTable: the resolved set of
// key bindings the mediator (C7) dispatches input events against. It is
// split out from internal/eval and internal/runtime so both can depend on
// it without a cyclic import — eval needs no knowledge of the table, and
// the table only needs eval.LambdaValue for lambda-typed targets.
package mapping

import (
	"sync"

	"github.com/go-map2/map2/internal/eval"
	"github.com/go-map2/map2/internal/keys"
)

// TargetKind distinguishes the three things a binding can resolve to.
type TargetKind int

const (
	// TargetSequence fires a fixed, precompiled key-action sequence.
	TargetSequence TargetKind = iota
	// TargetLambda spawns an evaluation of a captured lambda.
	TargetLambda
	// TargetSwallow emits nothing; it exists to claim the paired edge of a
	// bare (click) LHS so the physical key-up is never forwarded unmapped.
	TargetSwallow
)

// Target is the compiled action a matched KeyMapping resolves to.
type Target struct {
	Kind   TargetKind
	Seq    []keys.Action
	Lambda *eval.LambdaValue
}

// KeyMapping is one resolved binding: an edge, an optional window-class
// guard, the registration token it was added under, and its target.
type KeyMapping struct {
	From        keys.ActionWithMods
	WindowClass *string
	Token       int64
	Target      Target
}

// entryKey identifies a binding's replacement identity: spec §4.6's
// "existing same-key binding is replaced" is interpreted per (key, edge
// value, modifiers, window guard).
type entryKey struct {
	key      keys.Key
	value    keys.ActionValue
	mods     keys.Modifiers
	window   string
	hasClass bool
}

// Table is the mediator-owned mapping table. It is the sole writer's data
// structure; the mutex exists only so read-only queries (e.g. the
// "-dump-mappings" snapshot) can run from another
// goroutine without racing the mediator.
type Table struct {
	mu      sync.RWMutex
	entries map[entryKey]KeyMapping
}

func NewTable() *Table {
	return &Table{entries: make(map[entryKey]KeyMapping)}
}

// Add installs a binding described by an eval.AddMapping message. A
// stale-token binding (token < currentToken) is silently dropped, per
// spec §4.6. A bare (click) LHS expands into two entries sharing the
// token: the real target on the down edge, and a Swallow target on the up
// edge, so the up edge is never forwarded unmapped.
func (t *Table) Add(msg eval.AddMapping, currentToken int64) {
	if msg.Token < currentToken {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	target := Target{}
	switch {
	case msg.ToLambda != nil:
		target = Target{Kind: TargetLambda, Lambda: msg.ToLambda}
	default:
		target = Target{Kind: TargetSequence, Seq: msg.ToSeq}
	}

	if !msg.IsClick {
		// Explicit-state LHS: a single edge only, no paired suppression.
		t.set(entryKeyFor(msg.From, msg.WindowClass), KeyMapping{
			From: msg.From, WindowClass: msg.WindowClass, Token: msg.Token, Target: target,
		})
		return
	}

	// Bare (click) LHS: claim both edges under the same token — the real
	// target on down, and a Swallow on up so the physical release never
	// leaks through unmapped.
	down := msg.From
	down.Value = keys.Down
	t.set(entryKeyFor(down, msg.WindowClass), KeyMapping{
		From: down, WindowClass: msg.WindowClass, Token: msg.Token, Target: target,
	})

	up := msg.From
	up.Value = keys.Up
	t.set(entryKeyFor(up, msg.WindowClass), KeyMapping{
		From: up, WindowClass: msg.WindowClass, Token: msg.Token,
		Target: Target{Kind: TargetSwallow},
	})
}

func (t *Table) set(k entryKey, m KeyMapping) {
	t.entries[k] = m
}

func entryKeyFor(a keys.ActionWithMods, windowClass *string) entryKey {
	k := entryKey{key: a.Key, value: a.Value, mods: a.Mods}
	if windowClass != nil {
		k.window = *windowClass
		k.hasClass = true
	}
	return k
}

// Resolve finds the best matching binding for an observed key edge, given
// the currently held modifiers and the focused window class (ok=false if
// none). Precedence, per spec §4.6: exact-modifier match beats a
// subset/unmentioned-modifier match; window-scoped beats window-agnostic.
func (t *Table) Resolve(key keys.Key, value keys.ActionValue, mods keys.Modifiers, windowClass string, haveClass bool) (KeyMapping, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var best KeyMapping
	var bestWindow, bestExact bool
	found := false

	for ek, m := range t.entries {
		if ek.key != key || ek.value != value {
			continue
		}
		if !modsSubset(ek.mods, mods) {
			continue
		}
		windowMatch := ek.hasClass && haveClass && ek.window == windowClass
		if ek.hasClass && !windowMatch {
			// Window-scoped entry whose class doesn't match the current
			// window never applies.
			continue
		}
		exact := ek.mods == mods

		if !found || betterCandidate(windowMatch, exact, bestWindow, bestExact) {
			best = m
			bestWindow = windowMatch
			bestExact = exact
			found = true
		}
	}
	return best, found
}

// betterCandidate reports whether (windowMatch, exact) outranks the
// current best (bestWindow, bestExact): window-scoped beats agnostic
// first, exact-modifier match breaks ties second.
func betterCandidate(windowMatch, exact, bestWindow, bestExact bool) bool {
	if windowMatch != bestWindow {
		return windowMatch
	}
	if exact != bestExact {
		return exact
	}
	return false
}

// modsSubset reports whether every flag set in required is also set in
// held — i.e. the physical modifier state satisfies the binding's guard.
func modsSubset(required, held keys.Modifiers) bool {
	if required.Shift && !held.Shift {
		return false
	}
	if required.Ctrl && !held.Ctrl {
		return false
	}
	if required.Alt && !held.Alt {
		return false
	}
	if required.Meta && !held.Meta {
		return false
	}
	return true
}

// EvictStaleTokens removes every binding whose token predates newToken.
// Called by the mediator after on_window_change callbacks have had a
// chance to re-register (spec §4.6's "purge-after-callbacks", the
// resolved Open Question from spec §9).
func (t *Table) EvictStaleTokens(newToken int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, m := range t.entries {
		if m.Token < newToken {
			delete(t.entries, k)
		}
	}
}

// Snapshot returns a copy of all current bindings, for the -dump-mappings
// debug flag.
func (t *Table) Snapshot() []KeyMapping {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]KeyMapping, 0, len(t.entries))
	for _, m := range t.entries {
		out = append(out, m)
	}
	return out
}
