package eval

import "github.com/go-map2/map2/internal/keys"

// ExecutionMessage is sent from an evaluation goroutine to the runtime
// mediator (C7). These types live in internal/eval rather than
// internal/runtime so internal/mapping can depend on eval's LambdaValue
// without eval needing to import back the mediator or the mapping table,
// per spec §4.6's message taxonomy.
type ExecutionMessage interface{ executionMessage() }

// AddMapping installs a key mapping into the runtime's table. A binding
// whose Token predates the mediator's current window-cycle-token is
// dropped as stale (spec §4.6).
type AddMapping struct {
	Token       int64
	WindowClass *string
	From        keys.ActionWithMods
	IsClick     bool
	EmitShift   bool
	ToSeq       []keys.Action
	ToLambda    *LambdaValue
}

func (AddMapping) executionMessage() {}

// EatEv marks a for a single future occurrence of action to be swallowed.
type EatEv struct {
	Action keys.Action
}

func (EatEv) executionMessage() {}

// FocusInfo answers GetFocusedWindowInfo; OK is false if no window is
// focused or the watcher could not determine a class.
type FocusInfo struct {
	Class string
	OK    bool
}

// GetFocusedWindowInfo asks the mediator to consult C5 and reply.
type GetFocusedWindowInfo struct {
	Reply chan FocusInfo
}

func (GetFocusedWindowInfo) executionMessage() {}

// RegisterWindowChangeCallback appends a lambda to the mediator's
// on_window_change registry; it fires on every focus change.
type RegisterWindowChangeCallback struct {
	Lambda *LambdaValue
}

func (RegisterWindowChangeCallback) executionMessage() {}

// Exit requests graceful process shutdown with the given exit code.
type Exit struct {
	Code int32
}

func (Exit) executionMessage() {}
