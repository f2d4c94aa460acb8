package eval

import "github.com/go-map2/map2/internal/keys"

// Ambient is the small context record threaded explicitly through every
// evaluation call: the emit sender to C4, the mediator command sender, and
// the window-cycle-token in effect when this evaluation was spawned. Spec
// §9 explicitly calls for an explicit parameter over thread-locals.
type Ambient struct {
	Emit     chan<- keys.Event
	Mediator chan<- ExecutionMessage
	Token    int64
}

// emitAction writes action as two InputEvents — a KeyAction followed
// by a SYN_REPORT — to C4, per spec §4.5's "KeyAction expression" rule.
func (a Ambient) emitAction(action keys.Action) {
	a.Emit <- keys.FromAction(action)
	a.Emit <- keys.SynReport()
}
