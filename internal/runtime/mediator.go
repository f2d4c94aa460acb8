// Package runtime implements C7: the single-consumer mediator actor that
// owns the mapping table, the window-cycle token, the on_window_change
// callback registry, and the eat-set, and dispatches every InputEvent and
// ExecutionMessage per spec §4.6. Grounded on the teacher's
// internal/handler/handler.go (the single dispatch loop deciding
// forward/remap per key event) generalized from a fixed-layout switch to
// a MappingTable lookup, and on original_source/src/runtime/evaluation.rs
// for the message taxonomy this loop consumes.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-map2/map2/internal/eval"
	"github.com/go-map2/map2/internal/focus"
	"github.com/go-map2/map2/internal/keys"
	"github.com/go-map2/map2/internal/mapping"
)

// DefaultFocusPollInterval is how often the mediator asks C5 for the
// currently focused window, absent an explicit override.
const DefaultFocusPollInterval = 200 * time.Millisecond

// Mediator is C7. It must only ever be driven by its own Run goroutine;
// no field is safe to touch concurrently from outside except via the
// channel returned by Cmds and the atomic SetEnabled toggle.
type Mediator struct {
	in    <-chan keys.Event
	out   chan<- keys.Event
	cmds  chan eval.ExecutionMessage
	focus focus.Watcher

	focusPollInterval time.Duration

	table     *mapping.Table
	token     int64
	lastClass string
	lastOK    bool
	mods      keys.ModifierState
	eatSet    map[keys.Action]int
	callbacks []*eval.LambdaValue

	logger *slog.Logger

	exitRequested bool
	exitCode      int32

	// enabled gates table resolution without touching anything the
	// dispatch goroutine owns exclusively, so the tray's toggle can flip
	// it from its own goroutine with a plain atomic store.
	enabled atomic.Bool

	// spawnLambda is overridable in tests; production wiring points it at
	// eval.RunLambda.
	spawnLambda func(*eval.LambdaValue, []eval.Value, eval.Ambient) (eval.Value, error)
}

// New builds a Mediator. cmdCap sizes the ExecutionMessage channel (spec
// §5 recommends ≈8); callers obtain it via Cmds() to wire into every
// Ambient they construct.
func New(in <-chan keys.Event, out chan<- keys.Event, cmdCap int, fw focus.Watcher, logger *slog.Logger) *Mediator {
	m := &Mediator{
		in:                in,
		out:               out,
		cmds:              make(chan eval.ExecutionMessage, cmdCap),
		focus:             fw,
		focusPollInterval: DefaultFocusPollInterval,
		table:             mapping.NewTable(),
		eatSet:            make(map[keys.Action]int),
		logger:            logger,
		spawnLambda:       eval.RunLambda,
	}
	m.enabled.Store(true)
	return m
}

// SetEnabled toggles whether the mapping table is consulted at all; a
// disabled mediator forwards every key edge unchanged, as if no script
// had ever run. Safe to call from any goroutine (the tray icon's click
// handler calls this directly).
func (r *Mediator) SetEnabled(enabled bool) { r.enabled.Store(enabled) }

// Enabled reports the current toggle state.
func (r *Mediator) Enabled() bool { return r.enabled.Load() }

// Cmds returns the send side of the mediator's command channel, for
// wiring into eval.Ambient.Mediator.
func (r *Mediator) Cmds() chan<- eval.ExecutionMessage { return r.cmds }

// Table exposes the mapping table read-only, for the -dump-mappings flag.
func (r *Mediator) Table() *mapping.Table { return r.table }

// SetFocusPollInterval overrides the default poll cadence; mainly for
// tests that want a fast tick.
func (r *Mediator) SetFocusPollInterval(d time.Duration) { r.focusPollInterval = d }

// Run drives the single-consumer select loop until ctx is cancelled or a
// script calls exit(), returning the exit code in the latter case.
func (r *Mediator) Run(ctx context.Context) int32 {
	ticker := time.NewTicker(r.focusPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return 0
		case ev, ok := <-r.in:
			if !ok {
				return 0
			}
			r.handleInputEvent(ev)
		case msg, ok := <-r.cmds:
			if !ok {
				return 0
			}
			if code, done := r.handleMessage(msg); done {
				return code
			}
		case <-ticker.C:
			r.pollFocus()
			if r.exitRequested {
				return r.exitCode
			}
		}
	}
}

// handleInputEvent implements spec §4.6's four-step dispatch algorithm.
func (r *Mediator) handleInputEvent(ev keys.Event) {
	if ev.IsSyn() {
		r.out <- ev
		return
	}

	action, ok := ev.AsAction()
	if !ok {
		r.out <- ev
		return
	}

	if r.eatSet[action] > 0 {
		r.eatSet[action]--
		if r.eatSet[action] == 0 {
			delete(r.eatSet, action)
		}
		return
	}

	if !r.enabled.Load() {
		r.out <- ev
		r.mods.Update(action.Key.Code, action.Value)
		return
	}

	mods := r.mods.Current()
	m, found := r.table.Resolve(action.Key, action.Value, mods, r.lastClass, r.lastOK)
	switch {
	case found && m.Target.Kind == mapping.TargetSequence:
		for _, a := range m.Target.Seq {
			r.out <- keys.FromAction(a)
			r.out <- keys.SynReport()
		}
	case found && m.Target.Kind == mapping.TargetLambda:
		r.triggerLambda(m.Target.Lambda)
	case found && m.Target.Kind == mapping.TargetSwallow:
		// emit nothing
	default:
		r.out <- ev
	}

	r.mods.Update(action.Key.Code, action.Value)
}

// triggerLambda spawns the evaluation on its own goroutine so the
// dispatch loop never blocks on a script's side effects, per spec §4.6:
// "do not await completion on the dispatch path".
func (r *Mediator) triggerLambda(l *eval.LambdaValue) {
	amb := eval.Ambient{Emit: r.out, Mediator: r.cmds, Token: r.token}
	go func() {
		if _, err := r.spawnLambda(l, nil, amb); err != nil {
			r.logger.Error("lambda evaluation failed", "error", err)
		}
	}()
}

func (r *Mediator) handleMessage(msg eval.ExecutionMessage) (int32, bool) {
	switch m := msg.(type) {
	case eval.AddMapping:
		r.table.Add(m, r.token)
	case eval.EatEv:
		r.eatSet[m.Action]++
	case eval.GetFocusedWindowInfo:
		m.Reply <- eval.FocusInfo{Class: r.lastClass, OK: r.lastOK}
	case eval.RegisterWindowChangeCallback:
		r.callbacks = append(r.callbacks, m.Lambda)
	case eval.Exit:
		return m.Code, true
	}
	return 0, false
}

// pollFocus asks C5 for the current window class; on a change it bumps
// the window-cycle token, runs every on_window_change callback (which
// typically re-registers mappings under the new token), and only then
// evicts bindings tagged with a stale token — the "purge-after-callbacks"
// resolution of spec §9's Open Question.
//
// Callbacks run on their own goroutines (spec §4.6: dispatch never awaits
// an evaluation directly), so re-registrations arrive back on r.cmds —
// the very channel this goroutine owns. Waiting for completion with a
// plain channel receive would deadlock the mediator against itself, so
// this drains r.cmds itself while the callbacks run, applying each
// message the same way the main loop would.
func (r *Mediator) pollFocus() {
	info := r.focus.Current()
	if info.OK == r.lastOK && info.Class == r.lastClass {
		return
	}
	r.lastClass, r.lastOK = info.Class, info.OK
	r.token++
	newToken := r.token

	if len(r.callbacks) > 0 {
		amb := eval.Ambient{Emit: r.out, Mediator: r.cmds, Token: newToken}
		var wg sync.WaitGroup
		for _, cb := range r.callbacks {
			wg.Add(1)
			go func(cb *eval.LambdaValue) {
				defer wg.Done()
				if _, err := r.spawnLambda(cb, nil, amb); err != nil {
					r.logger.Error("on_window_change callback failed", "error", err)
				}
			}(cb)
		}
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

	drainWhileWaiting:
		for {
			select {
			case <-done:
				break drainWhileWaiting
			case msg := <-r.cmds:
				r.drainMessage(msg)
			}
		}
	drainRemaining:
		for {
			select {
			case msg := <-r.cmds:
				r.drainMessage(msg)
			default:
				break drainRemaining
			}
		}
	}

	r.table.EvictStaleTokens(newToken)
}

func (r *Mediator) drainMessage(msg eval.ExecutionMessage) {
	if code, done := r.handleMessage(msg); done {
		r.exitRequested = true
		r.exitCode = code
	}
}
