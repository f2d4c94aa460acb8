package runtime

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-map2/map2/internal/eval"
	"github.com/go-map2/map2/internal/focus"
	"github.com/go-map2/map2/internal/keys"
	"github.com/go-map2/map2/internal/lang"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubFocus lets tests drive focus changes deterministically.
type stubFocus struct {
	info focus.Info
}

func newStubFocus() *stubFocus { return &stubFocus{} }

func (s *stubFocus) set(class string, ok bool) { s.info = focus.Info{Class: class, OK: ok} }
func (s *stubFocus) Current() focus.Info       { return s.info }

func newHarness(t *testing.T) (*Mediator, chan keys.Event, chan keys.Event, *stubFocus) {
	t.Helper()
	in := make(chan keys.Event, 128)
	out := make(chan keys.Event, 128)
	fw := newStubFocus()
	m := New(in, out, 8, fw, testLogger())
	m.SetFocusPollInterval(5 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	t.Cleanup(cancel)
	return m, in, out, fw
}

// runScript evaluates src at the top level, wired to the mediator's own
// command and emit channels, exactly as cmd/map2 wires the initial script
// run, then blocks on a barrier round trip through the command channel so
// every AddMapping/RegisterWindowChangeCallback the script sent is
// guaranteed installed before runScript returns — without this, a test
// feeding input events right after runScript would race the mediator's
// own goroutine for who processes first.
func runScript(t *testing.T, m *Mediator, out chan keys.Event, src string) {
	t.Helper()
	block, err := lang.Parse(src)
	if err != nil {
		t.Fatalf("parse(%q): %v", src, err)
	}
	amb := eval.Ambient{Emit: out, Mediator: m.Cmds(), Token: 0}
	if err := eval.Run(block, amb); err != nil {
		t.Fatalf("eval(%q): %v", src, err)
	}
	barrier(t, m)
}

// barrier round-trips a harmless GetFocusedWindowInfo through the
// mediator's command channel. Since that channel is FIFO and the
// mediator drains it on its own goroutine, waiting for the reply proves
// every message sent before the barrier has already been applied.
func barrier(t *testing.T, m *Mediator) {
	t.Helper()
	reply := make(chan eval.FocusInfo, 1)
	m.Cmds() <- eval.GetFocusedWindowInfo{Reply: reply}
	select {
	case <-reply:
	case <-time.After(time.Second):
		t.Fatalf("mediator did not respond to barrier in time")
	}
}

func keyEvent(code uint16, val keys.ActionValue) keys.Event {
	return keys.Event{Type: keys.EvKey, Code: code, Value: int32(val)}
}

func expectAction(t *testing.T, out <-chan keys.Event, code uint16, val keys.ActionValue) {
	t.Helper()
	select {
	case ev := <-out:
		if ev.Code != code || keys.ActionValue(ev.Value) != val {
			t.Fatalf("got event code=%d value=%d, want code=%d value=%s", ev.Code, ev.Value, code, val)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for code=%d value=%s", code, val)
	}
}

func expectSyn(t *testing.T, out <-chan keys.Event) {
	t.Helper()
	select {
	case ev := <-out:
		if !ev.IsSyn() {
			t.Fatalf("expected a SYN_REPORT, got %#v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for SYN_REPORT")
	}
}

func codeOf(t *testing.T, name string) uint16 {
	t.Helper()
	c, ok := keys.CodeForName(name)
	if !ok {
		t.Fatalf("no code for %q", name)
	}
	return c
}

// Scenario 1.
func TestScenarioBareClickRemap(t *testing.T) {
	m, in, out, _ := newHarness(t)
	a, b := codeOf(t, "a"), codeOf(t, "b")
	runScript(t, m, out, `a :: "b"`)

	in <- keyEvent(a, keys.Down)
	in <- keyEvent(a, keys.Up)

	expectAction(t, out, b, keys.Down)
	expectSyn(t, out)
	expectAction(t, out, b, keys.Up)
	expectSyn(t, out)
}

// Scenario 2.
func TestScenarioCapitalLHSPrependsShift(t *testing.T) {
	m, in, out, _ := newHarness(t)
	a, b := codeOf(t, "a"), codeOf(t, "b")
	runScript(t, m, out, `A :: "b"`)

	in <- keyEvent(a, keys.Down)
	in <- keyEvent(a, keys.Up)

	expectAction(t, out, keys.CodeLeftShift, keys.Down)
	expectSyn(t, out)
	expectAction(t, out, b, keys.Down)
	expectSyn(t, out)
	expectAction(t, out, b, keys.Up)
	expectSyn(t, out)
}

// Scenario 3: ctrl passes through untouched; only c is remapped.
func TestScenarioModifierPassesThroughUnmapped(t *testing.T) {
	m, in, out, _ := newHarness(t)
	c, x := codeOf(t, "c"), codeOf(t, "x")
	runScript(t, m, out, `^c :: { send("x") }`)

	in <- keyEvent(keys.CodeLeftCtrl, keys.Down)
	in <- keyEvent(c, keys.Down)
	in <- keyEvent(c, keys.Up)
	in <- keyEvent(keys.CodeLeftCtrl, keys.Up)

	expectAction(t, out, keys.CodeLeftCtrl, keys.Down) // unmapped, forwarded

	expectAction(t, out, x, keys.Down)
	expectSyn(t, out)
	expectAction(t, out, x, keys.Up)
	expectSyn(t, out)

	// the c-up edge is the paired swallow of the bare click LHS
	expectAction(t, out, keys.CodeLeftCtrl, keys.Up)
}

// Scenario 5: focus change re-evaluates the callback's guard and rebinds.
func TestScenarioOnWindowChangeRebinds(t *testing.T) {
	m, in, out, fw := newHarness(t)
	a, b := codeOf(t, "a"), codeOf(t, "b")
	runScript(t, m, out, `on_window_change(|| { if active_window_class() == "foo" { a :: "b" } })`)

	fw.set("foo", true)
	time.Sleep(50 * time.Millisecond)

	in <- keyEvent(a, keys.Down)
	in <- keyEvent(a, keys.Up)
	expectAction(t, out, b, keys.Down)
	expectSyn(t, out)
	expectAction(t, out, b, keys.Up)
	expectSyn(t, out)

	fw.set("bar", true)
	time.Sleep(50 * time.Millisecond)

	in <- keyEvent(a, keys.Down)
	in <- keyEvent(a, keys.Up)
	expectAction(t, out, a, keys.Down)
	expectAction(t, out, a, keys.Up)
}

// Scenario 6: sleep suspends the triggered lambda without blocking
// dispatch; the triggering down-edge is claimed by the explicit-state
// LHS (no paired swallow), and the sequence arrives after ~50ms.
func TestScenarioSleepingLambdaTarget(t *testing.T) {
	m, in, out, _ := newHarness(t)
	a, b := codeOf(t, "a"), codeOf(t, "b")
	runScript(t, m, out, `{KEY_A down} :: { sleep(50); send("b") }`)

	start := time.Now()
	in <- keyEvent(a, keys.Down)

	expectAction(t, out, b, keys.Down)
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("lambda target fired too soon: %v", elapsed)
	}
	expectSyn(t, out)
	expectAction(t, out, b, keys.Up)
	expectSyn(t, out)
}

// Eat-set consumption: after one EatEv(a), exactly one future matching
// event is dropped and the next survives.
func TestEatSetConsumesExactlyOnce(t *testing.T) {
	m, in, out, _ := newHarness(t)
	a := codeOf(t, "a")
	runScript(t, m, out, `eat {KEY_A down}`)

	in <- keyEvent(a, keys.Down) // eaten, no binding installed so it would
	// otherwise just forward unchanged
	in <- keyEvent(a, keys.Down) // survives: the eat was consumed already

	expectAction(t, out, a, keys.Down)
}

// SetEnabled(false) bypasses table resolution entirely.
func TestSetEnabledFalseBypassesTable(t *testing.T) {
	m, in, out, _ := newHarness(t)
	a, b := codeOf(t, "a"), codeOf(t, "b")
	runScript(t, m, out, `a :: "b"`)

	m.SetEnabled(false)
	in <- keyEvent(a, keys.Down)
	expectAction(t, out, a, keys.Down) // forwarded unchanged while disabled

	m.SetEnabled(true)
	in <- keyEvent(a, keys.Down)
	expectAction(t, out, b, keys.Down)
	expectSyn(t, out)
}

// Stale-token eviction: a mapping registered before a focus change must
// not fire once the cycle token has advanced, even with no replacement
// callback re-registering it.
func TestStaleTokenMappingStopsFiringAfterFocusChange(t *testing.T) {
	m, in, out, fw := newHarness(t)
	a := codeOf(t, "a")
	runScript(t, m, out, `a :: "b"`)

	fw.set("anything", true)
	time.Sleep(50 * time.Millisecond)

	in <- keyEvent(a, keys.Down)
	expectAction(t, out, a, keys.Down) // forwarded unchanged: binding evicted
}
