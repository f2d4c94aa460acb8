package mapping

import (
	"testing"

	"github.com/go-map2/map2/internal/eval"
	"github.com/go-map2/map2/internal/keys"
)

func keyA() keys.Key { c, _ := keys.CodeForName("a"); return keys.Key{Type: keys.EvKey, Code: c} }

func TestBareClickExpandsToDownTargetAndUpSwallow(t *testing.T) {
	tbl := NewTable()
	tbl.Add(eval.AddMapping{
		Token:   1,
		From:    keys.ActionWithMods{Action: keys.Action{Key: keyA(), Value: keys.Down}},
		IsClick: true,
		ToSeq:   []keys.Action{{Key: keyA(), Value: keys.Down}},
	}, 0)

	down, ok := tbl.Resolve(keyA(), keys.Down, keys.Modifiers{}, "", false)
	if !ok || down.Target.Kind != TargetSequence {
		t.Fatalf("expected a sequence target on the down edge, got %#v ok=%v", down, ok)
	}
	up, ok := tbl.Resolve(keyA(), keys.Up, keys.Modifiers{}, "", false)
	if !ok || up.Target.Kind != TargetSwallow {
		t.Fatalf("expected a swallow target on the up edge, got %#v ok=%v", up, ok)
	}
}

func TestExplicitStateDoesNotClaimPairedEdge(t *testing.T) {
	tbl := NewTable()
	tbl.Add(eval.AddMapping{
		Token:   1,
		From:    keys.ActionWithMods{Action: keys.Action{Key: keyA(), Value: keys.Down}},
		IsClick: false,
		ToSeq:   []keys.Action{{Key: keyA(), Value: keys.Down}},
	}, 0)

	if _, ok := tbl.Resolve(keyA(), keys.Up, keys.Modifiers{}, "", false); ok {
		t.Fatalf("an explicit-state LHS must not bind the paired edge")
	}
}

func TestStaleTokenIsDropped(t *testing.T) {
	tbl := NewTable()
	tbl.Add(eval.AddMapping{
		Token: 1,
		From:  keys.ActionWithMods{Action: keys.Action{Key: keyA(), Value: keys.Down}},
		ToSeq: []keys.Action{{Key: keyA(), Value: keys.Down}},
	}, 2)
	if _, ok := tbl.Resolve(keyA(), keys.Down, keys.Modifiers{}, "", false); ok {
		t.Fatalf("a binding registered under a stale token must not install")
	}
}

func TestEvictStaleTokensRemovesOldBindings(t *testing.T) {
	tbl := NewTable()
	tbl.Add(eval.AddMapping{
		Token: 1,
		From:  keys.ActionWithMods{Action: keys.Action{Key: keyA(), Value: keys.Down}},
		ToSeq: []keys.Action{{Key: keyA(), Value: keys.Down}},
	}, 1)
	tbl.EvictStaleTokens(2)
	if _, ok := tbl.Resolve(keyA(), keys.Down, keys.Modifiers{}, "", false); ok {
		t.Fatalf("eviction should have removed the token=1 binding once newToken=2")
	}
}

func TestWindowScopedBeatsAgnostic(t *testing.T) {
	tbl := NewTable()
	cls := "firefox"
	tbl.Add(eval.AddMapping{
		Token: 1,
		From:  keys.ActionWithMods{Action: keys.Action{Key: keyA(), Value: keys.Down}},
		ToSeq: []keys.Action{{Key: keyA(), Value: keys.Down}},
	}, 0)
	tbl.Add(eval.AddMapping{
		Token:       1,
		WindowClass: &cls,
		From:        keys.ActionWithMods{Action: keys.Action{Key: keyA(), Value: keys.Down}},
		ToSeq:       []keys.Action{{Key: keyA(), Value: keys.Up}}, // distinguishable target
	}, 0)

	m, ok := tbl.Resolve(keyA(), keys.Down, keys.Modifiers{}, "firefox", true)
	if !ok {
		t.Fatalf("expected a match")
	}
	if len(m.Target.Seq) != 1 || m.Target.Seq[0].Value != keys.Up {
		t.Fatalf("expected the window-scoped binding to win, got %#v", m.Target)
	}

	m, ok = tbl.Resolve(keyA(), keys.Down, keys.Modifiers{}, "chrome", true)
	if !ok || m.Target.Seq[0].Value != keys.Down {
		t.Fatalf("expected the agnostic binding to win outside firefox, got %#v ok=%v", m.Target, ok)
	}
}

func TestExactModifierBeatsSubset(t *testing.T) {
	tbl := NewTable()
	tbl.Add(eval.AddMapping{
		Token: 1,
		From:  keys.ActionWithMods{Action: keys.Action{Key: keyA(), Value: keys.Down}},
		ToSeq: []keys.Action{{Key: keyA(), Value: keys.Down}},
	}, 0)
	tbl.Add(eval.AddMapping{
		Token: 1,
		From: keys.ActionWithMods{
			Action: keys.Action{Key: keyA(), Value: keys.Down},
			Mods:   keys.Modifiers{Ctrl: true},
		},
		ToSeq: []keys.Action{{Key: keyA(), Value: keys.Up}},
	}, 0)

	m, ok := tbl.Resolve(keyA(), keys.Down, keys.Modifiers{Ctrl: true}, "", false)
	if !ok || m.Target.Seq[0].Value != keys.Up {
		t.Fatalf("expected the exact ctrl-modifier binding to win, got %#v ok=%v", m.Target, ok)
	}
}

func TestReplacingSameKeyOverwrites(t *testing.T) {
	tbl := NewTable()
	tbl.Add(eval.AddMapping{
		Token: 1,
		From:  keys.ActionWithMods{Action: keys.Action{Key: keyA(), Value: keys.Down}},
		ToSeq: []keys.Action{{Key: keyA(), Value: keys.Down}},
	}, 0)
	tbl.Add(eval.AddMapping{
		Token: 2,
		From:  keys.ActionWithMods{Action: keys.Action{Key: keyA(), Value: keys.Down}},
		ToSeq: []keys.Action{{Key: keyA(), Value: keys.Up}},
	}, 0)

	m, ok := tbl.Resolve(keyA(), keys.Down, keys.Modifiers{}, "", false)
	if !ok || m.Token != 2 || m.Target.Seq[0].Value != keys.Up {
		t.Fatalf("expected the later registration to replace the earlier one, got %#v", m)
	}
}

func TestDumpYAMLProducesReadableOutput(t *testing.T) {
	tbl := NewTable()
	tbl.Add(eval.AddMapping{
		Token: 1,
		From:  keys.ActionWithMods{Action: keys.Action{Key: keyA(), Value: keys.Down}},
		ToSeq: []keys.Action{{Key: keyA(), Value: keys.Down}},
	}, 0)
	out, err := tbl.DumpYAML()
	if err != nil {
		t.Fatalf("DumpYAML: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("expected non-empty YAML output")
	}
}
