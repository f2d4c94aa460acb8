package mapping

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/go-map2/map2/internal/keys"
)

// dumpEntry is the YAML-friendly projection of a KeyMapping, used by the
// `-dump-mappings` debug flag. Grounded on the teacher's
// internal/mappings/layout.go, which uses the same library to marshal a
// resolved lookup table for inspection.
type dumpEntry struct {
	From        string `yaml:"from"`
	WindowClass string `yaml:"window_class,omitempty"`
	Token       int64  `yaml:"token"`
	Target      string `yaml:"target"`
}

// DumpYAML renders a snapshot of the table as YAML for human inspection.
func (t *Table) DumpYAML() ([]byte, error) {
	snap := t.Snapshot()
	entries := make([]dumpEntry, 0, len(snap))
	for _, m := range snap {
		e := dumpEntry{
			From:   formatEdge(m.From),
			Token:  m.Token,
			Target: formatTarget(m.Target),
		}
		if m.WindowClass != nil {
			e.WindowClass = *m.WindowClass
		}
		entries = append(entries, e)
	}
	return yaml.Marshal(entries)
}

func formatEdge(a keys.ActionWithMods) string {
	var mods []string
	if a.Mods.Shift {
		mods = append(mods, "+")
	}
	if a.Mods.Ctrl {
		mods = append(mods, "^")
	}
	if a.Mods.Alt {
		mods = append(mods, "!")
	}
	if a.Mods.Meta {
		mods = append(mods, "#")
	}
	name, ok := keys.NameForCode(a.Key.Code)
	if !ok {
		name = fmt.Sprintf("{code:%d}", a.Key.Code)
	}
	return strings.Join(mods, "") + name + " " + a.Value.String()
}

func formatTarget(tgt Target) string {
	switch tgt.Kind {
	case TargetSequence:
		parts := make([]string, 0, len(tgt.Seq))
		for _, a := range tgt.Seq {
			name, ok := keys.NameForCode(a.Key.Code)
			if !ok {
				name = fmt.Sprintf("{code:%d}", a.Key.Code)
			}
			parts = append(parts, name+":"+a.Value.String())
		}
		return "sequence[" + strings.Join(parts, " ") + "]"
	case TargetLambda:
		return "lambda"
	case TargetSwallow:
		return "swallow"
	}
	return "unknown"
}
