package lang

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-map2/map2/internal/keys"
)

// resolveKeyToken resolves a single key name token — either a one-character
// shorthand ("a", "A", "1") or a canonical name with an optional KEY_/BTN_
// prefix ("KEY_A", "a") — to its code. emitShift reports whether the token
// was capitalized, per spec §8's "capital-letter shift injection" property.
func resolveKeyToken(tok string) (code uint16, emitShift bool, err error) {
	if tok == "" {
		return 0, false, fmt.Errorf("empty key token")
	}

	if len([]rune(tok)) == 1 {
		r := []rune(tok)[0]
		if r >= 'A' && r <= 'Z' {
			lower := strings.ToLower(string(r))
			c, ok := keys.CodeForName(lower)
			if !ok {
				return 0, false, fmt.Errorf("unknown key %q", tok)
			}
			return c, true, nil
		}
		lower := strings.ToLower(string(r))
		c, ok := keys.CodeForName(lower)
		if !ok {
			return 0, false, fmt.Errorf("unknown key %q", tok)
		}
		return c, false, nil
	}

	name := tok
	upper := strings.ToUpper(name)
	switch {
	case strings.HasPrefix(upper, "KEY_"):
		name = name[len("KEY_"):]
	case strings.HasPrefix(upper, "BTN_"):
		name = name[len("BTN_"):]
		c, ok := keys.ButtonCodeForName(name)
		if !ok {
			return 0, false, fmt.Errorf("unknown button %q", tok)
		}
		return c, false, nil
	}
	c, ok := keys.CodeForName(name)
	if !ok {
		return 0, false, fmt.Errorf("unknown key %q", tok)
	}
	return c, false, nil
}

func actionValueFromWord(word string) (keys.ActionValue, bool) {
	switch word {
	case "down":
		return keys.Down, true
	case "up":
		return keys.Up, true
	case "repeat":
		return keys.Repeat, true
	default:
		return 0, false
	}
}

// parsedKeyLit is a single parsed "{KEY state}" or bare key token, before
// modifier-flag prefixes are applied.
type parsedKeyLit struct {
	key       keys.Key
	value     keys.ActionValue
	isClick   bool
	emitShift bool
}

// parseKeyLitContent parses the content of a brace key literal ("KEY_A
// down", "a", "btn_forward up") as produced by the lexer's tokKeyLit.
func parseKeyLitContent(content string) (parsedKeyLit, error) {
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return parsedKeyLit{}, fmt.Errorf("empty key literal")
	}

	code, emitShift, err := resolveKeyToken(fields[0])
	if err != nil {
		return parsedKeyLit{}, err
	}

	key := keys.Key{Type: keys.EvKey, Code: code}
	if len(fields) == 1 {
		return parsedKeyLit{key: key, isClick: true, emitShift: emitShift}, nil
	}
	if len(fields) != 2 {
		return parsedKeyLit{}, fmt.Errorf("malformed key literal %q", content)
	}
	value, ok := actionValueFromWord(fields[1])
	if !ok {
		return parsedKeyLit{}, fmt.Errorf("unknown key state %q", fields[1])
	}
	return parsedKeyLit{key: key, value: value, emitShift: emitShift}, nil
}

// ParseKeyPattern parses an LHS-style pattern string: optional modifier
// prefix characters (+ shift, ^ ctrl, ! alt, # meta) followed by a bare
// key token or a "{KEY state}" literal. It is used both by the `::`
// grammar and by the map_key(lhs_str, ...) builtin, per spec §4.5.
func ParseKeyPattern(s string) (from keys.ActionWithMods, isClick bool, emitShift bool, err error) {
	s = strings.TrimSpace(s)
	var mods keys.Modifiers
	i := 0
	runes := []rune(s)
	for i < len(runes) {
		switch runes[i] {
		case '+':
			mods.Shift = true
		case '^':
			mods.Ctrl = true
		case '!':
			mods.Alt = true
		case '#':
			mods.Meta = true
		default:
			goto doneFlags
		}
		i++
	}
doneFlags:
	rest := strings.TrimSpace(string(runes[i:]))
	if rest == "" {
		return from, false, false, fmt.Errorf("empty key pattern")
	}

	var lit parsedKeyLit
	if strings.HasPrefix(rest, "{") && strings.HasSuffix(rest, "}") {
		lit, err = parseKeyLitContent(rest[1 : len(rest)-1])
	} else {
		lit, err = parseKeyLitContent(rest)
	}
	if err != nil {
		return from, false, false, err
	}

	value := lit.value
	if lit.isClick {
		value = keys.Down
	}
	from = keys.ActionWithMods{
		Action: keys.Action{Key: lit.key, Value: value},
		Mods:   mods,
	}
	return from, lit.isClick, lit.emitShift, nil
}

// ParseKeySequence parses an RHS key-sequence string such as "ab{KEY_ENTER
// down}" into a flat list of key actions, expanding bare tokens into a
// down/up click and capitalized tokens into a shift-down prefix, per spec
// §4.1's "Key-sequence strings encode sequential key actions" rule.
func ParseKeySequence(s string) ([]keys.Action, error) {
	var out []keys.Action
	runes := []rune(s)
	for i := 0; i < len(runes); {
		r := runes[i]
		if r == '{' {
			end := strings.IndexRune(string(runes[i:]), '}')
			if end < 0 {
				return nil, fmt.Errorf("unterminated key literal in sequence %q", s)
			}
			content := string(runes[i+1 : i+end])
			lit, err := parseKeyLitContent(content)
			if err != nil {
				return nil, err
			}
			if lit.emitShift {
				out = append(out, keys.Action{Key: keys.Key{Type: keys.EvKey, Code: keys.CodeLeftShift}, Value: keys.Down})
			}
			if lit.isClick {
				out = append(out, keys.Action{Key: lit.key, Value: keys.Down}, keys.Action{Key: lit.key, Value: keys.Up})
			} else {
				out = append(out, keys.Action{Key: lit.key, Value: lit.value})
			}
			i += end + 1
			continue
		}

		if unicode.IsSpace(r) {
			i++
			continue
		}

		code, emitShift, err := resolveKeyToken(string(r))
		if err != nil {
			return nil, err
		}
		key := keys.Key{Type: keys.EvKey, Code: code}
		if emitShift {
			out = append(out, keys.Action{Key: keys.Key{Type: keys.EvKey, Code: keys.CodeLeftShift}, Value: keys.Down})
		}
		out = append(out, keys.Action{Key: key, Value: keys.Down}, keys.Action{Key: key, Value: keys.Up})
		i++
	}
	return out, nil
}
