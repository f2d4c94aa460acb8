package keys

import "strings"

// NameToCode maps canonical evdev key names (without the KEY_ prefix,
// lowercase) to their numeric codes, extended from the teacher's
// internal/mappings/keycodes.go table with the additional function,
// navigation, and numpad keys the pack's other evdev-backed examples
// (Danondso-palaver's internal/hotkey/hotkey_linux.go) also carry.
var NameToCode = map[string]uint16{
	"esc":        1,
	"1":          2,
	"2":          3,
	"3":          4,
	"4":          5,
	"5":          6,
	"6":          7,
	"7":          8,
	"8":          9,
	"9":          10,
	"0":          11,
	"minus":      12,
	"equal":      13,
	"backspace":  14,
	"tab":        15,
	"q":          16,
	"w":          17,
	"e":          18,
	"r":          19,
	"t":          20,
	"y":          21,
	"u":          22,
	"i":          23,
	"o":          24,
	"p":          25,
	"leftbrace":  26,
	"rightbrace": 27,
	"enter":      28,
	"leftctrl":   CodeLeftCtrl,
	"a":          30,
	"s":          31,
	"d":          32,
	"f":          33,
	"g":          34,
	"h":          35,
	"j":          36,
	"k":          37,
	"l":          38,
	"semicolon":  39,
	"apostrophe": 40,
	"grave":      41,
	"leftshift":  CodeLeftShift,
	"backslash":  43,
	"z":          44,
	"x":          45,
	"c":          46,
	"v":          47,
	"b":          48,
	"n":          49,
	"m":          50,
	"comma":      51,
	"dot":        52,
	"slash":      53,
	"rightshift": CodeRightShift,
	"kpasterisk": 55,
	"leftalt":    CodeLeftAlt,
	"space":      57,
	"capslock":   58,
	"f1":         59,
	"f2":         60,
	"f3":         61,
	"f4":         62,
	"f5":         63,
	"f6":         64,
	"f7":         65,
	"f8":         66,
	"f9":         67,
	"f10":        68,
	"numlock":    69,
	"scrolllock": 70,
	"f11":        87,
	"f12":        88,
	"102nd":      86,
	"rightctrl":  CodeRightCtrl,
	"rightalt":   CodeRightAlt,
	"home":       102,
	"up":         103,
	"pageup":     104,
	"left":       105,
	"right":      106,
	"end":        107,
	"down":       108,
	"pagedown":   109,
	"insert":     110,
	"delete":     111,
	"pause":      119,
	"leftmeta":   CodeLeftMeta,
	"rightmeta":  CodeRightMeta,
	"f13":        183,
	"f14":        184,
	"f15":        185,
	"f16":        186,
	"f17":        187,
	"f18":        188,
	"f19":        189,
	"f20":        190,
	"f21":        191,
	"f22":        192,
	"f23":        193,
	"f24":        194,
}

// CodeToName is the reverse of NameToCode, populated at init time. When a
// code has more than one name (none currently do), the last entry visited
// wins, which is deterministic only because the table above has no
// duplicate values.
var CodeToName map[uint16]string

func init() {
	CodeToName = make(map[uint16]string, len(NameToCode))
	for name, code := range NameToCode {
		CodeToName[code] = name
	}
}

// ButtonNameToCode maps canonical evdev BTN_ names (without the prefix,
// lowercase) to their numeric codes. Kept separate from NameToCode: several
// BTN_ names (left, right) would otherwise collide with the KEY_LEFT/
// KEY_RIGHT arrow-key names above, since both live in the same evdev
// EV_KEY code space but are spelled with different prefixes in scripts.
// Grounded on original_source/src/parsing/key_action.rs's "btn_forward"
// test literal and SPEC_FULL.md's C1 data model naming "button" as a
// first-class key type.
var ButtonNameToCode = map[string]uint16{
	"left":    272,
	"right":   273,
	"middle":  274,
	"side":    275,
	"extra":   276,
	"forward": 277,
	"back":    278,
	"task":    279,
}

// ButtonCodeToName is the reverse of ButtonNameToCode, populated at init time.
var ButtonCodeToName map[uint16]string

func init() {
	ButtonCodeToName = make(map[uint16]string, len(ButtonNameToCode))
	for name, code := range ButtonNameToCode {
		ButtonCodeToName[code] = name
	}
}

// NameForCode formats the canonical bare-literal spelling for a key or
// button code ("{KEY_NAME}" or "{BTN_NAME}"), the shape number_to_key
// produces.
func NameForCode(code uint16) (string, bool) {
	if name, ok := CodeToName[code]; ok {
		return "{KEY_" + strings.ToUpper(name) + "}", true
	}
	if name, ok := ButtonCodeToName[code]; ok {
		return "{BTN_" + strings.ToUpper(name) + "}", true
	}
	return "", false
}

// CodeForName resolves a bare key name (case-insensitive) to its code.
func CodeForName(name string) (uint16, bool) {
	code, ok := NameToCode[strings.ToLower(name)]
	return code, ok
}

// ButtonCodeForName resolves a bare BTN_ name (case-insensitive, prefix
// already stripped) to its code.
func ButtonCodeForName(name string) (uint16, bool) {
	code, ok := ButtonNameToCode[strings.ToLower(name)]
	return code, ok
}
