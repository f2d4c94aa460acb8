package eval

import (
	"fmt"
	"math"
	"time"

	"github.com/go-map2/map2/internal/keys"
	"github.com/go-map2/map2/internal/lang"
)

// builtinFunc is the signature shared by every built-in listed in spec
// §4.5's table. Arguments are already-evaluated Values.
type builtinFunc func(args []Value, env *Env, amb Ambient) (Value, error)

// builtins is the closed set of names dispatched before an identifier is
// looked up as a user lambda (spec §4.5: "Built-ins ... are dispatched by
// name; otherwise the identifier is looked up").
var builtins = map[string]builtinFunc{
	"exit":                biExit,
	"send":                biSend,
	"active_window_class": biActiveWindowClass,
	"on_window_change":    biOnWindowChange,
	"sleep":               biSleep,
	"print":               biPrint,
	"number_to_key":       biNumberToKey,
	"number_to_char":      biNumberToChar,
	"char_to_number":      biCharToNumber,
	"map_key":             biMapKey,
}

func biExit(args []Value, env *Env, amb Ambient) (Value, error) {
	var code int32
	if len(args) > 0 {
		if args[0].Tag != TagNumber {
			return Value{}, &RuntimeError{Msg: "exit(n): n must be a Number"}
		}
		code = int32(args[0].Num)
	}
	amb.Mediator <- Exit{Code: code}
	return VoidValue(), nil
}

func biSend(args []Value, env *Env, amb Ambient) (Value, error) {
	if len(args) != 1 || args[0].Tag != TagString {
		return Value{}, &RuntimeError{Msg: "send(str): str must be a String"}
	}
	actions, err := lang.ParseKeySequence(args[0].Str)
	if err != nil {
		return Value{}, &RuntimeError{Msg: "send: " + err.Error()}
	}
	for _, a := range actions {
		amb.emitAction(a)
	}
	return VoidValue(), nil
}

func biActiveWindowClass(args []Value, env *Env, amb Ambient) (Value, error) {
	reply := make(chan FocusInfo, 1)
	amb.Mediator <- GetFocusedWindowInfo{Reply: reply}
	info := <-reply
	if !info.OK {
		return VoidValue(), nil
	}
	return StringValue(info.Class), nil
}

func biOnWindowChange(args []Value, env *Env, amb Ambient) (Value, error) {
	if len(args) != 1 || args[0].Tag != TagLambda {
		return Value{}, &RuntimeError{Msg: "on_window_change(fn): fn must be a lambda"}
	}
	amb.Mediator <- RegisterWindowChangeCallback{Lambda: args[0].Lambda}
	return VoidValue(), nil
}

func biSleep(args []Value, env *Env, amb Ambient) (Value, error) {
	if len(args) != 1 || args[0].Tag != TagNumber {
		return Value{}, &RuntimeError{Msg: "sleep(ms): ms must be a Number"}
	}
	ms := math.Floor(args[0].Num)
	if ms > 0 {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	}
	return VoidValue(), nil
}

func biPrint(args []Value, env *Env, amb Ambient) (Value, error) {
	if len(args) != 1 {
		return Value{}, &RuntimeError{Msg: "print(v): expects exactly one argument"}
	}
	fmt.Println(args[0].String())
	return VoidValue(), nil
}

func biNumberToKey(args []Value, env *Env, amb Ambient) (Value, error) {
	if len(args) != 1 || args[0].Tag != TagNumber {
		return Value{}, &RuntimeError{Msg: "number_to_key(n): n must be a Number"}
	}
	code := uint16(args[0].Num)
	name, ok := keys.NameForCode(code)
	if !ok {
		return Value{}, &RuntimeError{Msg: fmt.Sprintf("number_to_key: unknown key code %d", code)}
	}
	return StringValue(name), nil
}

func biNumberToChar(args []Value, env *Env, amb Ambient) (Value, error) {
	if len(args) != 1 || args[0].Tag != TagNumber {
		return Value{}, &RuntimeError{Msg: "number_to_char(n): n must be a Number"}
	}
	return StringValue(string(rune(int64(args[0].Num)))), nil
}

func biCharToNumber(args []Value, env *Env, amb Ambient) (Value, error) {
	if len(args) != 1 || args[0].Tag != TagString {
		return Value{}, &RuntimeError{Msg: "char_to_number(s): s must be a String"}
	}
	runes := []rune(args[0].Str)
	if len(runes) != 1 {
		return Value{}, &RuntimeError{Msg: "char_to_number(s): s must have length 1"}
	}
	return NumberValue(float64(runes[0])), nil
}

func biMapKey(args []Value, env *Env, amb Ambient) (Value, error) {
	if len(args) != 2 || args[0].Tag != TagString || args[1].Tag != TagLambda {
		return Value{}, &RuntimeError{Msg: "map_key(lhs_str, fn): lhs_str must be a String, fn a lambda"}
	}
	from, isClick, emitShift, err := lang.ParseKeyPattern(args[0].Str)
	if err != nil {
		return Value{}, &RuntimeError{Msg: "map_key: " + err.Error()}
	}
	amb.Mediator <- AddMapping{
		Token:     amb.Token,
		From:      from,
		IsClick:   isClick,
		EmitShift: emitShift,
		ToLambda:  args[1].Lambda,
	}
	return VoidValue(), nil
}
