// Package eval implements the tree-walking evaluator for map2 scripts: a
// tagged Value union, lexically scoped environments, and the dispatch of
// built-ins and user lambdas against the mediator, per spec §4.5.
package eval

import (
	"fmt"

	"github.com/go-map2/map2/internal/lang"
)

// Tag identifies the dynamic type carried by a Value.
type Tag int

const (
	TagBool Tag = iota
	TagString
	TagNumber
	TagLambda
	TagVoid
)

// Value is the tagged union every expression evaluates to. Equality is
// defined only within the same non-lambda tag; cross-tag comparisons and
// lambda comparisons are handled by Equal, never by Go's == operator.
type Value struct {
	Tag    Tag
	Bool   bool
	Str    string
	Num    float64
	Lambda *LambdaValue
}

// LambdaValue is a first-class function: its parameter names, its body, and
// the environment it closed over at definition time.
type LambdaValue struct {
	Params []string
	Body   *lang.Block
	Env    *Env
}

func VoidValue() Value           { return Value{Tag: TagVoid} }
func BoolValue(b bool) Value     { return Value{Tag: TagBool, Bool: b} }
func StringValue(s string) Value { return Value{Tag: TagString, Str: s} }
func NumberValue(n float64) Value { return Value{Tag: TagNumber, Num: n} }
func LambdaVal(l *LambdaValue) Value {
	return Value{Tag: TagLambda, Lambda: l}
}

func (v Value) IsVoid() bool { return v.Tag == TagVoid }

// Truthy reports whether v is Bool(true); callers that require a strict
// Bool (if/for conditions) should check the tag themselves and raise a
// RuntimeError otherwise, per spec §4.5.1 ("Cond must be Bool or fatal").
func (v Value) Truthy() bool { return v.Tag == TagBool && v.Bool }

// Equal implements spec §3's Value equality: same-tag comparison for
// Bool/String/Number, Void equals only Void, and lambdas never compare
// equal to anything, including another lambda.
func (v Value) Equal(other Value) bool {
	if v.Tag == TagLambda || other.Tag == TagLambda {
		return false
	}
	if v.Tag != other.Tag {
		return false
	}
	switch v.Tag {
	case TagBool:
		return v.Bool == other.Bool
	case TagString:
		return v.Str == other.Str
	case TagNumber:
		return v.Num == other.Num
	case TagVoid:
		return true
	}
	return false
}

// String renders v for print() and diagnostic messages.
func (v Value) String() string {
	switch v.Tag {
	case TagBool:
		return fmt.Sprintf("%t", v.Bool)
	case TagString:
		return v.Str
	case TagNumber:
		return formatNumber(v.Num)
	case TagLambda:
		return "<lambda>"
	case TagVoid:
		return "<void>"
	}
	return "<unknown>"
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}
