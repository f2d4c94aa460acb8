package eval

import (
	"fmt"

	"github.com/go-map2/map2/internal/keys"
	"github.com/go-map2/map2/internal/lang"
)

// retKind distinguishes how a block finished, mirroring the source's
// BlockRet: a plain fall-through, an explicit return carrying a value, or
// a continue escaping toward the nearest loop (or, illegally, a function
// body — see Call).
type retKind int

const (
	retNone retKind = iota
	retReturn
	retContinue
)

type blockRet struct {
	kind  retKind
	value Value
}

// Run evaluates a top-level parsed script block in a fresh root
// environment, recovering any panic raised along the way (e.g. a nil-map
// bug) into a *RuntimeError so a caller never needs to catch a raw panic,
// per spec §7's clean-shutdown rewrite.
func Run(block *lang.Block, amb Ambient) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &RuntimeError{Msg: fmt.Sprintf("panic during evaluation: %v", r)}
		}
	}()
	root := NewEnv(nil)
	_, err = evalBlock(block, root, amb)
	return err
}

// RunLambda invokes a lambda with the given arguments on a fresh scope
// parented on its captured environment, per spec §4.5's FunctionCall rule.
// It is exported so the runtime mediator can spawn a triggered mapping
// target (and on_window_change callbacks) without reaching into eval
// internals.
func RunLambda(l *LambdaValue, args []Value, amb Ambient) (v Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &RuntimeError{Msg: fmt.Sprintf("panic during evaluation: %v", r)}
		}
	}()
	return callLambda(l, args, amb)
}

func callLambda(l *LambdaValue, args []Value, amb Ambient) (Value, error) {
	scope := NewEnv(l.Env)
	for i, name := range l.Params {
		var v Value
		if i < len(args) {
			v = args[i]
		} else {
			v = VoidValue()
		}
		scope.vars[name] = v // direct: params may legally bind Void, Init would reject it
	}
	ret, err := evalBlock(l.Body, scope, amb)
	if err != nil {
		return Value{}, err
	}
	switch ret.kind {
	case retReturn:
		return ret.value, nil
	case retContinue:
		return Value{}, &RuntimeError{Msg: "continue escaping a function body"}
	default:
		return VoidValue(), nil
	}
}

func evalBlock(b *lang.Block, env *Env, amb Ambient) (blockRet, error) {
	for _, stmt := range b.Stmts {
		ret, err := evalStmt(stmt, env, amb)
		if err != nil {
			return blockRet{}, err
		}
		if ret.kind != retNone {
			return ret, nil
		}
	}
	return blockRet{kind: retNone}, nil
}

func evalStmt(stmt lang.Stmt, env *Env, amb Ambient) (blockRet, error) {
	switch s := stmt.(type) {
	case *lang.LetStmt:
		v, err := evalExpr(s.Value, env, amb)
		if err != nil {
			return blockRet{}, err
		}
		if err := env.Init(s.Name, v); err != nil {
			return blockRet{}, err
		}
		return blockRet{kind: retNone}, nil

	case *lang.ExprStmt:
		if _, err := evalExpr(s.Expr, env, amb); err != nil {
			return blockRet{}, err
		}
		return blockRet{kind: retNone}, nil

	case *lang.BlockStmt:
		return evalBlock(s.Block, NewEnv(env), amb)

	case *lang.IfStmt:
		for _, br := range s.Branches {
			cond, err := evalExpr(br.Cond, env, amb)
			if err != nil {
				return blockRet{}, err
			}
			if cond.Tag != TagBool {
				return blockRet{}, &RuntimeError{Msg: "if condition must be Bool"}
			}
			if cond.Bool {
				return evalBlock(br.Body, NewEnv(env), amb)
			}
		}
		if s.Else != nil {
			return evalBlock(s.Else, NewEnv(env), amb)
		}
		return blockRet{kind: retNone}, nil

	case *lang.ForStmt:
		loopEnv := NewEnv(env)
		if s.Init != nil {
			if _, err := evalStmt(s.Init, loopEnv, amb); err != nil {
				return blockRet{}, err
			}
		}
		for {
			if s.Cond != nil {
				cond, err := evalExpr(s.Cond, loopEnv, amb)
				if err != nil {
					return blockRet{}, err
				}
				if cond.Tag != TagBool {
					return blockRet{}, &RuntimeError{Msg: "for condition must be Bool"}
				}
				if !cond.Bool {
					break
				}
			}
			ret, err := evalBlock(s.Body, NewEnv(loopEnv), amb)
			if err != nil {
				return blockRet{}, err
			}
			if ret.kind == retReturn {
				return ret, nil
			}
			if s.Post != nil {
				if _, err := evalStmt(s.Post, loopEnv, amb); err != nil {
					return blockRet{}, err
				}
			}
		}
		return blockRet{kind: retNone}, nil

	case *lang.ReturnStmt:
		if s.Value == nil {
			return blockRet{kind: retReturn, value: VoidValue()}, nil
		}
		v, err := evalExpr(s.Value, env, amb)
		if err != nil {
			return blockRet{}, err
		}
		return blockRet{kind: retReturn, value: v}, nil

	case *lang.ContinueStmt:
		return blockRet{kind: retContinue}, nil

	case *lang.KeyMappingStmt:
		if err := evalKeyMappingStmt(s, env, amb); err != nil {
			return blockRet{}, err
		}
		return blockRet{kind: retNone}, nil
	}
	return blockRet{}, &RuntimeError{Msg: fmt.Sprintf("unhandled statement %T", stmt)}
}

// evalKeyMappingStmt sends one AddMapping per declared binding. A
// capital-letter LHS (EmitShift) prepends a synthetic LEFT_SHIFT DOWN to a
// sequence target only — never to a lambda target, and never appending a
// matching shift-up, an asymmetry preserved from the source's
// to_key_actions().
func evalKeyMappingStmt(s *lang.KeyMappingStmt, env *Env, amb Ambient) error {
	for _, decl := range s.Mappings {
		seq := decl.ToSeq
		if decl.EmitShift && seq != nil {
			prefixed := make([]keys.Action, 0, len(seq)+1)
			prefixed = append(prefixed, keys.Action{Key: keys.Key{Type: keys.EvKey, Code: keys.CodeLeftShift}, Value: keys.Down})
			prefixed = append(prefixed, seq...)
			seq = prefixed
		}
		var lambda *LambdaValue
		if decl.ToLambda != nil {
			lambda = &LambdaValue{Params: decl.ToLambda.Params, Body: decl.ToLambda.Body, Env: env}
		}
		amb.Mediator <- AddMapping{
			Token:       amb.Token,
			WindowClass: decl.WindowClass,
			From:        decl.From,
			IsClick:     decl.IsClick,
			EmitShift:   decl.EmitShift,
			ToSeq:       seq,
			ToLambda:    lambda,
		}
	}
	return nil
}

func evalExpr(e lang.Expr, env *Env, amb Ambient) (Value, error) {
	switch x := e.(type) {
	case *lang.NumberLit:
		return NumberValue(x.Value), nil
	case *lang.StringLit:
		return StringValue(x.Value), nil
	case *lang.BoolLit:
		return BoolValue(x.Value), nil

	case *lang.KeyActionLit:
		amb.emitAction(x.Action)
		return VoidValue(), nil

	case *lang.EatKeyActionLit:
		amb.Mediator <- EatEv{Action: x.Action}
		return VoidValue(), nil

	case *lang.Name:
		return env.Lookup(x.Name), nil

	case *lang.Assign:
		v, err := evalExpr(x.Value, env, amb)
		if err != nil {
			return Value{}, err
		}
		if err := env.Assign(x.Name, v); err != nil {
			return Value{}, err
		}
		return v, nil

	case *lang.LambdaLit:
		return LambdaVal(&LambdaValue{Params: x.Params, Body: x.Body, Env: env}), nil

	case *lang.Call:
		return evalCall(x, env, amb)

	case *lang.Binary:
		return evalBinary(x, env, amb)

	case *lang.Neg:
		v, err := evalExpr(x.Expr, env, amb)
		if err != nil {
			return Value{}, err
		}
		if v.Tag != TagBool {
			return Value{}, &RuntimeError{Msg: "'!' requires a Bool operand"}
		}
		return BoolValue(!v.Bool), nil
	}
	return Value{}, &RuntimeError{Msg: fmt.Sprintf("unhandled expression %T", e)}
}

func evalCall(c *lang.Call, env *Env, amb Ambient) (Value, error) {
	args := make([]Value, len(c.Args))
	for i, a := range c.Args {
		v, err := evalExpr(a, env, amb)
		if err != nil {
			return Value{}, err
		}
		args[i] = v
	}

	if fn, ok := builtins[c.Name]; ok {
		return fn(args, env, amb)
	}

	target := env.Lookup(c.Name)
	if target.Tag != TagLambda {
		return Value{}, &RuntimeError{Msg: "call to undefined function " + c.Name}
	}
	return callLambda(target.Lambda, args, amb)
}

// compareLT implements "<"/">" per spec §4.5: comparison is defined only
// within a tag, and any cross-tag (or lambda/void) pair yields false
// rather than an error, matching original_source/src/runtime/
// evaluation.rs's PartialOrd-style match arms over (Bool,Bool)/
// (String,String)/(Number,Number) falling through to false otherwise.
func compareLT(left, right Value) bool {
	if left.Tag != right.Tag {
		return false
	}
	switch left.Tag {
	case TagNumber:
		return left.Num < right.Num
	case TagString:
		return left.Str < right.Str
	case TagBool:
		return !left.Bool && right.Bool
	}
	return false
}

func evalBinary(b *lang.Binary, env *Env, amb Ambient) (Value, error) {
	left, err := evalExpr(b.Left, env, amb)
	if err != nil {
		return Value{}, err
	}
	right, err := evalExpr(b.Right, env, amb)
	if err != nil {
		return Value{}, err
	}

	switch b.Op {
	case lang.OpEq:
		return BoolValue(left.Equal(right)), nil
	case lang.OpNeq:
		return BoolValue(!left.Equal(right)), nil
	case lang.OpLT:
		return BoolValue(compareLT(left, right)), nil
	case lang.OpGT:
		return BoolValue(compareLT(right, left)), nil
	case lang.OpAdd:
		if left.Tag == TagString && right.Tag == TagString {
			return StringValue(left.Str + right.Str), nil
		}
		if left.Tag != TagNumber || right.Tag != TagNumber {
			return Value{}, &RuntimeError{Msg: "'+' requires two Numbers or two Strings"}
		}
		return NumberValue(left.Num + right.Num), nil
	case lang.OpSub:
		if left.Tag != TagNumber || right.Tag != TagNumber {
			return Value{}, &RuntimeError{Msg: "'-' requires Number operands"}
		}
		return NumberValue(left.Num - right.Num), nil
	case lang.OpMul:
		if left.Tag != TagNumber || right.Tag != TagNumber {
			return Value{}, &RuntimeError{Msg: "'*' requires Number operands"}
		}
		return NumberValue(left.Num * right.Num), nil
	case lang.OpDiv:
		if left.Tag != TagNumber || right.Tag != TagNumber {
			return Value{}, &RuntimeError{Msg: "'/' requires Number operands"}
		}
		if right.Num == 0 {
			return Value{}, &RuntimeError{Msg: "division by zero"}
		}
		return NumberValue(left.Num / right.Num), nil
	case lang.OpAnd:
		// Quirk preserved from the source: "and" is boolean equality, not
		// conjunction. See spec §9.
		if left.Tag != TagBool || right.Tag != TagBool {
			return Value{}, &RuntimeError{Msg: "'and' requires Bool operands"}
		}
		return BoolValue(left.Bool == right.Bool), nil
	case lang.OpOr:
		if left.Tag != TagBool || right.Tag != TagBool {
			return Value{}, &RuntimeError{Msg: "'or' requires Bool operands"}
		}
		return BoolValue(left.Bool || right.Bool), nil
	}
	return Value{}, &RuntimeError{Msg: "unhandled binary operator"}
}
