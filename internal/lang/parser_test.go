package lang

import (
	"testing"

	"github.com/go-map2/map2/internal/keys"
)

func mustParse(t *testing.T, src string) *Block {
	t.Helper()
	b, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return b
}

func singleMapping(t *testing.T, b *Block) KeyMappingDecl {
	t.Helper()
	if len(b.Stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(b.Stmts))
	}
	km, ok := b.Stmts[0].(*KeyMappingStmt)
	if !ok {
		t.Fatalf("expected *KeyMappingStmt, got %T", b.Stmts[0])
	}
	if len(km.Mappings) != 1 {
		t.Fatalf("expected 1 mapping decl, got %d", len(km.Mappings))
	}
	return km.Mappings[0]
}

// Scenario 1: a bare, stateless LHS is a "click" binding — both the
// down and up edges of the physical key must be claimed.
func TestParseBareClickMapping(t *testing.T) {
	decl := singleMapping(t, mustParse(t, `c :: "hello"`))
	if !decl.IsClick {
		t.Fatalf("expected IsClick=true for bare LHS")
	}
	wantCode, _ := keys.CodeForName("c")
	if decl.From.Action.Key.Code != wantCode {
		t.Fatalf("key code = %d, want %d", decl.From.Action.Key.Code, wantCode)
	}
	if len(decl.ToSeq) == 0 {
		t.Fatalf("expected a non-empty sequence target")
	}
}

// A BTN_ literal LHS resolves through keys.ButtonCodeForName, a separate
// table from the KEY_ names: BTN_LEFT must not collide with KEY_LEFT.
func TestParseBtnLiteralMapping(t *testing.T) {
	decl := singleMapping(t, mustParse(t, `{BTN_LEFT down} :: "x"`))
	wantCode, ok := keys.ButtonCodeForName("left")
	if !ok {
		t.Fatalf("expected a registered button code for 'left'")
	}
	if decl.From.Action.Key.Code != wantCode {
		t.Fatalf("key code = %d, want BTN_LEFT code %d", decl.From.Action.Key.Code, wantCode)
	}
	if arrowCode, _ := keys.CodeForName("left"); arrowCode == wantCode {
		t.Fatalf("BTN_LEFT must not collide with the KEY_LEFT arrow key code")
	}
}

// Explicit `{KEY state}` LHS binds a single edge only.
func TestParseExplicitStateMapping(t *testing.T) {
	decl := singleMapping(t, mustParse(t, `{KEY_C down} :: "x"`))
	if decl.IsClick {
		t.Fatalf("expected IsClick=false for explicit-state LHS")
	}
	if decl.From.Action.Value != keys.Down {
		t.Fatalf("expected Down state, got %v", decl.From.Action.Value)
	}
}

// Scenario 2: a capitalized bare LHS sets EmitShift without requiring a
// shift modifier on the physical key match.
func TestParseCapitalLetterEmitsShift(t *testing.T) {
	decl := singleMapping(t, mustParse(t, `C :: "b"`))
	if !decl.EmitShift {
		t.Fatalf("expected EmitShift=true for capitalized LHS")
	}
	if decl.From.Mods.Shift {
		t.Fatalf("capital LHS must not gate matching on a shift modifier")
	}
}

func TestParseWindowClassGuard(t *testing.T) {
	decl := singleMapping(t, mustParse(t, `@"firefox" ^c :: "y"`))
	if decl.WindowClass == nil || *decl.WindowClass != "firefox" {
		t.Fatalf("expected window class guard %q, got %v", "firefox", decl.WindowClass)
	}
	if !decl.From.Mods.Ctrl {
		t.Fatalf("expected ctrl modifier flag parsed")
	}
}

func TestParseLambdaTargetMapping(t *testing.T) {
	decl := singleMapping(t, mustParse(t, `c :: |x| { return x + 1 }`))
	if decl.ToLambda == nil {
		t.Fatalf("expected a lambda target")
	}
	if len(decl.ToLambda.Params) != 1 || decl.ToLambda.Params[0] != "x" {
		t.Fatalf("unexpected lambda params: %v", decl.ToLambda.Params)
	}
}

func TestParseBlockTargetMapping(t *testing.T) {
	decl := singleMapping(t, mustParse(t, `c :: { send(1) }`))
	if decl.ToLambda == nil || len(decl.ToLambda.Params) != 0 {
		t.Fatalf("expected a zero-param block lambda target")
	}
}

func TestParseEatStatement(t *testing.T) {
	b := mustParse(t, `eat {KEY_A down}`)
	if len(b.Stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(b.Stmts))
	}
	es, ok := b.Stmts[0].(*ExprStmt)
	if !ok {
		t.Fatalf("expected *ExprStmt, got %T", b.Stmts[0])
	}
	eat, ok := es.Expr.(*EatKeyActionLit)
	if !ok {
		t.Fatalf("expected *EatKeyActionLit, got %T", es.Expr)
	}
	if eat.Action.Value != keys.Down {
		t.Fatalf("expected Down state in eat literal")
	}
}

func TestParseLetIfForAndSleepCall(t *testing.T) {
	src := `
let x = 0;
for (let i = 0; i < 3; i = i + 1) {
	if (i == 1) {
		x = x + i
	} elif (i == 2) {
		x = x + 10
	} else {
		continue
	}
}
sleep(50)
print(x)
`
	b := mustParse(t, src)
	if len(b.Stmts) != 4 {
		t.Fatalf("expected 4 top-level statements, got %d", len(b.Stmts))
	}
	let, ok := b.Stmts[0].(*LetStmt)
	if !ok || let.Name != "x" {
		t.Fatalf("expected let x = 0, got %#v", b.Stmts[0])
	}
	forStmt, ok := b.Stmts[1].(*ForStmt)
	if !ok {
		t.Fatalf("expected *ForStmt, got %T", b.Stmts[1])
	}
	if len(forStmt.Body.Stmts) != 1 {
		t.Fatalf("expected 1 statement in for body")
	}
	ifStmt, ok := forStmt.Body.Stmts[0].(*IfStmt)
	if !ok {
		t.Fatalf("expected *IfStmt in for body, got %T", forStmt.Body.Stmts[0])
	}
	if len(ifStmt.Branches) != 2 || ifStmt.Else == nil {
		t.Fatalf("expected if/elif/else with 2 branches + else")
	}
	sleepCall, ok := b.Stmts[2].(*ExprStmt)
	if !ok {
		t.Fatalf("expected sleep() expr statement, got %T", b.Stmts[2])
	}
	if call, ok := sleepCall.Expr.(*Call); !ok || call.Name != "sleep" {
		t.Fatalf("expected call to sleep, got %#v", sleepCall.Expr)
	}
}

func TestParseBooleanAndComparisonPrecedence(t *testing.T) {
	b := mustParse(t, `let ok = 1 < 2 and 3 == 3 or false`)
	let, ok := b.Stmts[0].(*LetStmt)
	if !ok {
		t.Fatalf("expected *LetStmt")
	}
	top, ok := let.Value.(*Binary)
	if !ok || top.Op != OpOr {
		t.Fatalf("expected top-level 'or', got %#v", let.Value)
	}
	left, ok := top.Left.(*Binary)
	if !ok || left.Op != OpAnd {
		t.Fatalf("expected 'and' nested under 'or', got %#v", top.Left)
	}
}

func TestParseAssignmentExpression(t *testing.T) {
	b := mustParse(t, `x = x + 1`)
	es, ok := b.Stmts[0].(*ExprStmt)
	if !ok {
		t.Fatalf("expected *ExprStmt, got %T", b.Stmts[0])
	}
	assign, ok := es.Expr.(*Assign)
	if !ok || assign.Name != "x" {
		t.Fatalf("expected assignment to x, got %#v", es.Expr)
	}
}

func TestParseNegationAndCall(t *testing.T) {
	b := mustParse(t, `let a = !active_window_class()`)
	let := b.Stmts[0].(*LetStmt)
	neg, ok := let.Value.(*Neg)
	if !ok {
		t.Fatalf("expected *Neg, got %#v", let.Value)
	}
	if _, ok := neg.Expr.(*Call); !ok {
		t.Fatalf("expected call inside negation, got %#v", neg.Expr)
	}
}

func TestParseKeyActionLiteralExpression(t *testing.T) {
	b := mustParse(t, `{KEY_ENTER down}`)
	es := b.Stmts[0].(*ExprStmt)
	lit, ok := es.Expr.(*KeyActionLit)
	if !ok {
		t.Fatalf("expected *KeyActionLit, got %T", es.Expr)
	}
	if lit.Action.Value != keys.Down {
		t.Fatalf("expected Down state")
	}
}
