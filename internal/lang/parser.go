package lang

import (
	"fmt"
	"strings"

	"github.com/go-map2/map2/internal/keys"
)

// parser is a hand-written recursive-descent parser over the full token
// stream produced by the lexer. Key-mapping declarations ("<lhs> :: <rhs>")
// share a prefix with ordinary expression statements (both can start with a
// bare identifier or a key literal), so the parser speculatively tries the
// key-mapping production first and backtracks to a normal statement on
// failure, the same strategy original_source/src/parsing/mod.rs uses via
// nom's `alt`.
type parser struct {
	toks []token
	pos  int
}

// Parse tokenizes and parses a complete script into its top-level block.
func Parse(src string) (*Block, error) {
	toks, err := newLexer(src).tokenize()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.parseProgram()
}

func (p *parser) cur() token { return p.toks[p.pos] }

func (p *parser) at(k tokenKind) bool { return p.cur().kind == k }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expect(k tokenKind, what string) (token, error) {
	if !p.at(k) {
		return token{}, &ParseError{Pos: p.cur().pos, Msg: fmt.Sprintf("expected %s, found %q", what, p.cur().text)}
	}
	return p.advance(), nil
}

func (p *parser) skipSemis() {
	for p.at(tokSemi) {
		p.advance()
	}
}

func (p *parser) parseProgram() (*Block, error) {
	b := &Block{}
	p.skipSemis()
	for !p.at(tokEOF) {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		b.Stmts = append(b.Stmts, stmt)
		p.skipSemis()
	}
	return b, nil
}

func (p *parser) parseBlock() (*Block, error) {
	if _, err := p.expect(tokLBrace, "'{'"); err != nil {
		return nil, err
	}
	b := &Block{}
	p.skipSemis()
	for !p.at(tokRBrace) && !p.at(tokEOF) {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, wrapContext(err, "block")
		}
		b.Stmts = append(b.Stmts, stmt)
		p.skipSemis()
	}
	if _, err := p.expect(tokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return b, nil
}

func (p *parser) parseStmt() (Stmt, error) {
	if km, ok, err := p.tryParseKeyMapping(); err != nil {
		return nil, err
	} else if ok {
		return km, nil
	}

	switch p.cur().kind {
	case tokKwLet:
		return p.parseLetStmt()
	case tokKwIf:
		return p.parseIfStmt()
	case tokKwFor:
		return p.parseForStmt()
	case tokKwReturn:
		p.advance()
		if p.at(tokSemi) || p.at(tokRBrace) || p.at(tokEOF) {
			return &ReturnStmt{}, nil
		}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ReturnStmt{Value: v}, nil
	case tokKwContinue:
		p.advance()
		return &ContinueStmt{}, nil
	case tokLBrace:
		blk, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return &BlockStmt{Block: blk}, nil
	default:
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ExprStmt{Expr: e}, nil
	}
}

// parseLetStmt parses "let IDENT = Expr", without consuming a trailing
// semicolon (the caller, parseStmt or the for-loop header, handles that).
func (p *parser) parseLetStmt() (Stmt, error) {
	p.advance() // 'let'
	name, err := p.expect(tokIdent, "identifier")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokEq, "'='"); err != nil {
		return nil, err
	}
	v, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &LetStmt{Name: name.text, Value: v}, nil
}

func (p *parser) parseIfStmt() (Stmt, error) {
	stmt := &IfStmt{}
	for {
		p.advance() // 'if' or 'elif'
		// The guard is an ordinary expression, so "if (x) {" and "if x {"
		// both parse: parentheses are just a parenthesized expression.
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		stmt.Branches = append(stmt.Branches, IfBranch{Cond: cond, Body: body})
		if !p.at(tokKwElif) {
			break
		}
	}
	if p.at(tokKwElse) {
		p.advance()
		elseBody, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		stmt.Else = elseBody
	}
	return stmt, nil
}

func (p *parser) parseForStmt() (Stmt, error) {
	p.advance() // 'for'
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}

	var init Stmt
	if !p.at(tokSemi) {
		var err error
		if p.at(tokKwLet) {
			init, err = p.parseLetStmt()
		} else {
			var e Expr
			e, err = p.parseExpr()
			if err == nil {
				init = &ExprStmt{Expr: e}
			}
		}
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(tokSemi, "';'"); err != nil {
		return nil, err
	}

	var cond Expr
	if !p.at(tokSemi) {
		var err error
		cond, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(tokSemi, "';'"); err != nil {
		return nil, err
	}

	var post Stmt
	if !p.at(tokRParen) {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		post = &ExprStmt{Expr: e}
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ForStmt{Init: init, Cond: cond, Post: post, Body: body}, nil
}

// tryParseKeyMapping speculatively parses a "<lhs> :: <rhs>" declaration.
// On any mismatch before the defining "::" token is seen, it rewinds the
// parser to where it started and reports ok=false so the caller falls back
// to an ordinary expression statement.
func (p *parser) tryParseKeyMapping() (Stmt, bool, error) {
	save := p.pos

	var windowClass *string
	if p.at(tokAt) {
		p.advance()
		str, err := p.expect(tokString, "window class string")
		if err != nil {
			p.pos = save
			return nil, false, nil
		}
		windowClass = &str.text
	}

	var pat strings.Builder
loop:
	for {
		switch p.cur().kind {
		case tokPlus:
			pat.WriteByte('+')
		case tokCaret:
			pat.WriteByte('^')
		case tokBang:
			pat.WriteByte('!')
		case tokHash:
			pat.WriteByte('#')
		default:
			break loop
		}
		p.advance()
	}

	switch {
	case p.at(tokKeyLit):
		pat.WriteString("{" + p.cur().text + "}")
		p.advance()
	case p.at(tokIdent) && len([]rune(p.cur().text)) == 1:
		pat.WriteString(p.cur().text)
		p.advance()
	case p.at(tokNumber) && len(p.cur().text) == 1:
		pat.WriteString(p.cur().text)
		p.advance()
	default:
		p.pos = save
		return nil, false, nil
	}

	if !p.at(tokDColon) {
		p.pos = save
		return nil, false, nil
	}
	p.advance() // '::'

	from, isClick, emitShift, err := ParseKeyPattern(pat.String())
	if err != nil {
		return nil, false, wrapContext(err, "key mapping")
	}

	decl := KeyMappingDecl{WindowClass: windowClass, From: from, IsClick: isClick, EmitShift: emitShift}

	switch {
	case p.at(tokString):
		seqStr := p.advance().text
		seq, err := ParseKeySequence(seqStr)
		if err != nil {
			return nil, false, wrapContext(err, "key mapping rhs")
		}
		decl.ToSeq = seq
	case p.at(tokPipe):
		lam, err := p.parseLambdaLit()
		if err != nil {
			return nil, false, err
		}
		decl.ToLambda = lam
	case p.at(tokLBrace):
		body, err := p.parseBlock()
		if err != nil {
			return nil, false, err
		}
		decl.ToLambda = &LambdaLit{Body: body}
	default:
		return nil, false, &ParseError{Pos: p.cur().pos, Msg: "expected key-sequence string, block, or lambda after '::'"}
	}

	return &KeyMappingStmt{Mappings: []KeyMappingDecl{decl}}, true, nil
}

// --- expressions, lowest to highest precedence -----------------------------

func (p *parser) parseExpr() (Expr, error) { return p.parseAssign() }

func (p *parser) parseAssign() (Expr, error) {
	left, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if name, ok := left.(*Name); ok && p.at(tokEq) {
		p.advance()
		right, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		return &Assign{Name: name.Name, Value: right}, nil
	}
	return left, nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.at(tokKwOr) {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.at(tokKwAnd) {
		p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseEquality() (Expr, error) {
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for p.at(tokEqEq) || p.at(tokNeq) {
		op := OpEq
		if p.at(tokNeq) {
			op = OpNeq
		}
		p.advance()
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseRelational() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.at(tokLt) || p.at(tokGt) {
		op := OpLT
		if p.at(tokGt) {
			op = OpGT
		}
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.at(tokPlus) || p.at(tokMinus) {
		op := OpAdd
		if p.at(tokMinus) {
			op = OpSub
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.at(tokStar) || p.at(tokSlash) {
		op := OpMul
		if p.at(tokSlash) {
			op = OpDiv
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.at(tokBang) {
		p.advance()
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Neg{Expr: e}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.cur()
	switch tok.kind {
	case tokNumber:
		p.advance()
		var v float64
		if _, err := fmt.Sscanf(tok.text, "%g", &v); err != nil {
			return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("malformed number %q", tok.text)}
		}
		return &NumberLit{Value: v}, nil
	case tokString:
		p.advance()
		return &StringLit{Value: tok.text}, nil
	case tokKwTrue:
		p.advance()
		return &BoolLit{Value: true}, nil
	case tokKwFalse:
		p.advance()
		return &BoolLit{Value: false}, nil
	case tokKeyLit:
		p.advance()
		lit, err := parseKeyLitContent(tok.text)
		if err != nil {
			return nil, wrapContext(err, "key literal")
		}
		value := lit.value
		if lit.isClick {
			value = keys.Down
		}
		return &KeyActionLit{Action: keys.Action{Key: lit.key, Value: value}}, nil
	case tokKwEat:
		p.advance()
		kt, err := p.expect(tokKeyLit, "key literal after 'eat'")
		if err != nil {
			return nil, err
		}
		lit, err := parseKeyLitContent(kt.text)
		if err != nil {
			return nil, wrapContext(err, "eat")
		}
		value := lit.value
		if lit.isClick {
			value = keys.Down
		}
		return &EatKeyActionLit{Action: keys.Action{Key: lit.key, Value: value}}, nil
	case tokLParen:
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return e, nil
	case tokPipe:
		return p.parseLambdaLit()
	case tokIdent:
		p.advance()
		if p.at(tokLParen) {
			p.advance()
			var args []Expr
			for !p.at(tokRParen) {
				a, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if p.at(tokComma) {
					p.advance()
				} else {
					break
				}
			}
			if _, err := p.expect(tokRParen, "')'"); err != nil {
				return nil, err
			}
			return &Call{Name: tok.text, Args: args}, nil
		}
		return &Name{Name: tok.text}, nil
	}
	return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected token %q", tok.text)}
}

func (p *parser) parseLambdaLit() (*LambdaLit, error) {
	if _, err := p.expect(tokPipe, "'|'"); err != nil {
		return nil, err
	}
	var params []string
	for !p.at(tokPipe) {
		id, err := p.expect(tokIdent, "parameter name")
		if err != nil {
			return nil, err
		}
		params = append(params, id.text)
		if p.at(tokComma) {
			p.advance()
		} else {
			break
		}
	}
	if _, err := p.expect(tokPipe, "'|'"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &LambdaLit{Params: params, Body: body}, nil
}
