package lang

import "fmt"

// ParseError carries a position and a stack of context frames, the Go
// analogue of the nom `context("...")` wrapping used throughout
// original_source/src/parsing/key_action.rs.
type ParseError struct {
	Pos     Position
	Context []string
	Msg     string
}

func (e *ParseError) Error() string {
	s := fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Col, e.Msg)
	for i := len(e.Context) - 1; i >= 0; i-- {
		s += fmt.Sprintf("\n  in %s", e.Context[i])
	}
	return s
}

// wrapContext returns a copy of err with frame pushed onto its context, if
// err is a *ParseError; otherwise err is returned unchanged.
func wrapContext(err error, frame string) error {
	pe, ok := err.(*ParseError)
	if !ok {
		return err
	}
	cp := *pe
	cp.Context = append(append([]string{}, pe.Context...), frame)
	return &cp
}
