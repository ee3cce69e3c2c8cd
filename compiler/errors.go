package compiler

import "fmt"

// SyntaxError is a single recovered compile-time error. Compilation does not
// stop at the first one: the compiler resynchronizes (see synchronize) and
// keeps parsing so a single run can report every syntax mistake in the
// source, not just the first. Lexeme is the offending token's source text.
type SyntaxError struct {
	Line    int
	Lexeme  string
	Message string
}

func (e SyntaxError) Error() string {
	return fmt.Sprintf("[line %d] Error at '%s': %s", e.Line, e.Lexeme, e.Message)
}
