package compiler

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/devinarena/positron/token"
	"github.com/devinarena/positron/value"
)

const maxLocals = 256

// local is one entry in a funcState's local-variable table: a name slice
// over the source plus the scope depth it was declared at. Slot index is
// implicit: a local's slot is its position in the table.
type local struct {
	name  string
	depth int
}

// declareLocal adds name to the current scope. It reports a SyntaxError
// (without appending the local) if name is already declared in the same
// scope, or if the table has reached its 256-entry limit.
func (c *Compiler) declareLocal(name string, tok token.Token) {
	fs := c.current
	if len(fs.locals) >= maxLocals {
		c.errorAt(tok, "too many local variables in function")
		return
	}
	duplicate := slices.ContainsFunc(fs.locals, func(l local) bool {
		return l.depth == fs.scopeDepth && l.name == name
	})
	if duplicate {
		c.errorAt(tok, fmt.Sprintf("variable %q already declared in this scope", name))
		return
	}
	fs.locals = append(fs.locals, local{name: name, depth: fs.scopeDepth})
}

// resolveLocal scans the current function's local table from the most
// recently declared entry backward, returning its slot index, or -1 if name
// names no local (the caller then falls back to treating it as a global).
func (c *Compiler) resolveLocal(name string) int {
	fs := c.current
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return i
		}
	}
	return -1
}

// beginScope opens a new lexical scope.
func (c *Compiler) beginScope() {
	c.current.scopeDepth++
}

// endScope closes the current lexical scope, emitting one POP per local
// declared at that depth and truncating them from the table.
func (c *Compiler) endScope() {
	fs := c.current
	fs.scopeDepth--
	for len(fs.locals) > 0 && fs.locals[len(fs.locals)-1].depth > fs.scopeDepth {
		fs.block.EmitOp(value.OpPop)
		fs.locals = fs.locals[:len(fs.locals)-1]
	}
}
