package compiler

import (
	"github.com/devinarena/positron/token"
	"github.com/devinarena/positron/value"
)

// Precedence orders operators from loosest-binding to tightest, per spec.md
// section 4.3's ladder: ASSIGNMENT, OR, AND, EQUALITY, COMPARISON, TERM,
// FACTOR, UNARY, CALL, PRIMARY.
type Precedence int

const (
	PrecNone Precedence = iota
	PrecAssignment
	PrecOr
	PrecAnd
	PrecEquality
	PrecComparison
	PrecTerm
	PrecFactor
	PrecUnary
	PrecCall
	PrecPrimary
)

type prefixFn func(c *Compiler, canAssign bool)
type infixFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     prefixFn
	infix      infixFn
	precedence Precedence
}

var rules map[token.Kind]parseRule

func init() {
	rules = map[token.Kind]parseRule{
		token.LPAREN:        {prefix: grouping, infix: call, precedence: PrecCall},
		token.LBRACKET:      {prefix: listLiteral},
		token.MINUS:         {prefix: unary, infix: binary, precedence: PrecTerm},
		token.PLUS:          {infix: binary, precedence: PrecTerm},
		token.SLASH:         {infix: binary, precedence: PrecFactor},
		token.STAR:          {infix: binary, precedence: PrecFactor},
		token.BANG:          {prefix: unary},
		token.BANG_EQUAL:    {infix: binary, precedence: PrecEquality},
		token.EQUAL_EQUAL:   {infix: binary, precedence: PrecEquality},
		token.GREATER:       {infix: binary, precedence: PrecComparison},
		token.GREATER_EQUAL: {infix: binary, precedence: PrecComparison},
		token.LESS:          {infix: binary, precedence: PrecComparison},
		token.LESS_EQUAL:    {infix: binary, precedence: PrecComparison},
		token.AND_AND:       {infix: and_, precedence: PrecAnd},
		token.OR_OR:         {infix: or_, precedence: PrecOr},
		token.IDENTIFIER:    {prefix: variable},
		token.LITERAL_INTEGER:  {prefix: number},
		token.LITERAL_FLOATING: {prefix: number},
		token.LITERAL_STRING:   {prefix: stringLiteral},
		token.TRUE:  {prefix: literal},
		token.FALSE: {prefix: literal},
		token.NULL:  {prefix: literal},
		token.DOT:   {infix: fieldAccess, precedence: PrecCall},
		token.COLON: {infix: index, precedence: PrecCall},
	}
}

func (c *Compiler) ruleFor(k token.Kind) parseRule { return rules[k] }

// expression compiles one expression at the loosest (ASSIGNMENT) precedence.
func (c *Compiler) expression() { c.parsePrecedence(PrecAssignment) }

// parsePrecedence implements spec.md section 4.3's expression(minPrec):
// advance one token, invoke its prefix handler, then keep advancing and
// invoking infix handlers while the current token's infix precedence is at
// least minPrec. Assignment is only legal when minPrec permits it; a
// trailing '=' nothing consumed it is a compile error.
func (c *Compiler) parsePrecedence(min Precedence) {
	c.advance()
	prefix := c.ruleFor(c.prev.Kind).prefix
	if prefix == nil {
		c.errorAtf(c.prev, "expect expression, got %s", c.prev.Kind)
		return
	}
	canAssign := min <= PrecAssignment
	prefix(c, canAssign)

	for min <= c.ruleFor(c.curr.Kind).precedence {
		c.advance()
		infix := c.ruleFor(c.prev.Kind).infix
		infix(c, canAssign)
	}

	if canAssign && c.match(token.ASSIGN) {
		c.errorAt(c.prev, "invalid assignment target")
	}
}

func number(c *Compiler, _ bool) {
	tok := c.prev
	var n float64
	switch lit := c.prev.Literal.(type) {
	case int64:
		n = float64(lit)
	case float64:
		n = lit
	}
	idx := c.addConstant(value.Number(n), tok)
	c.block().EmitOp1(value.OpConstant, idx)
}

func stringLiteral(c *Compiler, _ bool) {
	tok := c.prev
	s, _ := c.prev.Literal.(string)
	ref := c.heap.NewString(s)
	idx := c.addConstant(value.Object(ref), tok)
	c.block().EmitOp1(value.OpConstant, idx)
}

func literal(c *Compiler, _ bool) {
	tok := c.prev
	var v value.Value
	switch c.prev.Kind {
	case token.TRUE:
		v = value.Bool_(true)
	case token.FALSE:
		v = value.Bool_(false)
	case token.NULL:
		v = value.Null()
	}
	idx := c.addConstant(v, tok)
	c.block().EmitOp1(value.OpConstant, idx)
}

func grouping(c *Compiler, _ bool) {
	c.expression()
	c.consume(token.RPAREN, "expect ')' after expression")
}

func unary(c *Compiler, _ bool) {
	op := c.prev.Kind
	c.parsePrecedence(PrecUnary)
	switch op {
	case token.MINUS:
		c.block().EmitOp(value.OpNegate)
	case token.BANG:
		c.block().EmitOp(value.OpNot)
	}
}

func binary(c *Compiler, _ bool) {
	op := c.prev.Kind
	rule := c.ruleFor(op)
	c.parsePrecedence(rule.precedence + 1)
	switch op {
	case token.PLUS:
		c.block().EmitOp(value.OpAdd)
	case token.MINUS:
		c.block().EmitOp(value.OpSub)
	case token.STAR:
		c.block().EmitOp(value.OpMul)
	case token.SLASH:
		c.block().EmitOp(value.OpDiv)
	case token.EQUAL_EQUAL:
		c.block().EmitOp(value.OpEq)
	case token.BANG_EQUAL:
		c.block().EmitOp(value.OpNeq)
	case token.LESS:
		c.block().EmitOp(value.OpLt)
	case token.LESS_EQUAL:
		c.block().EmitOp(value.OpLte)
	case token.GREATER:
		c.block().EmitOp(value.OpGt)
	case token.GREATER_EQUAL:
		c.block().EmitOp(value.OpGte)
	}
}

// and_ and or_ both short-circuit by leaving the left operand's value on the
// stack (via DUPE) for the jump instruction to consume, so both arms of the
// branch leave exactly one value behind — required because CJUMPF/CJUMPT
// always pop, per spec.md section 4.4's dispatch rules, unlike clox-style
// VMs whose conditional jumps peek without popping. spec.md section 4.3's
// text mentions DUPE only for `||`; it is applied symmetrically here for
// `&&` too so the short-circuit path doesn't leave the stack one value
// short (see DESIGN.md).
func and_(c *Compiler, _ bool) {
	c.block().EmitOp(value.OpDupe)
	jump := c.block().EmitJump(value.OpCJumpF)
	c.block().EmitOp(value.OpPop)
	c.parsePrecedence(PrecAnd + 1)
	c.patchJump(jump)
}

func or_(c *Compiler, _ bool) {
	c.block().EmitOp(value.OpDupe)
	jump := c.block().EmitJump(value.OpCJumpT)
	c.block().EmitOp(value.OpPop)
	c.parsePrecedence(PrecOr + 1)
	c.patchJump(jump)
}

func variable(c *Compiler, canAssign bool) {
	name := c.prev.Lexeme
	tok := c.prev

	// An assignment DUPEs its value before the SET opcode consumes one copy,
	// so the assignment expression leaves the assigned value on the stack
	// like any other expression (an expression statement then POPs it).
	if slot := c.resolveLocal(name); slot != -1 {
		if canAssign && c.match(token.ASSIGN) {
			c.expression()
			c.block().EmitOp(value.OpDupe)
			c.block().EmitOp1(value.OpLocalSet, byte(slot))
		} else {
			c.block().EmitOp1(value.OpLocalGet, byte(slot))
		}
		return
	}

	if !c.knownGlobals.Has(name) {
		c.errorAtf(tok, "undefined global %q", name)
		return
	}

	if canAssign && c.match(token.ASSIGN) {
		c.expression()
		c.block().EmitOp(value.OpDupe)
		nameConst := c.constantString(name, tok)
		c.block().EmitOp1(value.OpConstant, nameConst)
		c.block().EmitOp(value.OpGlobalSet)
	} else {
		nameConst := c.constantString(name, tok)
		c.block().EmitOp1(value.OpConstant, nameConst)
		c.block().EmitOp(value.OpGlobalGet)
	}
}

func call(c *Compiler, _ bool) {
	tok := c.prev
	argc := 0
	if !c.check(token.RPAREN) {
		for {
			c.expression()
			argc++
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RPAREN, "expect ')' after arguments")
	if argc > 255 {
		c.errorAt(tok, "call has more than 255 arguments")
		argc = 255
	}
	c.block().EmitOp1(value.OpCall, byte(argc))
}

// fieldAccess compiles `EXPR . NAME` and, when followed by '=', `EXPR . NAME
// = EXPR`. The assignment's value is compiled before the field-name
// CONSTANT is emitted so the runtime stack order matches FIELD_SET's pop
// order (field-name, value, receiver) exactly; see DESIGN.md. The receiver is
// DUPEd first and the field read back after FIELD_SET, so the assignment
// expression leaves the assigned value on the stack.
func fieldAccess(c *Compiler, canAssign bool) {
	c.consume(token.IDENTIFIER, "expect field name after '.'")
	name := c.prev.Lexeme
	tok := c.prev

	if canAssign && c.match(token.ASSIGN) {
		c.block().EmitOp(value.OpDupe)
		c.expression()
		nameConst := c.constantString(name, tok)
		c.block().EmitOp1(value.OpConstant, nameConst)
		c.block().EmitOp(value.OpFieldSet)
		c.block().EmitOp1(value.OpConstant, nameConst)
		c.block().EmitOp(value.OpFieldGet)
		return
	}

	nameConst := c.constantString(name, tok)
	c.block().EmitOp1(value.OpConstant, nameConst)
	c.block().EmitOp(value.OpFieldGet)
}

// index compiles `EXPR : EXPR`.
func index(c *Compiler, _ bool) {
	c.parsePrecedence(PrecCall + 1)
	c.block().EmitOp(value.OpIndex)
}

func listLiteral(c *Compiler, _ bool) {
	tok := c.prev
	n := 0
	if !c.check(token.RBRACKET) {
		for {
			c.expression()
			n++
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RBRACKET, "expect ']' after list elements")
	idx := c.addConstant(value.Number(float64(n)), tok)
	c.block().EmitOp1(value.OpConstant, idx)
	c.block().EmitOp(value.OpList)
}
