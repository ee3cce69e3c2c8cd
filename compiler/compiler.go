// Package compiler implements Positron's single-pass Pratt compiler: it
// reads tokens one at a time from a lexer.Lexer and emits bytecode directly
// into a value.Block, with no intermediate AST.
package compiler

import (
	"fmt"

	"github.com/dolthub/swiss"

	"github.com/devinarena/positron/lexer"
	"github.com/devinarena/positron/token"
	"github.com/devinarena/positron/value"
)

// funcState is the compile-time state for one function body (the top-level
// script counts as a function with arity 0). enclosing chains back to the
// function currently being compiled around this one, mirroring how a nested
// `fun` declaration's compilation is interleaved with its parent's.
type funcState struct {
	enclosing  *funcState
	block      *value.Block
	locals     []local
	scopeDepth int
	arity      int
	name       string
}

// Compiler holds all compile-time state for one compilation: the lexer
// feeding it tokens, the heap functions and struct templates are allocated
// into, the current function being compiled, and the sticky error list.
type Compiler struct {
	lex    *lexer.Lexer
	heap   *value.Heap
	prev   token.Token
	curr   token.Token
	lexErr error

	current *funcState

	// knownGlobals is the compile-time presence set of every global `let`,
	// `fun`, and `struct` name seen so far. A read of a name absent from
	// both the local table and this set is a compile error (spec.md:
	// "A global reference that is not known in the compile-time globals
	// mapping is a compile error").
	knownGlobals *swiss.Map[string, struct{}]

	errors    []SyntaxError
	panicMode bool
}

// New creates a Compiler reading from src.
func New(src string, heap *value.Heap) *Compiler {
	c := &Compiler{
		lex:          lexer.New(src),
		heap:         heap,
		knownGlobals: swiss.NewMap[string, struct{}](16),
	}
	c.advance()
	return c
}

// RegisterKnownGlobal seeds the compile-time globals set with a name the VM
// will provide at runtime without a matching `let`/`fun`/`struct`
// declaration in source — namely a host builtin (spec.md's `len`, `clock`
// stand-ins). Call it before CompileScript; otherwise a bare reference to
// the name is an "undefined global" compile error.
func (c *Compiler) RegisterKnownGlobal(name string) {
	c.knownGlobals.Put(name, struct{}{})
}

// CompileScript compiles tokens until EOF as the body of a freshly created
// top-level function named name, appending a trailing RETURN, per spec.md
// section 4.3's parse_script entry point. It returns every SyntaxError
// recovered during compilation; a non-empty list means the caller must not
// run the result ("a script that ends with had-error set yields 'no
// program'").
func (c *Compiler) CompileScript(name string) (value.Ref, []SyntaxError) {
	c.current = &funcState{block: value.NewBlock(), name: name}

	for !c.check(token.EOF) {
		c.declaration()
	}
	c.current.block.EmitOp(value.OpReturn)

	if len(c.errors) > 0 {
		return value.NilRef, c.errors
	}

	nameRef := c.heap.NewString(name)
	fnRef := c.heap.NewFunction(nameRef, 0, c.current.block)
	return fnRef, nil
}

// advance moves to the next token. A lexical error is fatal: it is recorded
// as the last error and curr becomes EOF for good, so no further tokens are
// read and every parsing loop winds down.
func (c *Compiler) advance() {
	c.prev = c.curr
	if c.lexErr != nil {
		return
	}
	tok, err := c.lex.Next()
	c.curr = tok
	if err == nil {
		return
	}
	c.panicMode = false
	if lexErr, ok := err.(lexer.LexError); ok {
		c.errorAt(tok, lexErr.Message)
	} else {
		c.errorAt(tok, err.Error())
	}
	c.lexErr = err
	c.curr = token.Token{Kind: token.EOF, Line: tok.Line}
}

func (c *Compiler) check(k token.Kind) bool { return c.curr.Kind == k }

func (c *Compiler) match(k token.Kind) bool {
	if !c.check(k) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(k token.Kind, message string) {
	if c.curr.Kind == k {
		c.advance()
		return
	}
	c.errorAt(c.curr, message)
}

// matchSemicolon consumes a trailing ';' if present. Positron treats
// statement-terminating semicolons as optional (Open Question decision
// recorded in DESIGN.md): the let, print, exit, return and expression
// statement forms call this instead of requiring SEMICOLON. fun and struct
// declarations end at their closing '}' and do not take a trailing ';'.
func (c *Compiler) matchSemicolon() { c.match(token.SEMICOLON) }

// errorAt records a SyntaxError at tok, per spec.md section 7's
// `[line N] Error at '<lexeme>': <message>` diagnostic form. Only the first
// error per synchronize() cycle is recorded (panicMode suppresses the rest
// until synchronize clears it), so a single malformed construct doesn't
// flood the error list with cascading follow-on complaints.
func (c *Compiler) errorAt(tok token.Token, message string) {
	if c.panicMode || c.lexErr != nil {
		return
	}
	c.panicMode = true
	c.errors = append(c.errors, SyntaxError{Line: tok.Line, Lexeme: tok.Lexeme, Message: message})
}

func (c *Compiler) errorAtf(tok token.Token, format string, args ...any) {
	c.errorAt(tok, fmt.Sprintf(format, args...))
}

// synchronize skips tokens until it finds one that plausibly starts a new
// statement, so the compiler can keep parsing (and keep reporting errors)
// after the first mistake instead of aborting outright.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for !c.check(token.EOF) {
		if c.prev.Kind == token.SEMICOLON {
			return
		}
		switch c.curr.Kind {
		case token.LET, token.FUN, token.STRUCT, token.IF, token.WHILE,
			token.FOR, token.RETURN, token.PRINT, token.EXIT:
			return
		}
		c.advance()
	}
}

// block is the active function body's Block, a shorthand used throughout
// emission code.
func (c *Compiler) block() *value.Block { return c.current.block }

func (c *Compiler) addConstant(v value.Value, tok token.Token) byte {
	idx, err := c.block().AddConstant(v)
	if err != nil {
		c.errorAt(tok, err.Error())
		return 0
	}
	return idx
}

func (c *Compiler) constantString(s string, tok token.Token) byte {
	return c.addConstant(value.Object(c.heap.NewString(s)), tok)
}

// --- declarations ---

func (c *Compiler) declaration() {
	switch {
	case c.match(token.LET):
		c.letDeclaration()
	case c.match(token.FUN):
		c.funDeclaration()
	case c.match(token.STRUCT):
		c.structDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) letDeclaration() {
	c.consume(token.IDENTIFIER, "expect variable name after 'let'")
	nameTok := c.prev
	name := nameTok.Lexeme

	if c.current.scopeDepth > 0 {
		c.declareLocal(name, nameTok)
		c.consume(token.ASSIGN, "expect '=' in local variable declaration")
		c.expression()
		c.matchSemicolon()
		return
	}

	c.knownGlobals.Put(name, struct{}{})
	nameConst := c.constantString(name, nameTok)
	c.block().EmitOp1(value.OpConstant, nameConst)
	c.block().EmitOp(value.OpGlobalDefine)

	c.consume(token.ASSIGN, "expect '=' in global variable declaration")
	c.expression()
	c.matchSemicolon()

	c.block().EmitOp1(value.OpConstant, nameConst)
	c.block().EmitOp(value.OpGlobalSet)
}

func (c *Compiler) funDeclaration() {
	funTok := c.prev
	if c.current.scopeDepth > 0 {
		c.errorAt(funTok, "local functions are not allowed")
	}
	c.consume(token.IDENTIFIER, "expect function name after 'fun'")
	nameTok := c.prev
	name := nameTok.Lexeme

	c.knownGlobals.Put(name, struct{}{})
	nameConst := c.constantString(name, nameTok)
	c.block().EmitOp1(value.OpConstant, nameConst)
	c.block().EmitOp(value.OpGlobalDefine)

	childBlock, arity := c.compileFunctionBody(name)

	fnRef := c.heap.NewFunction(c.heap.NewString(name), arity, childBlock)
	fnConst := c.addConstant(value.Object(fnRef), nameTok)
	c.block().EmitOp1(value.OpConstant, fnConst)
	c.block().EmitOp1(value.OpConstant, nameConst)
	c.block().EmitOp(value.OpGlobalSet)
}

// compileFunctionBody parses `(param, ...) { body }` in a fresh funcState
// enclosed by the current one, per spec.md section 4.3's parse_function
// entry point, and returns the compiled Block and its arity.
func (c *Compiler) compileFunctionBody(name string) (*value.Block, int) {
	fs := &funcState{enclosing: c.current, block: value.NewBlock(), name: name}
	c.current = fs

	c.consume(token.LPAREN, "expect '(' after function name")
	if !c.check(token.RPAREN) {
		for {
			c.consume(token.IDENTIFIER, "expect parameter name")
			c.declareLocal(c.prev.Lexeme, c.prev)
			fs.arity++
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RPAREN, "expect ')' after parameters")
	c.consume(token.LBRACE, "expect '{' before function body")
	for !c.check(token.RBRACE) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RBRACE, "expect '}' after function body")
	fs.block.EmitOp(value.OpReturn)

	c.current = fs.enclosing
	return fs.block, fs.arity
}

func (c *Compiler) structDeclaration() {
	c.consume(token.IDENTIFIER, "expect struct name after 'struct'")
	nameTok := c.prev
	name := nameTok.Lexeme
	c.consume(token.LBRACE, "expect '{' after struct name")

	var fields []string
	if !c.check(token.RBRACE) {
		for {
			c.consume(token.IDENTIFIER, "expect field name")
			fields = append(fields, c.prev.Lexeme)
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RBRACE, "expect '}' after struct fields")

	templateRef := c.heap.NewStructTemplate(c.heap.NewString(name), fields)
	templateConst := c.addConstant(value.Object(templateRef), nameTok)

	if c.current.scopeDepth > 0 {
		c.declareLocal(name, nameTok)
		c.block().EmitOp1(value.OpConstant, templateConst)
		return
	}

	c.knownGlobals.Put(name, struct{}{})
	nameConst := c.constantString(name, nameTok)
	c.block().EmitOp1(value.OpConstant, nameConst)
	c.block().EmitOp(value.OpGlobalDefine)
	c.block().EmitOp1(value.OpConstant, templateConst)
	c.block().EmitOp1(value.OpConstant, nameConst)
	c.block().EmitOp(value.OpGlobalSet)
}

// --- statements ---

func (c *Compiler) statement() {
	switch {
	case c.match(token.PRINT):
		c.printStatement()
	case c.match(token.EXIT):
		c.exitStatement()
	case c.match(token.RETURN):
		c.returnStatement()
	case c.match(token.IF):
		c.ifStatement()
	case c.match(token.WHILE):
		c.whileStatement()
	case c.match(token.FOR):
		c.forStatement()
	case c.match(token.LBRACE):
		c.beginScope()
		c.blockBody()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) blockBody() {
	for !c.check(token.RBRACE) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RBRACE, "expect '}' after block")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.matchSemicolon()
	c.block().EmitOp(value.OpPrint)
}

func (c *Compiler) exitStatement() {
	c.expression()
	c.matchSemicolon()
	c.block().EmitOp(value.OpExit)
}

func (c *Compiler) returnStatement() {
	if c.check(token.SEMICOLON) || c.check(token.RBRACE) || c.check(token.EOF) {
		c.emitNull()
	} else {
		c.expression()
	}
	c.matchSemicolon()
	c.block().EmitOp(value.OpReturn)
}

func (c *Compiler) emitNull() {
	idx := c.addConstant(value.Null(), c.prev)
	c.block().EmitOp1(value.OpConstant, idx)
}

func (c *Compiler) ifStatement() {
	c.consume(token.LPAREN, "expect '(' after 'if'")
	c.expression()
	c.consume(token.RPAREN, "expect ')' after condition")

	thenJump := c.block().EmitJump(value.OpCJumpF)
	c.statement()

	if c.match(token.ELSE) {
		elseJump := c.block().EmitJump(value.OpJump)
		c.patchJump(thenJump)
		c.statement()
		c.patchJump(elseJump)
	} else {
		c.patchJump(thenJump)
	}
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.block().Code)
	c.consume(token.LPAREN, "expect '(' after 'while'")
	c.expression()
	c.consume(token.RPAREN, "expect ')' after condition")

	exitJump := c.block().EmitJump(value.OpCJumpF)
	c.statement()
	c.emitJumpBack(loopStart)
	c.patchJump(exitJump)
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(token.LPAREN, "expect '(' after 'for'")

	switch {
	case c.match(token.SEMICOLON):
		// no initializer
	case c.match(token.LET):
		c.letDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.block().Code)
	exitJump := -1
	if !c.check(token.SEMICOLON) {
		c.expression()
		exitJump = c.block().EmitJump(value.OpCJumpF)
	}
	c.consume(token.SEMICOLON, "expect ';' after loop condition")

	if !c.check(token.RPAREN) {
		bodyJump := c.block().EmitJump(value.OpJump)
		incrementStart := len(c.block().Code)
		c.expression()
		c.block().EmitOp(value.OpPop)
		c.consume(token.RPAREN, "expect ')' after for clauses")
		c.emitJumpBack(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	} else {
		c.consume(token.RPAREN, "expect ')' after for clauses")
	}

	c.statement()
	c.emitJumpBack(loopStart)
	if exitJump != -1 {
		c.patchJump(exitJump)
	}
	c.endScope()
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.matchSemicolon()
	c.block().EmitOp(value.OpPop)
}

func (c *Compiler) patchJump(offset int) {
	if err := c.block().PatchJump(offset); err != nil {
		c.errorAt(c.prev, err.Error())
	}
}

func (c *Compiler) emitJumpBack(loopStart int) {
	if err := c.block().EmitJumpBack(loopStart); err != nil {
		c.errorAt(c.prev, err.Error())
	}
}
