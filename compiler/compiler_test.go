package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devinarena/positron/value"
)

func compileOK(t *testing.T, src string) *value.Block {
	t.Helper()
	heap := value.NewHeap()
	c := New(src, heap)
	fnRef, errs := c.CompileScript("test")
	require.Empty(t, errs)
	return heap.Get(fnRef).Fn.Block
}

func TestCompileSimpleExpressionStatement(t *testing.T) {
	block := compileOK(t, "1 + 2;")
	assert.Equal(t, []byte{
		byte(value.OpConstant), 0,
		byte(value.OpConstant), 1,
		byte(value.OpAdd),
		byte(value.OpPop),
		byte(value.OpReturn),
	}, block.Code)
}

func TestCompileGlobalDeclarationHoistsThenSets(t *testing.T) {
	block := compileOK(t, "let x = 5;")
	assert.Equal(t, []byte{
		byte(value.OpConstant), 0, // name
		byte(value.OpGlobalDefine),
		byte(value.OpConstant), 1, // 5
		byte(value.OpConstant), 0, // name
		byte(value.OpGlobalSet),
		byte(value.OpReturn),
	}, block.Code)
}

func TestCompileUndefinedGlobalIsError(t *testing.T) {
	heap := value.NewHeap()
	c := New("print missing;", heap)
	_, errs := c.CompileScript("test")
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "undefined global")
}

func TestCompileLocalDuplicateInSameScopeIsError(t *testing.T) {
	heap := value.NewHeap()
	c := New("{ let a = 1; let a = 2; }", heap)
	_, errs := c.CompileScript("test")
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "already declared")
}

func TestCompileLocalFunctionIsError(t *testing.T) {
	heap := value.NewHeap()
	c := New("{ fun f() { } }", heap)
	_, errs := c.CompileScript("test")
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "local functions")
}

func TestCompileIfElseEmitsBalancedJumps(t *testing.T) {
	block := compileOK(t, "let x = 1; if (x) { print x; } else { print x; }")
	// must end in RETURN and contain exactly one CJUMPF and one JUMP
	assert.Equal(t, byte(value.OpReturn), block.Code[len(block.Code)-1])
	cjumpf := 0
	jump := 0
	for i := 0; i < len(block.Code); {
		op := value.Op(block.Code[i])
		switch op {
		case value.OpCJumpF:
			cjumpf++
		case value.OpJump:
			jump++
		}
		i += 1 + op.OperandWidth()
	}
	assert.Equal(t, 1, cjumpf)
	assert.Equal(t, 1, jump)
}

func TestCompileRecoversAfterSyntaxError(t *testing.T) {
	heap := value.NewHeap()
	c := New("let = 1; let y = 2;", heap)
	_, errs := c.CompileScript("test")
	require.NotEmpty(t, errs)
}

func TestCompileListLiteral(t *testing.T) {
	block := compileOK(t, "[1, 2, 3];")
	lastOps := []value.Op{}
	for i := 0; i < len(block.Code); {
		op := value.Op(block.Code[i])
		lastOps = append(lastOps, op)
		i += 1 + op.OperandWidth()
	}
	assert.Contains(t, lastOps, value.OpList)
}
