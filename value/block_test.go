package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockEmitOpAndConstant(t *testing.T) {
	b := NewBlock()
	idx, err := b.AddConstant(Number(42))
	require.NoError(t, err)
	assert.Equal(t, byte(0), idx)

	b.EmitOp1(OpConstant, idx)
	b.EmitOp(OpPrint)
	b.EmitOp(OpReturn)

	assert.Equal(t, []byte{byte(OpConstant), 0, byte(OpPrint), byte(OpReturn)}, b.Code)
}

func TestBlockConstantPoolLimit(t *testing.T) {
	b := NewBlock()
	for i := 0; i < maxConstants; i++ {
		_, err := b.AddConstant(Number(float64(i)))
		require.NoError(t, err)
	}
	_, err := b.AddConstant(Number(999))
	assert.Error(t, err)
}

func TestBlockJumpPatchesForwardOffset(t *testing.T) {
	b := NewBlock()
	jump := b.EmitJump(OpJump)
	b.EmitOp(OpNop)
	b.EmitOp(OpNop)
	require.NoError(t, b.PatchJump(jump))

	// offset measured from the byte after the 3-byte jump instruction
	offset := b.readUint16(jump + 1)
	assert.Equal(t, uint16(2), offset)
}

func TestBlockJumpBackTargetsLoopStart(t *testing.T) {
	b := NewBlock()
	loopStart := len(b.Code)
	b.EmitOp(OpNop)
	b.EmitOp(OpNop)
	require.NoError(t, b.EmitJumpBack(loopStart))

	jumpOpcodeOffset := len(b.Code) - 3
	offset := b.readUint16(jumpOpcodeOffset + 1)
	assert.Equal(t, uint16(jumpOpcodeOffset+3-loopStart), offset)
}

func TestBlockDisassembleConstant(t *testing.T) {
	h := NewHeap()
	b := NewBlock()
	idx, _ := b.AddConstant(Number(7))
	b.EmitOp1(OpConstant, idx)

	line, length := b.Disassemble(h, 0)
	assert.Equal(t, 2, length)
	assert.Contains(t, line, "CONSTANT")
	assert.Contains(t, line, "'7'")
}
