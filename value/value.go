// Package value implements Positron's tagged value model, its heap arena,
// the hand-rolled hash table and dynamic array that back it, and the Block
// bytecode container the compiler emits into and the VM executes.
//
// These pieces live in one package deliberately: a Function value embeds a
// *Block, a Block's constant pool holds Values, and a Value's heap-ref
// variant indexes back into the arena that owns Functions, Strings, and the
// rest of the heap object variants. Splitting them across packages would
// just relocate the cycle behind an interface with no benefit.
package value

import (
	"strconv"
)

// Kind identifies which variant of the tagged Value union is populated.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindObj
)

// Ref is a non-owning handle into a Heap's allocation arena. It replaces the
// intrusive `next`-linked pointer list of the original implementation with
// a plain index, per the REDESIGN FLAG in spec.md section 9: values carry
// arena indices, never raw pointers, which sidesteps the reference cycles
// that would otherwise arise between globals, functions, blocks, and the
// constants those blocks embed.
type Ref int32

// NilRef is never a valid allocation index; it marks "no object" for
// optional references such as a Builtin's parent.
const NilRef Ref = -1

// Value is Positron's tagged dynamic value. Exactly one of Bool, Num, or Obj
// is meaningful, selected by Kind.
type Value struct {
	Kind Kind
	Bool bool
	Num  float64
	Obj  Ref
}

// Null returns the null value.
func Null() Value { return Value{Kind: KindNull} }

// Bool_ returns a boolean value. (Named with a trailing underscore to avoid
// shadowing the Kind constant and the builtin type name in call sites.)
func Bool_(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Number returns a numeric value. Number is Positron's single numeric type;
// there is no separate integer representation at runtime.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// Object returns a value referencing a heap object.
func Object(r Ref) Value { return Value{Kind: KindObj, Obj: r} }

// Truthy reports a value's truthiness: null is always false, bools reflect
// their own value, numbers are truthy when nonzero, and heap references are
// truthy when non-nil.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNull:
		return false
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Num != 0
	case KindObj:
		return v.Obj != NilRef
	default:
		return false
	}
}

// Equal implements Positron's `==`. Only a Number compared against another
// Number ever compares by value; every other pairing — including two Nulls,
// two matching Bools, or two Objs referencing the same heap object —
// compares unequal. This mirrors original_source/src/interpreter.c's
// binary() (TOKEN_EQUAL_EQUAL/TOKEN_NOT_EQUAL), which only performs a real
// comparison when both operands are VAL_NUMBER and unconditionally pushes
// false otherwise, regardless of kind or identity.
//
// Open question carried from spec.md section 9: this compares numbers with
// exact float equality (no epsilon tolerance). That is kept as specified,
// matching the original implementation's own `==` behavior — not treated as
// a bug to silently fix.
func (v Value) Equal(other Value) bool {
	if v.Kind != KindNumber || other.Kind != KindNumber {
		return false
	}
	return v.Num == other.Num
}

// TypeName returns a short name for the value's runtime type, used in error
// messages.
func (v Value) TypeName(h *Heap) string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindObj:
		return h.Get(v.Obj).TypeName()
	default:
		return "unknown"
	}
}

// Format renders a value the way PRINT and disassembly do. Integer-looking
// numbers print without a decimal point, per spec.md section 3.
func (v Value) Format(h *Heap) string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindNumber:
		return formatNumber(v.Num)
	case KindObj:
		return h.Get(v.Obj).Format(h)
	default:
		return "<invalid>"
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}
