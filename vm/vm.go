// Package vm implements Positron's stack-based bytecode interpreter: a
// fixed-capacity value stack, a fixed-capacity call-frame stack, and a
// fetch-decode-dispatch loop over a compiled value.FunctionObj.
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/dolthub/swiss"

	"github.com/devinarena/positron/value"
)

const (
	stackSize = 256
	maxFrames = 256
)

// CallFrame is one activation record: the instruction pointer local to this
// function, the function being executed, and the base index into the VM's
// value stack where this frame's arguments and locals begin (spec.md
// section 3: "local slot N is always slots[N]").
type CallFrame struct {
	ip       int
	fn       *value.FunctionObj
	slotBase int
	argc     int // number of argument slots the caller passed, per spec.md's RETURN bookkeeping
}

// VM is Positron's single-threaded interpreter. There is exactly one of
// these per run (spec.md section 5: no concurrency, no suspension).
type VM struct {
	heap *value.Heap

	stack [stackSize]value.Value
	sp    int

	frames [maxFrames]CallFrame
	fp     int

	// Globals has no spec-mandated internal algorithm (unlike the
	// interned-string value.Table), so it uses the pack's swiss-table
	// implementation rather than a hand-rolled map.
	globals *swiss.Map[string, value.Value]

	out   io.Writer
	Debug bool
}

// New creates a VM bound to heap, with PRINT output written to out (nil
// defaults to os.Stdout), and every host builtin in builtins pre-registered
// as an unbound global.
func New(heap *value.Heap, out io.Writer, builtins []value.HostBuiltin) *VM {
	if out == nil {
		out = os.Stdout
	}
	v := &VM{
		heap:    heap,
		out:     out,
		globals: swiss.NewMap[string, value.Value](16),
	}
	for _, b := range builtins {
		nameRef := heap.NewString(b.Name)
		fnRef := heap.NewBuiltin(value.NilRef, nameRef, b.Arity, b.Fn)
		v.globals.Put(b.Name, value.Object(fnRef))
	}
	return v
}

func (v *VM) push(val value.Value) error {
	if v.sp >= stackSize {
		return RuntimeError{Message: "stack overflow"}
	}
	v.stack[v.sp] = val
	v.sp++
	return nil
}

func (v *VM) pop() (value.Value, error) {
	if v.sp == 0 {
		return value.Value{}, RuntimeError{Message: "stack underflow"}
	}
	v.sp--
	return v.stack[v.sp], nil
}

func (v *VM) peek(depth int) (value.Value, error) {
	if v.sp < depth+1 {
		return value.Value{}, RuntimeError{Message: "peek depth exceeds stack size"}
	}
	return v.stack[v.sp-depth-1], nil
}

func (v *VM) pushFrame(f CallFrame) error {
	if v.fp >= maxFrames {
		return RuntimeError{Message: "frame stack overflow"}
	}
	v.frames[v.fp] = f
	v.fp++
	return nil
}

// Run executes fn (the compiled top-level script function) to completion.
// It returns the program's exit code (0 unless EXIT was executed) and a
// fatal error, if any opcode trapped.
func (v *VM) Run(fn *value.FunctionObj) (int, error) {
	if err := v.pushFrame(CallFrame{ip: 0, fn: fn, slotBase: v.sp, argc: 0}); err != nil {
		return 1, err
	}
	frame := &v.frames[v.fp-1]

	for frame.ip < len(frame.fn.Block.Code) {
		if v.Debug {
			v.trace(frame)
		}

		op := value.Op(frame.fn.Block.Code[frame.ip])
		switch op {
		case value.OpNop:
			frame.ip++

		case value.OpPop:
			if _, err := v.pop(); err != nil {
				return 1, err
			}
			frame.ip++

		case value.OpDupe:
			top, err := v.peek(0)
			if err != nil {
				return 1, err
			}
			if err := v.push(top); err != nil {
				return 1, err
			}
			frame.ip++

		case value.OpSwap:
			a, err := v.pop()
			if err != nil {
				return 1, err
			}
			b, err := v.pop()
			if err != nil {
				return 1, err
			}
			if err := v.push(a); err != nil {
				return 1, err
			}
			if err := v.push(b); err != nil {
				return 1, err
			}
			frame.ip++

		case value.OpExit:
			res, err := v.pop()
			if err != nil {
				return 1, err
			}
			if res.Kind != value.KindNumber {
				return 1, RuntimeError{Message: "exit expects a number"}
			}
			return int(res.Num), nil

		case value.OpPrint:
			val, err := v.pop()
			if err != nil {
				return 1, err
			}
			fmt.Fprintln(v.out, val.Format(v.heap))
			frame.ip++

		case value.OpNot:
			val, err := v.pop()
			if err != nil {
				return 1, err
			}
			if err := v.push(value.Bool_(!val.Truthy())); err != nil {
				return 1, err
			}
			frame.ip++

		case value.OpNegate:
			val, err := v.pop()
			if err != nil {
				return 1, err
			}
			if val.Kind != value.KindNumber {
				return 1, RuntimeError{Message: "expected numeric value to negate"}
			}
			if err := v.push(value.Number(-val.Num)); err != nil {
				return 1, err
			}
			frame.ip++

		case value.OpAdd, value.OpSub, value.OpMul, value.OpDiv,
			value.OpLt, value.OpGt, value.OpLte, value.OpGte,
			value.OpEq, value.OpNeq:
			if err := v.binary(op); err != nil {
				return 1, err
			}
			frame.ip++

		case value.OpConstant:
			idx := frame.fn.Block.Code[frame.ip+1]
			if err := v.push(frame.fn.Block.Constants[idx]); err != nil {
				return 1, err
			}
			frame.ip += 2

		case value.OpGlobalDefine:
			name, err := v.pop()
			if err != nil {
				return 1, err
			}
			v.globals.Put(v.nameOf(name), value.Null())
			frame.ip++

		case value.OpGlobalSet:
			name, err := v.pop()
			if err != nil {
				return 1, err
			}
			val, err := v.pop()
			if err != nil {
				return 1, err
			}
			v.globals.Put(v.nameOf(name), val)
			frame.ip++

		case value.OpGlobalGet:
			name, err := v.pop()
			if err != nil {
				return 1, err
			}
			val, ok := v.globals.Get(v.nameOf(name))
			if !ok {
				return 1, RuntimeError{Message: fmt.Sprintf("undefined global %q", v.nameOf(name))}
			}
			if err := v.push(val); err != nil {
				return 1, err
			}
			frame.ip++

		case value.OpLocalGet:
			slot := int(frame.fn.Block.Code[frame.ip+1])
			if err := v.push(v.stack[frame.slotBase+slot]); err != nil {
				return 1, err
			}
			frame.ip += 2

		case value.OpLocalSet:
			slot := int(frame.fn.Block.Code[frame.ip+1])
			top, err := v.peek(0)
			if err != nil {
				return 1, err
			}
			v.stack[frame.slotBase+slot] = top
			if v.sp > frame.slotBase+slot+1 {
				if _, err := v.pop(); err != nil {
					return 1, err
				}
			}
			frame.ip += 2

		case value.OpFieldGet:
			if err := v.fieldGet(); err != nil {
				return 1, err
			}
			frame.ip++

		case value.OpFieldSet:
			if err := v.fieldSet(); err != nil {
				return 1, err
			}
			frame.ip++

		case value.OpList:
			if err := v.buildList(); err != nil {
				return 1, err
			}
			frame.ip++

		case value.OpIndex:
			if err := v.index(); err != nil {
				return 1, err
			}
			frame.ip++

		case value.OpCJumpF, value.OpCJumpT:
			cond, err := v.pop()
			if err != nil {
				return 1, err
			}
			offset := int(frame.fn.Block.Code[frame.ip+1])<<8 | int(frame.fn.Block.Code[frame.ip+2])
			take := cond.Truthy() == (op == value.OpCJumpT)
			if take {
				frame.ip += 3 + offset
			} else {
				frame.ip += 3
			}

		case value.OpJump:
			offset := int(frame.fn.Block.Code[frame.ip+1])<<8 | int(frame.fn.Block.Code[frame.ip+2])
			frame.ip += 3 + offset

		case value.OpJumpBack:
			offset := int(frame.fn.Block.Code[frame.ip+1])<<8 | int(frame.fn.Block.Code[frame.ip+2])
			frame.ip = frame.ip + 3 - offset

		case value.OpCall:
			argc := int(frame.fn.Block.Code[frame.ip+1])
			newFrame, err := v.call(frame, argc)
			if err != nil {
				return 1, err
			}
			if newFrame != nil {
				frame = newFrame
			}

		case value.OpReturn:
			done, err := v.doReturn(frame)
			if err != nil {
				return 1, err
			}
			if done {
				return 0, nil
			}
			frame = &v.frames[v.fp-1]

		default:
			return 1, RuntimeError{Message: fmt.Sprintf("unknown opcode %d", op)}
		}
	}

	return 0, nil
}

func (v *VM) nameOf(name value.Value) string {
	return string(v.heap.Get(name.Obj).Str.Bytes)
}

func (v *VM) binary(op value.Op) error {
	b, err := v.pop()
	if err != nil {
		return err
	}
	a, err := v.pop()
	if err != nil {
		return err
	}

	switch op {
	case value.OpEq:
		return v.push(value.Bool_(a.Equal(b)))
	case value.OpNeq:
		return v.push(value.Bool_(!a.Equal(b)))
	}

	if a.Kind != value.KindNumber || b.Kind != value.KindNumber {
		return RuntimeError{Message: "operands must be numbers"}
	}
	switch op {
	case value.OpAdd:
		return v.push(value.Number(a.Num + b.Num))
	case value.OpSub:
		return v.push(value.Number(a.Num - b.Num))
	case value.OpMul:
		return v.push(value.Number(a.Num * b.Num))
	case value.OpDiv:
		if b.Num == 0 {
			return RuntimeError{Message: "division by zero"}
		}
		return v.push(value.Number(a.Num / b.Num))
	case value.OpLt:
		return v.push(value.Bool_(a.Num < b.Num))
	case value.OpGt:
		return v.push(value.Bool_(a.Num > b.Num))
	case value.OpLte:
		return v.push(value.Bool_(a.Num <= b.Num))
	case value.OpGte:
		return v.push(value.Bool_(a.Num >= b.Num))
	}
	return RuntimeError{Message: "unreachable binary opcode"}
}

func (v *VM) fieldGet() error {
	name, err := v.pop()
	if err != nil {
		return err
	}
	receiver, err := v.pop()
	if err != nil {
		return err
	}
	fieldName := v.nameOf(name)

	if receiver.Kind != value.KindObj {
		return RuntimeError{Message: "field access on non-object value"}
	}
	obj := v.heap.Get(receiver.Obj)
	switch obj.Kind {
	case value.ObjStructInstance:
		val, ok := obj.Instance.Fields[fieldName]
		if !ok {
			return RuntimeError{Message: fmt.Sprintf("undefined field %q", fieldName)}
		}
		return v.push(val)
	case value.ObjList:
		methodRef, ok := obj.List.Methods[fieldName]
		if !ok {
			return RuntimeError{Message: fmt.Sprintf("undefined list method %q", fieldName)}
		}
		return v.push(value.Object(methodRef))
	default:
		return RuntimeError{Message: fmt.Sprintf("%s has no fields", obj.TypeName())}
	}
}

func (v *VM) fieldSet() error {
	name, err := v.pop()
	if err != nil {
		return err
	}
	val, err := v.pop()
	if err != nil {
		return err
	}
	receiver, err := v.pop()
	if err != nil {
		return err
	}
	if receiver.Kind != value.KindObj {
		return RuntimeError{Message: "field assignment on non-object value"}
	}
	obj := v.heap.Get(receiver.Obj)
	if obj.Kind != value.ObjStructInstance {
		return RuntimeError{Message: fmt.Sprintf("%s has no assignable fields", obj.TypeName())}
	}
	obj.Instance.Fields[v.nameOf(name)] = val
	return nil
}

func (v *VM) buildList() error {
	countVal, err := v.pop()
	if err != nil {
		return err
	}
	n := int(countVal.Num)
	elements := make([]value.Value, n)
	for i := n - 1; i >= 0; i-- {
		elements[i], err = v.pop()
		if err != nil {
			return err
		}
	}
	ref := v.heap.NewList(elements)
	return v.push(value.Object(ref))
}

func (v *VM) index() error {
	idxVal, err := v.pop()
	if err != nil {
		return err
	}
	listVal, err := v.pop()
	if err != nil {
		return err
	}
	if listVal.Kind != value.KindObj || v.heap.Get(listVal.Obj).Kind != value.ObjList {
		return RuntimeError{Message: "index target must be a list"}
	}
	if idxVal.Kind != value.KindNumber {
		return RuntimeError{Message: "index must be a number"}
	}
	elements := v.heap.Get(listVal.Obj).List.Elements
	i := int(idxVal.Num)
	if i < 0 || i >= len(elements) {
		return RuntimeError{Message: fmt.Sprintf("index %d out of bounds (length %d)", i, len(elements))}
	}
	return v.push(elements[i])
}

// call dispatches OP_CALL by heap-object kind, per spec.md section 4.4. It
// returns the new top frame pointer when a Function call pushed one, or nil
// when the call was fully handled in place (Builtin, StructTemplate).
func (v *VM) call(frame *CallFrame, argc int) (*CallFrame, error) {
	callable, err := v.peek(argc)
	if err != nil {
		return nil, err
	}
	if callable.Kind != value.KindObj {
		return nil, RuntimeError{Message: "attempted to call a non-callable value"}
	}
	obj := v.heap.Get(callable.Obj)

	switch obj.Kind {
	case value.ObjFunction:
		if obj.Fn.Arity != argc {
			return nil, RuntimeError{Message: fmt.Sprintf("expected %d arguments but got %d", obj.Fn.Arity, argc)}
		}
		frame.ip += 2
		if err := v.pushFrame(CallFrame{ip: 0, fn: obj.Fn, slotBase: v.sp - argc, argc: argc}); err != nil {
			return nil, err
		}
		return &v.frames[v.fp-1], nil

	case value.ObjBuiltin:
		if obj.Builtin.Arity != argc {
			return nil, RuntimeError{Message: fmt.Sprintf("expected %d arguments but got %d", obj.Builtin.Arity, argc)}
		}
		args := make([]value.Value, argc)
		copy(args, v.stack[v.sp-argc:v.sp])
		var receiver value.Value
		if obj.Builtin.Parent != value.NilRef {
			receiver = value.Object(obj.Builtin.Parent)
		} else {
			receiver = value.Null()
		}
		result, err := obj.Builtin.Fn(v.heap, receiver, args)
		if err != nil {
			return nil, RuntimeError{Message: err.Error()}
		}
		for i := 0; i < argc+1; i++ {
			if _, err := v.pop(); err != nil {
				return nil, err
			}
		}
		if err := v.push(result); err != nil {
			return nil, err
		}
		frame.ip += 2
		return nil, nil

	case value.ObjStructTemplate:
		if len(obj.Template.Order) != argc {
			return nil, RuntimeError{Message: fmt.Sprintf("expected %d field values but got %d", len(obj.Template.Order), argc)}
		}
		fieldValues := make([]value.Value, argc)
		copy(fieldValues, v.stack[v.sp-argc:v.sp])
		for i := 0; i < argc; i++ {
			if _, err := v.pop(); err != nil {
				return nil, err
			}
		}
		if _, err := v.pop(); err != nil { // the template itself
			return nil, err
		}
		instanceRef := v.heap.NewStructInstance(callable.Obj, fieldValues)
		if err := v.push(value.Object(instanceRef)); err != nil {
			return nil, err
		}
		frame.ip += 2
		return nil, nil

	default:
		return nil, RuntimeError{Message: "attempted to call a non-callable value"}
	}
}

// doReturn implements OP_RETURN. It reports done=true once the outermost
// frame has returned (INTERPRET_OK, per spec.md section 4.4).
func (v *VM) doReturn(frame *CallFrame) (done bool, err error) {
	result := value.Null()
	if v.sp-frame.slotBase-frame.argc > 0 {
		result, err = v.pop()
		if err != nil {
			return false, err
		}
	}

	v.fp--
	if v.fp <= 0 {
		return true, nil
	}

	// Pop the callee's slot region (arguments + locals) off the stack, plus
	// the callable itself just below it, then push the return value for
	// the caller.
	v.sp = frame.slotBase - 1
	if v.sp < 0 {
		v.sp = 0
	}
	if err := v.push(result); err != nil {
		return false, err
	}
	return false, nil
}

func (v *VM) trace(frame *CallFrame) {
	op := value.Op(frame.fn.Block.Code[frame.ip])
	fmt.Fprintf(os.Stderr, "fp=%d sp=%d ip=%04d %s stack=%v\n", v.fp, v.sp, frame.ip, op, v.stack[:v.sp])
}
