package vm_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devinarena/positron/compiler"
	"github.com/devinarena/positron/value"
	"github.com/devinarena/positron/vm"
)

func runProgram(t *testing.T, src string) (string, int) {
	t.Helper()
	heap := value.NewHeap()
	c := compiler.New(src, heap)
	fnRef, errs := c.CompileScript("test")
	require.Empty(t, errs)

	var out bytes.Buffer
	machine := vm.New(heap, &out, nil)
	code, err := machine.Run(heap.Get(fnRef).Fn)
	require.NoError(t, err)
	return out.String(), code
}

func TestVMPrintsArithmeticResult(t *testing.T) {
	out, code := runProgram(t, "print 1 + 2 * 3;")
	assert.Equal(t, "7\n", out)
	assert.Equal(t, 0, code)
}

func TestVMGlobalRoundTrip(t *testing.T) {
	out, _ := runProgram(t, "let x = 10; x = x + 5; print x;")
	assert.Equal(t, "15\n", out)
}

func TestVMLocalsAndScopes(t *testing.T) {
	out, _ := runProgram(t, `
		let x = 1;
		{
			let x = 2;
			print x;
		}
		print x;
	`)
	assert.Equal(t, "2\n1\n", out)
}

func TestVMIfElse(t *testing.T) {
	out, _ := runProgram(t, `
		let x = 0;
		if (x == 0) { print "zero"; } else { print "nonzero"; }
	`)
	assert.Equal(t, "zero\n", out)
}

func TestVMWhileLoop(t *testing.T) {
	out, _ := runProgram(t, `
		let i = 0;
		while (i < 3) {
			print i;
			i = i + 1;
		}
	`)
	assert.Equal(t, "0\n1\n2\n", out)
}

func TestVMForLoop(t *testing.T) {
	out, _ := runProgram(t, `
		for (let i = 0; i < 3; i = i + 1) {
			print i;
		}
	`)
	assert.Equal(t, "0\n1\n2\n", out)
}

func TestVMFunctionCallAndReturn(t *testing.T) {
	out, _ := runProgram(t, `
		fun add(a, b) {
			return a + b;
		}
		print add(2, 3);
	`)
	assert.Equal(t, "5\n", out)
}

func TestVMRecursiveFunction(t *testing.T) {
	out, _ := runProgram(t, `
		fun fact(n) {
			if (n <= 1) { return 1; }
			return n * fact(n - 1);
		}
		print fact(5);
	`)
	assert.Equal(t, "120\n", out)
}

func TestVMStructFieldAccess(t *testing.T) {
	out, _ := runProgram(t, `
		struct Point { x, y }
		let p = Point(1, 2);
		print p.x;
		p.x = 9;
		print p.x;
	`)
	assert.Equal(t, "1\n9\n", out)
}

func TestVMListLiteralAndIndex(t *testing.T) {
	out, _ := runProgram(t, `
		let xs = [10, 20, 30];
		print xs : 1;
	`)
	assert.Equal(t, "20\n", out)
}

func TestVMListMethods(t *testing.T) {
	out, _ := runProgram(t, `
		let xs = [1, 2];
		xs.push(3);
		print xs.len();
	`)
	assert.Equal(t, "3\n", out)
}

func TestVMShortCircuitAnd(t *testing.T) {
	out, _ := runProgram(t, `
		print false && true;
		print true && false;
		print true && true;
	`)
	assert.Equal(t, "false\nfalse\ntrue\n", out)
}

func TestVMShortCircuitOr(t *testing.T) {
	out, _ := runProgram(t, `
		print false || false;
		print true || false;
	`)
	assert.Equal(t, "false\ntrue\n", out)
}

func TestVMExitOpcodeStopsExecution(t *testing.T) {
	heap := value.NewHeap()
	c := compiler.New("print 1; exit 42; print 2;", heap)
	fnRef, errs := c.CompileScript("test")
	require.Empty(t, errs)

	var out bytes.Buffer
	machine := vm.New(heap, &out, nil)
	code, err := machine.Run(heap.Get(fnRef).Fn)
	require.NoError(t, err)
	assert.Equal(t, 42, code)
	assert.False(t, strings.Contains(out.String(), "2"))
}

func TestVMDivisionByZeroIsFatal(t *testing.T) {
	heap := value.NewHeap()
	c := compiler.New("print 1 / 0;", heap)
	fnRef, errs := c.CompileScript("test")
	require.Empty(t, errs)

	machine := vm.New(heap, &bytes.Buffer{}, nil)
	_, err := machine.Run(heap.Get(fnRef).Fn)
	require.Error(t, err)
}

func TestVMHostBuiltin(t *testing.T) {
	heap := value.NewHeap()
	c := compiler.New(`print double(21);`, heap)
	c.RegisterKnownGlobal("double")
	fnRef, errs := c.CompileScript("test")
	require.Empty(t, errs)

	var out bytes.Buffer
	builtins := []value.HostBuiltin{
		{Name: "double", Arity: 1, Fn: func(_ *value.Heap, _ value.Value, args []value.Value) (value.Value, error) {
			return value.Number(args[0].Num * 2), nil
		}},
	}
	machine := vm.New(heap, &out, builtins)
	_, err := machine.Run(heap.Get(fnRef).Fn)
	require.NoError(t, err)
	assert.Equal(t, "42\n", out.String())
}
