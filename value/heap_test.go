package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeapStringInterning(t *testing.T) {
	h := NewHeap()
	a := h.NewString("hello")
	b := h.NewString("hello")
	c := h.NewString("world")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestHeapFunctionFormat(t *testing.T) {
	h := NewHeap()
	name := h.NewString("greet")
	fnRef := h.NewFunction(name, 1, NewBlock())
	assert.Equal(t, "<fn greet>", h.Get(fnRef).Format(h))
	assert.Equal(t, "function", h.Get(fnRef).TypeName())
}

func TestHeapStructTemplateAndInstance(t *testing.T) {
	h := NewHeap()
	name := h.NewString("Point")
	tmpl := h.NewStructTemplate(name, []string{"x", "y"})

	instance := h.NewStructInstance(tmpl, []Value{Number(1), Number(2)})
	inst := h.Get(instance).Instance
	require.Equal(t, Number(1), inst.Fields["x"])
	require.Equal(t, Number(2), inst.Fields["y"])
}

func TestHeapStructInstanceMissingFieldDefaultsNull(t *testing.T) {
	h := NewHeap()
	name := h.NewString("Pair")
	tmpl := h.NewStructTemplate(name, []string{"a", "b"})

	instance := h.NewStructInstance(tmpl, []Value{Number(1)})
	inst := h.Get(instance).Instance
	assert.Equal(t, Null(), inst.Fields["b"])
}

func TestHeapListBoundMethods(t *testing.T) {
	h := NewHeap()
	listRef := h.NewList([]Value{Number(1), Number(2)})
	list := h.Get(listRef).List

	lenRef, ok := list.Methods["len"]
	require.True(t, ok)
	lenFn := h.Get(lenRef).Builtin
	result, err := lenFn.Fn(h, Object(listRef), nil)
	require.NoError(t, err)
	assert.Equal(t, Number(2), result)

	pushRef := list.Methods["push"]
	pushFn := h.Get(pushRef).Builtin
	_, err = pushFn.Fn(h, Object(listRef), []Value{Number(3)})
	require.NoError(t, err)
	assert.Equal(t, 3, len(list.Elements))

	popRef := list.Methods["pop"]
	popFn := h.Get(popRef).Builtin
	popped, err := popFn.Fn(h, Object(listRef), nil)
	require.NoError(t, err)
	assert.Equal(t, Number(3), popped)
	assert.Equal(t, 2, len(list.Elements))
}

func TestHeapListFormat(t *testing.T) {
	h := NewHeap()
	listRef := h.NewList([]Value{Number(1), Bool_(true)})
	assert.Equal(t, "[1, true]", h.Get(listRef).Format(h))
}
