package main

import (
	"fmt"
	"time"

	"github.com/devinarena/positron/value"
)

// builtinLen returns the length of a string or list argument.
func builtinLen(h *value.Heap, _ value.Value, args []value.Value) (value.Value, error) {
	arg := args[0]
	if arg.Kind != value.KindObj {
		return value.Value{}, fmt.Errorf("len() expects a string or list")
	}
	obj := h.Get(arg.Obj)
	switch obj.Kind {
	case value.ObjString:
		return value.Number(float64(len(obj.Str.Bytes))), nil
	case value.ObjList:
		return value.Number(float64(len(obj.List.Elements))), nil
	default:
		return value.Value{}, fmt.Errorf("len() expects a string or list, got %s", obj.TypeName())
	}
}

// builtinClock returns the number of seconds since the Unix epoch, exercising
// a zero-argument unbound builtin.
func builtinClock(_ *value.Heap, _ value.Value, _ []value.Value) (value.Value, error) {
	return value.Number(float64(time.Now().UnixNano()) / 1e9), nil
}
