package value

// ObjKind identifies which heap object variant an Object holds.
type ObjKind uint8

const (
	ObjString ObjKind = iota
	ObjFunction
	ObjBuiltin
	ObjStructTemplate
	ObjStructInstance
	ObjList
)

func (k ObjKind) String() string {
	switch k {
	case ObjString:
		return "string"
	case ObjFunction:
		return "function"
	case ObjBuiltin:
		return "builtin"
	case ObjStructTemplate:
		return "struct template"
	case ObjStructInstance:
		return "struct instance"
	case ObjList:
		return "list"
	default:
		return "unknown"
	}
}

// StringObj is a byte-string. Content-addressed identity is not required;
// reference identity (comparing Refs) suffices per spec.md section 3.
type StringObj struct {
	Bytes []byte
}

// FunctionObj is a compiled user function.
type FunctionObj struct {
	Name  Ref // ref to a StringObj
	Arity int
	Block *Block
}

// BuiltinFunc is the host builtin calling convention: the bound receiver
// (Null if unbound), and the argument slice. See spec.md section 9.
type BuiltinFunc func(h *Heap, receiver Value, args []Value) (Value, error)

// HostBuiltin describes one host-provided global function for registration
// with a VM at startup (see vm.New): a name, its fixed arity, and the Go
// function implementing it.
type HostBuiltin struct {
	Name  string
	Arity int
	Fn    BuiltinFunc
}

// BuiltinObj is a host-provided or list-bound function.
type BuiltinObj struct {
	Parent Ref // NilRef when unbound
	Name   Ref // ref to a StringObj
	Arity  int
	Fn     BuiltinFunc
}

// StructTemplateObj is a struct type's field layout.
type StructTemplateObj struct {
	Name   Ref
	Fields map[string]int // field name -> declaration order
	Order  []string       // field names in declaration order, for constructor arg binding
}

// StructInstanceObj is an instantiated struct.
type StructInstanceObj struct {
	Template Ref
	Fields   map[string]Value
}

// ListObj is an ordered, growable sequence with bound methods.
type ListObj struct {
	Elements []Value
	Methods  map[string]Ref // method name -> bound Builtin ref
}

// HeapObject is a tagged heap object: exactly one of the pointer fields
// selected by Kind is populated.
type HeapObject struct {
	Kind     ObjKind
	Str      *StringObj
	Fn       *FunctionObj
	Builtin  *BuiltinObj
	Template *StructTemplateObj
	Instance *StructInstanceObj
	List     *ListObj
}

// TypeName returns the short type name used in diagnostics.
func (o *HeapObject) TypeName() string { return o.Kind.String() }

// Format renders the object the way PRINT displays it.
func (o *HeapObject) Format(h *Heap) string {
	switch o.Kind {
	case ObjString:
		return string(o.Str.Bytes)
	case ObjFunction:
		return "<fn " + string(h.Get(o.Fn.Name).Str.Bytes) + ">"
	case ObjBuiltin:
		return "<builtin " + string(h.Get(o.Builtin.Name).Str.Bytes) + ">"
	case ObjStructTemplate:
		return "<struct " + string(h.Get(o.Template.Name).Str.Bytes) + ">"
	case ObjStructInstance:
		name := string(h.Get(h.Get(o.Instance.Template).Template.Name).Str.Bytes)
		return "<" + name + " instance>"
	case ObjList:
		elems := make([]string, len(o.List.Elements))
		for i, v := range o.List.Elements {
			elems[i] = v.Format(h)
		}
		return "[" + joinComma(elems) + "]"
	default:
		return "<object>"
	}
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

// Heap is the single index-addressed allocation arena for every heap object
// in a running program. Per spec.md section 9's REDESIGN FLAG, it replaces the
// original's singly-linked `next`-pointer list with an append-only
// DynArray: allocation order plays the role the `next` link used to, and
// Sweep (the bulk end-of-program teardown — there is no incremental
// reclamation, per spec.md section 1's non-goals) simply discards it.
type Heap struct {
	objects *DynArray[*HeapObject]
	Strings *Table // optional interned-string mapping, spec.md section 3
}

// NewHeap returns an empty heap.
func NewHeap() *Heap {
	return &Heap{objects: NewDynArray[*HeapObject](), Strings: NewTable()}
}

func (h *Heap) alloc(o *HeapObject) Ref {
	return Ref(h.objects.Push(o))
}

// Get dereferences a Ref. It panics on an out-of-range ref, which can only
// happen from a bug in the compiler or VM (never from user input), matching
// spec.md's expectation that the value stack and heap refs are always
// well-formed in compiled bytecode.
func (h *Heap) Get(r Ref) *HeapObject {
	return h.objects.At(int(r))
}

// Len returns the number of objects allocated since the heap was created or
// last swept (there is no incremental reclamation to shrink this).
func (h *Heap) Len() int { return h.objects.Len() }

// Sweep discards every heap object. It is the bulk end-of-program teardown
// spec.md's non-goals call out as the only garbage collection Positron
// performs.
func (h *Heap) Sweep() {
	h.objects = NewDynArray[*HeapObject]()
	h.Strings = NewTable()
}

// NewString interns and allocates a string object. Interning is optional
// for correctness (spec.md section 9: reference equality is not required),
// but it keeps repeated literals and field names from allocating a fresh
// heap object every time the same text is seen.
func (h *Heap) NewString(s string) Ref {
	if v, ok := h.Strings.Get(s); ok {
		return v.Obj
	}
	r := h.alloc(&HeapObject{Kind: ObjString, Str: &StringObj{Bytes: []byte(s)}})
	h.Strings.Set(s, Object(r))
	return r
}

// NewFunction allocates a function object.
func (h *Heap) NewFunction(name Ref, arity int, block *Block) Ref {
	return h.alloc(&HeapObject{Kind: ObjFunction, Fn: &FunctionObj{Name: name, Arity: arity, Block: block}})
}

// NewBuiltin allocates a builtin object, optionally bound to a parent (a
// list, for a list method).
func (h *Heap) NewBuiltin(parent Ref, name Ref, arity int, fn BuiltinFunc) Ref {
	return h.alloc(&HeapObject{Kind: ObjBuiltin, Builtin: &BuiltinObj{Parent: parent, Name: name, Arity: arity, Fn: fn}})
}

// NewStructTemplate allocates a struct template with fields bound to their
// declaration-order index.
func (h *Heap) NewStructTemplate(name Ref, fieldsInOrder []string) Ref {
	fields := make(map[string]int, len(fieldsInOrder))
	for i, f := range fieldsInOrder {
		fields[f] = i
	}
	return h.alloc(&HeapObject{Kind: ObjStructTemplate, Template: &StructTemplateObj{
		Name:   name,
		Fields: fields,
		Order:  fieldsInOrder,
	}})
}

// NewStructInstance allocates a struct instance bound to template, with
// fields populated positionally from values (one per field, in the
// template's declaration order).
func (h *Heap) NewStructInstance(template Ref, values []Value) Ref {
	tmpl := h.Get(template).Template
	fields := make(map[string]Value, len(tmpl.Order))
	for i, name := range tmpl.Order {
		if i < len(values) {
			fields[name] = values[i]
		} else {
			fields[name] = Null()
		}
	}
	return h.alloc(&HeapObject{Kind: ObjStructInstance, Instance: &StructInstanceObj{Template: template, Fields: fields}})
}

// NewList allocates a list object populated with elements and binds its
// standard methods ("len", "push", "pop") as Builtins whose parent is the
// list itself, per spec.md section 9's builtin calling convention.
func (h *Heap) NewList(elements []Value) Ref {
	listRef := h.alloc(&HeapObject{Kind: ObjList, List: &ListObj{Elements: elements}})
	list := h.Get(listRef).List
	list.Methods = map[string]Ref{
		"len":  h.NewBuiltin(listRef, h.NewString("len"), 0, builtinListLen),
		"push": h.NewBuiltin(listRef, h.NewString("push"), 1, builtinListPush),
		"pop":  h.NewBuiltin(listRef, h.NewString("pop"), 0, builtinListPop),
	}
	return listRef
}

func builtinListLen(h *Heap, receiver Value, args []Value) (Value, error) {
	list := h.Get(receiver.Obj).List
	return Number(float64(len(list.Elements))), nil
}

func builtinListPush(h *Heap, receiver Value, args []Value) (Value, error) {
	list := h.Get(receiver.Obj).List
	list.Elements = append(list.Elements, args[0])
	return Null(), nil
}

func builtinListPop(h *Heap, receiver Value, args []Value) (Value, error) {
	list := h.Get(receiver.Obj).List
	if len(list.Elements) == 0 {
		return Null(), nil
	}
	last := list.Elements[len(list.Elements)-1]
	list.Elements = list.Elements[:len(list.Elements)-1]
	return last, nil
}
