package object

// HostFn is an opaque callable provided by the embedding host. Its arity
// is fixed at construction and is one of 0, 1, 2, or 3 Values in, one
// Value out; the interpreter's CALL handler is responsible for routing
// to the matching arity and never invokes a HostFn with the wrong
// argument count.
type HostFn struct {
	name  string
	arity int
	call  func(args []Value) Value
}

// NewHostFn0 wraps a 0-argument host function.
func NewHostFn0(name string, fn func() Value) *HostFn {
	return &HostFn{name: name, arity: 0, call: func(args []Value) Value { return fn() }}
}

// NewHostFn1 wraps a 1-argument host function.
func NewHostFn1(name string, fn func(Value) Value) *HostFn {
	return &HostFn{name: name, arity: 1, call: func(args []Value) Value { return fn(args[0]) }}
}

// NewHostFn2 wraps a 2-argument host function.
func NewHostFn2(name string, fn func(Value, Value) Value) *HostFn {
	return &HostFn{name: name, arity: 2, call: func(args []Value) Value { return fn(args[0], args[1]) }}
}

// NewHostFn3 wraps a 3-argument host function.
func NewHostFn3(name string, fn func(Value, Value, Value) Value) *HostFn {
	return &HostFn{name: name, arity: 3, call: func(args []Value) Value { return fn(args[0], args[1], args[2]) }}
}

func (h *HostFn) Name() string { return h.name }
func (h *HostFn) Arity() int   { return h.arity }

// Call invokes the wrapped function. The caller must supply exactly
// Arity() arguments, in source order.
func (h *HostFn) Call(args []Value) Value {
	return h.call(args)
}
