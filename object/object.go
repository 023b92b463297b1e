package object

// Object is a mapping from field name to Value. Fields are stored in a
// slots slice in insertion order; the index map lets slot lookups happen
// in O(1), and the insertion-ordered slots slice is what makes the
// inline cache's "last known slot index" hint meaningful: the same field
// name tends to land at the same slot across same-shaped objects.
type Object struct {
	names []string
	slots []Value
	index map[string]int
}

// NewObject creates an object with room for the given number of fields
// without requiring a reallocation.
func NewObject(capacity int) *Object {
	if capacity < 0 {
		capacity = 0
	}
	return &Object{
		names: make([]string, 0, capacity),
		slots: make([]Value, 0, capacity),
		index: make(map[string]int, capacity),
	}
}

// HasField reports whether the named field is present.
func (o *Object) HasField(name string) bool {
	_, ok := o.index[name]
	return ok
}

// GetField reads a field by name, without any inline-cache hint.
func (o *Object) GetField(name string) (Value, bool) {
	idx, ok := o.index[name]
	if !ok {
		return Value{}, false
	}
	return o.slots[idx], true
}

// GetFieldAt reads a field, first probing the given slot hint. It
// returns the value, the slot at which it was actually found (to be
// remembered by the caller's inline cache), and whether the field
// exists at all.
func (o *Object) GetFieldAt(name string, hint int) (Value, int, bool) {
	if hint >= 0 && hint < len(o.names) && o.names[hint] == name {
		return o.slots[hint], hint, true
	}
	idx, ok := o.index[name]
	if !ok {
		return Value{}, -1, false
	}
	return o.slots[idx], idx, true
}

// SetField writes a field, appending a new slot if the field is new.
// Field insertion order is not observable except through the slot index
// a caller's inline cache remembers.
func (o *Object) SetField(name string, v Value) {
	if idx, ok := o.index[name]; ok {
		o.slots[idx] = v
		return
	}
	idx := len(o.names)
	o.names = append(o.names, name)
	o.slots = append(o.slots, v)
	o.index[name] = idx
}

// FieldCount returns the number of fields currently set on the object.
func (o *Object) FieldCount() int {
	return len(o.names)
}
