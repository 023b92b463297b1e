package object

import "fmt"

// MissingFieldError is returned by FieldCache.Get when the named field
// is absent from the probed object.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q", e.Field)
}

// FieldCache is an inline cache for a single named-field access site.
// Most instruction-object field reads during block compilation hit the
// same field name on many different instruction objects; the cache
// remembers the most recently successful slot index and probes it first
// on the next object, falling back to a name-keyed lookup on a miss.
// Correctness never depends on the hint being right — it is a pure
// hit-rate optimization, so a brand-new cache (no hint yet) behaves
// identically to one that has been used many times.
type FieldCache struct {
	name string
	hint int
}

// NewFieldCache creates an inline cache for a field access site. Each
// compile-time named-field access within the block compiler should use
// its own FieldCache instance.
func NewFieldCache(name string) *FieldCache {
	return &FieldCache{name: name, hint: -1}
}

// Get resolves the cached field on obj, updating the remembered slot on
// a cache miss.
func (c *FieldCache) Get(obj *Object) (Value, error) {
	val, slot, ok := obj.GetFieldAt(c.name, c.hint)
	if !ok {
		return Value{}, &MissingFieldError{Field: c.name}
	}
	c.hint = slot
	return val, nil
}

// GetInt32 resolves the cached field and reads it as an int32. The
// field's tag is not checked: a non-INT32 value reads as 0.
func (c *FieldCache) GetInt32(obj *Object) (int32, error) {
	v, err := c.Get(obj)
	if err != nil {
		return 0, err
	}
	return v.AsInt32(), nil
}

// GetString resolves the cached field and reads it as a string. The
// field's tag is not checked: a non-STRING value reads as "".
func (c *FieldCache) GetString(obj *Object) (string, error) {
	v, err := c.Get(obj)
	if err != nil {
		return "", err
	}
	return v.AsString(), nil
}

// GetObject resolves the cached field and type-asserts it to an Object.
func (c *FieldCache) GetObject(obj *Object) (*Object, error) {
	v, err := c.Get(obj)
	if err != nil {
		return nil, err
	}
	return v.AsObject(), nil
}

// GetArray resolves the cached field and type-asserts it to an Array.
func (c *FieldCache) GetArray(obj *Object) (*Array, error) {
	v, err := c.Get(obj)
	if err != nil {
		return nil, err
	}
	return v.AsArray(), nil
}
