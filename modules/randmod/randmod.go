// Package randmod is a host module exposing a single randomness
// primitive to zim programs, grounded on the teacher's own
// modules/rand.Random: a zero-argument call returning a float in
// [0.0, 1.0).
package randmod

import (
	"math/rand"

	"github.com/deepnoodle-ai/zimvm/object"
)

// New builds the "rand" package object: one field, "next", a 0-arity
// HostFn a zim program reaches via import("rand").rand.next().
func New() *object.Object {
	pkg := object.NewObject(1)
	pkg.SetField("next", object.FromHostFn(object.NewHostFn0("rand.next", next)))
	return pkg
}

func next() object.Value {
	return object.Float32(rand.Float32())
}
