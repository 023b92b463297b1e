package vm

import (
	"github.com/deepnoodle-ai/zimvm/object"
	"github.com/deepnoodle-ai/zimvm/vmerr"
)

// DefaultStackSize matches the spec's suggested 65,536-slot value stack.
const DefaultStackSize = 1 << 16

// stack is the downward-growing explicit operand stack: locals, saved
// call context, and operand values all share this one fixed array. sp
// decreases on push, exactly mirroring the original pointer-based stack
// (sp is an index rather than a raw pointer, which is the idiomatic Go
// stand-in for "pointer into a never-relocated array").
type stack struct {
	cells []object.Value
	sp    int
	fp    int
}

func newStack(size int) *stack {
	if size <= 0 {
		size = DefaultStackSize
	}
	s := &stack{cells: make([]object.Value, size)}
	s.reset()
	return s
}

func (s *stack) reset() {
	for i := range s.cells {
		s.cells[i] = object.Value{}
	}
	s.sp = len(s.cells)
	s.fp = len(s.cells)
}

// size reports how many slots are currently occupied, used to check the
// stack-balance invariant around a callFun entry/exit.
func (s *stack) size() int { return len(s.cells) - s.sp }

func (s *stack) push(v object.Value) error {
	if s.sp <= 0 {
		return vmerr.New(vmerr.StackOverflow, "value stack exhausted (%d slots)", len(s.cells))
	}
	s.sp--
	s.cells[s.sp] = v
	return nil
}

func (s *stack) pop() object.Value {
	v := s.cells[s.sp]
	s.cells[s.sp] = object.Value{}
	s.sp++
	return v
}

// peek returns the value at sp+idx without popping, as DUP does.
func (s *stack) peek(idx int) object.Value {
	return s.cells[s.sp+idx]
}

func (s *stack) local(idx uint16) object.Value {
	return s.cells[s.fp-int(idx)]
}

func (s *stack) setLocal(idx uint16, v object.Value) {
	s.cells[s.fp-int(idx)] = v
}
