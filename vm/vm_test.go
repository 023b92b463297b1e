package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/zimvm/object"
	"github.com/deepnoodle-ai/zimvm/vmerr"
)

func setInstrs(b *object.Object, instrs ...*object.Object) {
	arr := object.NewArray(0)
	for _, i := range instrs {
		arr.Push(object.FromObject(i))
	}
	b.SetField("instrs", object.FromArray(arr))
}

func emptyBlock() *object.Object {
	return object.NewObject(1)
}

// A call with no arguments that immediately returns a pushed constant.
func TestCallFunReturnsConstant(t *testing.T) {
	entry := block(
		instr("push", map[string]object.Value{"val": object.Int32(42)}),
		instr("ret", nil),
	)
	f := fn(entry, 0, 0)

	machine := New()
	result, err := machine.CallFun(f, nil)
	require.NoError(t, err)
	require.True(t, result.IsInt32())
	require.Equal(t, int32(42), result.AsInt32())
}

// Float arithmetic over two literal operands.
func TestFloatArithmetic(t *testing.T) {
	entry := block(
		instr("push", map[string]object.Value{"val": object.Float32(1.5)}),
		instr("push", map[string]object.Value{"val": object.Float32(2.5)}),
		instr("add_f32", nil),
		instr("ret", nil),
	)
	f := fn(entry, 0, 0)

	machine := New()
	result, err := machine.CallFun(f, nil)
	require.NoError(t, err)
	require.True(t, result.IsFloat())
	require.Equal(t, float32(4.0), result.AsFloat32())
}

// A counted loop summing i for i in [0, 5), exercising JumpStub->Jump
// patching and IfTrue's independently-patched then/else targets across
// repeated back-edge traversals.
func TestCountedLoopSum(t *testing.T) {
	checkBlk := emptyBlock()
	bodyBlk := emptyBlock()
	endBlk := emptyBlock()

	entry := block(
		instr("push", map[string]object.Value{"val": object.Int32(0)}),
		instr("set_local", map[string]object.Value{"idx": object.Int32(0)}), // i = 0
		instr("push", map[string]object.Value{"val": object.Int32(0)}),
		instr("set_local", map[string]object.Value{"idx": object.Int32(1)}), // sum = 0
		instr("jump", map[string]object.Value{"to": object.FromObject(checkBlk)}),
	)
	setInstrs(checkBlk,
		instr("get_local", map[string]object.Value{"idx": object.Int32(0)}),
		instr("push", map[string]object.Value{"val": object.Int32(5)}),
		instr("lt_i32", nil),
		instr("if_true", map[string]object.Value{
			"then": object.FromObject(bodyBlk),
			"else": object.FromObject(endBlk),
		}),
	)
	setInstrs(bodyBlk,
		instr("get_local", map[string]object.Value{"idx": object.Int32(1)}),
		instr("get_local", map[string]object.Value{"idx": object.Int32(0)}),
		instr("add_i32", nil),
		instr("set_local", map[string]object.Value{"idx": object.Int32(1)}), // sum += i
		instr("get_local", map[string]object.Value{"idx": object.Int32(0)}),
		instr("push", map[string]object.Value{"val": object.Int32(1)}),
		instr("add_i32", nil),
		instr("set_local", map[string]object.Value{"idx": object.Int32(0)}), // i += 1
		instr("jump", map[string]object.Value{"to": object.FromObject(checkBlk)}),
	)
	setInstrs(endBlk,
		instr("get_local", map[string]object.Value{"idx": object.Int32(1)}),
		instr("ret", nil),
	)

	f := fn(entry, 0, 2)
	machine := New()
	result, err := machine.CallFun(f, nil)
	require.NoError(t, err)
	require.Equal(t, int32(10), result.AsInt32())
}

// Recursive factorial. The callee has no literal PUSH form for an
// Object value, so the recursive call passes itself along as a second
// parameter ("self"), supplied once by the Go caller and re-passed at
// every recursive call site.
func TestRecursiveFactorial(t *testing.T) {
	baseBlk := emptyBlock()
	recBlk := emptyBlock()
	contBlk := emptyBlock()

	entry := block(
		instr("get_local", map[string]object.Value{"idx": object.Int32(0)}), // n
		instr("push", map[string]object.Value{"val": object.Int32(1)}),
		instr("le_i32", nil),
		instr("if_true", map[string]object.Value{
			"then": object.FromObject(baseBlk),
			"else": object.FromObject(recBlk),
		}),
	)
	setInstrs(baseBlk,
		instr("push", map[string]object.Value{"val": object.Int32(1)}),
		instr("ret", nil),
	)
	setInstrs(recBlk,
		instr("get_local", map[string]object.Value{"idx": object.Int32(0)}), // n
		instr("push", map[string]object.Value{"val": object.Int32(1)}),
		instr("sub_i32", nil),                                               // arg0 = n-1
		instr("get_local", map[string]object.Value{"idx": object.Int32(1)}), // arg1 = self
		instr("get_local", map[string]object.Value{"idx": object.Int32(1)}), // callee = self
		instr("call", map[string]object.Value{
			"num_args": object.Int32(2),
			"ret_to":   object.FromObject(contBlk),
		}),
	)
	setInstrs(contBlk,
		instr("get_local", map[string]object.Value{"idx": object.Int32(0)}), // n
		instr("mul_i32", nil),
		instr("ret", nil),
	)

	factEntry := entry
	fact := fn(factEntry, 2, 2)

	machine := New()
	result, err := machine.CallFun(fact, []object.Value{object.Int32(5), object.FromObject(fact)})
	require.NoError(t, err)
	require.Equal(t, int32(120), result.AsInt32())
}

// Iterative Fibonacci, the loop-carried-state sibling of the counted
// loop test: two locals swap roles every iteration.
func TestIterativeFibonacci(t *testing.T) {
	checkBlk := emptyBlock()
	bodyBlk := emptyBlock()
	endBlk := emptyBlock()

	entry := block(
		instr("push", map[string]object.Value{"val": object.Int32(0)}),
		instr("set_local", map[string]object.Value{"idx": object.Int32(1)}), // a = 0
		instr("push", map[string]object.Value{"val": object.Int32(1)}),
		instr("set_local", map[string]object.Value{"idx": object.Int32(2)}), // b = 1
		instr("push", map[string]object.Value{"val": object.Int32(0)}),
		instr("set_local", map[string]object.Value{"idx": object.Int32(3)}), // i = 0
		instr("jump", map[string]object.Value{"to": object.FromObject(checkBlk)}),
	)
	setInstrs(checkBlk,
		instr("get_local", map[string]object.Value{"idx": object.Int32(3)}), // i
		instr("get_local", map[string]object.Value{"idx": object.Int32(0)}), // n
		instr("lt_i32", nil),
		instr("if_true", map[string]object.Value{
			"then": object.FromObject(bodyBlk),
			"else": object.FromObject(endBlk),
		}),
	)
	setInstrs(bodyBlk,
		instr("get_local", map[string]object.Value{"idx": object.Int32(1)}), // a
		instr("get_local", map[string]object.Value{"idx": object.Int32(2)}), // b
		instr("add_i32", nil),                                               // a+b
		instr("get_local", map[string]object.Value{"idx": object.Int32(2)}), // b
		instr("set_local", map[string]object.Value{"idx": object.Int32(1)}), // a = b
		instr("set_local", map[string]object.Value{"idx": object.Int32(2)}), // b = a+b
		instr("get_local", map[string]object.Value{"idx": object.Int32(3)}), // i
		instr("push", map[string]object.Value{"val": object.Int32(1)}),
		instr("add_i32", nil),
		instr("set_local", map[string]object.Value{"idx": object.Int32(3)}), // i += 1
		instr("jump", map[string]object.Value{"to": object.FromObject(checkBlk)}),
	)
	setInstrs(endBlk,
		instr("get_local", map[string]object.Value{"idx": object.Int32(1)}), // a
		instr("ret", nil),
	)

	f := fn(entry, 1, 4)
	machine := New()
	result, err := machine.CallFun(f, []object.Value{object.Int32(10)})
	require.NoError(t, err)
	require.Equal(t, int32(55), result.AsInt32())
}

// THROW unwinds frames until it finds a call site with a registered
// catch version, restores that frame's saved fp/sp, and resumes there
// with the exception value pushed — the resolution of the THROW Open
// Question.
func TestThrowUnwindsToNearestCatch(t *testing.T) {
	gEntry := block(
		instr("push", map[string]object.Value{"val": object.String("boom")}),
		instr("throw", nil),
	)
	g := fn(gEntry, 0, 0)

	contBlk := block(instr("ret", nil))
	catchBlk := block(instr("ret", nil))

	fEntry := block(
		instr("get_local", map[string]object.Value{"idx": object.Int32(0)}), // g
		instr("call", map[string]object.Value{
			"num_args": object.Int32(0),
			"ret_to":   object.FromObject(contBlk),
			"throw_to": object.FromObject(catchBlk),
		}),
	)
	f := fn(fEntry, 1, 1)

	machine := New()
	result, err := machine.CallFun(f, []object.Value{object.FromObject(g)})
	require.NoError(t, err)
	require.True(t, result.IsString())
	require.Equal(t, "boom", result.AsString())
}

// An uncaught THROW at the top level reports InvalidCallee rather than
// corrupting VM state.
func TestThrowEscapingTopLevelIsAnError(t *testing.T) {
	entry := block(
		instr("push", map[string]object.Value{"val": object.String("boom")}),
		instr("throw", nil),
	)
	f := fn(entry, 0, 0)

	machine := New()
	_, err := machine.CallFun(f, nil)
	require.Error(t, err)
	ve, ok := err.(*vmerr.Error)
	require.True(t, ok)
	require.Equal(t, vmerr.InvalidCallee, ve.Code)
}

// A typed pop against a mismatched tag raises a recoverable TypeError
// rather than panicking — the second Open Question's resolution.
func TestTypedPopMismatchIsRecoverable(t *testing.T) {
	entry := block(
		instr("push", map[string]object.Value{"val": object.String("nope")}),
		instr("push", map[string]object.Value{"val": object.Int32(1)}),
		instr("add_i32", nil),
		instr("ret", nil),
	)
	f := fn(entry, 0, 0)

	machine := New()
	_, err := machine.CallFun(f, nil)
	require.Error(t, err)
	ve, ok := err.(*vmerr.Error)
	require.True(t, ok)
	require.Equal(t, vmerr.TypeError, ve.Code)
}

// A block version is compiled on first execution and then reused: the
// same function called twice through one VM instance must re-traverse
// the already-patched Jump/IfTrue forms rather than leaving a stub or
// recompiling, and both calls must agree on the result.
func TestBlockVersionIsReusedAcrossCalls(t *testing.T) {
	checkBlk := emptyBlock()
	bodyBlk := emptyBlock()
	endBlk := emptyBlock()

	entry := block(
		instr("push", map[string]object.Value{"val": object.Int32(0)}),
		instr("set_local", map[string]object.Value{"idx": object.Int32(0)}),
		instr("jump", map[string]object.Value{"to": object.FromObject(checkBlk)}),
	)
	setInstrs(checkBlk,
		instr("get_local", map[string]object.Value{"idx": object.Int32(0)}),
		instr("push", map[string]object.Value{"val": object.Int32(3)}),
		instr("lt_i32", nil),
		instr("if_true", map[string]object.Value{
			"then": object.FromObject(bodyBlk),
			"else": object.FromObject(endBlk),
		}),
	)
	setInstrs(bodyBlk,
		instr("get_local", map[string]object.Value{"idx": object.Int32(0)}),
		instr("push", map[string]object.Value{"val": object.Int32(1)}),
		instr("add_i32", nil),
		instr("set_local", map[string]object.Value{"idx": object.Int32(0)}),
		instr("jump", map[string]object.Value{"to": object.FromObject(checkBlk)}),
	)
	setInstrs(endBlk,
		instr("get_local", map[string]object.Value{"idx": object.Int32(0)}),
		instr("ret", nil),
	)

	f := fn(entry, 0, 1)
	machine := New()

	first, err := machine.CallFun(f, nil)
	require.NoError(t, err)
	require.Equal(t, int32(3), first.AsInt32())

	second, err := machine.CallFun(f, nil)
	require.NoError(t, err)
	require.Equal(t, int32(3), second.AsInt32())
}
