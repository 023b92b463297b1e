package vm

import (
	"github.com/deepnoodle-ai/zimvm/codebuf"
	"github.com/deepnoodle-ai/zimvm/object"
	"github.com/deepnoodle-ai/zimvm/vmerr"
)

// funCall performs a CALL instruction whose callee is a user function
// object: it resolves (and compiles if needed) the function's entry
// block, validates argument count, lays out the callee's frame on top
// of the already-pushed arguments, and returns the address execution
// should resume at.
func (vm *VM) funCall(callInstr codebuf.Addr, fun *object.Object, numArgs int, retVer *blockVersion) (codebuf.Addr, error) {
	entryBlock, err := vm.entryIC.GetObject(fun)
	if err != nil {
		return 0, vm.withPos(callInstr, fieldErr(err))
	}
	entryVer := vm.versions.getOrCreate(fun, entryBlock)
	if err := vm.ensureCompiled(entryVer); err != nil {
		return 0, err
	}

	numLocals, err := vm.numLocalsIC.GetInt32(fun)
	if err != nil {
		return 0, vm.withPos(callInstr, fieldErr(err))
	}
	numParams, err := vm.numParamsIC.GetInt32(fun)
	if err != nil {
		return 0, vm.withPos(callInstr, fieldErr(err))
	}

	if err := vm.checkArgCount(callInstr, int(numParams), numArgs); err != nil {
		return 0, err
	}
	if int(numLocals) < int(numParams) {
		return 0, vm.withPos(callInstr, vmerr.New(vmerr.ArgCount, "not enough locals to store function parameters"))
	}

	prevFp := vm.stack.fp
	vm.stack.fp = vm.stack.sp + numArgs - 1
	prevSp := vm.stack.sp + numArgs
	vm.stack.sp -= int(numLocals) - numArgs
	if vm.stack.sp < 0 {
		return 0, vmerr.New(vmerr.StackOverflow, "value stack exhausted during call")
	}

	if err := vm.stack.push(object.RawPtr(prevSp)); err != nil {
		return 0, err
	}
	if err := vm.stack.push(object.RawPtr(prevFp)); err != nil {
		return 0, err
	}
	if err := vm.stack.push(object.RawPtr(retVer)); err != nil {
		return 0, err
	}
	vm.pushFrame(prevSp, prevFp, retVer)

	return entryVer.startPtr, nil
}

// hostCall performs a CALL instruction whose callee is a host function.
// Host calls have no frame of their own: the arguments are consumed
// directly off the value stack and the return value replaces them.
func (vm *VM) hostCall(hf *object.HostFn, numArgs int, retVer *blockVersion) (codebuf.Addr, error) {
	if hf.Arity() != numArgs {
		return 0, vmerr.New(vmerr.ArgCount, "host function %q expects %d args, got %d", hf.Name(), hf.Arity(), numArgs)
	}
	base := vm.stack.sp + numArgs - 1
	args := make([]object.Value, numArgs)
	for i := 0; i < numArgs; i++ {
		args[i] = vm.stack.cells[base-i]
	}
	retVal := hf.Call(args)

	vm.stack.sp += numArgs
	if err := vm.stack.push(retVal); err != nil {
		return 0, err
	}
	if err := vm.ensureCompiled(retVer); err != nil {
		return 0, err
	}
	return retVer.startPtr, nil
}

// checkArgCount reports an ArgCount error, annotated with the call
// site's nearest source position, when numArgs doesn't match numParams.
func (vm *VM) checkArgCount(callInstr codebuf.Addr, numParams, numArgs int) error {
	if numArgs == numParams {
		return nil
	}
	err := vmerr.New(vmerr.ArgCount,
		"incorrect argument count in call, received %d, expected %d", numArgs, numParams)
	return vm.withPos(callInstr, err)
}

// CallFun is the external call gateway: it invokes fun (an exported
// function object) with args, running the interpreter loop until that
// call's own RET unwinds back out to this synthetic top-level frame.
func (vm *VM) CallFun(fun *object.Object, args []object.Value) (object.Value, error) {
	numParams, err := vm.numParamsIC.GetInt32(fun)
	if err != nil {
		return object.Undef, fieldErr(err)
	}
	numLocals, err := vm.numLocalsIC.GetInt32(fun)
	if err != nil {
		return object.Undef, fieldErr(err)
	}
	if len(args) != int(numParams) {
		return object.Undef, vmerr.New(vmerr.ArgCount,
			"incorrect argument count in call, received %d, expected %d", len(args), numParams)
	}
	if int(numLocals) < int(numParams) {
		return object.Undef, vmerr.New(vmerr.ArgCount, "not enough locals to store function parameters")
	}

	preCallSz := vm.stack.size()
	prevSp := vm.stack.sp
	prevFp := vm.stack.fp

	vm.stack.fp = vm.stack.sp - 1
	vm.stack.sp -= int(numLocals)
	if vm.stack.sp < 0 {
		return object.Undef, vmerr.New(vmerr.StackOverflow, "value stack exhausted during call")
	}

	if err := vm.stack.push(object.RawPtr(prevSp)); err != nil {
		return object.Undef, err
	}
	if err := vm.stack.push(object.RawPtr(prevFp)); err != nil {
		return object.Undef, err
	}
	if err := vm.stack.push(object.RawPtr((*blockVersion)(nil))); err != nil {
		return object.Undef, err
	}
	vm.pushFrame(prevSp, prevFp, nil)

	for i, a := range args {
		vm.stack.setLocal(uint16(i), a)
	}

	entryBlock, err := vm.entryIC.GetObject(fun)
	if err != nil {
		return object.Undef, fieldErr(err)
	}
	entryVer := vm.versions.getOrCreate(fun, entryBlock)
	if err := vm.ensureCompiled(entryVer); err != nil {
		return object.Undef, err
	}

	retVal, err := vm.execCode(entryVer.startPtr)
	if err != nil {
		return object.Undef, err
	}

	if vm.stack.size() != preCallSz {
		return object.Undef, vmerr.New(vmerr.StackImbalance, "stack size does not match after call termination")
	}
	return retVal, nil
}

// CallExportFn calls the function named fnName exported by pkg with the
// given arguments, the gateway external callers use to run a program's
// "main" entry point or any other exported function.
func (vm *VM) CallExportFn(pkg *object.Object, fnName string, args []object.Value) (object.Value, error) {
	fnVal, ok := pkg.GetField(fnName)
	if !ok {
		return object.Undef, vmerr.New(vmerr.MissingExport, "package does not export function %q", fnName)
	}
	if !fnVal.IsObject() {
		return object.Undef, vmerr.New(vmerr.ExportNotFunction, "field %q exported by package is not a function", fnName)
	}
	return vm.CallFun(fnVal.AsObject(), args)
}
