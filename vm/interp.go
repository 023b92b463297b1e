package vm

import (
	"math"
	"strconv"

	"github.com/deepnoodle-ai/zimvm/codebuf"
	"github.com/deepnoodle-ai/zimvm/object"
	"github.com/deepnoodle-ai/zimvm/op"
	"github.com/deepnoodle-ai/zimvm/vmerr"
)

// valuePos adapts a raw src_pos Value (typically a string, but any
// instruction-carried value is accepted) into a vmerr.SourcePos.
type valuePos struct{ v object.Value }

func (p valuePos) String() string {
	if p.v.IsString() {
		return p.v.AsString()
	}
	return p.v.Tag().String()
}

// srcPos walks backwards from instrAddr's enclosing block for the
// nearest instruction that carries a src_pos field, exactly as the
// interpreter does to annotate runtime errors and ABORT diagnostics.
func (vm *VM) srcPos(instrAddr codebuf.Addr) (vmerr.SourcePos, bool) {
	ver, ok := vm.versions.instrAt[instrAddr]
	if !ok {
		return nil, false
	}
	instrs, err := vm.srcPosIC.GetArray(ver.block)
	if err != nil {
		return nil, false
	}
	for i := instrs.Len() - 1; i >= 0; i-- {
		elem, _ := instrs.Get(i)
		instr := elem.AsObject()
		if instr.HasField("src_pos") {
			v, _, _ := instr.GetFieldAt("src_pos", -1)
			return valuePos{v}, true
		}
	}
	return nil, false
}

func (vm *VM) withPos(addr codebuf.Addr, err error) error {
	if ve, ok := err.(*vmerr.Error); ok {
		if pos, found := vm.srcPos(addr); found {
			return ve.WithPos(pos)
		}
	}
	return err
}

// execCode runs the interpreter loop starting at ip until a RET with a
// nil continuation unwinds the outermost frame, returning its value.
func (vm *VM) execCode(startIP codebuf.Addr) (object.Value, error) {
	r := vm.code.NewReader(startIP)

	for {
		opAddr := r.IP()
		code := r.ReadOpcode()

		switch code {
		case op.Push:
			if err := vm.stack.push(r.ReadValue()); err != nil {
				return object.Undef, err
			}

		case op.Pop:
			vm.stack.pop()

		case op.Dup:
			idx := int(r.ReadU16())
			v := vm.stack.peek(idx)
			if err := vm.stack.push(v); err != nil {
				return object.Undef, err
			}

		case op.Swap:
			v0 := vm.stack.pop()
			v1 := vm.stack.pop()
			vm.stack.push(v0)
			vm.stack.push(v1)

		case op.SetLocal:
			idx := r.ReadU16()
			vm.stack.setLocal(idx, vm.stack.pop())

		case op.GetLocal:
			idx := r.ReadU16()
			if err := vm.stack.push(vm.stack.local(idx)); err != nil {
				return object.Undef, err
			}

		case op.AddI32:
			b, a, err := vm.pop2Int32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Int32(a + b))

		case op.SubI32:
			b, a, err := vm.pop2Int32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Int32(a - b))

		case op.MulI32:
			b, a, err := vm.pop2Int32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Int32(a * b))

		case op.LtI32:
			b, a, err := vm.pop2Int32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Bool(a < b))

		case op.LeI32:
			b, a, err := vm.pop2Int32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Bool(a <= b))

		case op.GtI32:
			b, a, err := vm.pop2Int32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Bool(a > b))

		case op.GeI32:
			b, a, err := vm.pop2Int32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Bool(a >= b))

		case op.EqI32:
			b, a, err := vm.pop2Int32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Bool(a == b))

		case op.AddF32:
			b, a, err := vm.pop2Float32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Float32(a + b))

		case op.SubF32:
			b, a, err := vm.pop2Float32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Float32(a - b))

		case op.MulF32:
			b, a, err := vm.pop2Float32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Float32(a * b))

		case op.DivF32:
			b, a, err := vm.pop2Float32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Float32(a / b))

		case op.LtF32:
			b, a, err := vm.pop2Float32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Bool(a < b))

		case op.LeF32:
			b, a, err := vm.pop2Float32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Bool(a <= b))

		case op.GtF32:
			b, a, err := vm.pop2Float32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Bool(a > b))

		case op.GeF32:
			b, a, err := vm.pop2Float32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Bool(a >= b))

		case op.EqF32:
			b, a, err := vm.pop2Float32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Bool(a == b))

		case op.SinF32:
			a, err := vm.popFloat32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Float32(float32(math.Sin(float64(a)))))

		case op.CosF32:
			a, err := vm.popFloat32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Float32(float32(math.Cos(float64(a)))))

		case op.SqrtF32:
			a, err := vm.popFloat32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Float32(float32(math.Sqrt(float64(a)))))

		case op.I32ToF32:
			a, err := vm.popInt32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Float32(float32(a)))

		case op.F32ToI32:
			a, err := vm.popFloat32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Int32(int32(a)))

		case op.F32ToStr:
			a, err := vm.popFloat32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.String(strconv.FormatFloat(float64(a), 'f', 6, 32)))

		case op.StrToF32:
			a, err := vm.popString(opAddr)
			if err != nil {
				return object.Undef, err
			}
			f, ferr := strconv.ParseFloat(a, 32)
			if ferr != nil {
				return object.Undef, vm.withPos(opAddr, vmerr.New(vmerr.TypeError, "str_to_f32: %q is not a float", a))
			}
			vm.stack.push(object.Float32(float32(f)))

		case op.EqBool:
			b, a, err := vm.pop2Bool(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Bool(a == b))

		case op.HasTag:
			testTag := object.Tag(r.ReadByte())
			v := vm.stack.pop()
			vm.stack.push(object.Bool(v.Tag() == testTag))

		case op.StrLen:
			s, err := vm.popString(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Int32(int32(len(s))))

		case op.GetChar:
			idx, err := vm.popInt32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			s, err := vm.popString(opAddr)
			if err != nil {
				return object.Undef, err
			}
			if idx < 0 || int(idx) >= len(s) {
				return object.Undef, vm.withPos(opAddr, vmerr.New(vmerr.IndexOutOfBounds, "get_char, index out of bounds"))
			}
			vm.stack.push(vm.internChar(s[idx]))

		case op.GetCharCode:
			idx, err := vm.popInt32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			s, err := vm.popString(opAddr)
			if err != nil {
				return object.Undef, err
			}
			if idx < 0 || int(idx) >= len(s) {
				return object.Undef, vm.withPos(opAddr, vmerr.New(vmerr.IndexOutOfBounds, "get_char_code, index out of bounds"))
			}
			vm.stack.push(object.Int32(int32(s[idx])))

		case op.StrCat:
			a, err := vm.popString(opAddr)
			if err != nil {
				return object.Undef, err
			}
			b, err := vm.popString(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.String(b + a))

		case op.EqStr:
			a, err := vm.popString(opAddr)
			if err != nil {
				return object.Undef, err
			}
			b, err := vm.popString(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Bool(a == b))

		case op.NewObject:
			capacity, err := vm.popInt32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.FromObject(object.NewObject(int(capacity))))

		case op.HasField:
			name, err := vm.popString(opAddr)
			if err != nil {
				return object.Undef, err
			}
			obj, err := vm.popObject(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Bool(obj.HasField(name)))

		case op.SetField:
			val := vm.stack.pop()
			name, err := vm.popString(opAddr)
			if err != nil {
				return object.Undef, err
			}
			obj, err := vm.popObject(opAddr)
			if err != nil {
				return object.Undef, err
			}
			if !object.IsValidIdent(name) {
				return object.Undef, vm.withPos(opAddr, vmerr.New(vmerr.InvalidFieldName, "invalid identifier in set_field %q", name))
			}
			obj.SetField(name, val)

		case op.GetField:
			name, err := vm.popString(opAddr)
			if err != nil {
				return object.Undef, err
			}
			obj, err := vm.popObject(opAddr)
			if err != nil {
				return object.Undef, err
			}
			val, ok := obj.GetField(name)
			if !ok {
				return object.Undef, vm.withPos(opAddr, vmerr.New(vmerr.MissingField, "get_field failed, missing field %q", name))
			}
			vm.stack.push(val)

		case op.EqObj:
			b := vm.stack.pop()
			a := vm.stack.pop()
			vm.stack.push(object.Bool(a.Equal(b)))

		case op.NewArray:
			n, err := vm.popInt32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.FromArray(object.NewArray(int(n))))

		case op.ArrayLen:
			arr, err := vm.popArray(opAddr)
			if err != nil {
				return object.Undef, err
			}
			vm.stack.push(object.Int32(int32(arr.Len())))

		case op.ArrayPush:
			val := vm.stack.pop()
			arr, err := vm.popArray(opAddr)
			if err != nil {
				return object.Undef, err
			}
			arr.Push(val)

		case op.SetElem:
			val := vm.stack.pop()
			idx, err := vm.popInt32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			arr, err := vm.popArray(opAddr)
			if err != nil {
				return object.Undef, err
			}
			if !arr.Set(int(idx), val) {
				return object.Undef, vm.withPos(opAddr, vmerr.New(vmerr.IndexOutOfBounds, "set_elem, index out of bounds"))
			}

		case op.GetElem:
			idx, err := vm.popInt32(opAddr)
			if err != nil {
				return object.Undef, err
			}
			arr, err := vm.popArray(opAddr)
			if err != nil {
				return object.Undef, err
			}
			val, ok := arr.Get(int(idx))
			if !ok {
				return object.Undef, vm.withPos(opAddr, vmerr.New(vmerr.IndexOutOfBounds, "get_elem, index out of bounds"))
			}
			vm.stack.push(val)

		case op.JumpStub:
			word, wordAddr := r.ReadAddr()
			dstVer := vm.versions.byID(pendingID(word))
			if err := vm.ensureCompiled(dstVer); err != nil {
				return object.Undef, err
			}
			r.PatchOpcode(opAddr, op.Jump)
			r.PatchAddr(wordAddr, uint64(dstVer.startPtr))
			r.Seek(dstVer.startPtr)

		case op.Jump:
			word, _ := r.ReadAddr()
			r.Seek(codebuf.Addr(word))

		case op.IfTrue:
			thenWord, thenAddr := r.ReadAddr()
			elseWord, elseAddr := r.ReadAddr()
			cond := vm.stack.pop()
			target := elseWord
			targetAt := elseAddr
			if cond.IsBool() && cond.AsBool() {
				target = thenWord
				targetAt = thenAddr
			}
			if isPending(target) {
				dstVer := vm.versions.byID(pendingID(target))
				if err := vm.ensureCompiled(dstVer); err != nil {
					return object.Undef, err
				}
				r.PatchAddr(targetAt, uint64(dstVer.startPtr))
				target = uint64(dstVer.startPtr)
			}
			r.Seek(codebuf.Addr(target))

		case op.Call:
			numArgs := int(r.ReadU16())
			word, _ := r.ReadAddr()
			retVer := vm.versions.byID(pendingID(word))

			callee := vm.stack.pop()
			if vm.stack.size() < numArgs {
				return object.Undef, vm.withPos(opAddr, vmerr.New(vmerr.StackUnderflow, "stack underflow at call"))
			}

			switch {
			case callee.IsObject():
				next, err := vm.funCall(opAddr, callee.AsObject(), numArgs, retVer)
				if err != nil {
					return object.Undef, err
				}
				r.Seek(next)
			case callee.IsHostFn():
				next, err := vm.hostCall(callee.AsHostFn(), numArgs, retVer)
				if err != nil {
					return object.Undef, err
				}
				r.Seek(next)
			default:
				return object.Undef, vm.withPos(opAddr, vmerr.New(vmerr.InvalidCallee, "invalid callee at call site"))
			}

		case op.Ret:
			retVal := vm.stack.pop()
			vm.stack.pop() // retVer word, mirrored by the popped frame below
			vm.stack.pop() // prevFp word
			vm.stack.pop() // prevSp word
			f := vm.popFrame()

			vm.stack.fp = f.prevFp
			vm.stack.sp = f.prevSp

			retVer := f.retVer
			if retVer == nil {
				return retVal, nil
			}
			if err := vm.stack.push(retVal); err != nil {
				return object.Undef, err
			}
			if err := vm.ensureCompiled(retVer); err != nil {
				return object.Undef, err
			}
			r.Seek(retVer.startPtr)

		case op.Throw:
			excVal := vm.stack.pop()
			next, err := vm.unwind(opAddr, excVal)
			if err != nil {
				return object.Undef, err
			}
			r.Seek(next)

		case op.Import:
			name, err := vm.popString(opAddr)
			if err != nil {
				return object.Undef, err
			}
			if vm.importer == nil {
				return object.Undef, vm.withPos(opAddr, vmerr.New(vmerr.MissingExport, "no importer configured, cannot import %q", name))
			}
			pkg, ierr := vm.importer.Import(name)
			if ierr != nil {
				return object.Undef, vm.withPos(opAddr, vmerr.New(vmerr.MissingExport, "import %q failed: %v", name, ierr))
			}
			vm.stack.push(object.FromObject(pkg))

		case op.Abort:
			msg, _ := vm.popString(opAddr)
			pos, hasPos := vm.srcPos(opAddr)
			vm.abort(pos, hasPos, msg)
			return object.Undef, vmerr.New(vmerr.InvalidCallee, "execution aborted: %s", msg)

		default:
			return object.Undef, vmerr.New(vmerr.UnknownOpcode, "unhandled opcode %s in interpreter loop", code)
		}
	}
}

func (vm *VM) popInt32(addr codebuf.Addr) (int32, error) {
	v := vm.stack.pop()
	if !v.IsInt32() {
		return 0, vm.withPos(addr, vmerr.New(vmerr.TypeError, "expected int32, got %s", v.Tag()))
	}
	return v.AsInt32(), nil
}

func (vm *VM) popFloat32(addr codebuf.Addr) (float32, error) {
	v := vm.stack.pop()
	if !v.IsFloat() {
		return 0, vm.withPos(addr, vmerr.New(vmerr.TypeError, "expected float32, got %s", v.Tag()))
	}
	return v.AsFloat32(), nil
}

func (vm *VM) popBool(addr codebuf.Addr) (bool, error) {
	v := vm.stack.pop()
	if !v.IsBool() {
		return false, vm.withPos(addr, vmerr.New(vmerr.TypeError, "expected bool, got %s", v.Tag()))
	}
	return v.AsBool(), nil
}

func (vm *VM) popString(addr codebuf.Addr) (string, error) {
	v := vm.stack.pop()
	if !v.IsString() {
		return "", vm.withPos(addr, vmerr.New(vmerr.TypeError, "expected string, got %s", v.Tag()))
	}
	return v.AsString(), nil
}

func (vm *VM) popObject(addr codebuf.Addr) (*object.Object, error) {
	v := vm.stack.pop()
	if !v.IsObject() {
		return nil, vm.withPos(addr, vmerr.New(vmerr.TypeError, "expected object, got %s", v.Tag()))
	}
	return v.AsObject(), nil
}

func (vm *VM) popArray(addr codebuf.Addr) (*object.Array, error) {
	v := vm.stack.pop()
	if !v.IsArray() {
		return nil, vm.withPos(addr, vmerr.New(vmerr.TypeError, "expected array, got %s", v.Tag()))
	}
	return v.AsArray(), nil
}

func (vm *VM) pop2Int32(addr codebuf.Addr) (b, a int32, err error) {
	if b, err = vm.popInt32(addr); err != nil {
		return
	}
	a, err = vm.popInt32(addr)
	return
}

func (vm *VM) pop2Float32(addr codebuf.Addr) (b, a float32, err error) {
	if b, err = vm.popFloat32(addr); err != nil {
		return
	}
	a, err = vm.popFloat32(addr)
	return
}

func (vm *VM) pop2Bool(addr codebuf.Addr) (b, a bool, err error) {
	if b, err = vm.popBool(addr); err != nil {
		return
	}
	a, err = vm.popBool(addr)
	return
}

// internChar caches single-character strings by byte value. The
// original implementation used Value::FALSE as the "unset" sentinel for
// this table, which meant the character whose string happened to equal
// FALSE's bit pattern could never be cached; this VM uses object.Undef,
// which no string value can ever equal, closing that gap.
func (vm *VM) internChar(b byte) object.Value {
	if cached := vm.charCache[b]; !cached.IsUndef() {
		return cached
	}
	v := object.String(string([]byte{b}))
	vm.charCache[b] = v
	return v
}

// unwind implements THROW by walking the live call stack's saved frames
// for the nearest one whose call site registered a catch target,
// discarding frames as it goes. This resolves the open question left by
// the original interpreter, whose THROW case is an unconditional assert.
func (vm *VM) unwind(instrAddr codebuf.Addr, excVal object.Value) (codebuf.Addr, error) {
	for {
		if len(vm.frames) == 0 {
			return 0, vm.withPos(instrAddr, vmerr.New(vmerr.InvalidCallee, "throw with no enclosing handler"))
		}
		f := vm.popFrame()
		vm.stack.fp = f.prevFp
		vm.stack.sp = f.prevSp

		if f.retVer == nil {
			return 0, vm.withPos(instrAddr, vmerr.New(vmerr.InvalidCallee, "throw escaped top-level call"))
		}

		entry := vm.versions.retInfo[f.retVer]
		if entry.excVer != nil {
			if err := vm.ensureCompiled(entry.excVer); err != nil {
				return 0, err
			}
			if err := vm.stack.push(excVal); err != nil {
				return 0, err
			}
			return entry.excVer.startPtr, nil
		}
		// no handler registered for this call site; keep unwinding outward
	}
}
