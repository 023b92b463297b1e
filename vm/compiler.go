package vm

import (
	"github.com/deepnoodle-ai/zimvm/codebuf"
	"github.com/deepnoodle-ai/zimvm/object"
	"github.com/deepnoodle-ai/zimvm/op"
	"github.com/deepnoodle-ai/zimvm/vmerr"
	"github.com/rs/zerolog"
)

// blockCompiler performs the one-pass lowering of a block's instruction
// list into the opcode encoding. Each named-field access below has its
// own persistent inline cache — one per compile-time call site, shared
// across every block ever compiled, exactly as spec 4.1 describes.
type blockCompiler struct {
	code     *codebuf.Buffer
	versions *versions
	log      zerolog.Logger

	instrsIC   *object.FieldCache
	opIC       *object.FieldCache
	valIC      *object.FieldCache
	dupIdxIC   *object.FieldCache
	getLocalIC *object.FieldCache
	setLocalIC *object.FieldCache
	tagIC      *object.FieldCache
	jumpToIC   *object.FieldCache
	thenIC     *object.FieldCache
	elseIC     *object.FieldCache
	numArgsIC  *object.FieldCache
	retToIC    *object.FieldCache
	throwToIC  *object.FieldCache
}

// fieldErr promotes a field-cache miss to the VM's own error taxonomy so
// that every error the compiler or interpreter can surface is a
// *vmerr.Error, regardless of which inline cache produced it.
func fieldErr(err error) error {
	if mf, ok := err.(*object.MissingFieldError); ok {
		return vmerr.New(vmerr.MissingField, "missing field %q", mf.Field)
	}
	return err
}

func newBlockCompiler(code *codebuf.Buffer, v *versions, log zerolog.Logger) *blockCompiler {
	return &blockCompiler{
		code:       code,
		versions:   v,
		log:        log,
		instrsIC:   object.NewFieldCache("instrs"),
		opIC:       object.NewFieldCache("op"),
		valIC:      object.NewFieldCache("val"),
		dupIdxIC:   object.NewFieldCache("idx"),
		getLocalIC: object.NewFieldCache("idx"),
		setLocalIC: object.NewFieldCache("idx"),
		tagIC:      object.NewFieldCache("tag"),
		jumpToIC:   object.NewFieldCache("to"),
		thenIC:     object.NewFieldCache("then"),
		elseIC:     object.NewFieldCache("else"),
		numArgsIC:  object.NewFieldCache("num_args"),
		retToIC:    object.NewFieldCache("ret_to"),
		throwToIC:  object.NewFieldCache("throw_to"),
	}
}

// compile lowers ver's block into the code buffer. It is idempotent: a
// version that is already compiled is returned to immediately.
func (bc *blockCompiler) compile(ver *blockVersion) error {
	if ver.compiled {
		return nil
	}

	instrs, err := bc.instrsIC.GetArray(ver.block)
	if err != nil {
		return fieldErr(err)
	}
	if instrs.Len() == 0 {
		return vmerr.New(vmerr.EmptyBlock, "block has an empty instrs array")
	}

	ver.startPtr = bc.code.Alloc()
	bc.log.Debug().Int("version", ver.id).Msg("compiling block version")

	for i := 0; i < instrs.Len(); i++ {
		elem, _ := instrs.Get(i)
		instr := elem.AsObject()

		opName, err := bc.opIC.GetString(instr)
		if err != nil {
			return fieldErr(err)
		}
		code, ok := op.Lookup(opName)
		if !ok {
			return vmerr.New(vmerr.UnknownOpcode, "unhandled opcode in basic block %q", opName)
		}

		instrAddr, err := bc.code.WriteOpcode(code)
		if err != nil {
			return err
		}

		switch code {
		case op.Push:
			val, err := bc.valIC.Get(instr)
			if err != nil {
				return fieldErr(err)
			}
			if err := bc.code.WriteValue(val); err != nil {
				return err
			}

		case op.Pop, op.Swap:
			// no immediates

		case op.Dup:
			idx, err := bc.dupIdxIC.GetInt32(instr)
			if err != nil {
				return fieldErr(err)
			}
			if err := bc.code.WriteU16(uint16(idx)); err != nil {
				return err
			}

		case op.GetLocal:
			idx, err := bc.getLocalIC.GetInt32(instr)
			if err != nil {
				return fieldErr(err)
			}
			if err := bc.code.WriteU16(uint16(idx)); err != nil {
				return err
			}

		case op.SetLocal:
			idx, err := bc.setLocalIC.GetInt32(instr)
			if err != nil {
				return fieldErr(err)
			}
			if err := bc.code.WriteU16(uint16(idx)); err != nil {
				return err
			}

		case op.AddI32, op.SubI32, op.MulI32, op.LtI32, op.LeI32, op.GtI32, op.GeI32, op.EqI32,
			op.AddF32, op.SubF32, op.MulF32, op.DivF32, op.LtF32, op.LeF32, op.GtF32, op.GeF32, op.EqF32,
			op.SinF32, op.CosF32, op.SqrtF32,
			op.I32ToF32, op.F32ToI32, op.F32ToStr, op.StrToF32,
			op.EqBool,
			op.StrLen, op.GetChar, op.GetCharCode, op.StrCat, op.EqStr,
			op.NewObject, op.HasField, op.SetField, op.GetField, op.EqObj,
			op.NewArray, op.ArrayLen, op.ArrayPush, op.GetElem, op.SetElem,
			op.Ret, op.Import:
			// no immediates

		case op.HasTag:
			tagName, err := bc.tagIC.GetString(instr)
			if err != nil {
				return fieldErr(err)
			}
			tag, ok := parseTag(tagName)
			if !ok {
				return vmerr.New(vmerr.UnknownOpcode, "unrecognized tag name %q in has_tag", tagName)
			}
			if err := bc.code.WriteByte(byte(tag)); err != nil {
				return err
			}

		case op.JumpStub:
			dstBlock, err := bc.jumpToIC.GetObject(instr)
			if err != nil {
				return fieldErr(err)
			}
			dstVer := bc.versions.getOrCreate(ver.fun, dstBlock)
			if _, err := bc.code.WriteAddr(encodePending(dstVer.id)); err != nil {
				return err
			}

		case op.IfTrue:
			thenBlock, err := bc.thenIC.GetObject(instr)
			if err != nil {
				return fieldErr(err)
			}
			elseBlock, err := bc.elseIC.GetObject(instr)
			if err != nil {
				return fieldErr(err)
			}
			thenVer := bc.versions.getOrCreate(ver.fun, thenBlock)
			elseVer := bc.versions.getOrCreate(ver.fun, elseBlock)
			if _, err := bc.code.WriteAddr(encodePending(thenVer.id)); err != nil {
				return err
			}
			if _, err := bc.code.WriteAddr(encodePending(elseVer.id)); err != nil {
				return err
			}

		case op.Call:
			bc.versions.instrAt[instrAddr] = ver

			numArgs, err := bc.numArgsIC.GetInt32(instr)
			if err != nil {
				return fieldErr(err)
			}
			retBlock, err := bc.retToIC.GetObject(instr)
			if err != nil {
				return fieldErr(err)
			}
			retVer := bc.versions.getOrCreate(ver.fun, retBlock)

			entry := retEntry{}
			if instr.HasField("throw_to") {
				throwBlock, err := bc.throwToIC.GetObject(instr)
				if err != nil {
					return fieldErr(err)
				}
				entry.excVer = bc.versions.getOrCreate(ver.fun, throwBlock)
			}
			bc.versions.retInfo[retVer] = entry

			if err := bc.code.WriteU16(uint16(numArgs)); err != nil {
				return err
			}
			if _, err := bc.code.WriteAddr(encodePending(retVer.id)); err != nil {
				return err
			}

		case op.Throw, op.Abort:
			bc.versions.instrAt[instrAddr] = ver

		default:
			return vmerr.New(vmerr.UnknownOpcode, "unhandled opcode in basic block %q", opName)
		}
	}

	ver.endPtr = bc.code.Alloc()
	ver.compiled = true
	return nil
}

// ensureCompiled compiles ver if it hasn't been already.
func (bc *blockCompiler) ensureCompiled(ver *blockVersion) error {
	if ver.compiled {
		return nil
	}
	return bc.compile(ver)
}

// parseTag maps a has_tag instruction's "tag" field to the Tag it tests
// for. The valid names are exactly Tag.String()'s mnemonics.
func parseTag(name string) (object.Tag, bool) {
	switch name {
	case "undef":
		return object.UNDEF, true
	case "int32":
		return object.INT32, true
	case "float32":
		return object.FLOAT32, true
	case "bool":
		return object.BOOL, true
	case "string":
		return object.STRING, true
	case "object":
		return object.OBJECT, true
	case "array":
		return object.ARRAY, true
	case "hostfn":
		return object.HOSTFN, true
	case "rawptr":
		return object.RAWPTR, true
	default:
		return 0, false
	}
}
