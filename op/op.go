// Package op defines the opcode set the block compiler emits and the
// interpreter dispatches on.
package op

// Code is a 2-byte opcode tag, as laid out in the code buffer.
type Code uint16

const (
	Invalid Code = iota

	Push
	Pop
	Dup
	Swap

	GetLocal
	SetLocal

	AddI32
	SubI32
	MulI32
	LtI32
	LeI32
	GtI32
	GeI32
	EqI32

	AddF32
	SubF32
	MulF32
	DivF32
	LtF32
	LeF32
	GtF32
	GeF32
	EqF32
	SinF32
	CosF32
	SqrtF32

	I32ToF32
	F32ToI32
	F32ToStr
	StrToF32

	EqBool
	HasTag

	StrLen
	GetChar
	GetCharCode
	StrCat
	EqStr

	NewObject
	HasField
	SetField
	GetField
	EqObj

	NewArray
	ArrayLen
	ArrayPush
	GetElem
	SetElem

	// JumpStub is the not-yet-linked form of Jump: its immediate is a
	// pending block-version reference rather than a code address. The
	// interpreter rewrites the opcode tag itself to Jump the first time
	// the stub is taken.
	JumpStub
	Jump

	// IfTrue keeps its opcode across executions; each of its two targets
	// is patched independently in place the first time that side is taken.
	IfTrue

	Call
	Ret
	Throw

	Import
	Abort
)

var names = map[Code]string{
	Invalid:     "invalid",
	Push:        "push",
	Pop:         "pop",
	Dup:         "dup",
	Swap:        "swap",
	GetLocal:    "get_local",
	SetLocal:    "set_local",
	AddI32:      "add_i32",
	SubI32:      "sub_i32",
	MulI32:      "mul_i32",
	LtI32:       "lt_i32",
	LeI32:       "le_i32",
	GtI32:       "gt_i32",
	GeI32:       "ge_i32",
	EqI32:       "eq_i32",
	AddF32:      "add_f32",
	SubF32:      "sub_f32",
	MulF32:      "mul_f32",
	DivF32:      "div_f32",
	LtF32:       "lt_f32",
	LeF32:       "le_f32",
	GtF32:       "gt_f32",
	GeF32:       "ge_f32",
	EqF32:       "eq_f32",
	SinF32:      "sin_f32",
	CosF32:      "cos_f32",
	SqrtF32:     "sqrt_f32",
	I32ToF32:    "i32_to_f32",
	F32ToI32:    "f32_to_i32",
	F32ToStr:    "f32_to_str",
	StrToF32:    "str_to_f32",
	EqBool:      "eq_bool",
	HasTag:      "has_tag",
	StrLen:      "str_len",
	GetChar:     "get_char",
	GetCharCode: "get_char_code",
	StrCat:      "str_cat",
	EqStr:       "eq_str",
	NewObject:   "new_object",
	HasField:    "has_field",
	SetField:    "set_field",
	GetField:    "get_field",
	EqObj:       "eq_obj",
	NewArray:    "new_array",
	ArrayLen:    "array_len",
	ArrayPush:   "array_push",
	GetElem:     "get_elem",
	SetElem:     "set_elem",
	JumpStub:    "jump_stub",
	Jump:        "jump",
	IfTrue:      "if_true",
	Call:        "call",
	Ret:         "ret",
	Throw:       "throw",
	Import:      "import",
	Abort:       "abort",
}

// String returns the opcode's mnemonic name, used by diagnostics.
func (c Code) String() string {
	if name, ok := names[c]; ok {
		return name
	}
	return "unknown"
}

// sourceNames maps the `op` field string found on an instruction object
// to the opcode it lowers to. JumpStub/Jump and a handful of other
// mnemonics aren't directly addressable from source since the compiler
// picks them based on context (jump always starts life as a stub).
var sourceNames = map[string]Code{
	"push":          Push,
	"pop":           Pop,
	"dup":           Dup,
	"swap":          Swap,
	"get_local":     GetLocal,
	"set_local":     SetLocal,
	"add_i32":       AddI32,
	"sub_i32":       SubI32,
	"mul_i32":       MulI32,
	"lt_i32":        LtI32,
	"le_i32":        LeI32,
	"gt_i32":        GtI32,
	"ge_i32":        GeI32,
	"eq_i32":        EqI32,
	"add_f32":       AddF32,
	"sub_f32":       SubF32,
	"mul_f32":       MulF32,
	"div_f32":       DivF32,
	"lt_f32":        LtF32,
	"le_f32":        LeF32,
	"gt_f32":        GtF32,
	"ge_f32":        GeF32,
	"eq_f32":        EqF32,
	"sin_f32":       SinF32,
	"cos_f32":       CosF32,
	"sqrt_f32":      SqrtF32,
	"i32_to_f32":    I32ToF32,
	"f32_to_i32":    F32ToI32,
	"f32_to_str":    F32ToStr,
	"str_to_f32":    StrToF32,
	"eq_bool":       EqBool,
	"has_tag":       HasTag,
	"str_len":       StrLen,
	"get_char":      GetChar,
	"get_char_code": GetCharCode,
	"str_cat":       StrCat,
	"eq_str":        EqStr,
	"new_object":    NewObject,
	"has_field":     HasField,
	"set_field":     SetField,
	"get_field":     GetField,
	"eq_obj":        EqObj,
	"new_array":     NewArray,
	"array_len":     ArrayLen,
	"array_push":    ArrayPush,
	"get_elem":      GetElem,
	"set_elem":      SetElem,
	"jump":          JumpStub,
	"if_true":       IfTrue,
	"call":          Call,
	"ret":           Ret,
	"throw":         Throw,
	"import":        Import,
	"abort":         Abort,
}

// Lookup resolves an instruction object's `op` field string to its
// opcode, reporting false for an unrecognized name.
func Lookup(sourceOp string) (Code, bool) {
	c, ok := sourceNames[sourceOp]
	return c, ok
}
