package vm

import "github.com/deepnoodle-ai/zimvm/object"

// instr builds an instruction object from an opcode mnemonic and a set
// of named fields, the shape the block compiler expects to read off an
// image's instrs array.
func instr(op string, fields map[string]object.Value) *object.Object {
	o := object.NewObject(len(fields) + 1)
	o.SetField("op", object.String(op))
	for name, v := range fields {
		o.SetField(name, v)
	}
	return o
}

// block builds a block object with the given instructions.
func block(instrs ...*object.Object) *object.Object {
	arr := object.NewArray(0)
	for _, i := range instrs {
		arr.Push(object.FromObject(i))
	}
	b := object.NewObject(1)
	b.SetField("instrs", object.FromArray(arr))
	return b
}

// fn builds a function object with the given entry block, param count,
// and local count.
func fn(entry *object.Object, numParams, numLocals int) *object.Object {
	f := object.NewObject(3)
	f.SetField("entry", object.FromObject(entry))
	f.SetField("num_params", object.Int32(int32(numParams)))
	f.SetField("num_locals", object.Int32(int32(numLocals)))
	return f
}
