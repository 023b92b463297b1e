// Package vm implements the lazy-compiling bytecode interpreter: the
// block-version registry, the one-pass block compiler, the
// direct-threaded interpreter loop, and the call gateway used to invoke
// exported functions from Go.
package vm

import (
	"fmt"

	"github.com/deepnoodle-ai/zimvm/codebuf"
	"github.com/deepnoodle-ai/zimvm/object"
	"github.com/deepnoodle-ai/zimvm/vmerr"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// Importer resolves a package name to its exported-object package, the
// collaborator IMPORT delegates to. A nil Importer makes IMPORT fail.
type Importer interface {
	Import(name string) (*object.Object, error)
}

// Option configures a VM at construction time.
type Option func(*VM)

// WithLogger attaches a structured logger. The default is a disabled
// logger, matching the teacher's quiet-by-default library posture.
func WithLogger(log zerolog.Logger) Option {
	return func(vm *VM) { vm.log = log }
}

// WithCodeHeapSize overrides the code buffer's fixed capacity in bytes.
func WithCodeHeapSize(size int) Option {
	return func(vm *VM) { vm.codeHeapSize = size }
}

// WithStackSize overrides the value stack's fixed slot count.
func WithStackSize(size int) Option {
	return func(vm *VM) { vm.stackSize = size }
}

// WithImporter installs the collaborator IMPORT calls into.
func WithImporter(importer Importer) Option {
	return func(vm *VM) { vm.importer = importer }
}

// VM owns one code heap, one value stack, and the block-version registry
// that ties them together. A VM is not safe for concurrent use by
// multiple goroutines: the spec's concurrency model is one VM instance
// per goroutine, each with its own code heap and stack.
type VM struct {
	log zerolog.Logger

	codeHeapSize int
	stackSize    int

	code     *codebuf.Buffer
	stack    *stack
	versions *versions
	compiler *blockCompiler
	frames   []frame

	importer Importer

	charCache [256]object.Value

	srcPosIC    *object.FieldCache
	entryIC     *object.FieldCache
	numLocalsIC *object.FieldCache
	numParamsIC *object.FieldCache
}

// New constructs a VM ready to compile and run block versions.
func New(opts ...Option) *VM {
	vm := &VM{
		codeHeapSize: codebuf.DefaultSize,
		stackSize:    DefaultStackSize,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(vm)
	}
	vm.code = codebuf.New(vm.codeHeapSize)
	vm.stack = newStack(vm.stackSize)
	vm.versions = newVersions()
	vm.compiler = newBlockCompiler(vm.code, vm.versions, vm.log)
	vm.srcPosIC = object.NewFieldCache("instrs")
	vm.entryIC = object.NewFieldCache("entry")
	vm.numLocalsIC = object.NewFieldCache("num_locals")
	vm.numParamsIC = object.NewFieldCache("num_params")
	for i := range vm.charCache {
		vm.charCache[i] = object.Undef
	}
	return vm
}

func (vm *VM) ensureCompiled(ver *blockVersion) error {
	if ver.compiled {
		return nil
	}
	if err := vm.compiler.compile(ver); err != nil {
		vm.log.Error().Err(err).Int("version", ver.id).Msg("block compilation failed")
		return err
	}
	return nil
}

// abort renders an ABORT instruction's diagnostic the way the original
// interpreter prints to stdout, using color the way the teacher's CLI
// surfaces fatal errors.
func (vm *VM) abort(pos vmerr.SourcePos, hasPos bool, msg string) {
	prefix := ""
	if hasPos {
		prefix = pos.String() + " - "
	}
	if msg != "" {
		fmt.Println(color.RedString("%saborting execution due to error: %s", prefix, msg))
	} else {
		fmt.Println(color.RedString("%saborting execution due to error", prefix))
	}
	vm.log.Error().Str("pos", prefix).Str("message", msg).Msg("execution aborted")
}
