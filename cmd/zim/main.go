// Command zim is the thin CLI driver: it loads a program image, wires up
// an importer holding the "rand" host module, and calls a named exported
// function with no arguments. It holds no VM logic of its own,
// mirroring how cmd/risor is a wrapper around the risor package's API.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/deepnoodle-ai/zimvm/image"
	"github.com/deepnoodle-ai/zimvm/importer"
	"github.com/deepnoodle-ai/zimvm/modules/randmod"
	"github.com/deepnoodle-ai/zimvm/object"
	"github.com/deepnoodle-ai/zimvm/vm"
)

func main() {
	imagePath := flag.String("image", "", "path to a CBOR-encoded program image")
	fnName := flag.String("fn", "main", "exported function to call")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if *imagePath == "" {
		fmt.Fprintln(os.Stderr, "usage: zim -image <path> [-fn name]")
		os.Exit(2)
	}

	log := zerolog.Nop()
	if *verbose {
		log = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	pkg, err := image.Load(*imagePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("failed to load image: %s", err))
		os.Exit(1)
	}

	reg := importer.NewRegistry()
	reg.Register("rand", randmod.New())

	machine := vm.New(vm.WithLogger(log), vm.WithImporter(reg))

	result, err := machine.CallExportFn(pkg.Object, *fnName, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("%s: %s", pkg.ID, err))
		os.Exit(1)
	}
	fmt.Println(formatResult(result))
}

func formatResult(v object.Value) string {
	switch v.Tag() {
	case object.STRING:
		return v.AsString()
	case object.INT32:
		return fmt.Sprintf("%d", v.AsInt32())
	case object.FLOAT32:
		return fmt.Sprintf("%g", v.AsFloat32())
	case object.BOOL:
		return fmt.Sprintf("%t", v.AsBool())
	case object.UNDEF:
		return "undef"
	default:
		return v.Tag().String()
	}
}
