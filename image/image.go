// Package image loads a program image — the package/function/block/
// instruction object graph the VM's block compiler and call gateway
// operate on — from its CBOR wire encoding.
package image

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/deepnoodle-ai/zimvm/object"
)

// Package is a loaded program image: the exported-object graph
// CallExportFn operates on, tagged with an identifier so an ABORT or
// panic report can name which image produced it.
type Package struct {
	ID     uuid.UUID
	Object *object.Object
}

// Load reads and decodes a CBOR-encoded program image from path.
func Load(path string) (*Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image %s: %w", path, err)
	}
	return Decode(data)
}

// Decode parses a CBOR-encoded program image. Every malformed node
// encountered while walking the image is collected into a multierror
// rather than abandoning at the first one, so a single Load call
// reports every problem with a bad image at once.
func Decode(data []byte) (*Package, error) {
	var root any
	if err := cbor.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("assigning image id: %w", err)
	}

	var errs *multierror.Error
	val := convert(root, &errs)
	if err := errs.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("image %s: %w", id, err)
	}
	if !val.IsObject() {
		return nil, fmt.Errorf("image %s: root node is not an object", id)
	}
	return &Package{ID: id, Object: val.AsObject()}, nil
}

// convert walks a generically-decoded CBOR node (maps, slices, and
// scalars, as produced by unmarshaling into an `any`) into the VM's own
// Value graph. CBOR maps become object.Object; CBOR arrays become
// object.Array. Field and element order in the source image doesn't
// matter: nothing the block compiler does depends on it, only on the
// field names its inline caches probe for ("op", "instrs", "entry", ...).
func convert(raw any, errs **multierror.Error) object.Value {
	switch v := raw.(type) {
	case nil:
		return object.Undef
	case bool:
		return object.Bool(v)
	case int64:
		return object.Int32(int32(v))
	case uint64:
		return object.Int32(int32(v))
	case float64:
		return object.Float32(float32(v))
	case string:
		return object.String(v)
	case []any:
		arr := object.NewArray(len(v))
		for i, item := range v {
			arr.Set(i, convert(item, errs))
		}
		return object.FromArray(arr)
	case map[string]any:
		obj := object.NewObject(len(v))
		for name, fv := range v {
			obj.SetField(name, convert(fv, errs))
		}
		return object.FromObject(obj)
	case map[any]any:
		obj := object.NewObject(len(v))
		for k, fv := range v {
			name, ok := k.(string)
			if !ok {
				*errs = multierror.Append(*errs, fmt.Errorf("object has a non-string field name %v", k))
				continue
			}
			obj.SetField(name, convert(fv, errs))
		}
		return object.FromObject(obj)
	default:
		*errs = multierror.Append(*errs, fmt.Errorf("unsupported image node of type %T", raw))
		return object.Undef
	}
}
