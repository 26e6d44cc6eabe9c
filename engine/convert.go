package engine

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/modra-dev/modra/codec"
)

// toGoja converts a neutral value into an engine value. Must run on the
// context's loop.
func toGoja(vm *goja.Runtime, v codec.Value) goja.Value {
	if v.IsUndefined() {
		return goja.Undefined()
	}
	if v.IsNull() {
		return goja.Null()
	}
	// Interface yields a plain Go tree the engine converts recursively.
	// Undefined elements nested inside containers surface as null.
	return vm.ToValue(v.Interface())
}

// fromGoja converts an engine value into its neutral form. Must run on the
// context's loop. Functions and other engine-native references have no
// representable shape and fail with codec.ErrUnsupportedType.
func fromGoja(v goja.Value) (codec.Value, error) {
	if v == nil || goja.IsUndefined(v) {
		return codec.Undefined(), nil
	}
	if goja.IsNull(v) {
		return codec.Null(), nil
	}
	if _, isFn := goja.AssertFunction(v); isFn {
		return codec.Value{}, fmt.Errorf("%w: function value cannot cross the host boundary", codec.ErrUnsupportedType)
	}
	return codec.Encode(v.Export())
}
