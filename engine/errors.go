package engine

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

var (
	// ErrEngineInit reports a failure to bring up the underlying engine;
	// the runtime is unusable.
	ErrEngineInit = errors.New("engine init failed")
	// ErrParse reports module source that could not be transpiled or
	// compiled.
	ErrParse = errors.New("parse error")
	// ErrExportNotFound reports a missing exported binding.
	ErrExportNotFound = errors.New("export not found")
	// ErrRuntime reports an exception raised by script code. Match with
	// errors.Is; the concrete value is a *ScriptError.
	ErrRuntime = errors.New("script runtime error")
	// ErrTimeout reports a call abandoned after exceeding the configured
	// timeout. The context is degraded afterwards.
	ErrTimeout = errors.New("call timeout")
	// ErrClosed reports an operation on a closed runtime.
	ErrClosed = errors.New("runtime closed")
	// ErrDegraded reports an operation on a context abandoned after a
	// timeout. The context must be replaced.
	ErrDegraded = errors.New("context degraded")
	// ErrCapabilityDenied reports script code touching a capability the
	// sandbox policy does not grant. It surfaces inside the script as a
	// catchable exception and crosses back to the host intact.
	ErrCapabilityDenied = errors.New("capability denied")
)

// ScriptError carries the message and stack of an exception raised by
// script code. It matches ErrRuntime under errors.Is. Messages are meant to
// be surfaced verbatim: they usually indicate a contract mismatch between
// host and script authors.
type ScriptError struct {
	Message string
	Stack   string
}

func (e *ScriptError) Error() string { return "script error: " + e.Message }

func (e *ScriptError) Is(target error) bool { return target == ErrRuntime }

// loadError smuggles a loader failure out through the engine's panic path.
// Unlike script exceptions it is not catchable by script code: module
// resolution failures are host-level errors.
type loadError struct {
	err error
}

// wrapScriptErr normalizes an error returned by an engine evaluation.
func wrapScriptErr(err error) error {
	var intr *goja.InterruptedError
	if errors.As(err, &intr) {
		return ErrTimeout
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		// Errors thrown from Go (denied capabilities, host functions)
		// keep their identity so sentinel matching works.
		if goErr := exportedError(ex.Value()); goErr != nil {
			return goErr
		}
		return &ScriptError{Message: ex.Error(), Stack: ex.String()}
	}
	return fmt.Errorf("%w: %v", ErrRuntime, err)
}

// exportedError digs the original Go error out of a thrown value. GoError
// objects carry it in their value property; plain wrapped Go errors export
// directly.
func exportedError(v goja.Value) error {
	if v == nil {
		return nil
	}
	if obj, ok := v.(*goja.Object); ok {
		if inner := obj.Get("value"); inner != nil {
			if err, ok := inner.Export().(error); ok {
				return err
			}
		}
	}
	if err, ok := v.Export().(error); ok {
		return err
	}
	return nil
}

// recovered normalizes a panic recovered from an engine evaluation.
func recovered(r any) error {
	switch x := r.(type) {
	case loadError:
		return x.err
	case *goja.Exception:
		return wrapScriptErr(x)
	case *goja.InterruptedError:
		return ErrTimeout
	case error:
		return fmt.Errorf("%w: %v", ErrRuntime, x)
	default:
		return fmt.Errorf("%w: %v", ErrRuntime, x)
	}
}
