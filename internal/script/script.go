// Package script runs JavaScript import hooks.
//
// A script defines a global function
//
//	function handleImport(name, cpu, call) { ... }
//
// that is offered every import call before the built-in stubs. Returning
// undefined, null or false declines the call; a number or {rax: n}
// completes it with that return value; true completes it leaving rax as
// the script set it.
package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/JohnDoe6345789/winejs/internal/emulator"
	"github.com/JohnDoe6345789/winejs/internal/log"
	"github.com/JohnDoe6345789/winejs/internal/winstr"
)

// EntryPoint is the function every script must define.
const EntryPoint = "handleImport"

// DefaultTimeout bounds a single handleImport call.
const DefaultTimeout = time.Second

var ErrNoEntryPoint = errors.New("script does not define " + EntryPoint)

// Engine is one loaded script. It is not safe for concurrent use.
type Engine struct {
	Name    string
	Timeout time.Duration

	vm     *goja.Runtime
	handle goja.Callable
	log    *log.Logger
}

// Load compiles the script at path.
func Load(path string, logger *log.Logger) (*Engine, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return New(filepath.Base(path), string(src), logger)
}

// New compiles src and looks up its entry point.
func New(name, src string, logger *log.Logger) (*Engine, error) {
	if logger == nil {
		logger = log.L
	}
	e := &Engine{
		Name:    name,
		Timeout: DefaultTimeout,
		vm:      goja.New(),
		log:     logger.WithFields(zap.String("script", name)),
	}
	e.vm.Set("log", e.jsLog)

	prog, err := goja.Compile(name, src, true)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	if _, err := e.vm.RunProgram(prog); err != nil {
		return nil, fmt.Errorf("run %s: %w", name, err)
	}
	fn, ok := goja.AssertFunction(e.vm.Get(EntryPoint))
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNoEntryPoint)
	}
	e.handle = fn
	return e, nil
}

// LoadAll loads every path and chains the resulting hooks in order.
func LoadAll(paths []string, logger *log.Logger) ([]*Engine, error) {
	engines := make([]*Engine, 0, len(paths))
	for _, p := range paths {
		e, err := Load(p, logger)
		if err != nil {
			return nil, err
		}
		engines = append(engines, e)
	}
	return engines, nil
}

// Hooks chains engines into a single import hook.
func Hooks(engines ...*Engine) emulator.ImportHooks {
	hs := make([]emulator.ImportHooks, len(engines))
	for i, e := range engines {
		hs[i] = e
	}
	return emulator.Chain(hs...)
}

// HandleImport offers the call to the script. Script errors are logged and
// treated as a declined call.
func (e *Engine) HandleImport(name string, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	if e.Timeout > 0 {
		t := time.AfterFunc(e.Timeout, func() {
			e.vm.Interrupt("handleImport timed out")
		})
		defer func() {
			t.Stop()
			e.vm.ClearInterrupt()
		}()
	}

	ret, err := e.handle(goja.Undefined(),
		e.vm.ToValue(name),
		e.cpuObject(cpu),
		e.callObject(call),
	)
	if err != nil {
		e.log.Warn("script error", log.Fn(name), zap.Error(err))
		return emulator.NotHandled()
	}
	return e.outcome(ret, cpu)
}

// outcome normalizes a handleImport return value.
func (e *Engine) outcome(v goja.Value, cpu *emulator.CPU) emulator.HookOutcome {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return emulator.NotHandled()
	}
	switch x := v.Export().(type) {
	case bool:
		if !x {
			return emulator.NotHandled()
		}
		return emulator.Handled(cpu.Reg(emulator.RAX, 64))
	case int64:
		return emulator.Handled(uint64(x))
	case float64:
		return emulator.Handled(uint64(int64(x)))
	}
	if obj, ok := v.(*goja.Object); ok {
		rax := obj.Get("rax")
		if rax != nil && !goja.IsUndefined(rax) && !goja.IsNull(rax) {
			return emulator.Handled(uint64(rax.ToInteger()))
		}
		// Any other object is truthy: handled, rax left as is.
		return emulator.Handled(cpu.Reg(emulator.RAX, 64))
	}
	return emulator.NotHandled()
}

func (e *Engine) jsLog(c goja.FunctionCall) goja.Value {
	args := make([]any, len(c.Arguments))
	for i, a := range c.Arguments {
		args[i] = a.String()
	}
	e.log.Info(fmt.Sprint(args...))
	return goja.Undefined()
}

func (e *Engine) throw(format string, args ...any) {
	panic(e.vm.NewTypeError(fmt.Sprintf(format, args...)))
}

func (e *Engine) intArg(c goja.FunctionCall, i int) uint64 {
	return uint64(c.Argument(i).ToInteger())
}

// optInt returns argument i, or def when it is missing.
func (e *Engine) optInt(c goja.FunctionCall, i, def int) int {
	a := c.Argument(i)
	if goja.IsUndefined(a) || goja.IsNull(a) {
		return def
	}
	return int(a.ToInteger())
}

func (e *Engine) cpuObject(cpu *emulator.CPU) *goja.Object {
	o := e.vm.NewObject()
	o.Set("readRegister", func(c goja.FunctionCall) goja.Value {
		v, err := cpu.ReadRegister(c.Argument(0).String())
		if err != nil {
			e.throw("%v", err)
		}
		return e.vm.ToValue(int64(v))
	})
	o.Set("writeRegister", func(c goja.FunctionCall) goja.Value {
		if err := cpu.WriteRegister(c.Argument(0).String(), e.intArg(c, 1)); err != nil {
			e.throw("%v", err)
		}
		return goja.Undefined()
	})
	o.Set("readAnsi", func(c goja.FunctionCall) goja.Value {
		return e.vm.ToValue(winstr.ReadANSI(cpu.Memory(), e.intArg(c, 0), e.optInt(c, 1, winstr.DefaultLimit)))
	})
	o.Set("readWide", func(c goja.FunctionCall) goja.Value {
		return e.vm.ToValue(winstr.ReadWide(cpu.Memory(), e.intArg(c, 0), e.optInt(c, 1, winstr.DefaultLimit)))
	})
	o.Set("read", func(c goja.FunctionCall) goja.Value {
		n := e.optInt(c, 1, 0)
		if n < 0 || n > winstr.MaxANSIBytes {
			e.throw("read length %d out of range", n)
		}
		return e.vm.ToValue(e.vm.NewArrayBuffer(cpu.Memory().ReadBytes(e.intArg(c, 0), n)))
	})
	o.Set("write", func(c goja.FunctionCall) goja.Value {
		data, ok := e.bytes(c.Argument(1))
		if !ok {
			e.throw("write expects a string, array or ArrayBuffer")
		}
		cpu.Memory().WriteBytes(e.intArg(c, 0), data)
		return e.vm.ToValue(len(data))
	})
	o.Set("rip", func(goja.FunctionCall) goja.Value {
		return e.vm.ToValue(int64(cpu.RIP()))
	})
	return o
}

// bytes converts a script value to guest bytes.
func (e *Engine) bytes(v goja.Value) ([]byte, bool) {
	switch x := v.Export().(type) {
	case string:
		return []byte(x), true
	case goja.ArrayBuffer:
		return append([]byte(nil), x.Bytes()...), true
	case []byte:
		return append([]byte(nil), x...), true
	case []any:
		out := make([]byte, len(x))
		for i, el := range x {
			switch n := el.(type) {
			case int64:
				out[i] = byte(n)
			case float64:
				out[i] = byte(int64(n))
			default:
				return nil, false
			}
		}
		return out, true
	}
	return nil, false
}

func (e *Engine) callObject(call *emulator.ImportCall) *goja.Object {
	o := e.vm.NewObject()
	o.Set("dll", call.Symbol.DLL)
	o.Set("name", call.Symbol.Name)
	o.Set("print", func(c goja.FunctionCall) goja.Value {
		call.Print(c.Argument(0).String())
		return goja.Undefined()
	})
	o.Set("stop", func(goja.FunctionCall) goja.Value {
		call.Stop()
		return goja.Undefined()
	})
	o.Set("arg", func(c goja.FunctionCall) goja.Value {
		return e.vm.ToValue(int64(call.Arg(int(c.Argument(0).ToInteger()))))
	})
	return o
}
