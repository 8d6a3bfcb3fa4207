// Package vm interprets lowered modules. It backs the tests of call lowering
// and the emit command's smoke run: functions run instruction by instruction
// over byte-addressed memory, and the runtime entry points are provided
// natively with atomic reference counts.
package vm

import (
	"fmt"

	"callgen/internal/ir"
	"callgen/internal/trace"
)

// Options configures VM execution.
type Options struct {
	// Tracer receives one point per executed call.
	Tracer trace.Tracer
	// MaxDepth bounds nested calls; zero means 1024.
	MaxDepth int
}

// Native implements an external function. It receives the physical
// arguments and returns the result, or the zero Val for void.
type Native func(vm *VM, args []Val) (Val, error)

// VM is a direct interpreter over ir functions.
type VM struct {
	M    *ir.Module
	opts Options
	dl   ir.DataLayout

	rawMem       *rawMemory
	heap         *objectHeap
	heapCounters heapCounters

	funcs      map[*ir.Function]Handle
	funcByAddr map[Handle]*ir.Function
	globals    map[*ir.Global]Handle
	natives    map[string]Native

	stack []*frame
	eb    *errorBuilder
}

type frame struct {
	fn      *ir.Function
	params  []Val
	vals    map[*ir.Value]Val
	allocas []Handle
}

// New creates a VM for m. Only layouts with 64-bit pointers are supported.
func New(m *ir.Module, opts Options) (*VM, error) {
	if m.Layout.PtrSize != 8 {
		return nil, fmt.Errorf("vm: %d-byte pointers are not supported", m.Layout.PtrSize)
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.Nop
	}
	if opts.MaxDepth == 0 {
		opts.MaxDepth = 1024
	}
	vm := &VM{
		M:          m,
		opts:       opts,
		dl:         m.Layout,
		rawMem:     newRawMemory(),
		heap:       newObjectHeap(),
		funcs:      make(map[*ir.Function]Handle),
		funcByAddr: make(map[Handle]*ir.Function),
		globals:    make(map[*ir.Global]Handle),
		natives:    make(map[string]Native),
	}
	vm.eb = &errorBuilder{vm: vm}
	vm.registerRuntime()
	if err := vm.materializeGlobals(); err != nil {
		return nil, err
	}
	return vm, nil
}

// RegisterNative provides the body of an external function.
func (vm *VM) RegisterNative(name string, fn Native) {
	vm.natives[name] = fn
}

// FuncAddr returns the address of the function called name.
func (vm *VM) FuncAddr(name string) (Val, error) {
	fn, ok := vm.M.Function(name)
	if !ok {
		return Val{}, vm.eb.makeError(PanicUnknownFunction, fmt.Sprintf("no function %s", name))
	}
	return Ptr(vm.funcHandle(fn), 0), nil
}

// GlobalAddr returns the address of a global.
func (vm *VM) GlobalAddr(g *ir.Global) Val {
	return Ptr(vm.globals[g], 0)
}

func (vm *VM) funcHandle(fn *ir.Function) Handle {
	if h, ok := vm.funcs[fn]; ok {
		return h
	}
	h, err := vm.rawAlloc(1, 1)
	if err != nil {
		panic(err)
	}
	vm.funcs[fn] = h
	vm.funcByAddr[h] = fn
	return h
}

func (vm *VM) materializeGlobals() error {
	gs := vm.M.Globals()
	for _, g := range gs {
		h, err := vm.rawAlloc(int(vm.dl.AllocSize(g.Type)), int(vm.dl.AlignOf(g.Type)))
		if err != nil {
			return err
		}
		vm.globals[g] = h
	}
	for _, g := range gs {
		if len(g.Init) == 0 {
			continue
		}
		var init Val
		if len(g.Init) == 1 && !g.Type.IsAggregate() {
			init = vm.constant(g.Init[0])
		} else {
			init.Agg = make([]Val, len(g.Init))
			for i, v := range g.Init {
				init.Agg[i] = vm.constant(v)
			}
		}
		if err := vm.Store(init, g.Type, Ptr(vm.globals[g], 0)); err != nil {
			return err
		}
	}
	return nil
}

// Call runs the function called name with physical arguments.
func (vm *VM) Call(name string, args ...Val) (Val, error) {
	fn, ok := vm.M.Function(name)
	if !ok {
		return Val{}, vm.eb.makeError(PanicUnknownFunction, fmt.Sprintf("no function %s", name))
	}
	v, err := vm.call(fn, args)
	if err != nil {
		return Val{}, err
	}
	return v, nil
}

func (vm *VM) call(fn *ir.Function, args []Val) (Val, *VMError) {
	if len(args) != len(fn.Type.Params) {
		return Val{}, vm.eb.makeError(PanicTypeMismatch,
			fmt.Sprintf("%s called with %d arguments, want %d", fn.Name, len(args), len(fn.Type.Params)))
	}
	args = fitArgs(args, fn.Type.Params)
	trace.Point(vm.opts.Tracer, trace.ScopeFunc, "vm.call", fn.Name)
	if !fn.Defined {
		native, ok := vm.natives[fn.Name]
		if !ok {
			return Val{}, vm.eb.makeError(PanicUnknownFunction, fmt.Sprintf("call to undefined external %s", fn.Name))
		}
		v, err := native(vm, args)
		if err != nil {
			if ve, ok := err.(*VMError); ok {
				return Val{}, ve
			}
			return Val{}, vm.eb.makeError(PanicNative, fmt.Sprintf("%s: %v", fn.Name, err))
		}
		return v, nil
	}
	if len(vm.stack) >= vm.opts.MaxDepth {
		return Val{}, vm.eb.makeError(PanicOutOfBounds, fmt.Sprintf("call depth exceeds %d", vm.opts.MaxDepth))
	}
	fr := &frame{fn: fn, params: args, vals: make(map[*ir.Value]Val, len(fn.Body))}
	vm.stack = append(vm.stack, fr)
	v, err := vm.run(fr)
	vm.stack = vm.stack[:len(vm.stack)-1]
	for _, h := range fr.allocas {
		if ferr := vm.rawFree(h); ferr != nil && err == nil {
			err = ferr
		}
	}
	return v, err
}

// fitArgs truncates the integer parts of each argument to its parameter
// width.
func fitArgs(args []Val, params []*ir.Type) []Val {
	out := make([]Val, len(args))
	for i, a := range args {
		out[i] = fit(a, params[i])
	}
	return out
}

func fit(v Val, t *ir.Type) Val {
	if v.Undef {
		return v
	}
	switch {
	case t.IsInteger():
		v.Bits = truncate(v.Bits, t.Bits)
	case t.Kind == ir.TStruct && len(v.Agg) == len(t.Fields):
		agg := make([]Val, len(v.Agg))
		for i := range v.Agg {
			agg[i] = fit(v.Agg[i], t.Fields[i])
		}
		v.Agg = agg
	case (t.Kind == ir.TArray || t.Kind == ir.TVector) && len(v.Agg) == t.Len:
		agg := make([]Val, len(v.Agg))
		for i := range v.Agg {
			agg[i] = fit(v.Agg[i], t.Elem)
		}
		v.Agg = agg
	}
	return v
}
