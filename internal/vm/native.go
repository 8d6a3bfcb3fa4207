package vm

import (
	"fmt"
	"sync/atomic"

	"callgen/internal/ir"
	"callgen/internal/runtime"
)

// object is the side record of a heap object allocated by the runtime.
type object struct {
	size    int
	strong  atomic.Int64
	unowned atomic.Int64
}

type objectHeap struct {
	objs map[Handle]*object
}

func newObjectHeap() *objectHeap {
	return &objectHeap{objs: make(map[Handle]*object, 32)}
}

func (vm *VM) registerRuntime() {
	vm.natives[runtime.AllocObject] = nativeAlloc
	vm.natives[runtime.DeallocObject] = nativeDealloc
	vm.natives[runtime.Retain] = nativeRetain
	vm.natives[runtime.Release] = nativeRelease
	vm.natives[runtime.UnownedRetain] = nativeUnownedRetain
	vm.natives[runtime.UnownedRelease] = nativeUnownedRelease
}

func (vm *VM) lookupObject(p Val, what string) (*object, *VMError) {
	if p.Undef {
		return nil, vm.eb.makeError(PanicUndefValue, what+" of an undefined pointer")
	}
	obj, ok := vm.heap.objs[p.Handle()]
	if !ok || p.Offset() != 0 {
		return nil, vm.eb.makeError(PanicInvalidHandle, fmt.Sprintf("%s of non-object %s", what, p))
	}
	return obj, nil
}

// nativeAlloc allocates an object and writes its metadata into the header.
func nativeAlloc(vm *VM, args []Val) (Val, error) {
	md, size := args[0], int(args[1].Bits)
	align := int(args[2].Bits) + 1
	if size < int(2*vm.dl.PtrSize) {
		return Val{}, vm.eb.makeError(PanicOutOfBounds, fmt.Sprintf("object of %d bytes has no room for its header", size))
	}
	h, err := vm.rawAlloc(size, align)
	if err != nil {
		return Val{}, err
	}
	obj := &object{size: size}
	obj.strong.Store(1)
	vm.heap.objs[h] = obj
	p := Ptr(h, 0)
	if err := vm.Store(md, ir.I8Ptr, p); err != nil {
		return Val{}, err
	}
	vm.heapCounters.allocCount++
	return p, nil
}

func nativeDealloc(vm *VM, args []Val) (Val, error) {
	p := args[0]
	obj, err := vm.lookupObject(p, "dealloc")
	if err != nil {
		return Val{}, err
	}
	if n := obj.strong.Load(); n != 0 {
		return Val{}, vm.eb.makeError(PanicInvalidHandle, fmt.Sprintf("dealloc of live object %s with %d references", p, n))
	}
	if size := int(args[1].Bits); size != obj.size {
		return Val{}, vm.eb.makeError(PanicInvalidHandle, fmt.Sprintf("dealloc size %d, allocated %d", size, obj.size))
	}
	if ferr := vm.rawFree(p.Handle()); ferr != nil {
		return Val{}, ferr
	}
	delete(vm.heap.objs, p.Handle())
	vm.heapCounters.freeCount++
	return Val{}, nil
}

// immortal reports function addresses, which may stand in for a closure
// context and are never counted.
func (vm *VM) immortal(p Val) bool {
	_, ok := vm.funcByAddr[p.Handle()]
	return ok && !p.Undef && p.Offset() == 0
}

func nativeRetain(vm *VM, args []Val) (Val, error) {
	if args[0].IsNull() || vm.immortal(args[0]) {
		return Val{}, nil
	}
	obj, err := vm.lookupObject(args[0], "retain")
	if err != nil {
		return Val{}, err
	}
	if obj.strong.Add(1) <= 1 {
		return Val{}, vm.eb.makeError(PanicUseAfterFree, fmt.Sprintf("retain of dead object %s", args[0]))
	}
	vm.heapCounters.rcIncrCount++
	return Val{}, nil
}

// nativeRelease drops one reference and runs the destroy function from the
// object's metadata when the count reaches zero.
func nativeRelease(vm *VM, args []Val) (Val, error) {
	p := args[0]
	if p.IsNull() || vm.immortal(p) {
		return Val{}, nil
	}
	obj, err := vm.lookupObject(p, "release")
	if err != nil {
		return Val{}, err
	}
	vm.heapCounters.rcDecrCount++
	n := obj.strong.Add(-1)
	if n < 0 {
		return Val{}, vm.eb.makeError(PanicRefcountUnderflow, fmt.Sprintf("release of dead object %s", p))
	}
	if n > 0 {
		return Val{}, nil
	}
	md, lerr := vm.Load(ir.I8Ptr, p)
	if lerr != nil {
		return Val{}, lerr
	}
	destroyAddr, lerr := vm.Load(ir.I8Ptr, md)
	if lerr != nil {
		return Val{}, lerr
	}
	destroy, err := vm.resolveFunc(destroyAddr)
	if err != nil {
		return Val{}, err
	}
	if _, err := vm.call(destroy, []Val{p}); err != nil {
		return Val{}, err
	}
	return Val{}, nil
}

func nativeUnownedRetain(vm *VM, args []Val) (Val, error) {
	if args[0].IsNull() {
		return Val{}, nil
	}
	obj, err := vm.lookupObject(args[0], "unowned retain")
	if err != nil {
		return Val{}, err
	}
	obj.unowned.Add(1)
	return Val{}, nil
}

func nativeUnownedRelease(vm *VM, args []Val) (Val, error) {
	if args[0].IsNull() {
		return Val{}, nil
	}
	obj, err := vm.lookupObject(args[0], "unowned release")
	if err != nil {
		return Val{}, err
	}
	if obj.unowned.Add(-1) < 0 {
		return Val{}, vm.eb.makeError(PanicRefcountUnderflow, fmt.Sprintf("unowned release of %s", args[0]))
	}
	return Val{}, nil
}

// RefCount returns the strong count of the object at p, or -1 if p is not a
// live object.
func (vm *VM) RefCount(p Val) int64 {
	obj, ok := vm.heap.objs[p.Handle()]
	if !ok {
		return -1
	}
	return obj.strong.Load()
}
