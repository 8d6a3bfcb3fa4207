package vm

import "fmt"

// Handle names one raw allocation. Zero is the null handle.
type Handle uint32

type rawAlloc struct {
	data  []byte
	align int
	freed bool
}

type rawMemory struct {
	next   Handle
	allocs map[Handle]*rawAlloc
}

func newRawMemory() *rawMemory {
	return &rawMemory{
		next:   1,
		allocs: make(map[Handle]*rawAlloc, 64),
	}
}

func (vm *VM) rawAlloc(size, align int) (Handle, *VMError) {
	if size < 0 {
		return 0, vm.eb.makeError(PanicOutOfBounds, fmt.Sprintf("alloc size %d out of range", size))
	}
	if align <= 0 {
		align = 1
	}
	h := vm.rawMem.next
	vm.rawMem.next++
	vm.rawMem.allocs[h] = &rawAlloc{
		data:  make([]byte, size),
		align: align,
	}
	return h, nil
}

func (vm *VM) rawGet(handle Handle) (*rawAlloc, *VMError) {
	if handle == 0 {
		return nil, vm.eb.makeError(PanicInvalidHandle, "invalid raw handle 0")
	}
	alloc, ok := vm.rawMem.allocs[handle]
	if !ok || alloc == nil {
		return nil, vm.eb.makeError(PanicInvalidHandle, fmt.Sprintf("invalid raw handle %d", handle))
	}
	if alloc.freed {
		return nil, vm.eb.makeError(PanicUseAfterFree, fmt.Sprintf("use-after-free: raw handle %d", handle))
	}
	return alloc, nil
}

func (vm *VM) rawFree(handle Handle) *VMError {
	if handle == 0 {
		return vm.eb.makeError(PanicInvalidHandle, "invalid raw handle 0")
	}
	alloc, ok := vm.rawMem.allocs[handle]
	if !ok || alloc == nil {
		return vm.eb.makeError(PanicInvalidHandle, fmt.Sprintf("invalid raw handle %d", handle))
	}
	if alloc.freed {
		return vm.eb.makeError(PanicDoubleFree, fmt.Sprintf("double free: raw handle %d", handle))
	}
	alloc.freed = true
	alloc.data = nil
	return nil
}

// bytesAt returns n bytes of memory at pointer p.
func (vm *VM) bytesAt(p Val, n int) ([]byte, *VMError) {
	if p.Undef {
		return nil, vm.eb.makeError(PanicUndefValue, "access through an undefined pointer")
	}
	alloc, err := vm.rawGet(p.Handle())
	if err != nil {
		return nil, err
	}
	off := p.Offset()
	if off < 0 || off+n > len(alloc.data) {
		return nil, vm.eb.outOfBounds(p.Handle(), off, n, len(alloc.data))
	}
	return alloc.data[off : off+n], nil
}

// Alloc reserves size zeroed bytes that outlive any call and returns their
// address.
func (vm *VM) Alloc(size int) Val {
	h, err := vm.rawAlloc(size, 16)
	if err != nil {
		panic(err)
	}
	return Ptr(h, 0)
}

// Bytes returns a copy of n bytes at p.
func (vm *VM) Bytes(p Val, n int) ([]byte, error) {
	b, err := vm.bytesAt(p, n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// WriteBytes copies b to memory at p.
func (vm *VM) WriteBytes(p Val, b []byte) error {
	dst, err := vm.bytesAt(p, len(b))
	if err != nil {
		return err
	}
	copy(dst, b)
	return nil
}
