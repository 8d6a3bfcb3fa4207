package vm

import (
	"fmt"

	"callgen/internal/ir"
)

func (vm *VM) run(fr *frame) (Val, *VMError) {
	for _, in := range fr.fn.Body {
		v, done, err := vm.step(fr, in)
		if err != nil {
			return Val{}, err
		}
		if done {
			return v, nil
		}
		if in.Result != nil {
			fr.vals[in.Result] = v
		}
	}
	return Val{}, vm.eb.makeError(PanicOutOfBounds, fmt.Sprintf("%s falls off its end", fr.fn.Name))
}

// step executes one instruction. done is set by ret.
func (vm *VM) step(fr *frame, in *ir.Instr) (Val, bool, *VMError) {
	switch in.Op {
	case ir.OpAlloca:
		size := int(vm.dl.AllocSize(in.Ty))
		h, err := vm.rawAlloc(size, int(in.Align))
		if err != nil {
			return Val{}, false, err
		}
		fr.allocas = append(fr.allocas, h)
		return Ptr(h, 0), false, nil

	case ir.OpLoad:
		p, err := vm.operand(fr, in.Operands[0])
		if err != nil {
			return Val{}, false, err
		}
		buf, err := vm.bytesAt(p, int(vm.dl.StoreSize(in.Ty)))
		if err != nil {
			return Val{}, false, err
		}
		return vm.decode(buf, in.Ty), false, nil

	case ir.OpStore:
		val, err := vm.operand(fr, in.Operands[0])
		if err != nil {
			return Val{}, false, err
		}
		p, err := vm.operand(fr, in.Operands[1])
		if err != nil {
			return Val{}, false, err
		}
		t := in.Operands[0].Type
		buf, err := vm.bytesAt(p, int(vm.dl.StoreSize(t)))
		if err != nil {
			return Val{}, false, err
		}
		vm.encode(buf, val, t)
		return Val{}, false, nil

	case ir.OpBitcast:
		val, err := vm.operand(fr, in.Operands[0])
		if err != nil {
			return Val{}, false, err
		}
		if in.Ty.IsInteger() {
			val.Bits = truncate(val.Bits, in.Ty.Bits)
		}
		return val, false, nil

	case ir.OpByteOffset:
		p, err := vm.operand(fr, in.Operands[0])
		if err != nil {
			return Val{}, false, err
		}
		if p.Undef {
			return Val{}, false, vm.eb.makeError(PanicUndefValue, "offset of an undefined pointer")
		}
		return Ptr(p.Handle(), p.Offset()+int(in.Offset)), false, nil

	case ir.OpExtractValue:
		agg, err := vm.operand(fr, in.Operands[0])
		if err != nil {
			return Val{}, false, err
		}
		return elem(agg, in.Index), false, nil

	case ir.OpInsertValue:
		agg, err := vm.operand(fr, in.Operands[0])
		if err != nil {
			return Val{}, false, err
		}
		val, err := vm.operand(fr, in.Operands[1])
		if err != nil {
			return Val{}, false, err
		}
		if agg.Undef || agg.Agg == nil {
			agg = undef(in.Operands[0].Type)
		}
		out := Val{Agg: append([]Val(nil), agg.Agg...)}
		out.Agg[in.Index] = val
		return out, false, nil

	case ir.OpMemcpy:
		dst, err := vm.operand(fr, in.Operands[0])
		if err != nil {
			return Val{}, false, err
		}
		src, err := vm.operand(fr, in.Operands[1])
		if err != nil {
			return Val{}, false, err
		}
		n := int(in.Size)
		from, err := vm.bytesAt(src, n)
		if err != nil {
			return Val{}, false, err
		}
		to, err := vm.bytesAt(dst, n)
		if err != nil {
			return Val{}, false, err
		}
		copy(to, from)
		return Val{}, false, nil

	case ir.OpCall:
		return vm.execCall(fr, in)

	case ir.OpRet:
		if len(in.Operands) == 0 {
			return Val{}, true, nil
		}
		val, err := vm.operand(fr, in.Operands[0])
		return val, true, err
	}
	return Val{}, false, vm.eb.makeError(PanicUnimplemented, fmt.Sprintf("opcode %s", in.Op))
}

func (vm *VM) execCall(fr *frame, in *ir.Instr) (Val, bool, *VMError) {
	target, err := vm.operand(fr, in.Call.Callee)
	if err != nil {
		return Val{}, false, err
	}
	fn, err := vm.resolveFunc(target)
	if err != nil {
		return Val{}, false, err
	}
	n := len(in.Operands)
	switch {
	case fn.Type.Equal(in.Call.FnType):
	case widens(in.Call.FnType, fn.Type):
		n = len(fn.Type.Params)
	case fn.Defined:
		return Val{}, false, vm.eb.typeMismatch("call through "+fn.Name, in.Call.FnType, fn.Type)
	}
	args := make([]Val, len(in.Operands))
	for i, a := range in.Operands {
		if args[i], err = vm.operand(fr, a); err != nil {
			return Val{}, false, err
		}
	}
	v, err := vm.call(fn, args[:n])
	return v, false, err
}

// widens reports whether a call typed as call may reach a function typed as
// fn: same result, fn's parameters a prefix of call's, and every extra
// trailing argument a pointer the callee never reads.
func widens(call, fn *ir.Type) bool {
	if call.Kind != ir.TFunc || fn.Kind != ir.TFunc || len(call.Params) <= len(fn.Params) {
		return false
	}
	if !call.Ret.Equal(fn.Ret) {
		return false
	}
	for i, p := range fn.Params {
		if !p.Equal(call.Params[i]) {
			return false
		}
	}
	for _, p := range call.Params[len(fn.Params):] {
		if !p.IsPointer() {
			return false
		}
	}
	return true
}

func (vm *VM) resolveFunc(p Val) (*ir.Function, *VMError) {
	if p.Undef {
		return nil, vm.eb.makeError(PanicUndefValue, "call through an undefined pointer")
	}
	fn, ok := vm.funcByAddr[p.Handle()]
	if !ok || p.Offset() != 0 {
		return nil, vm.eb.makeError(PanicInvalidHandle, fmt.Sprintf("call through non-function pointer %s", p))
	}
	return fn, nil
}

func (vm *VM) operand(fr *frame, v *ir.Value) (Val, *VMError) {
	switch v.Kind {
	case ir.VParam:
		if v.Index >= len(fr.params) {
			return Val{}, vm.eb.makeError(PanicOutOfBounds, fmt.Sprintf("parameter %d of %s", v.Index, fr.fn.Name))
		}
		return fr.params[v.Index], nil
	case ir.VInstr:
		val, ok := fr.vals[v]
		if !ok {
			return Val{}, vm.eb.makeError(PanicUndefValue, fmt.Sprintf("%%%s used before definition", v.Name))
		}
		return val, nil
	}
	return vm.constant(v), nil
}

func (vm *VM) constant(v *ir.Value) Val {
	switch v.Kind {
	case ir.VConstInt:
		return Val{Bits: truncate(uint64(v.Int), v.Type.Bits)}
	case ir.VConstFloat:
		return Val{Bits: v.Bits}
	case ir.VUndef:
		return undef(v.Type)
	case ir.VNull:
		return Null
	case ir.VZero:
		return zero(v.Type)
	case ir.VFunc:
		return Ptr(vm.funcHandle(v.Func), 0)
	case ir.VGlobal:
		return Ptr(vm.globals[v.Global], 0)
	}
	panic(fmt.Sprintf("vm: %s is not a constant", v))
}
