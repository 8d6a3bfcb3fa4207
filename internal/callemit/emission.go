// Package callemit performs calls through expanded signatures: it adapts a
// logical argument explosion to the physical parameters of the callee and
// the physical result back to a logical one.
package callemit

import (
	"fmt"

	"callgen/internal/ir"
	"callgen/internal/irgen"
	"callgen/internal/signature"
	"callgen/internal/typeinfo"
	"callgen/internal/types"
)

// Callee is the target of one call.
type Callee struct {
	// Fn is the physical function pointer.
	Fn *ir.Value
	// Data is the closure context of a thick callee, the block object of a
	// block callee, or nil.
	Data *ir.Value
	// OrigType is the function type the callee was compiled against and
	// SubstType the type the caller sees. They differ only in generic
	// substitutions.
	OrigType  types.TypeID
	SubstType types.TypeID
	// Selector is the message selector of an ObjC method.
	Selector *ir.Value
}

// WitnessSelf is the conforming type of a witness method call.
type WitnessSelf struct {
	Metadata *ir.Value
	Table    *ir.Value
}

// Emission builds one call. Physical arguments are collected in two lists:
// leading covers the result buffer, the formals and the generic arguments;
// trailing covers context, error and witness-self slots, which are known
// before the formals are adapted.
type Emission struct {
	f      *irgen.Func
	callee Callee
	sig    *signature.Signature

	orig, subst *types.FnInfo
	origEnv     *typeinfo.Env
	substEnv    *typeinfo.Env

	leading  []*ir.Value
	trailing []*ir.Value
	split    int
	sretIdx  int

	argsSet bool
	tail    bool
	emitted bool
}

// New starts a call to callee from f and fills the trailing slots.
func New(f *irgen.Func, callee Callee) *Emission {
	if callee.SubstType == types.NoTypeID {
		callee.SubstType = callee.OrigType
	}
	in := f.M.Types
	e := &Emission{
		f:      f,
		callee: callee,
		sig:    f.M.Signature(f.Ctx, callee.OrigType),
		orig:   in.MustFnInfo(callee.OrigType),
		subst:  in.MustFnInfo(callee.SubstType),
	}
	if len(e.orig.Params) != len(e.subst.Params) || e.orig.Repr != e.subst.Repr {
		panic(fmt.Sprintf("callemit: %s cannot be called as %s",
			in.TypeString(callee.OrigType), in.TypeString(callee.SubstType)))
	}
	e.origEnv = f.M.Infos.Scope(e.orig.Generics)
	e.substEnv = f.M.Infos.Scope(e.subst.Generics)
	e.split = e.sig.FirstTrailing()
	e.sretIdx = -1
	if e.sig.IndirectReturn && !e.sig.FormalOut {
		e.sretIdx = e.sig.Index(signature.RoleIndirectResult)
	}
	e.setFromCallee()
	return e
}

// Signature returns the signature being called.
func (e *Emission) Signature() *signature.Signature { return e.sig }

// SetTail marks the call as a tail call.
func (e *Emission) SetTail(tail bool) { e.tail = tail }

// Emitted reports whether the call has been issued.
func (e *Emission) Emitted() bool { return e.emitted }

// setFromCallee reserves the trailing slots and fills those that depend
// only on the callee: the error cell and the closure context.
func (e *Emission) setFromCallee() {
	e.trailing = make([]*ir.Value, e.sig.NumParams()-e.split)
	hasData := e.callee.Data != nil
	switch e.orig.Repr {
	case types.ReprThick:
		if !hasData {
			panic("callemit: thick callee without a context")
		}
	case types.ReprBlock:
		if !hasData {
			panic("callemit: block callee without a block object")
		}
	default:
		if hasData && !e.sig.HasContext() {
			panic("callemit: context supplied for a callee without a context slot")
		}
	}
	for i := e.split; i < e.sig.NumParams(); i++ {
		pt := e.sig.Type.Params[i]
		switch e.sig.Params[i].Role {
		case signature.RoleError:
			e.trailing[i-e.split] = e.f.ErrorSlot()
		case signature.RoleContext:
			switch {
			case e.sig.SelfContext:
				// filled from the self argument
			case hasData:
				e.trailing[i-e.split] = e.f.Coerce(e.callee.Data, pt)
			default:
				e.trailing[i-e.split] = ir.Undef(pt)
			}
		}
	}
}

// place appends v as the next leading argument.
func (e *Emission) place(v *ir.Value) {
	i := len(e.leading)
	if i >= e.split {
		panic(fmt.Sprintf("callemit: too many arguments for %s", e.sig))
	}
	if e.sig.Params[i].Role.IsTrailing() {
		panic(fmt.Sprintf("callemit: leading argument %d lands on a %s slot", i, e.sig.Params[i].Role))
	}
	e.leading = append(e.leading, e.f.Coerce(v, e.sig.Type.Params[i]))
}

// reserve appends an empty leading slot to be filled at emission.
func (e *Emission) reserve() {
	e.leading = append(e.leading, nil)
}

func (e *Emission) setTrailing(role signature.Role, v *ir.Value) {
	i := e.sig.Index(role)
	if i < e.split {
		panic(fmt.Sprintf("callemit: no %s slot in %s", role, e.sig))
	}
	e.trailing[i-e.split] = e.f.Coerce(v, e.sig.Type.Params[i])
}

func (e *Emission) arguments() []*ir.Value {
	args := make([]*ir.Value, 0, e.sig.NumParams())
	args = append(args, e.leading...)
	args = append(args, e.trailing...)
	if len(args) != e.sig.NumParams() {
		panic(fmt.Sprintf("callemit: %d arguments for %d parameters of %s", len(args), e.sig.NumParams(), e.sig))
	}
	for i, a := range args {
		if a == nil {
			panic(fmt.Sprintf("callemit: argument slot %d (%s) is empty", i, e.sig.Params[i].Role))
		}
	}
	return args
}

// Emit issues the call and delivers its result to dest.
func (e *Emission) Emit(dest CallResult) *ir.Instr {
	if e.emitted {
		panic("callemit: call emitted twice")
	}
	if !e.argsSet {
		panic("callemit: call emitted before its arguments were set")
	}
	e.emitted = true
	if e.sig.Foreign != nil {
		return e.emitForeign(dest)
	}
	return e.emitNative(dest)
}

func (e *Emission) issue() *ir.Instr {
	args := e.arguments()
	fn := e.f.B.Bitcast(e.callee.Fn, ir.PtrTo(e.sig.Type))
	in := e.f.B.Call(fn, e.sig.Type, args, e.sig.CC, e.sig.Attrs)
	in.Call.Tail = e.tail
	return in
}

// resultInfo is the caller's view of the result type.
func (e *Emission) resultInfo() *typeinfo.Info {
	return e.substEnv.Info(e.subst.Result)
}

// sretTarget returns the buffer that receives an indirect result, and a
// temporary to unpack afterwards when the caller wants an explosion.
func (e *Emission) sretTarget(dest CallResult, info *typeinfo.Info) (addr, temp *ir.Value) {
	switch d := dest.(type) {
	case ToMemory:
		return d.Addr, nil
	case ToExplosion:
		temp = e.f.Temp(info)
		return temp, temp
	}
	panic(fmt.Sprintf("callemit: unknown call result %T", dest))
}

// deliverFromMemory moves a result stored at addr to dest.
func (e *Emission) deliverFromMemory(dest CallResult, addr *ir.Value, info *typeinfo.Info) {
	switch d := dest.(type) {
	case ToMemory:
		if !info.Fixed() {
			e.f.Unimplemented("moving a dynamically sized result")
		}
		e.f.B.Memcpy(e.f.B.Bitcast(d.Addr, ir.I8Ptr), e.f.B.Bitcast(addr, ir.I8Ptr), info.Size())
	case ToExplosion:
		if info.Loadable() {
			e.f.LoadExplosion(addr, info, d.Out)
			return
		}
		tmp := e.f.Temp(info)
		e.f.B.Memcpy(e.f.B.Bitcast(tmp, ir.I8Ptr), e.f.B.Bitcast(addr, ir.I8Ptr), info.Size())
		d.Out.Add(tmp)
	}
}
