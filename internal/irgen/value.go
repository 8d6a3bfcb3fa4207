package irgen

import (
	"fmt"

	"callgen/internal/explosion"
	"callgen/internal/ir"
	"callgen/internal/typeinfo"
)

// LoadExplosion appends the explosion of the value stored at addr to out.
// Values that stay in memory contribute their address. Ownership is not
// changed.
func (f *Func) LoadExplosion(addr *ir.Value, info *typeinfo.Info, out *explosion.Explosion) {
	if !info.Loadable() {
		out.Add(f.B.Bitcast(addr, ir.PtrTo(info.Storage)))
		return
	}
	for _, p := range info.Pieces {
		out.Add(f.B.Load(p.Type, f.B.ByteOffset(addr, p.Offset, p.Type)))
	}
}

// StoreExplosion claims one value of info's type from in and stores it to
// addr. A value that stays in memory is moved with a memcpy.
func (f *Func) StoreExplosion(in *explosion.Explosion, addr *ir.Value, info *typeinfo.Info) {
	if !info.Loadable() {
		src := in.Claim()
		if !info.Fixed() {
			f.Unimplemented("moving a dynamically sized value")
		}
		f.B.Memcpy(f.B.Bitcast(addr, ir.I8Ptr), f.B.Bitcast(src, ir.I8Ptr), info.Size())
		return
	}
	for _, p := range info.Pieces {
		v := in.Claim()
		if !v.Type.Equal(p.Type) {
			panic(fmt.Sprintf("irgen: storing %s into a %s piece", v.Type, p.Type))
		}
		f.B.Store(v, f.B.ByteOffset(addr, p.Offset, p.Type))
	}
}

// CopyExplosion claims one value from in and appends a copy to out,
// retaining its counted references. The source keeps its ownership.
func (f *Func) CopyExplosion(in, out *explosion.Explosion, info *typeinfo.Info) {
	if !info.Loadable() {
		tmp := f.Temp(info)
		f.CopyInto(tmp, in.Claim(), info)
		out.Add(tmp)
		return
	}
	vals := in.ClaimN(len(info.Pieces))
	for i, p := range info.Pieces {
		f.retainPiece(p, vals[i])
	}
	out.Add(vals...)
}

// DestroyExplosion claims one value from in and releases its references.
func (f *Func) DestroyExplosion(in *explosion.Explosion, info *typeinfo.Info) {
	if !info.Loadable() {
		f.DestroyAt(in.Claim(), info)
		return
	}
	vals := in.ClaimN(len(info.Pieces))
	for i, p := range info.Pieces {
		f.releasePiece(p, vals[i])
	}
}

// CopyInto initializes dst with a copy of the value at src.
func (f *Func) CopyInto(dst, src *ir.Value, info *typeinfo.Info) {
	if !info.Fixed() {
		f.Unimplemented("copying a dynamically sized value")
	}
	f.B.Memcpy(f.B.Bitcast(dst, ir.I8Ptr), f.B.Bitcast(src, ir.I8Ptr), info.Size())
	for _, p := range info.Pieces {
		if p.Ref != typeinfo.RefNone {
			f.retainPiece(p, f.B.Load(p.Type, f.B.ByteOffset(dst, p.Offset, p.Type)))
		}
	}
}

// DestroyAt releases the references of the value at addr.
func (f *Func) DestroyAt(addr *ir.Value, info *typeinfo.Info) {
	if !info.Fixed() {
		f.Unimplemented("destroying a dynamically sized value")
	}
	if info.POD {
		return
	}
	for _, p := range info.Pieces {
		if p.Ref != typeinfo.RefNone {
			f.releasePiece(p, f.B.Load(p.Type, f.B.ByteOffset(addr, p.Offset, p.Type)))
		}
	}
}

func (f *Func) retainPiece(p typeinfo.Piece, v *ir.Value) {
	switch p.Ref {
	case typeinfo.RefStrong:
		f.M.RT.EmitRetain(f.B, v)
	case typeinfo.RefBlock:
		f.Unimplemented("copying block storage")
	}
}

func (f *Func) releasePiece(p typeinfo.Piece, v *ir.Value) {
	switch p.Ref {
	case typeinfo.RefStrong:
		f.M.RT.EmitRelease(f.B, v)
	case typeinfo.RefBlock:
		f.Unimplemented("destroying block storage")
	}
}
