package typeinfo

import (
	"fmt"
	"sync"

	"fortio.org/safecast"

	"callgen/internal/explosion"
	"callgen/internal/ir"
	"callgen/internal/layout"
	"callgen/internal/runtime"
	"callgen/internal/types"
)

// maxExplodedPieces bounds how many pieces a loadable value may have; larger
// values stay in memory.
const maxExplodedPieces = 64

// Converter computes and caches Info per type. Safe for concurrent use.
type Converter struct {
	Types  *types.Interner
	Layout *layout.LayoutEngine
	RT     *runtime.Runtime
	IR     *ir.Module

	limits explosion.Limits

	mu      sync.Mutex
	infos   map[types.TypeID]*Info
	foreign map[types.TypeID]foreignEntry
}

func New(le *layout.LayoutEngine, rt *runtime.Runtime, m *ir.Module) *Converter {
	return &Converter{
		Types:  le.Types,
		Layout: le,
		RT:     rt,
		IR:     m,
		limits: explosion.Limits{
			MaxScalarsForDirectResult: le.Target.MaxScalarsForDirectResult,
			MaxScalarsForDirectParam:  le.Target.MaxScalarsForDirectParam,
		},
		infos:   make(map[types.TypeID]*Info, 64),
		foreign: make(map[types.TypeID]foreignEntry, 16),
	}
}

// Get returns the Info of id.
func (c *Converter) Get(id types.TypeID) (*Info, error) {
	c.mu.Lock()
	info, ok := c.infos[id]
	c.mu.Unlock()
	if ok {
		return info, nil
	}
	l, err := c.Layout.LayoutOf(id)
	if err != nil {
		return nil, err
	}
	info, err = c.compute(id, l)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.infos[id]; ok {
		return prev, nil
	}
	c.infos[id] = info
	return info, nil
}

// Must is Get for types already validated by the caller.
func (c *Converter) Must(id types.TypeID) *Info {
	info, err := c.Get(id)
	if err != nil {
		panic(fmt.Sprintf("abi: type info of %s: %v", c.Types.TypeString(id), err))
	}
	return info
}

func (c *Converter) compute(id types.TypeID, l layout.TypeLayout) (*Info, error) {
	tt := c.Types.MustLookup(id)
	info := &Info{ID: id, Layout: l}
	rt := c.RT
	scalar := func(t *ir.Type, ref RefKind) {
		info.Storage = t
		info.Pieces = []Piece{{Type: t, Ref: ref}}
	}

	switch tt.Kind {
	case types.KindUnit:
		info.Storage = ir.StructOf()
	case types.KindBool:
		scalar(ir.I1, RefNone)
	case types.KindInt, types.KindUint:
		scalar(ir.Int(l.Size*8), RefNone)
		info.Signed = tt.Kind == types.KindInt
	case types.KindFloat:
		if tt.Width == types.Width32 {
			scalar(ir.Float, RefNone)
		} else {
			scalar(ir.Double, RefNone)
		}
	case types.KindRawPointer:
		scalar(ir.I8Ptr, RefNone)
	case types.KindClass:
		scalar(rt.RefCountedPtr(), RefStrong)
		info.Retainable = true
	case types.KindMetatype:
		if tt.Thin {
			info.Storage = ir.StructOf()
		} else {
			scalar(rt.MetadataPtr(), RefNone)
		}
	case types.KindFn:
		c.fnStorage(id, info)
	case types.KindGenericParam:
		g, _ := c.Types.GenericInfo(id)
		if g.ClassBound {
			scalar(rt.RefCountedPtr(), RefStrong)
			info.Retainable = true
		} else {
			info.Storage = rt.Opaque
		}
	case types.KindTuple:
		ti, _ := c.Types.TupleInfo(id)
		if err := c.sequential(info, "", ti.Elems, false); err != nil {
			return nil, err
		}
	case types.KindStruct:
		si, _ := c.Types.StructInfo(id)
		elems := make([]types.TypeID, len(si.Fields))
		for i, f := range si.Fields {
			elems[i] = f.Type
		}
		if err := c.sequential(info, "struct."+si.Name, elems, si.AddressOnly); err != nil {
			return nil, err
		}
	case types.KindUnion:
		if err := c.union(id, info); err != nil {
			return nil, err
		}
	case types.KindComplex:
		if err := c.sequential(info, "", []types.TypeID{tt.Elem, tt.Elem}, false); err != nil {
			return nil, err
		}
	case types.KindArray:
		if err := c.array(tt, info); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("no lowering for %s", c.Types.TypeString(id))
	}

	if info.Schema == nil {
		c.finish(info, false)
	}
	return info, nil
}

// finish derives POD-ness and the schema from the pieces.
func (c *Converter) finish(info *Info, addressOnly bool) {
	info.POD = !info.Layout.Dynamic && !info.HasRefs()
	storage := explosion.Storage{Type: info.Storage, Size: info.Size(), Fixed: info.Fixed()}
	if addressOnly || info.Layout.Dynamic || len(info.Pieces) > maxExplodedPieces {
		info.Schema = explosion.NewSchema(c.limits, storage, explosion.AggregateElement(info.Storage))
		return
	}
	elems := make([]explosion.Element, len(info.Pieces))
	for i, p := range info.Pieces {
		elems[i] = explosion.ScalarElement(p.Type)
	}
	info.Schema = explosion.NewSchema(c.limits, storage, elems...)
}

func (c *Converter) fnStorage(id types.TypeID, info *Info) {
	fi := c.Types.MustFnInfo(id)
	switch fi.Repr {
	case types.ReprThick:
		ctx := c.RT.RefCountedPtr()
		info.Storage = ir.StructOf(ir.I8Ptr, ctx)
		info.Pieces = []Piece{
			{Type: ir.I8Ptr},
			{Type: ctx, Offset: int64(c.Layout.Target.PtrSize), Ref: RefStrong},
		}
	case types.ReprBlock:
		info.Storage = ir.I8Ptr
		info.Pieces = []Piece{{Type: ir.I8Ptr, Ref: RefBlock}}
	default:
		info.Storage = ir.I8Ptr
		info.Pieces = []Piece{{Type: ir.I8Ptr}}
	}
}

func (c *Converter) sequential(info *Info, name string, elems []types.TypeID, addressOnly bool) error {
	fields := make([]*ir.Type, len(elems))
	for i, el := range elems {
		fi, err := c.Get(el)
		if err != nil {
			return err
		}
		fields[i] = fi.Storage
		if info.Layout.Dynamic {
			continue
		}
		off := int64(info.Layout.FieldOffsets[i])
		for _, p := range fi.Pieces {
			p.Offset += off
			info.Pieces = append(info.Pieces, p)
		}
		if !fi.Loadable() {
			addressOnly = true
		}
	}
	switch {
	case info.Layout.Dynamic:
		info.Storage = c.RT.Opaque
		info.Pieces = nil
	case name != "":
		info.Storage = c.IR.NamedType(name, fields...)
	default:
		info.Storage = ir.StructOf(fields...)
	}
	c.finish(info, addressOnly)
	return nil
}

// union stores as an array of alignment-sized integers and stays in memory.
func (c *Converter) union(id types.TypeID, info *Info) error {
	ui, _ := c.Types.UnionInfo(id)
	pod := true
	for _, f := range ui.Fields {
		fi, err := c.Get(f.Type)
		if err != nil {
			return err
		}
		pod = pod && fi.POD
	}
	align := info.Layout.Align
	words, err := safecast.Conv[int](info.Layout.Size / align)
	if err != nil {
		return err
	}
	body := ir.ArrayOf(ir.Int(align*8), words)
	if words == 0 {
		info.Storage = c.IR.NamedType("union."+ui.Name, ir.StructOf())
	} else {
		info.Storage = c.IR.NamedType("union."+ui.Name, body)
	}
	c.finish(info, true)
	info.POD = pod
	return nil
}

func (c *Converter) array(tt types.Type, info *Info) error {
	el, err := c.Get(tt.Elem)
	if err != nil {
		return err
	}
	count, err := safecast.Conv[int](tt.Count)
	if err != nil {
		return err
	}
	info.Storage = ir.ArrayOf(el.Storage, count)
	if info.Layout.Dynamic {
		info.Storage = c.RT.Opaque
		c.finish(info, true)
		return nil
	}
	stride := ir.RoundUp(el.Size(), el.Align())
	if len(el.Pieces)*count <= maxExplodedPieces {
		for i := 0; i < count; i++ {
			for _, p := range el.Pieces {
				p.Offset += int64(i) * stride
				info.Pieces = append(info.Pieces, p)
			}
		}
	} else {
		// too large to explode; keep only the counted references
		for i := 0; i < count; i++ {
			for _, p := range el.Pieces {
				if p.Ref != RefNone {
					p.Offset += int64(i) * stride
					info.Pieces = append(info.Pieces, p)
				}
			}
		}
		c.finish(info, true)
		return nil
	}
	c.finish(info, !el.Loadable())
	return nil
}
