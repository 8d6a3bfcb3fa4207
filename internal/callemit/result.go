package callemit

import (
	"callgen/internal/explosion"
	"callgen/internal/ir"
	"callgen/internal/typeinfo"
)

// CallResult says where a call's logical result goes.
type CallResult interface {
	isCallResult()
}

// ToExplosion appends the result's pieces to Out. Results that stay in
// memory are appended as the address of a fresh temporary.
type ToExplosion struct {
	Out *explosion.Explosion
}

// ToMemory initializes the buffer at Addr, which holds a value of Info's type.
type ToMemory struct {
	Addr *ir.Value
	Info *typeinfo.Info
}

func (ToExplosion) isCallResult() {}
func (ToMemory) isCallResult()    {}
