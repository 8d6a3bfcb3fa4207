// Package signature expands abstract function types into physical call
// signatures and caches the result per function type.
package signature

import (
	"fmt"
	"strings"

	"callgen/internal/cabi"
	"callgen/internal/ir"
	"callgen/internal/types"
)

// Role says what a physical parameter carries.
type Role uint8

const (
	RoleFormal Role = iota
	RoleIndirectResult
	RoleGenericMetadata
	RoleWitnessTable
	RoleContext
	RoleError
	RoleWitnessSelfMetadata
	RoleWitnessSelfTable
	RoleBlockSelf
	RoleObjCSelf
	RoleObjCSelector
	RolePadding
)

var roleNames = [...]string{
	RoleFormal:              "formal",
	RoleIndirectResult:      "sret",
	RoleGenericMetadata:     "metadata",
	RoleWitnessTable:        "witness",
	RoleContext:             "context",
	RoleError:               "error",
	RoleWitnessSelfMetadata: "self-metadata",
	RoleWitnessSelfTable:    "self-witness",
	RoleBlockSelf:           "block",
	RoleObjCSelf:            "objc-self",
	RoleObjCSelector:        "selector",
	RolePadding:             "padding",
}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("Role(%d)", r)
}

// IsTrailing reports roles placed after every formal and generic argument.
func (r Role) IsTrailing() bool {
	switch r {
	case RoleContext, RoleError, RoleWitnessSelfMetadata, RoleWitnessSelfTable:
		return true
	}
	return false
}

// Param describes one physical parameter.
type Param struct {
	Role Role
	// Formal is the index of the source parameter it came from, or -1.
	Formal int
}

// Foreign is the C ABI view of a foreign signature.
type Foreign struct {
	Info cabi.FunctionInfo
	// Args are the canonical types of the declared arguments, self excluded.
	Args []*cabi.Type
	// Formals maps each entry of Args to its source parameter.
	Formals []int
	Result  *cabi.Type // nil for void
}

// Signature is the immutable physical form of one function type.
type Signature struct {
	FnType types.TypeID
	Repr   types.Representation
	Type   *ir.Type
	Attrs  ir.AttrSet
	CC     ir.CallConv
	// IndirectReturn is set when parameter 0 is a result buffer.
	IndirectReturn bool
	// FormalOut is set when that buffer is an @out formal.
	FormalOut bool
	// SelfContext is set when the self parameter occupies the context slot.
	SelfContext bool
	Params      []Param
	Foreign     *Foreign
}

// NumParams is the physical parameter count.
func (s *Signature) NumParams() int { return len(s.Params) }

// Index returns the position of the first parameter with role r, or -1.
func (s *Signature) Index(r Role) int {
	for i, p := range s.Params {
		if p.Role == r {
			return i
		}
	}
	return -1
}

// FirstTrailing is the position of the first trailing parameter, or
// NumParams when there is none.
func (s *Signature) FirstTrailing() int {
	for i, p := range s.Params {
		if p.Role.IsTrailing() {
			return i
		}
	}
	return len(s.Params)
}

// HasContext reports whether a context slot exists.
func (s *Signature) HasContext() bool { return s.Index(RoleContext) >= 0 }

// HasError reports whether an error slot exists.
func (s *Signature) HasError() bool { return s.Index(RoleError) >= 0 }

func (s *Signature) String() string {
	return s.CC.String() + " " + ir.Signature(s.Type, s.Attrs, "", nil)
}

// Describe renders one line per physical parameter.
func (s *Signature) Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", s)
	for i, p := range s.Params {
		fmt.Fprintf(&sb, "  %%%d %-14s %s", i, p.Role, s.Type.Params[i])
		if p.Formal >= 0 {
			fmt.Fprintf(&sb, " (param %d)", p.Formal)
		}
		if l := s.Attrs.Param(i); len(l) > 0 {
			fmt.Fprintf(&sb, " [%s]", l)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
