package layout

import (
	"fmt"
	"strings"

	"callgen/internal/ir"
	"callgen/internal/types"
)

// Arch selects the foreign ABI family of a target.
type Arch uint8

const (
	ArchX86_64 Arch = iota + 1
	ArchAArch64
	ArchI386
)

func (a Arch) String() string {
	switch a {
	case ArchX86_64:
		return "x86_64"
	case ArchAArch64:
		return "aarch64"
	case ArchI386:
		return "i386"
	}
	return "unknown"
}

// Target describes the platform facts the lowering core queries.
type Target struct {
	Triple   string
	Arch     Arch
	PtrSize  int
	PtrAlign int
	I64Align int
	F64Align int

	// MaxScalarsForDirectResult bounds the scalar count of a direct result.
	MaxScalarsForDirectResult int
	// MaxScalarsForDirectParam bounds the scalar count of a direct parameter.
	MaxScalarsForDirectParam int
	// DedicatedErrorRegister is set when the native convention passes the
	// error slot in a fixed register.
	DedicatedErrorRegister bool
}

func X86_64LinuxGNU() Target {
	return Target{
		Triple:                    "x86_64-unknown-linux-gnu",
		Arch:                      ArchX86_64,
		PtrSize:                   8,
		PtrAlign:                  8,
		I64Align:                  8,
		F64Align:                  8,
		MaxScalarsForDirectResult: 3,
		MaxScalarsForDirectParam:  3,
		DedicatedErrorRegister:    true,
	}
}

func AArch64LinuxGNU() Target {
	return Target{
		Triple:                    "aarch64-unknown-linux-gnu",
		Arch:                      ArchAArch64,
		PtrSize:                   8,
		PtrAlign:                  8,
		I64Align:                  8,
		F64Align:                  8,
		MaxScalarsForDirectResult: 4,
		MaxScalarsForDirectParam:  4,
		DedicatedErrorRegister:    true,
	}
}

func I386LinuxGNU() Target {
	return Target{
		Triple:                    "i386-unknown-linux-gnu",
		Arch:                      ArchI386,
		PtrSize:                   4,
		PtrAlign:                  4,
		I64Align:                  4,
		F64Align:                  4,
		MaxScalarsForDirectResult: 3,
		MaxScalarsForDirectParam:  3,
	}
}

// ForTriple returns the default target for a triple. Only the architecture
// component is significant.
func ForTriple(triple string) (Target, error) {
	arch, _, _ := strings.Cut(triple, "-")
	var t Target
	switch arch {
	case "x86_64", "amd64":
		t = X86_64LinuxGNU()
	case "aarch64", "arm64":
		t = AArch64LinuxGNU()
	case "i386", "i486", "i586", "i686", "x86":
		t = I386LinuxGNU()
	default:
		return Target{}, fmt.Errorf("unsupported target triple %q", triple)
	}
	if strings.Contains(triple, "-") {
		t.Triple = triple
	}
	return t, nil
}

// DataLayout returns the physical layout rules of the target.
func (t Target) DataLayout() ir.DataLayout {
	return ir.DataLayout{
		PtrSize:  int64(t.PtrSize),
		PtrAlign: int64(t.PtrAlign),
		I64Align: int64(t.I64Align),
		F64Align: int64(t.F64Align),
	}
}

// CallConv returns the calling convention used for a representation.
func (t Target) CallConv(r types.Representation) ir.CallConv {
	if r.IsForeign() {
		return ir.CCC
	}
	return ir.CCNative
}

// HeapHeaderSize is the size of the refcounted object header:
// metadata pointer then refcount word.
func (t Target) HeapHeaderSize() int {
	return 2 * t.PtrSize
}

// IntPtrBits is the width of a pointer-sized integer.
func (t Target) IntPtrBits() int {
	return 8 * t.PtrSize
}
