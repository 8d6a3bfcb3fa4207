package ir

// Op enumerates instruction opcodes. Bodies are straight-line.
type Op uint8

const (
	OpAlloca Op = iota
	OpLoad
	OpStore
	OpBitcast
	OpByteOffset // pointer + constant byte offset, retyped
	OpExtractValue
	OpInsertValue
	OpMemcpy
	OpCall
	OpRet
)

var opNames = [...]string{
	OpAlloca:       "alloca",
	OpLoad:         "load",
	OpStore:        "store",
	OpBitcast:      "bitcast",
	OpByteOffset:   "getelementptr",
	OpExtractValue: "extractvalue",
	OpInsertValue:  "insertvalue",
	OpMemcpy:       "memcpy",
	OpCall:         "call",
	OpRet:          "ret",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "op?"
}

// Instr is one instruction.
//
//	alloca:       Ty allocated, Align
//	load:         Operands[0] ptr, Ty loaded
//	store:        Operands[0] value, Operands[1] ptr
//	bitcast:      Operands[0], Ty target
//	byteoffset:   Operands[0] ptr, Offset, Ty result pointer
//	extractvalue: Operands[0] aggregate, Index
//	insertvalue:  Operands[0] aggregate, Operands[1] value, Index
//	memcpy:       Operands[0] dst, Operands[1] src, Size
//	call:         Operands are the physical arguments, Call describes the callee
//	ret:          Operands[0] value or none
type Instr struct {
	Op       Op
	Result   *Value
	Operands []*Value
	Ty       *Type
	Index    int
	Offset   int64
	Size     int64
	Align    int64
	Call     *CallInfo
}

// CallInfo describes the callee side of a call.
type CallInfo struct {
	Callee *Value
	FnType *Type
	CC     CallConv
	Attrs  AttrSet
	Tail   bool
}
