package diag

import "fmt"

type Code uint16

const (
	UnknownCode Code = 0

	// manifest input
	ManInfo           Code = 1000
	ManSyntax         Code = 1001
	ManUnknownKey     Code = 1002
	ManUnknownType    Code = 1003
	ManDuplicateName  Code = 1004
	ManBadConvention  Code = 1005
	ManBadTarget      Code = 1006
	ManBadPartial     Code = 1007
	ManRecursiveValue Code = 1008

	// lowering
	IRInfo          Code = 2000
	IRUnimplemented Code = 2001
	IRLayout        Code = 2002

	// execution of produced IR
	VMInfo Code = 3000
	VMTrap Code = 3001
	VMLeak Code = 3002

	ObsInfo    Code = 6000
	ObsTimings Code = 6001
)

var codeDescription = map[Code]string{
	UnknownCode:       "Unknown error",
	ManInfo:           "Manifest information",
	ManSyntax:         "Manifest syntax error",
	ManUnknownKey:     "Unknown manifest key",
	ManUnknownType:    "Unknown type name",
	ManDuplicateName:  "Duplicate declaration",
	ManBadConvention:  "Invalid parameter convention",
	ManBadTarget:      "Unsupported target",
	ManBadPartial:     "Invalid partial application",
	ManRecursiveValue: "Recursive value type has infinite size",
	IRInfo:            "Lowering information",
	IRUnimplemented:   "Not implemented",
	IRLayout:          "Layout error",
	VMInfo:            "Execution information",
	VMTrap:            "Execution trapped",
	VMLeak:            "Heap object leaked",
	ObsInfo:           "Observability information",
	ObsTimings:        "Pipeline timings",
}

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("MAN%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("IR%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("VM%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("OBS%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
