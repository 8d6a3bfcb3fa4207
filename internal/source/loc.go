// Package source names places in the manifest a lowering request came from.
package source

import "fmt"

// Loc points at an entity in a manifest file. Line is 1-based; 0 means unknown.
type Loc struct {
	File   string
	Line   int
	Entity string // "func add", "partial curry_add"
}

// IsZero reports whether l carries no position at all.
func (l Loc) IsZero() bool {
	return l.File == "" && l.Line == 0 && l.Entity == ""
}

func (l Loc) String() string {
	switch {
	case l.IsZero():
		return "<unknown>"
	case l.Line > 0 && l.Entity != "":
		return fmt.Sprintf("%s:%d (%s)", l.File, l.Line, l.Entity)
	case l.Line > 0:
		return fmt.Sprintf("%s:%d", l.File, l.Line)
	case l.File != "" && l.Entity != "":
		return fmt.Sprintf("%s (%s)", l.File, l.Entity)
	case l.File != "":
		return l.File
	default:
		return l.Entity
	}
}

// Less orders locations by file, then line, then entity.
func (l Loc) Less(o Loc) bool {
	if l.File != o.File {
		return l.File < o.File
	}
	if l.Line != o.Line {
		return l.Line < o.Line
	}
	return l.Entity < o.Entity
}
