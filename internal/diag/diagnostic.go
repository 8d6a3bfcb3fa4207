package diag

import (
	"fmt"

	"callgen/internal/source"
)

type Note struct {
	Loc source.Loc
	Msg string
}

type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Primary  source.Loc
	Notes    []Note
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s %s: %s", d.Primary, d.Severity, d.Code.ID(), d.Message)
}

// WithNote returns a copy of d with an extra note.
func (d Diagnostic) WithNote(loc source.Loc, msg string) Diagnostic {
	notes := make([]Note, len(d.Notes), len(d.Notes)+1)
	copy(notes, d.Notes)
	d.Notes = append(notes, Note{Loc: loc, Msg: msg})
	return d
}
