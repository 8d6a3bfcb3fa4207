package diag

import (
	"errors"
	"fmt"

	"callgen/internal/source"
)

// UnimplementedError marks a construct the lowering core refuses to
// generate code for. It travels as a panic value; see Unimplemented.
type UnimplementedError struct {
	Loc  source.Loc
	What string
}

func (e *UnimplementedError) Error() string {
	return fmt.Sprintf("%s: not implemented: %s", e.Loc, e.What)
}

// Diagnostic converts e into an IRUnimplemented error diagnostic.
func (e *UnimplementedError) Diagnostic() Diagnostic {
	return Diagnostic{
		Severity: SevError,
		Code:     IRUnimplemented,
		Message:  "not implemented: " + e.What,
		Primary:  e.Loc,
	}
}

// Unimplemented stops lowering at loc. It never returns.
func Unimplemented(loc source.Loc, what string) {
	panic(&UnimplementedError{Loc: loc, What: what})
}

// Recover turns an in-flight UnimplementedError panic into a returned error.
// Any other panic value is re-raised. Use as:
//
//	defer diag.Recover(&err)
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if ue, ok := r.(*UnimplementedError); ok {
		*errp = ue
		return
	}
	panic(r)
}

// AsUnimplemented unwraps err to an UnimplementedError, if it is one.
func AsUnimplemented(err error) (*UnimplementedError, bool) {
	var ue *UnimplementedError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
