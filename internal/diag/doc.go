// Package diag carries user-facing diagnostics produced while lowering a
// manifest, and the "not implemented here" escape hatch used by the lowering
// core when it meets a construct it cannot generate correct code for.
//
// Internal inconsistencies never become diagnostics: they panic and crash the
// process. Only UnimplementedError is recovered, by the driver, at the
// boundary of one lowering job.
package diag
