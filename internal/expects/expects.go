// Package expects implements fail-fast precondition checks.
//
// A failed check panics with a Violation. Violations mark programmer errors
// (mapping an empty storage, re-reading a header, mismatched buffer lengths)
// and are never recovered by library code, so the panic surfaces at the
// call site that broke the contract.
package expects

import "fmt"

// Violation is the panic value raised by a failed precondition.
type Violation struct {
	Msg string
}

func (v Violation) Error() string {
	return "precondition violated: " + v.Msg
}

// That panics with a Violation when cond is false.
func That(cond bool, format string, args ...any) {
	if !cond {
		panic(Violation{Msg: fmt.Sprintf(format, args...)})
	}
}
