//go:build !debug

package assert

import "log"

// A release build logs the violation, matching the teacher's
// log.Printf("warning: ...") idiom, instead of crashing the editor session
// over an invariant that should not affect correctness once logged.
func that(cond bool, format string, args ...any) {
	if !cond {
		log.Printf("assert: "+format, args...)
	}
}
