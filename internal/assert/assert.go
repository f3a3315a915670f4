// Package assert checks invariants that should never be false if the rest
// of the package is correct — the same "this should never happen, but log
// it and carry on rather than corrupt state silently" posture the teacher
// applies throughout internal/pipeline's defensive nil checks, made
// explicit and toggleable by build tag instead of repeated ad hoc at every
// call site.
package assert

// That panics with a formatted message when cond is false in a debug
// build (tag "debug"), and logs the message without panicking in a release
// build — see
// assert_debug.go and assert_release.go.
func That(cond bool, format string, args ...any) {
	that(cond, format, args...)
}
