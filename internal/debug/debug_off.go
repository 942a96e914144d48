//go:build !debug

package debug

// Assert is a no-op in non-debug builds.
func Assert(cond bool, a ...interface{}) {}

// Assertf is a no-op in non-debug builds.
func Assertf(cond bool, format string, a ...interface{}) {}

// AssertNoErr is a no-op in non-debug builds.
func AssertNoErr(err error) {}
