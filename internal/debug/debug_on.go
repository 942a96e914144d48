//go:build debug

// Package debug provides assertion helpers compiled in only under the
// "debug" build tag, mirroring the teacher's cmn/debug/debug_on.go /
// debug_off.go split.
package debug

import (
	"fmt"

	"github.com/elektrago/kdb/log"
)

var logger = log.New("debug")

func _panic(a ...interface{}) {
	logger.Errorf("DEBUG PANIC: %v", a)
	panic(a)
}

// Assert panics (in debug builds only) if cond is false.
func Assert(cond bool, a ...interface{}) {
	if !cond {
		_panic(a...)
	}
}

// Assertf panics with a formatted message if cond is false.
func Assertf(cond bool, format string, a ...interface{}) {
	if !cond {
		_panic(fmt.Sprintf(format, a...))
	}
}

// AssertNoErr panics if err is non-nil.
func AssertNoErr(err error) {
	if err != nil {
		_panic(err)
	}
}
