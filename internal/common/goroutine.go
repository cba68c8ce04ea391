// -----------------------------------------------------------------------
// Panic guards for scheduled jobs and pipeline workers
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"runtime"

	"github.com/ternarybob/arbor"
)

// PanicError wraps a recovered panic so it can travel as an ordinary error
type PanicError struct {
	Name  string
	Value interface{}
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Name, e.Value)
}

// GuardPanic converts a panic in the calling goroutine into an error assigned
// to *errp. Use as: defer common.GuardPanic(logger, "extract", &err)
func GuardPanic(logger arbor.ILogger, name string, errp *error) {
	r := recover()
	if r == nil {
		return
	}

	stack := GetStackTrace()
	if logger != nil {
		logger.Error().
			Str("goroutine", name).
			Str("panic", fmt.Sprintf("%v", r)).
			Str("stack", stack).
			Msg("Recovered from panic")
	}

	if errp != nil {
		*errp = &PanicError{Name: name, Value: r, Stack: stack}
	}
}

// SafeRun calls fn and recovers a panic, logging it instead of crashing the
// process. Cron jobs are run through it.
func SafeRun(logger arbor.ILogger, name string, fn func()) {
	var err error
	defer func() {
		if err != nil && logger != nil {
			logger.Warn().Str("job", name).Msg("Job aborted by panic; next run is still scheduled")
		}
	}()
	defer GuardPanic(logger, name, &err)

	fn()
}

// GetStackTrace returns the current goroutine's stack trace
func GetStackTrace() string {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
