package executor

import (
	"sync"
)

// globalExecutor is assigned in init, as New refers back to GlobalExecutor.
var globalExecutor func() *Executor

func init() {
	globalExecutor = sync.OnceValue(newGlobalExecutor)
}

func newGlobalExecutor() *Executor {
	x, err := New(WithName("global"))
	if err != nil {
		panic(err)
	}
	x.global = true
	return x
}

// GlobalExecutor returns the process-wide fallback executor. It is created
// on first use and never shut down, requests to do so are logged and
// ignored. It delivers notifications that have no better home, e.g. those
// of executor termination futures.
func GlobalExecutor() *Executor {
	return globalExecutor()
}

// refuseGlobalShutdown logs and reports true if x is the global executor.
func (x *Executor) refuseGlobalShutdown() bool {
	if !x.global {
		return false
	}
	x.logger.Warning().
		Str("executor", x.name).
		Log("executor: ignoring shutdown of the global executor")
	return true
}
