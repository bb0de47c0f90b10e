package executor

import (
	"sync"

	"github.com/caffeineduck/jsxpad/hostfunc"
)

// TestExecutor provides a shared executor for tests.
// Use GetTestExecutor() to get a shared instance that's reused across tests.
var (
	testExecutor     *Executor
	testExecutorOnce sync.Once
	testExecutorErr  error
)

// GetTestExecutor returns a shared goja executor for testing.
// The executor is created once and reused; every run still gets its own
// engine instance.
func GetTestExecutor() (*Executor, error) {
	testExecutorOnce.Do(func() {
		testExecutor, testExecutorErr = New(hostfunc.NewRegistry())
	})
	return testExecutor, testExecutorErr
}

// CloseTestExecutor closes the shared test executor.
// Call this in TestMain if needed, but typically not necessary.
func CloseTestExecutor() {
	if testExecutor != nil {
		testExecutor.Close()
		testExecutor = nil
		testExecutorOnce = sync.Once{} // Reset for next test run
	}
}
