package sandbox

import (
	"context"
	"fmt"
	"sync"
)

// MockSandbox is a scripted stand-in for Sandbox used by pipeline
// tests: callers queue canned responses per operation and the mock
// returns them in order, falling back to a default once the queue is
// drained. Grounded on pkg/storage/testing/mock_backend.go's style of
// test-control setters plus call counters.
type MockSandbox struct {
	mu sync.Mutex

	compileResults []CompileResult
	compileErr     error

	runResults []RunResult
	runErr     error

	checkerResults []CheckerResult
	checkerErr     error

	interactiveResults []InteractiveResult
	interactiveErr     error

	CompileCalls    int
	RunCalls        int
	CheckerCalls    int
	InteractiveCalls int
	CleanupCalls    []string
}

// NewMockSandbox returns an empty MockSandbox; queue responses with
// the QueueXxx methods before exercising it.
func NewMockSandbox() *MockSandbox {
	return &MockSandbox{}
}

var _ Sandbox = (*MockSandbox)(nil)

// QueueCompile appends a canned CompileResult returned on the next Compile call.
func (m *MockSandbox) QueueCompile(r CompileResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compileResults = append(m.compileResults, r)
}

// QueueRun appends a canned RunResult returned on the next RunProgram call.
func (m *MockSandbox) QueueRun(r RunResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runResults = append(m.runResults, r)
}

// QueueChecker appends a canned CheckerResult returned on the next RunChecker call.
func (m *MockSandbox) QueueChecker(r CheckerResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkerResults = append(m.checkerResults, r)
}

// QueueInteractive appends a canned InteractiveResult returned on the next RunInteractive call.
func (m *MockSandbox) QueueInteractive(r InteractiveResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactiveResults = append(m.interactiveResults, r)
}

// SetCompileError forces every subsequent Compile call to fail.
func (m *MockSandbox) SetCompileError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compileErr = err
}

// SetRunError forces every subsequent RunProgram call to fail.
func (m *MockSandbox) SetRunError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runErr = err
}

// SetCheckerError forces every subsequent RunChecker call to fail.
func (m *MockSandbox) SetCheckerError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkerErr = err
}

// SetInteractiveError forces every subsequent RunInteractive call to fail.
func (m *MockSandbox) SetInteractiveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactiveErr = err
}

func (m *MockSandbox) Compile(ctx context.Context, req CompileRequest) (CompileResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompileCalls++
	if m.compileErr != nil {
		return CompileResult{}, m.compileErr
	}
	if len(m.compileResults) == 0 {
		return CompileResult{Success: true, ExecutablePath: "/mock/program", TempDir: "/mock/tmp"}, nil
	}
	r := m.compileResults[0]
	m.compileResults = m.compileResults[1:]
	return r, nil
}

func (m *MockSandbox) CompileChecker(ctx context.Context, builtinName string) (string, error) {
	if !BuiltinCheckers[builtinName] {
		return "", fmt.Errorf("sandbox: unknown built-in checker %q", builtinName)
	}
	return "builtin:" + builtinName, nil
}

func (m *MockSandbox) RunProgram(ctx context.Context, req RunRequest) (RunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RunCalls++
	if m.runErr != nil {
		return RunResult{}, m.runErr
	}
	if len(m.runResults) == 0 {
		return RunResult{Status: RunStatusExited, Code: 0}, nil
	}
	r := m.runResults[0]
	m.runResults = m.runResults[1:]
	return r, nil
}

func (m *MockSandbox) RunChecker(ctx context.Context, req CheckerRequest) (CheckerResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CheckerCalls++
	if m.checkerErr != nil {
		return CheckerResult{}, m.checkerErr
	}
	if len(m.checkerResults) == 0 {
		return CheckerResult{Score: 100, NormalizedScore: 1, Message: "ok"}, nil
	}
	r := m.checkerResults[0]
	m.checkerResults = m.checkerResults[1:]
	return r, nil
}

func (m *MockSandbox) RunInteractive(ctx context.Context, req InteractiveRequest) (InteractiveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InteractiveCalls++
	if m.interactiveErr != nil {
		return InteractiveResult{}, m.interactiveErr
	}
	if len(m.interactiveResults) == 0 {
		return InteractiveResult{Verdict: InteractiveVerdict{Verdict: "accepted", Score: 100, NormalizedScore: 1}}, nil
	}
	r := m.interactiveResults[0]
	m.interactiveResults = m.interactiveResults[1:]
	return r, nil
}

func (m *MockSandbox) CleanupTempDir(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CleanupCalls = append(m.CleanupCalls, path)
	return nil
}
