// Package sandbox defines the narrow interface the judging pipelines
// consume from an external sandbox runtime (C6 in SPEC_FULL.md), plus
// two implementations: ProcessSandbox, a real os/exec-based adapter
// good enough to run compiled/interpreted submissions end to end, and
// MockSandbox, a scripted stand-in for pipeline tests.
//
// Nothing in pkg/judge/pipeline depends on which implementation is
// wired in; spec.md §4.5 treats the sandbox as a replaceable external
// collaborator and this package honors that boundary.
package sandbox

import (
	"context"
	"time"
)

// BuiltinCheckers is the fixed set of testlib-style checker names
// recognized without a custom compiled checker, per spec.md §4.4.3.
var BuiltinCheckers = map[string]bool{
	"icmp": true, "ncmp": true, "wcmp": true, "rcmp": true, "dcmp": true,
	"fcmp": true, "hcmp": true, "lcmp": true, "uncmp": true,
	"caseicmp": true, "casencmp": true, "casewcmp": true,
	"yesno": true, "nyesno": true,
	"rcmp4": true, "rcmp6": true, "rcmp9": true, "rncmp": true, "acmp": true,
}

// CompileRequest describes a compile (or compile-checker) job.
type CompileRequest struct {
	SourceCode   string
	Language     string
	SubmissionID string
	IsChecker    bool
}

// CompileResult is what Compile returns. ExecutablePath is only
// meaningful when Success is true. TempDir is set whenever the sandbox
// allocated a working directory, whether or not compilation succeeded;
// the caller owns TempDir and must call CleanupTempDir on it.
type CompileResult struct {
	Success        bool
	CompileInfo    string
	ExecutablePath string
	TempDir        string
}

// RunRequest describes a single program execution under resource limits.
type RunRequest struct {
	ExecutablePath string
	InputPath      string
	Language       string
	TimeLimit      time.Duration
	MemoryLimitKB  int
	IsFileInput    bool
	InputFileName  string
	OutputFileName string
}

// Run status codes, per spec.md §4.5: 1=exited, 2=TLE, 3=MLE, other=fault.
const (
	RunStatusExited = 1
	RunStatusTLE    = 2
	RunStatusMLE    = 3
)

// RunResult is what RunProgram returns.
type RunResult struct {
	Status int
	Code   int
	Time   time.Duration
	Memory int64 // KB
	Output string
	Err    string
}

// CheckerRequest describes an answer-checking invocation.
type CheckerRequest struct {
	CheckerPath string
	InputPath   string
	OutputPath  string
	AnswerPath  string
	UseTestlib  bool
}

// CheckerResult is what RunChecker returns. NormalizedScore is in [0,1].
type CheckerResult struct {
	Score           float64
	NormalizedScore float64
	Message         string
}

// InteractiveRequest describes a two-process interactive judging run.
type InteractiveRequest struct {
	UserExecutablePath       string
	InteractorExecutablePath string
	TimeLimit                time.Duration
	MemoryLimitKB            int
	InteractorTimeLimit      time.Duration
	InteractorMemoryLimitKB  int
	InteractorInputPath      string
	ScoreFileName            string
	MessageFileName          string
}

// InteractiveVerdict is the classified outcome of an interactive run,
// per spec.md §4.4.5's taxonomy.
type InteractiveVerdict struct {
	Verdict         string
	Score           float64
	NormalizedScore float64
	Message         string
	Reason          string
}

// ProcessResult captures one side of an interactive run's resource usage.
type ProcessResult struct {
	Time   time.Duration
	Memory int64 // KB
	Stderr string
}

// InteractiveResult is what RunInteractive returns.
type InteractiveResult struct {
	Verdict           InteractiveVerdict
	UserResult        ProcessResult
	InteractorResult  ProcessResult
}

// Sandbox is the full set of operations the judging pipelines consume.
// An implementation of SPEC_FULL.md is free to substitute any sandbox
// satisfying this contract.
type Sandbox interface {
	Compile(ctx context.Context, req CompileRequest) (CompileResult, error)
	CompileChecker(ctx context.Context, builtinName string) (executablePath string, err error)
	RunProgram(ctx context.Context, req RunRequest) (RunResult, error)
	RunChecker(ctx context.Context, req CheckerRequest) (CheckerResult, error)
	RunInteractive(ctx context.Context, req InteractiveRequest) (InteractiveResult, error)
	CleanupTempDir(path string) error
}
