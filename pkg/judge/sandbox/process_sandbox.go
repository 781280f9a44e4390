package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// ProcessSandbox compiles and runs submissions as real child processes
// on the host, using the toolchains already on PATH (g++, python3,
// javac/java). It is a reference adapter: time limits are enforced via
// context deadlines and memory accounting is best-effort via
// os.ProcessState's rusage, not a hardened cgroup/namespace jail.
// Sandbox *policy* is explicitly out of scope for the judging core
// (spec.md §1); this implementation exists so the rest of the system
// has something real to drive end to end.
type ProcessSandbox struct {
	ScratchRoot string
}

var _ Sandbox = (*ProcessSandbox)(nil)

// NewProcessSandbox builds a ProcessSandbox rooted at scratchRoot for
// its ephemeral working directories.
func NewProcessSandbox(scratchRoot string) *ProcessSandbox {
	return &ProcessSandbox{ScratchRoot: scratchRoot}
}

type languageProfile struct {
	sourceExt  string
	compile    func(dir, src, out string) *exec.Cmd // nil if interpreted
	run        func(execPath string) (string, []string)
}

func (s *ProcessSandbox) profile(language string) languageProfile {
	switch language {
	case "python3", "python":
		return languageProfile{
			sourceExt: ".py",
			run: func(execPath string) (string, []string) {
				return "python3", []string{execPath}
			},
		}
	case "java":
		return languageProfile{
			sourceExt: ".java",
			compile: func(dir, src, out string) *exec.Cmd {
				return exec.Command("javac", "-d", dir, src)
			},
			run: func(execPath string) (string, []string) {
				return "java", []string{"-cp", filepath.Dir(execPath), "Main"}
			},
		}
	default: // cpp
		return languageProfile{
			sourceExt: ".cpp",
			compile: func(dir, src, out string) *exec.Cmd {
				return exec.Command("g++", "-O2", "-std=c++17", "-I", dir, "-o", out, src)
			},
			run: func(execPath string) (string, []string) {
				return execPath, nil
			},
		}
	}
}

// Compile implements Sandbox.
func (s *ProcessSandbox) Compile(ctx context.Context, req CompileRequest) (CompileResult, error) {
	submissionID := req.SubmissionID
	if submissionID == "" {
		submissionID = uuid.NewString()
	}

	tempDir, err := s.newScratchDir("compile", submissionID)
	if err != nil {
		return CompileResult{}, err
	}

	prof := s.profile(req.Language)

	if req.IsChecker {
		if err := os.WriteFile(filepath.Join(tempDir, "testlib.h"), []byte(testlibStub), 0o644); err != nil {
			return CompileResult{TempDir: tempDir}, fmt.Errorf("sandbox: write testlib stub: %w", err)
		}
	}

	srcPath := filepath.Join(tempDir, "source"+prof.sourceExt)
	if req.Language == "java" {
		srcPath = filepath.Join(tempDir, "Main.java")
	}
	if err := os.WriteFile(srcPath, []byte(req.SourceCode), 0o644); err != nil {
		return CompileResult{TempDir: tempDir}, fmt.Errorf("sandbox: write source: %w", err)
	}

	if prof.compile == nil {
		// Interpreted language: no build step, the source itself is
		// the "executable" the pipeline stages for RunProgram.
		return CompileResult{Success: true, ExecutablePath: srcPath, TempDir: tempDir}, nil
	}

	execPath := filepath.Join(tempDir, "program")
	cmd := prof.compile(tempDir, srcPath, execPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Dir = tempDir

	if err := cmd.Run(); err != nil {
		return CompileResult{
			Success:     false,
			CompileInfo: stderr.String(),
			TempDir:     tempDir,
		}, nil
	}

	if req.Language == "java" {
		execPath = filepath.Join(tempDir, "Main.class")
	}

	return CompileResult{Success: true, ExecutablePath: execPath, TempDir: tempDir}, nil
}

// CompileChecker implements Sandbox for built-in testlib-style names:
// no compilation is needed since they run as native comparators (see
// checkers.go), so this just validates the name and returns a marker
// path RunChecker recognizes.
func (s *ProcessSandbox) CompileChecker(ctx context.Context, builtinName string) (string, error) {
	if !BuiltinCheckers[builtinName] {
		return "", fmt.Errorf("sandbox: unknown built-in checker %q", builtinName)
	}
	return "builtin:" + builtinName, nil
}

// RunProgram implements Sandbox.
func (s *ProcessSandbox) RunProgram(ctx context.Context, req RunRequest) (RunResult, error) {
	prof := s.profile(req.Language)
	bin, args := prof.run(req.ExecutablePath)

	runCtx, cancel := context.WithTimeout(ctx, req.TimeLimit)
	defer cancel()

	cmd := exec.CommandContext(runCtx, bin, args...)
	cmd.Dir = filepath.Dir(req.ExecutablePath)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if req.IsFileInput {
		if req.InputPath != "" {
			data, err := os.ReadFile(req.InputPath)
			if err != nil {
				return RunResult{}, fmt.Errorf("sandbox: read input: %w", err)
			}
			inFile := filepath.Join(cmd.Dir, req.InputFileName)
			if err := os.WriteFile(inFile, data, 0o644); err != nil {
				return RunResult{}, fmt.Errorf("sandbox: stage file input: %w", err)
			}
		}
	} else if req.InputPath != "" {
		f, err := os.Open(req.InputPath)
		if err != nil {
			return RunResult{}, fmt.Errorf("sandbox: open input: %w", err)
		}
		defer f.Close()
		cmd.Stdin = f
	}

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	result := RunResult{Time: elapsed}

	if runCtx.Err() == context.DeadlineExceeded {
		result.Status = RunStatusTLE
		return result, nil
	}

	result.Memory = maxRSSKB(cmd.ProcessState)

	if req.MemoryLimitKB > 0 && result.Memory > int64(req.MemoryLimitKB) {
		result.Status = RunStatusMLE
		return result, nil
	}

	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			result.Status = RunStatusExited
			result.Code = exitErr.ExitCode()
			result.Err = stderr.String()
			result.Output = stdout.String()
			return result, nil
		}
		result.Status = 0
		result.Err = runErr.Error()
		return result, nil
	}

	result.Status = RunStatusExited
	result.Code = 0

	if req.IsFileInput {
		outFile := filepath.Join(cmd.Dir, req.OutputFileName)
		if data, err := os.ReadFile(outFile); err == nil {
			result.Output = string(data)
		}
	} else {
		result.Output = stdout.String()
	}

	return result, nil
}

// RunChecker implements Sandbox.
func (s *ProcessSandbox) RunChecker(ctx context.Context, req CheckerRequest) (CheckerResult, error) {
	if name, ok := strings.CutPrefix(req.CheckerPath, "builtin:"); ok {
		return compareBuiltin(name, req.OutputPath, req.AnswerPath)
	}
	return s.runCustomChecker(ctx, req)
}

// runCustomChecker executes a compiled testlib-style checker binary
// with the convention <checker> <input> <output> <answer>, treating
// exit code 0 as accepted, a "partial: <score>" first stderr line as a
// partial score, and any other nonzero exit as wrong-answer. This
// protocol is this adapter's own, internal detail — the Sandbox
// interface itself only promises a normalizedScore in [0,1].
func (s *ProcessSandbox) runCustomChecker(ctx context.Context, req CheckerRequest) (CheckerResult, error) {
	cmd := exec.CommandContext(ctx, req.CheckerPath, req.InputPath, req.OutputPath, req.AnswerPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	msg := strings.TrimSpace(firstLine(stderr.String()))

	if err == nil {
		return CheckerResult{Score: 100, NormalizedScore: 1, Message: msg}, nil
	}

	if score, ok := strings.CutPrefix(msg, "partial:"); ok {
		var f float64
		if _, scanErr := fmt.Sscanf(strings.TrimSpace(score), "%f", &f); scanErr == nil {
			return CheckerResult{Score: f * 100, NormalizedScore: f, Message: msg}, nil
		}
	}

	return CheckerResult{Score: 0, NormalizedScore: 0, Message: msg}, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// RunInteractive implements Sandbox by wiring the user program's
// stdout to the interactor's stdin and vice versa, then waiting for
// the interactor to write its score/message files.
func (s *ProcessSandbox) RunInteractive(ctx context.Context, req InteractiveRequest) (InteractiveResult, error) {
	dir := filepath.Dir(req.UserExecutablePath)

	userR, interW := pipePairOrPanic()
	interR, userW := pipePairOrPanic()
	defer userR.Close()
	defer userW.Close()
	defer interR.Close()
	defer interW.Close()

	userCtx, userCancel := context.WithTimeout(ctx, req.TimeLimit)
	defer userCancel()
	interCtx, interCancel := context.WithTimeout(ctx, req.InteractorTimeLimit)
	defer interCancel()

	userCmd := exec.CommandContext(userCtx, req.UserExecutablePath)
	userCmd.Dir = dir
	userCmd.Stdin = userR
	userCmd.Stdout = userW
	var userStderr bytes.Buffer
	userCmd.Stderr = &userStderr

	interArgs := []string{}
	if req.InteractorInputPath != "" {
		interArgs = append(interArgs, req.InteractorInputPath)
	}
	interCmd := exec.CommandContext(interCtx, req.InteractorExecutablePath, interArgs...)
	interCmd.Dir = dir
	interCmd.Stdin = interR
	interCmd.Stdout = interW
	var interStderr bytes.Buffer
	interCmd.Stderr = &interStderr

	if err := userCmd.Start(); err != nil {
		return InteractiveResult{}, fmt.Errorf("sandbox: start user program: %w", err)
	}
	if err := interCmd.Start(); err != nil {
		userCmd.Process.Kill()
		return InteractiveResult{}, fmt.Errorf("sandbox: start interactor: %w", err)
	}

	userStart := time.Now()
	userErr := userCmd.Wait()
	userElapsed := time.Since(userStart)

	interStart := time.Now()
	interErr := interCmd.Wait()
	interElapsed := time.Since(interStart)

	result := InteractiveResult{
		UserResult: ProcessResult{
			Time:   userElapsed,
			Memory: maxRSSKB(userCmd.ProcessState),
			Stderr: userStderr.String(),
		},
		InteractorResult: ProcessResult{
			Time:   interElapsed,
			Memory: maxRSSKB(interCmd.ProcessState),
			Stderr: interStderr.String(),
		},
	}

	if userCtx.Err() == context.DeadlineExceeded {
		result.Verdict = InteractiveVerdict{Verdict: "user-error", Reason: "time limit exceeded"}
		return result, nil
	}
	if interCtx.Err() == context.DeadlineExceeded {
		result.Verdict = InteractiveVerdict{Verdict: "interactor-error", Reason: "interactor time limit exceeded"}
		return result, nil
	}
	if userErr != nil {
		result.Verdict = InteractiveVerdict{Verdict: "user-error", Reason: userErr.Error()}
		return result, nil
	}
	if interErr != nil {
		result.Verdict = InteractiveVerdict{Verdict: "interactor-error", Reason: interErr.Error()}
		return result, nil
	}

	scorePath := filepath.Join(dir, req.ScoreFileName)
	msgPath := filepath.Join(dir, req.MessageFileName)

	scoreData, scoreErr := os.ReadFile(scorePath)
	if scoreErr != nil {
		result.Verdict = InteractiveVerdict{Verdict: "judgement-failed", Reason: "interactor produced no score"}
		return result, nil
	}

	var normalized float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(scoreData)), "%f", &normalized); err != nil {
		result.Verdict = InteractiveVerdict{Verdict: "judgement-failed", Reason: "malformed score file"}
		return result, nil
	}

	message := ""
	if data, err := os.ReadFile(msgPath); err == nil {
		message = strings.TrimSpace(string(data))
	}

	verdict := "wrong-answer"
	switch {
	case normalized >= 1:
		verdict = "accepted"
	case normalized > 0:
		verdict = "partial"
	}

	result.Verdict = InteractiveVerdict{
		Verdict:         verdict,
		Score:           normalized * 100,
		NormalizedScore: normalized,
		Message:         message,
	}
	return result, nil
}

// CleanupTempDir implements Sandbox.
func (s *ProcessSandbox) CleanupTempDir(path string) error {
	if path == "" {
		return nil
	}
	return os.RemoveAll(path)
}

func (s *ProcessSandbox) newScratchDir(prefix, suffix string) (string, error) {
	root := s.ScratchRoot
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), suffix))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("sandbox: create scratch dir: %w", err)
	}
	return dir, nil
}

// maxRSSKB reads peak resident set size from a finished process's
// rusage. Best effort: returns 0 on platforms without syscall.Rusage.
func maxRSSKB(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	ru, ok := state.SysUsage().(*syscall.Rusage)
	if !ok {
		return 0
	}
	return int64(ru.Maxrss)
}

func pipePairOrPanic() (*os.File, *os.File) {
	r, w, err := os.Pipe()
	if err != nil {
		panic(fmt.Sprintf("sandbox: create pipe: %v", err))
	}
	return r, w
}

const testlibStub = `// Minimal stand-in for testlib.h: enough surface for simple checkers
// compiled against this reference sandbox. Real testlib offers much
// more; this adapter only needs enough to let custom checkers compile
// and follow the <input> <output> <answer> argv convention.
#pragma once
#include <cstdio>
#include <cstdlib>
#include <string>
#include <fstream>

namespace testlib_stub {
inline void quitf(const char* tag, const std::string& msg) {
	fprintf(stderr, "%s\n", msg.c_str());
	if (std::string(tag) == "_ok") std::exit(0);
	if (std::string(tag) == "_pc") std::exit(1);
	std::exit(1);
}
}

#define registerTestlibCmd(argc, argv) \
	std::ifstream inf(argv[1]); \
	std::ifstream ouf(argv[2]); \
	std::ifstream ans(argv[3])

#define quitf(tag, ...) testlib_stub::quitf(tag, (std::string() + __VA_ARGS__))
`
