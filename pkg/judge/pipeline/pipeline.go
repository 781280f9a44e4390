// Package pipeline implements the per-task-type handlers (C5): compile,
// compile-checker, judge, run, interactive. Each handler follows the
// same shape described in spec.md §4.4: resolve input handles via the
// cache, stage bytes into a fresh scratch directory, call the sandbox,
// interpret its verdict, publish outputs back into the cache, and
// guarantee the scratch directory is removed on every exit path.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/oimasterkafuu/judge-server/pkg/judge/cache"
	"github.com/oimasterkafuu/judge-server/pkg/judge/judgeerr"
	"github.com/oimasterkafuu/judge-server/pkg/judge/sandbox"
	"github.com/oimasterkafuu/judge-server/pkg/judge/scheduler"
)

const (
	defaultTimeLimitMS    = 1000
	defaultMemoryLimitKB  = 131072
	defaultInputFileName  = "input.txt"
	defaultOutputFileName = "output.txt"
)

// Handlers bundles the collaborators every pipeline handler needs: the
// artifact cache, the sandbox adapter, and a scratch root for ephemeral
// working directories.
type Handlers struct {
	Cache       *cache.Cache
	Sandbox     sandbox.Sandbox
	ScratchRoot string
}

// RegisterAll installs compile, compile-checker, judge, run, and
// interactive as handlers on s.
func (h *Handlers) RegisterAll(s *scheduler.Scheduler) {
	s.RegisterHandler("compile", h.Compile)
	s.RegisterHandler("compile-checker", h.CompileChecker)
	s.RegisterHandler("judge", h.Judge)
	s.RegisterHandler("run", h.Run)
	s.RegisterHandler("interactive", h.Interactive)
}

// newScratchDir allocates a fresh ephemeral working directory named
// <prefix>-<unix-nano>-<uuid>, per spec.md §4.4's staging convention.
func (h *Handlers) newScratchDir(prefix string) (string, error) {
	root := h.ScratchRoot
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), uuid.NewString()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", judgeerr.Wrap(judgeerr.CodeIOFault, "allocate scratch directory", err)
	}
	return dir, nil
}

// stageFile copies an artifact's bytes into name under dir with perm.
func stageFile(dir, name string, data []byte, perm os.FileMode) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, perm); err != nil {
		return "", judgeerr.Wrap(judgeerr.CodeIOFault, "stage "+name, err)
	}
	return path, nil
}

// fetchBytes resolves a cache handle to its bytes, classifying a miss
// as a client-visible not-found rather than a generic I/O fault.
func fetchBytes(c *cache.Cache, handle, label string) ([]byte, error) {
	data, _, err := c.ReadAll(handle)
	if err != nil {
		return nil, judgeerr.Wrap(judgeerr.CodeNotFound, label+" handle not found or expired", err)
	}
	return data, nil
}

// resolveChecker implements the dual-mode checkerName lookup from
// spec.md §4.4.3: a UUID-shaped name is a cached checker handle,
// anything else must be one of sandbox.BuiltinCheckers.
func (h *Handlers) resolveChecker(checkerName string) (string, error) {
	if _, err := uuid.Parse(checkerName); err == nil {
		entry, err := h.Cache.Get(checkerName)
		if err != nil {
			return "", judgeerr.Wrap(judgeerr.CodeNotFound, "checker handle not found or expired", err)
		}
		return entry.Path, nil
	}
	if !sandbox.BuiltinCheckers[checkerName] {
		return "", judgeerr.New(judgeerr.CodeInvalidType, "unrecognized checker name: "+checkerName)
	}
	return "builtin:" + checkerName, nil
}

// inferLanguage guesses the interpreter a staged executable needs from
// its path, since judge/run inputs don't carry a language field (only
// compile does, per spec.md §4.4.3/§4.4.4) — the compiled artifact
// itself is self-describing enough for RunProgram's dispatch.
func inferLanguage(execPath string) string {
	switch filepath.Ext(execPath) {
	case ".py":
		return "python3"
	case ".class":
		return "java"
	default:
		return "cpp"
	}
}

// stagedRun is the outcome of staging a binary+input and invoking
// RunProgram, shared between the judge and run handlers.
type stagedRun struct {
	scratchDir string
	inputPath  string
	outputPath string
	result     sandbox.RunResult
}

// stageAndRun resolves the binary and (optional) input handles, stages
// them into a fresh scratch directory under prefix, invokes the
// sandbox, and writes the captured output to outputFileName inside
// that directory. The caller owns scratchDir and must remove it.
func (h *Handlers) stageAndRun(ctx context.Context, prefix, binaryHandle, inputHandle string, timeLimit time.Duration, memoryLimitKB int, isFileInput bool, inputFileName, outputFileName string) (stagedRun, error) {
	binBytes, err := fetchBytes(h.Cache, binaryHandle, "binary")
	if err != nil {
		return stagedRun{}, err
	}

	scratchDir, err := h.newScratchDir(prefix)
	if err != nil {
		return stagedRun{}, err
	}

	execPath, err := stageFile(scratchDir, "program", binBytes, 0o755)
	if err != nil {
		os.RemoveAll(scratchDir)
		return stagedRun{}, err
	}

	var inputPath string
	if inputHandle != "" {
		inBytes, err := fetchBytes(h.Cache, inputHandle, "input")
		if err != nil {
			os.RemoveAll(scratchDir)
			return stagedRun{}, err
		}
		inputPath, err = stageFile(scratchDir, inputFileName, inBytes, 0o644)
		if err != nil {
			os.RemoveAll(scratchDir)
			return stagedRun{}, err
		}
	}

	runResult, err := h.Sandbox.RunProgram(ctx, sandbox.RunRequest{
		ExecutablePath: execPath,
		InputPath:      inputPath,
		Language:       inferLanguage(execPath),
		TimeLimit:      timeLimit,
		MemoryLimitKB:  memoryLimitKB,
		IsFileInput:    isFileInput,
		InputFileName:  inputFileName,
		OutputFileName: outputFileName,
	})
	if err != nil {
		os.RemoveAll(scratchDir)
		return stagedRun{}, judgeerr.Wrap(judgeerr.CodeSandboxFault, prefix+": sandbox run failure", err)
	}

	outputPath, err := stageFile(scratchDir, outputFileName, []byte(runResult.Output), 0o644)
	if err != nil {
		os.RemoveAll(scratchDir)
		return stagedRun{}, err
	}

	return stagedRun{scratchDir: scratchDir, inputPath: inputPath, outputPath: outputPath, result: runResult}, nil
}
