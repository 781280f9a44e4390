package pipeline

import (
	"context"
	"os"

	"github.com/google/uuid"

	"github.com/oimasterkafuu/judge-server/pkg/judge/cache"
	"github.com/oimasterkafuu/judge-server/pkg/judge/judgeerr"
	"github.com/oimasterkafuu/judge-server/pkg/judge/sandbox"
)

// CompileInput is the `compile` task's data record (spec.md §4.4.1).
type CompileInput struct {
	SourceCacheID string `json:"sourceCacheId"`
	Language      string `json:"language,omitempty"`
}

// CompileResult is the `compile` task's result record.
type CompileResult struct {
	Success       bool   `json:"success"`
	CompileInfo   string `json:"compileInfo,omitempty"`
	BinaryCacheID string `json:"binaryCacheId,omitempty"`
}

// CompileCheckerInput is the `compile-checker` task's data record
// (spec.md §4.4.2) — identical shape to compile.
type CompileCheckerInput struct {
	SourceCacheID string `json:"sourceCacheId"`
	Language      string `json:"language,omitempty"`
}

// CompileCheckerResult is the `compile-checker` task's result record.
type CompileCheckerResult struct {
	Success        bool   `json:"success"`
	CompileInfo    string `json:"compileInfo,omitempty"`
	CheckerCacheID string `json:"checkerCacheId,omitempty"`
}

// Compile implements scheduler.Handler for the `compile` task type.
func (h *Handlers) Compile(ctx context.Context, data interface{}) (interface{}, error) {
	in, ok := data.(CompileInput)
	if !ok {
		return nil, judgeerr.New(judgeerr.CodeMissingField, "compile: malformed task data")
	}
	result, err := h.compileImpl(ctx, in.SourceCacheID, in.Language, false)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return CompileResult{Success: false, CompileInfo: result.CompileInfo}, nil
	}
	return CompileResult{Success: true, CompileInfo: result.CompileInfo, BinaryCacheID: result.cacheID}, nil
}

// CompileChecker implements scheduler.Handler for `compile-checker`.
func (h *Handlers) CompileChecker(ctx context.Context, data interface{}) (interface{}, error) {
	in, ok := data.(CompileCheckerInput)
	if !ok {
		return nil, judgeerr.New(judgeerr.CodeMissingField, "compile-checker: malformed task data")
	}
	result, err := h.compileImpl(ctx, in.SourceCacheID, in.Language, true)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return CompileCheckerResult{Success: false, CompileInfo: result.CompileInfo}, nil
	}
	return CompileCheckerResult{Success: true, CompileInfo: result.CompileInfo, CheckerCacheID: result.cacheID}, nil
}

type compileOutcome struct {
	Success     bool
	CompileInfo string
	cacheID     string
}

// compileImpl is shared by Compile and CompileChecker; the two differ
// only in isChecker and the cache namespace the resulting handle lives
// under (binary vs checker).
func (h *Handlers) compileImpl(ctx context.Context, sourceHandle, language string, isChecker bool) (compileOutcome, error) {
	if language == "" {
		language = "cpp"
	}

	src, err := fetchBytes(h.Cache, sourceHandle, "source")
	if err != nil {
		return compileOutcome{}, err
	}

	submissionID := uuid.NewString()
	result, err := h.Sandbox.Compile(ctx, sandbox.CompileRequest{
		SourceCode:   string(src),
		Language:     language,
		SubmissionID: submissionID,
		IsChecker:    isChecker,
	})
	defer h.Sandbox.CleanupTempDir(result.TempDir)
	if err != nil {
		return compileOutcome{}, judgeerr.Wrap(judgeerr.CodeSandboxFault, "compile: sandbox failure", err)
	}

	if !result.Success {
		return compileOutcome{Success: false, CompileInfo: result.CompileInfo}, nil
	}

	binary, err := os.ReadFile(result.ExecutablePath)
	if err != nil {
		return compileOutcome{}, judgeerr.Wrap(judgeerr.CodeIOFault, "compile: read executable", err)
	}

	namespace := cache.TypeBinary
	if isChecker {
		namespace = cache.TypeChecker
	}
	handle, err := h.Cache.Put(namespace, binary, cache.Metadata{Filename: "program"})
	if err != nil {
		return compileOutcome{}, judgeerr.Wrap(judgeerr.CodeIOFault, "compile: cache executable", err)
	}

	return compileOutcome{Success: true, CompileInfo: result.CompileInfo, cacheID: handle}, nil
}
