package pipeline

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oimasterkafuu/judge-server/pkg/judge/cache"
	"github.com/oimasterkafuu/judge-server/pkg/judge/judgeerr"
	"github.com/oimasterkafuu/judge-server/pkg/judge/sandbox"
)

func newTestHandlers(t *testing.T) (*Handlers, *sandbox.MockSandbox) {
	t.Helper()
	c, err := cache.New(cache.Config{Root: t.TempDir(), TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	mock := sandbox.NewMockSandbox()
	return &Handlers{Cache: c, Sandbox: mock, ScratchRoot: t.TempDir()}, mock
}

func TestCompileSuccess(t *testing.T) {
	h, mock := newTestHandlers(t)
	srcHandle, err := h.Cache.Put(cache.TypeSource, []byte("int main(){}"), cache.Metadata{Filename: "a.cpp"})
	require.NoError(t, err)

	mock.QueueCompile(sandbox.CompileResult{Success: true, ExecutablePath: writeExecutable(t), TempDir: t.TempDir()})

	out, err := h.Compile(context.Background(), CompileInput{SourceCacheID: srcHandle})
	require.NoError(t, err)

	result := out.(CompileResult)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.BinaryCacheID)

	entry, err := h.Cache.Get(result.BinaryCacheID)
	require.NoError(t, err)
	assert.Equal(t, cache.TypeBinary, entry.Type)
}

func TestCompileFailure(t *testing.T) {
	h, mock := newTestHandlers(t)
	srcHandle, err := h.Cache.Put(cache.TypeSource, []byte("broken"), cache.Metadata{})
	require.NoError(t, err)

	mock.QueueCompile(sandbox.CompileResult{Success: false, CompileInfo: "missing semicolon"})

	out, err := h.Compile(context.Background(), CompileInput{SourceCacheID: srcHandle})
	require.NoError(t, err)

	result := out.(CompileResult)
	assert.False(t, result.Success)
	assert.Equal(t, "missing semicolon", result.CompileInfo)
	assert.Empty(t, result.BinaryCacheID)
}

func TestCompileMissingSourceHandle(t *testing.T) {
	h, _ := newTestHandlers(t)
	_, err := h.Compile(context.Background(), CompileInput{SourceCacheID: "does-not-exist"})
	require.Error(t, err)
	var jerr *judgeerr.Error
	require.ErrorAs(t, err, &jerr)
	assert.Equal(t, judgeerr.CodeNotFound, jerr.Code)
}

func TestJudgeAccepted(t *testing.T) {
	h, mock := newTestHandlers(t)
	binHandle, err := h.Cache.Put(cache.TypeBinary, []byte("binary-bytes"), cache.Metadata{})
	require.NoError(t, err)
	inputHandle, err := h.Cache.Put(cache.TypeInput, []byte("1 2"), cache.Metadata{})
	require.NoError(t, err)
	answerHandle, err := h.Cache.Put(cache.TypeOutput, []byte("3"), cache.Metadata{})
	require.NoError(t, err)

	mock.QueueRun(sandbox.RunResult{Status: sandbox.RunStatusExited, Code: 0, Output: "3", Time: 5 * time.Millisecond})
	mock.QueueChecker(sandbox.CheckerResult{Score: 100, NormalizedScore: 1, Message: "ok"})

	out, err := h.Judge(context.Background(), JudgeInput{
		BinaryCacheID: binHandle,
		InputCacheID:  inputHandle,
		OutputCacheID: answerHandle,
		CheckerName:   "ncmp",
	})
	require.NoError(t, err)

	result := out.(JudgeResult)
	assert.Equal(t, "accepted", result.Status)
	assert.Equal(t, 100.0, result.Score)
	assert.Equal(t, 1.0, result.NormalizedScore)
}

func TestJudgeTimeLimitExceededSkipsChecker(t *testing.T) {
	h, mock := newTestHandlers(t)
	binHandle, _ := h.Cache.Put(cache.TypeBinary, []byte("binary-bytes"), cache.Metadata{})
	answerHandle, _ := h.Cache.Put(cache.TypeOutput, []byte("3"), cache.Metadata{})

	mock.QueueRun(sandbox.RunResult{Status: sandbox.RunStatusTLE})

	out, err := h.Judge(context.Background(), JudgeInput{
		BinaryCacheID: binHandle,
		OutputCacheID: answerHandle,
		CheckerName:   "ncmp",
		TimeLimitMS:   500,
	})
	require.NoError(t, err)

	result := out.(JudgeResult)
	assert.Equal(t, "time-limit-exceeded", result.Status)
	assert.Empty(t, result.CheckerMessage)
	assert.Equal(t, 0, mock.CheckerCalls)
}

func TestJudgeZeroScoreIsWrongAnswer(t *testing.T) {
	h, mock := newTestHandlers(t)
	binHandle, _ := h.Cache.Put(cache.TypeBinary, []byte("binary-bytes"), cache.Metadata{})
	answerHandle, _ := h.Cache.Put(cache.TypeOutput, []byte("3"), cache.Metadata{})

	mock.QueueRun(sandbox.RunResult{Status: sandbox.RunStatusExited, Code: 0, Output: "2"})
	mock.QueueChecker(sandbox.CheckerResult{Score: 0, NormalizedScore: 0, Message: "wrong"})

	out, err := h.Judge(context.Background(), JudgeInput{
		BinaryCacheID: binHandle,
		OutputCacheID: answerHandle,
		CheckerName:   "ncmp",
	})
	require.NoError(t, err)
	assert.Equal(t, "wrong-answer", out.(JudgeResult).Status)
}

func TestJudgeCheckerNameDualMode(t *testing.T) {
	h, _ := newTestHandlers(t)

	checkerHandle, err := h.Cache.Put(cache.TypeChecker, []byte("checker-binary"), cache.Metadata{})
	require.NoError(t, err)
	path, err := h.resolveChecker(checkerHandle)
	require.NoError(t, err)
	assert.Contains(t, path, checkerHandle)

	path, err = h.resolveChecker("ncmp")
	require.NoError(t, err)
	assert.Equal(t, "builtin:ncmp", path)

	_, err = h.resolveChecker("not-a-real-checker")
	require.Error(t, err)

	_, err = h.resolveChecker(uuid.NewString())
	require.Error(t, err) // well-formed UUID but no such handle
}

func TestRunNonZeroExit(t *testing.T) {
	h, mock := newTestHandlers(t)
	binHandle, _ := h.Cache.Put(cache.TypeBinary, []byte("binary-bytes"), cache.Metadata{})

	mock.QueueRun(sandbox.RunResult{Status: sandbox.RunStatusExited, Code: 1, Output: "boom"})

	out, err := h.Run(context.Background(), RunInput{BinaryCacheID: binHandle})
	require.NoError(t, err)
	assert.Equal(t, "non-zero-exit", out.(RunResult).Status)
}

func TestInteractiveJudgementFailedBecomesTaskError(t *testing.T) {
	h, mock := newTestHandlers(t)
	userHandle, _ := h.Cache.Put(cache.TypeBinary, []byte("user"), cache.Metadata{})
	interactorHandle, _ := h.Cache.Put(cache.TypeBinary, []byte("interactor"), cache.Metadata{})

	mock.QueueInteractive(sandbox.InteractiveResult{
		Verdict: sandbox.InteractiveVerdict{Verdict: "judgement-failed", Reason: "interactor crashed"},
	})

	_, err := h.Interactive(context.Background(), InteractiveInput{
		UserBinaryCacheID:       userHandle,
		InteractorBinaryCacheID: interactorHandle,
	})
	require.Error(t, err)
	var jerr *judgeerr.Error
	require.ErrorAs(t, err, &jerr)
	assert.Equal(t, judgeerr.CodeJudgmentFault, jerr.Code)
}

func TestInteractiveAccepted(t *testing.T) {
	h, mock := newTestHandlers(t)
	userHandle, _ := h.Cache.Put(cache.TypeBinary, []byte("user"), cache.Metadata{})
	interactorHandle, _ := h.Cache.Put(cache.TypeBinary, []byte("interactor"), cache.Metadata{})

	mock.QueueInteractive(sandbox.InteractiveResult{
		Verdict: sandbox.InteractiveVerdict{Verdict: "accepted", Score: 100, NormalizedScore: 1},
	})

	out, err := h.Interactive(context.Background(), InteractiveInput{
		UserBinaryCacheID:       userHandle,
		InteractorBinaryCacheID: interactorHandle,
	})
	require.NoError(t, err)
	assert.Equal(t, "accepted", out.(InteractiveResult).Verdict)
}

func writeExecutable(t *testing.T) string {
	t.Helper()
	path := t.TempDir() + "/program"
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/true\n"), 0o755))
	return path
}
