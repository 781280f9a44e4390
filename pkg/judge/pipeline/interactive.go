package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/oimasterkafuu/judge-server/pkg/judge/judgeerr"
	"github.com/oimasterkafuu/judge-server/pkg/judge/sandbox"
)

const (
	defaultInteractorTimeLimitMS = 5000
	defaultScoreFileName         = "score.txt"
	defaultMessageFileName       = "message.txt"
)

// InteractiveInput is the `interactive` task's data record (spec.md §4.4.5).
type InteractiveInput struct {
	UserBinaryCacheID       string `json:"userBinaryCacheId"`
	InteractorBinaryCacheID string `json:"interactorBinaryCacheId"`
	TimeLimitMS             int    `json:"timeLimit,omitempty"`
	MemoryLimitKB           int    `json:"memoryLimit,omitempty"`
	InteractorTimeLimitMS   int    `json:"interactorTimeLimit,omitempty"`
	InteractorMemoryLimitKB int    `json:"interactorMemoryLimit,omitempty"`
	InputCacheID            string `json:"inputCacheId,omitempty"`
	ScoreFileName           string `json:"scoreFileName,omitempty"`
	MessageFileName         string `json:"messageFileName,omitempty"`
}

// InteractiveResult is the `interactive` task's result record.
type InteractiveResult struct {
	Verdict          string  `json:"verdict"`
	Score            float64 `json:"score"`
	NormalizedScore  float64 `json:"normalizedScore"`
	Message          string  `json:"message,omitempty"`
	Reason           string  `json:"reason,omitempty"`
	UserTime         float64 `json:"userTime"`
	UserMemory       int64   `json:"userMemory"`
	UserStderr       string  `json:"userStderr,omitempty"`
	InteractorTime   float64 `json:"interactorTime"`
	InteractorMemory int64   `json:"interactorMemory"`
	InteractorStderr string  `json:"interactorStderr,omitempty"`
}

// Interactive implements scheduler.Handler for the `interactive` task type.
func (h *Handlers) Interactive(ctx context.Context, data interface{}) (interface{}, error) {
	in, ok := data.(InteractiveInput)
	if !ok {
		return nil, judgeerr.New(judgeerr.CodeMissingField, "interactive: malformed task data")
	}

	timeLimitMS := in.TimeLimitMS
	if timeLimitMS <= 0 {
		timeLimitMS = defaultTimeLimitMS
	}
	memoryLimitKB := in.MemoryLimitKB
	if memoryLimitKB <= 0 {
		memoryLimitKB = defaultMemoryLimitKB
	}
	interactorTimeLimitMS := in.InteractorTimeLimitMS
	if interactorTimeLimitMS <= 0 {
		interactorTimeLimitMS = defaultInteractorTimeLimitMS
	}
	interactorMemoryLimitKB := in.InteractorMemoryLimitKB
	if interactorMemoryLimitKB <= 0 {
		interactorMemoryLimitKB = defaultMemoryLimitKB
	}
	scoreFileName := in.ScoreFileName
	if scoreFileName == "" {
		scoreFileName = defaultScoreFileName
	}
	messageFileName := in.MessageFileName
	if messageFileName == "" {
		messageFileName = defaultMessageFileName
	}

	userBytes, err := fetchBytes(h.Cache, in.UserBinaryCacheID, "user binary")
	if err != nil {
		return nil, err
	}
	interactorBytes, err := fetchBytes(h.Cache, in.InteractorBinaryCacheID, "interactor binary")
	if err != nil {
		return nil, err
	}

	scratchDir, err := h.newScratchDir("interactive")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(scratchDir)

	userPath, err := stageFile(scratchDir, "user", userBytes, 0o755)
	if err != nil {
		return nil, err
	}
	interactorPath, err := stageFile(scratchDir, "interactor", interactorBytes, 0o755)
	if err != nil {
		return nil, err
	}

	var interactorInputPath string
	if in.InputCacheID != "" {
		inputBytes, err := fetchBytes(h.Cache, in.InputCacheID, "input")
		if err != nil {
			return nil, err
		}
		interactorInputPath, err = stageFile(scratchDir, defaultInputFileName, inputBytes, 0o644)
		if err != nil {
			return nil, err
		}
	}

	result, err := h.Sandbox.RunInteractive(ctx, sandbox.InteractiveRequest{
		UserExecutablePath:       userPath,
		InteractorExecutablePath: interactorPath,
		TimeLimit:                time.Duration(timeLimitMS) * time.Millisecond,
		MemoryLimitKB:            memoryLimitKB,
		InteractorTimeLimit:      time.Duration(interactorTimeLimitMS) * time.Millisecond,
		InteractorMemoryLimitKB:  interactorMemoryLimitKB,
		InteractorInputPath:      interactorInputPath,
		ScoreFileName:            scoreFileName,
		MessageFileName:          messageFileName,
	})
	if err != nil {
		return nil, judgeerr.Wrap(judgeerr.CodeSandboxFault, "interactive: sandbox failure", err)
	}

	// judgement-failed means the sandbox couldn't produce a verdict at
	// all, not a judged outcome — surface it as a failed task rather
	// than a completed result (spec.md §9 open question 3).
	if result.Verdict.Verdict == "judgement-failed" {
		return nil, judgeerr.New(judgeerr.CodeJudgmentFault, result.Verdict.Reason)
	}

	return InteractiveResult{
		Verdict:          result.Verdict.Verdict,
		Score:            result.Verdict.Score,
		NormalizedScore:  result.Verdict.NormalizedScore,
		Message:          result.Verdict.Message,
		Reason:           result.Verdict.Reason,
		UserTime:         result.UserResult.Time.Seconds(),
		UserMemory:       result.UserResult.Memory,
		UserStderr:       result.UserResult.Stderr,
		InteractorTime:   result.InteractorResult.Time.Seconds(),
		InteractorMemory: result.InteractorResult.Memory,
		InteractorStderr: result.InteractorResult.Stderr,
	}, nil
}
