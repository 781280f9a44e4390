package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/oimasterkafuu/judge-server/pkg/judge/judgeerr"
	"github.com/oimasterkafuu/judge-server/pkg/judge/sandbox"
)

// JudgeInput is the `judge` task's data record (spec.md §4.4.3).
type JudgeInput struct {
	BinaryCacheID  string `json:"binaryCacheId"`
	InputCacheID   string `json:"inputCacheId"`
	OutputCacheID  string `json:"outputCacheId"`
	CheckerName    string `json:"checkerName"`
	TimeLimitMS    int    `json:"timeLimit,omitempty"`
	MemoryLimitKB  int    `json:"memoryLimit,omitempty"`
	IsFileInput    bool   `json:"isFileInput,omitempty"`
	InputFileName  string `json:"inputFileName,omitempty"`
	OutputFileName string `json:"outputFileName,omitempty"`
}

// JudgeResult is the `judge` task's result record.
type JudgeResult struct {
	Status          string  `json:"status"`
	Score           float64 `json:"score"`
	NormalizedScore float64 `json:"normalizedScore"`
	Time            float64 `json:"time"`
	Memory          int64   `json:"memory"`
	Output          string  `json:"output,omitempty"`
	CheckerMessage  string  `json:"checkerMessage,omitempty"`
}

// Judge implements scheduler.Handler for the `judge` task type.
func (h *Handlers) Judge(ctx context.Context, data interface{}) (interface{}, error) {
	in, ok := data.(JudgeInput)
	if !ok {
		return nil, judgeerr.New(judgeerr.CodeMissingField, "judge: malformed task data")
	}

	timeLimitMS := in.TimeLimitMS
	if timeLimitMS <= 0 {
		timeLimitMS = defaultTimeLimitMS
	}
	memoryLimitKB := in.MemoryLimitKB
	if memoryLimitKB <= 0 {
		memoryLimitKB = defaultMemoryLimitKB
	}
	inputFileName := in.InputFileName
	if inputFileName == "" {
		inputFileName = defaultInputFileName
	}
	outputFileName := in.OutputFileName
	if outputFileName == "" {
		outputFileName = defaultOutputFileName
	}

	checkerPath, err := h.resolveChecker(in.CheckerName)
	if err != nil {
		return nil, err
	}

	staged, err := h.stageAndRun(ctx, "judge", in.BinaryCacheID, in.InputCacheID,
		time.Duration(timeLimitMS)*time.Millisecond, memoryLimitKB, in.IsFileInput, inputFileName, outputFileName)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(staged.scratchDir)

	switch {
	case staged.result.Status == sandbox.RunStatusTLE:
		return JudgeResult{Status: "time-limit-exceeded", Time: staged.result.Time.Seconds(), Memory: staged.result.Memory}, nil
	case staged.result.Status == sandbox.RunStatusMLE:
		return JudgeResult{Status: "memory-limit-exceeded", Time: staged.result.Time.Seconds(), Memory: staged.result.Memory}, nil
	case staged.result.Status != sandbox.RunStatusExited || staged.result.Code != 0:
		return JudgeResult{Status: "runtime-error", Time: staged.result.Time.Seconds(), Memory: staged.result.Memory}, nil
	}

	answerBytes, err := fetchBytes(h.Cache, in.OutputCacheID, "answer")
	if err != nil {
		return nil, err
	}
	answerPath, err := stageFile(staged.scratchDir, "answer.txt", answerBytes, 0o644)
	if err != nil {
		return nil, err
	}

	checkerResult, err := h.Sandbox.RunChecker(ctx, sandbox.CheckerRequest{
		CheckerPath: checkerPath,
		InputPath:   staged.inputPath,
		OutputPath:  staged.outputPath,
		AnswerPath:  answerPath,
		UseTestlib:  true,
	})
	if err != nil {
		return nil, judgeerr.Wrap(judgeerr.CodeSandboxFault, "judge: checker failure", err)
	}

	// A negative normalizedScore is undefined upstream; this implementation
	// treats any normalizedScore <= 0 as wrong-answer (spec.md §9 open question 2).
	verdict := "wrong-answer"
	switch {
	case checkerResult.NormalizedScore >= 1:
		verdict = "accepted"
	case checkerResult.NormalizedScore > 0:
		verdict = "partial-accepted"
	}

	return JudgeResult{
		Status:          verdict,
		Score:           checkerResult.Score,
		NormalizedScore: checkerResult.NormalizedScore,
		Time:            staged.result.Time.Seconds(),
		Memory:          staged.result.Memory,
		Output:          staged.result.Output,
		CheckerMessage:  checkerResult.Message,
	}, nil
}
