package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/oimasterkafuu/judge-server/pkg/judge/judgeerr"
	"github.com/oimasterkafuu/judge-server/pkg/judge/sandbox"
)

// RunInput is the `run` task's data record (spec.md §4.4.4) — same
// shape as judge, minus the checker fields.
type RunInput struct {
	BinaryCacheID  string `json:"binaryCacheId"`
	InputCacheID   string `json:"inputCacheId,omitempty"`
	TimeLimitMS    int    `json:"timeLimit,omitempty"`
	MemoryLimitKB  int    `json:"memoryLimit,omitempty"`
	IsFileInput    bool   `json:"isFileInput,omitempty"`
	InputFileName  string `json:"inputFileName,omitempty"`
	OutputFileName string `json:"outputFileName,omitempty"`
}

// RunResult is the `run` task's result record.
type RunResult struct {
	Status string  `json:"status"`
	Time   float64 `json:"time"`
	Memory int64   `json:"memory"`
	Output string  `json:"output,omitempty"`
}

// Run implements scheduler.Handler for the `run` task type.
func (h *Handlers) Run(ctx context.Context, data interface{}) (interface{}, error) {
	in, ok := data.(RunInput)
	if !ok {
		return nil, judgeerr.New(judgeerr.CodeMissingField, "run: malformed task data")
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

	staged, err := h.stageAndRun(ctx, "run", in.BinaryCacheID, in.InputCacheID,
		time.Duration(timeLimitMS)*time.Millisecond, memoryLimitKB, in.IsFileInput, inputFileName, outputFileName)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(staged.scratchDir)

	status := "exited-normally"
	switch {
	case staged.result.Status == sandbox.RunStatusTLE:
		status = "time-limit-exceeded"
	case staged.result.Status == sandbox.RunStatusMLE:
		status = "memory-limit-exceeded"
	case staged.result.Status == sandbox.RunStatusExited && staged.result.Code != 0:
		status = "non-zero-exit"
	case staged.result.Status != sandbox.RunStatusExited:
		status = "runtime-error"
	}

	return RunResult{
		Status: status,
		Time:   staged.result.Time.Seconds(),
		Memory: staged.result.Memory,
		Output: staged.result.Output,
	}, nil
}
