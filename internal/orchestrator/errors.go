package orchestrator

import (
	"errors"
	"fmt"

	"valet/internal/logging"
)

// ErrToolExecutionFailed wraps a backend failure during dispatch. Tool
// failures never corrupt routing state; the turn ends with a conversational
// apology and the thread's drafts, anchor, and cursor stay as they were.
var ErrToolExecutionFailed = errors.New("tool execution failed")

// toolFailure logs the wrapped failure and renders it conversationally.
func toolFailure(toolName string, err error) Outcome {
	wrapped := fmt.Errorf("%w: %s: %v", ErrToolExecutionFailed, toolName, err)
	logging.RoutingWarn("%v", wrapped)
	return Reply{Message: fmt.Sprintf("Sorry, %s didn't work: %v. Nothing was changed on my side.", toolName, err)}
}
