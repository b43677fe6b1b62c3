package agentloop

import (
	"fmt"
	"strings"
)

// TruncationMode specifies how output is truncated.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// defaultMaxChars applies to tools without their own limit.
const defaultMaxChars = 30000

// DefaultToolCharLimits are per-tool character limits.
var DefaultToolCharLimits = map[string]int{
	"run_shell":   30000,
	"list_models": 10000,
	"ask_user":    10000,
}

// DefaultTruncationModes are per-tool truncation modes.
var DefaultTruncationModes = map[string]TruncationMode{
	"run_shell":   TruncateHeadTail,
	"list_models": TruncateTail,
	"ask_user":    TruncateTail,
}

// DefaultToolLineLimits are applied after character truncation.
var DefaultToolLineLimits = map[string]int{
	"run_shell":   256,
	"list_models": 500,
}

// TruncateOutput applies character-based truncation to output.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}

	removed := len(output) - maxChars
	if mode == TruncateTail {
		return fmt.Sprintf("[WARNING: output was truncated. First %d characters were removed.]\n\n", removed) +
			output[len(output)-maxChars:]
	}

	half := maxChars / 2
	return output[:half] +
		fmt.Sprintf("\n\n[WARNING: output was truncated. %d characters were removed from the middle. "+
			"Re-run with more targeted parameters to see specific parts.]\n\n", removed) +
		output[len(output)-half:]
}

// TruncateLines applies line-based truncation using head/tail split.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateToolOutput truncates by characters and then by lines. A positive
// maxChars overrides the tool's default character limit.
func TruncateToolOutput(output string, toolName string, maxChars int) string {
	if maxChars <= 0 {
		var ok bool
		if maxChars, ok = DefaultToolCharLimits[toolName]; !ok {
			maxChars = defaultMaxChars
		}
	}

	mode, ok := DefaultTruncationModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}

	result := TruncateOutput(output, maxChars, mode)
	return TruncateLines(result, DefaultToolLineLimits[toolName])
}

// Preview returns the first n lines of text with "..." appended when more
// lines were dropped.
func Preview(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= n {
		return text
	}
	return strings.Join(lines[:n], "\n") + "\n..."
}
