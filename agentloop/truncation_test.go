package agentloop

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateOutput(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, TruncateOutput(short, 10, TruncateHeadTail))
	assert.Equal(t, short, TruncateOutput(short, 0, TruncateTail))

	long := strings.Repeat("a", 50) + strings.Repeat("b", 50)
	headTail := TruncateOutput(long, 20, TruncateHeadTail)
	assert.True(t, strings.HasPrefix(headTail, strings.Repeat("a", 10)))
	assert.True(t, strings.HasSuffix(headTail, strings.Repeat("b", 10)))
	assert.Contains(t, headTail, "80 characters were removed from the middle")

	tail := TruncateOutput(long, 20, TruncateTail)
	assert.True(t, strings.HasSuffix(tail, strings.Repeat("b", 20)))
	assert.Contains(t, tail, "First 80 characters were removed")
}

func TestTruncateLines(t *testing.T) {
	var lines []string
	for i := 1; i <= 10; i++ {
		lines = append(lines, fmt.Sprint(i))
	}
	text := strings.Join(lines, "\n")

	assert.Equal(t, text, TruncateLines(text, 10))
	assert.Equal(t, text, TruncateLines(text, 0))
	assert.Equal(t, "1\n2\n[... 6 lines omitted ...]\n9\n10", TruncateLines(text, 4))
}

func TestTruncateToolOutput(t *testing.T) {
	big := strings.Repeat("x\n", 1000)
	out := TruncateToolOutput(big, "run_shell", 0)
	assert.Contains(t, out, "lines omitted")

	out = TruncateToolOutput(strings.Repeat("y", 40000), "unknown_tool", 0)
	assert.Contains(t, out, "10000 characters were removed")

	out = TruncateToolOutput(strings.Repeat("z", 200), "list_models", 50)
	assert.Contains(t, out, "First 150 characters were removed")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "", Preview("", 10))
	assert.Equal(t, "a\nb", Preview("a\nb", 2))
	assert.Equal(t, "a\nb\n...", Preview("a\nb\nc", 2))
}
