package agentloop

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// loopWarning is appended to the next input when a loop is detected.
const loopWarning = "[WARNING: the last tool calls repeat the same pattern. " +
	"The approach is not making progress. Try something different or ask the user.]"

// toolCallSignature computes a deterministic signature for a tool call
// (name + hash of arguments).
func toolCallSignature(name string, arguments json.RawMessage) string {
	h := sha256.Sum256(arguments)
	return fmt.Sprintf("%s:%x", name, h[:8])
}

// signatureWindow keeps the most recent dispatched tool call signatures.
type signatureWindow struct {
	size int
	sigs []string
}

func newSignatureWindow(size int) *signatureWindow {
	return &signatureWindow{size: size}
}

// Record adds a signature, dropping the oldest beyond the window size.
func (w *signatureWindow) Record(sig string) {
	if w.size <= 0 {
		return
	}
	w.sigs = append(w.sigs, sig)
	if len(w.sigs) > w.size {
		w.sigs = w.sigs[len(w.sigs)-w.size:]
	}
}

// Reset clears the window once a warning has been issued.
func (w *signatureWindow) Reset() {
	w.sigs = w.sigs[:0]
}

// DetectLoop checks if the last windowSize signatures follow a repeating
// pattern of length 1, 2, or 3.
func DetectLoop(sigs []string, windowSize int) bool {
	if windowSize <= 0 || len(sigs) < windowSize {
		return false
	}
	sigs = sigs[len(sigs)-windowSize:]

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 {
			continue
		}
		pattern := sigs[:patternLen]
		allMatch := true
		for i := patternLen; i < windowSize && allMatch; i += patternLen {
			for j := 0; j < patternLen; j++ {
				if sigs[i+j] != pattern[j] {
					allMatch = false
					break
				}
			}
		}
		if allMatch {
			return true
		}
	}

	return false
}
