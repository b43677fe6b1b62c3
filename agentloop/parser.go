package agentloop

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ParseError reports model output that holds no recoverable decision object.
type ParseError struct {
	Message string
	Raw     string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// fencePattern matches a fenced code block with an optional language tag.
var fencePattern = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*[ \\t]*\\r?\\n?(.*?)\\s*```")

// stripFences replaces every fenced block with its body. Unbalanced fences
// are left alone; the brace scan copes with them.
func stripFences(text string) string {
	return strings.TrimSpace(fencePattern.ReplaceAllString(text, "$1"))
}

// ParseDecision extracts the decision object from raw model text. Prose and
// code fences around the object are ignored. The text is decoded as given
// first, so fences inside string values survive; fences are stripped only
// when that fails.
func ParseDecision(raw string) (Decision, error) {
	fields, perr := decodeObject(raw)
	if perr != nil {
		if cleaned := stripFences(raw); cleaned != strings.TrimSpace(raw) {
			if f, err := decodeObject(cleaned); err == nil {
				fields, perr = f, nil
			}
		}
	}
	if perr != nil {
		perr.Raw = raw
		return Decision{}, perr
	}

	d := Decision{
		Thought: textField(fields, "thought"),
		Message: textField(fields, "message"),
	}
	var err error
	if d.Tool, err = stringField(fields, "tool"); err != nil {
		return Decision{}, &ParseError{Message: "invalid tool", Raw: raw, Cause: err}
	}

	d.Parameters = map[string]interface{}{}
	if p, ok := fields["parameters"]; ok && string(p) != "null" {
		if err := json.Unmarshal(p, &d.Parameters); err != nil {
			return Decision{}, &ParseError{Message: "parameters must be an object", Raw: raw, Cause: err}
		}
		if d.Parameters == nil {
			d.Parameters = map[string]interface{}{}
		}
	}
	return d, nil
}

// decodeObject decodes the span from the first '{' to the last '}' of text.
func decodeObject(text string) (map[string]json.RawMessage, *ParseError) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return nil, &ParseError{Message: "no object found"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text[start:end+1]), &fields); err != nil {
		return nil, &ParseError{Message: "malformed object", Cause: err}
	}
	return fields, nil
}

// stringField reads an optional string. Absent and null read as "".
func stringField(fields map[string]json.RawMessage, key string) (string, error) {
	v, ok := fields[key]
	if !ok || string(v) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return s, nil
}

// textField reads a display-only field. Non-string values are kept as their
// JSON text rather than rejected.
func textField(fields map[string]json.RawMessage, key string) string {
	if s, err := stringField(fields, key); err == nil {
		return s
	}
	return string(fields[key])
}
