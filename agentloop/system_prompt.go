package agentloop

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const maxProjectDocBytes = 32 * 1024 // 32KB

const responseFormat = `You are STELLA (Stateful Turn-based Execution & LLM Loop Architecture), the
decision-making core of a turn-based agent loop.

# Output rules

Reply with exactly one JSON object and nothing else: no greetings, no
explanations, no markdown code fences.

{
  "thought": "your analysis of the situation and what to do next",
  "message": "what you want to tell the user: answers, summaries, reports",
  "tool": "name of the tool to run, or \"\" for none",
  "parameters": { "name": "value" }
}

- Your reply is parsed by a program.
- The result of the tool you call arrives as the next input, prefixed with
  "Tool execution result:".
- Put everything the user should read into "message".
- Call at most one tool per reply.`

// PromptOptions selects what BuildSystemPrompt includes.
type PromptOptions struct {
	Tools    []ToolDefinition
	Env      ExecutionEnvironment
	Provider string
	Model    string
}

// BuildSystemPrompt assembles the response format, the tool list, the
// environment block and any project instruction files.
func BuildSystemPrompt(opts PromptOptions) string {
	var sb strings.Builder
	sb.WriteString(responseFormat)

	sb.WriteString("\n\n# Available tools\n")
	for i, tool := range opts.Tools {
		fmt.Fprintf(&sb, "\n%d. %s: %s\n", i+1, tool.Name, tool.Description)
		fmt.Fprintf(&sb, "   parameters: %s\n", describeParameters(tool.Parameters))
	}

	if opts.Env != nil {
		sb.WriteString("\n")
		sb.WriteString(BuildEnvironmentContext(opts.Env, opts.Provider, opts.Model))

		if docs := DiscoverProjectDocs(opts.Env.WorkingDirectory(), opts.Provider); docs != "" {
			sb.WriteString("\n\n# Project instructions\n\n")
			sb.WriteString(docs)
		}
	}
	return sb.String()
}

// describeParameters renders a schema's properties as a compact JSON
// example such as {"command": "string"}.
func describeParameters(schema map[string]interface{}) string {
	props, _ := schema["properties"].(map[string]interface{})
	if len(props) == 0 {
		return "{}"
	}
	example := make(map[string]string, len(props))
	for name, raw := range props {
		prop, _ := raw.(map[string]interface{})
		desc, _ := prop["description"].(string)
		typ, _ := prop["type"].(string)
		if desc == "" {
			desc = typ
		}
		example[name] = desc
	}
	out, err := json.Marshal(example)
	if err != nil {
		return "{}"
	}
	return string(out)
}

// BuildEnvironmentContext generates the structured environment context block.
func BuildEnvironmentContext(env ExecutionEnvironment, provider, model string) string {
	workingDir := env.WorkingDirectory()
	isGitRepo := isGitRepository(workingDir)
	gitBranch := ""
	if isGitRepo {
		gitBranch = getGitBranch(workingDir)
	}

	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", workingDir)
	fmt.Fprintf(&sb, "Is git repository: %v\n", isGitRepo)
	if gitBranch != "" {
		fmt.Fprintf(&sb, "Git branch: %s\n", gitBranch)
	}
	fmt.Fprintf(&sb, "Platform: %s\n", env.Platform())
	fmt.Fprintf(&sb, "OS version: %s\n", env.OSVersion())
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	if provider != "" {
		fmt.Fprintf(&sb, "Provider: %s\n", provider)
	}
	if model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

// DiscoverProjectDocs loads AGENTS.md and the provider's own instruction
// file from every directory between the git root and workingDir.
func DiscoverProjectDocs(workingDir string, provider string) string {
	root := gitRoot(workingDir)
	if root == "" {
		root = workingDir
	}

	recognizedFiles := []string{"AGENTS.md"}
	switch provider {
	case "anthropic":
		recognizedFiles = append(recognizedFiles, "CLAUDE.md")
	case "gemini":
		recognizedFiles = append(recognizedFiles, "GEMINI.md")
	}

	var docs []string
	totalBytes := 0

	for _, dir := range collectPathHierarchy(root, workingDir) {
		for _, fileName := range recognizedFiles {
			content, err := os.ReadFile(filepath.Join(dir, fileName))
			if err != nil {
				continue
			}

			remaining := maxProjectDocBytes - totalBytes
			if remaining <= 0 {
				docs = append(docs, "[Project instructions truncated at 32KB]")
				return strings.Join(docs, "\n\n---\n\n")
			}

			text := string(content)
			if len(text) > remaining {
				text = text[:remaining] + "\n[Project instructions truncated at 32KB]"
			}

			docs = append(docs, fmt.Sprintf("## %s (from %s)\n\n%s", fileName, dir, text))
			totalBytes += len(text)
		}
	}

	return strings.Join(docs, "\n\n---\n\n")
}

// collectPathHierarchy returns directories from root to target, inclusive.
func collectPathHierarchy(root, target string) []string {
	root = filepath.Clean(root)
	target = filepath.Clean(target)

	dirs := []string{root}
	if root == target {
		return dirs
	}

	rel, err := filepath.Rel(root, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return dirs
	}

	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == "." {
			continue
		}
		current = filepath.Join(current, part)
		dirs = append(dirs, current)
	}
	return dirs
}

func isGitRepository(dir string) bool {
	return strings.TrimSpace(runGitCommand(dir, "rev-parse", "--is-inside-work-tree")) == "true"
}

func gitRoot(dir string) string {
	return strings.TrimSpace(runGitCommand(dir, "rev-parse", "--show-toplevel"))
}

func getGitBranch(dir string) string {
	return strings.TrimSpace(runGitCommand(dir, "rev-parse", "--abbrev-ref", "HEAD"))
}

func runGitCommand(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return string(out)
}
