// Package sandbox implements the execute_code baseline tool: runs a
// Python or Bash snippet in a per-arc isolated working directory with a
// timeout, capturing truncated head/tail output (spec §4.4).
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/pasky/muaddib-sub002/pkg/models"
)

const (
	toolName        = "execute_code"
	maxCaptureBytes = 24 * 1024
	defaultTimeout  = 30 * time.Second
)

var schema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "language": {"type": "string", "enum": ["python", "bash"]},
    "code": {"type": "string"}
  },
  "required": ["language", "code"]
}`)

// Tool implements agent.Tool for execute_code. Each arc gets its own
// working directory under BaseDir so concurrent sessions never collide.
type Tool struct {
	BaseDir string
	Timeout time.Duration
	Arc     string
}

func New(baseDir, arc string) *Tool {
	return &Tool{BaseDir: baseDir, Arc: arc, Timeout: defaultTimeout}
}

func (t *Tool) Name() string                       { return toolName }
func (t *Tool) Description() string                { return "Execute a short Python or Bash snippet in an isolated sandbox." }
func (t *Tool) Schema() json.RawMessage             { return schema }
func (t *Tool) PersistType() models.ToolPersistType { return models.PersistSummary }

type input struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

func (t *Tool) Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
	var in input
	if err := json.Unmarshal(call.Input, &in); err != nil || in.Code == "" {
		return models.ToolResult{}, fmt.Errorf("execute_code: invalid input: %w", err)
	}

	workDir, err := t.arcWorkDir()
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("execute_code: preparing sandbox dir: %w", err)
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	switch in.Language {
	case "python":
		cmd = exec.CommandContext(runCtx, "python3", "-c", in.Code)
	case "bash":
		cmd = exec.CommandContext(runCtx, "bash", "-c", in.Code)
	default:
		return models.ToolResult{}, fmt.Errorf("execute_code: unsupported language %q", in.Language)
	}
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	content := truncateHeadTail(stdout.String(), maxCaptureBytes)
	if stderr.Len() > 0 {
		content += "\n--- stderr ---\n" + truncateHeadTail(stderr.String(), maxCaptureBytes)
	}

	if runCtx.Err() != nil {
		return models.ToolResult{ToolCallID: call.ID, Content: "execution timed out", IsError: true}, nil
	}
	if runErr != nil {
		return models.ToolResult{ToolCallID: call.ID, Content: content + fmt.Sprintf("\nexit error: %v", runErr), IsError: true}, nil
	}
	return models.ToolResult{ToolCallID: call.ID, Content: content}, nil
}

func (t *Tool) arcWorkDir() (string, error) {
	dir := filepath.Join(t.BaseDir, sanitizeArc(t.Arc))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func sanitizeArc(arc string) string {
	out := make([]rune, 0, len(arc))
	for _, r := range arc {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// truncateHeadTail keeps the first and last portions of output when it
// exceeds max, matching the 24KB head/tail capture policy.
func truncateHeadTail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	half := max / 2
	return s[:half] + "\n... [truncated] ...\n" + s[len(s)-half:]
}
