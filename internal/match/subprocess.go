package match

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

// SubprocessScorer shells out to an external scoring model: the request
// is written to stdin as JSON and the response read from stdout. The
// process is killed when the timeout elapses.
type SubprocessScorer struct {
	Command []string
	Timeout time.Duration
}

func NewSubprocessScorer(command []string) *SubprocessScorer {
	return &SubprocessScorer{Command: command, Timeout: 30 * time.Second}
}

func (s *SubprocessScorer) Score(ctx context.Context, req ScoreRequest) (ScoreResponse, error) {
	if len(s.Command) == 0 {
		return ScoreResponse{}, fmt.Errorf("subprocess scorer: no command configured")
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	input, err := json.Marshal(req)
	if err != nil {
		return ScoreResponse{}, fmt.Errorf("subprocess scorer: encode request: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.Command[0], s.Command[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ScoreResponse{}, fmt.Errorf("subprocess scorer: timed out after %s", timeout)
		}
		return ScoreResponse{}, fmt.Errorf("subprocess scorer: %w (stderr: %s)", err, stderr.String())
	}

	var resp ScoreResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return ScoreResponse{}, fmt.Errorf("subprocess scorer: decode response: %w", err)
	}
	return resp, nil
}
