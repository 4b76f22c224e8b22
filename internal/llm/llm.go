// Package llm wraps the Anthropic client behind a small Caller interface
// and provides a retrying executor for prompts whose output must parse and
// validate as strict JSON.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type failureClass int

const (
	failureNone failureClass = iota
	failureTimeout
	failureRateLimit
	failureServer
	failureClient
)

// Request is one generation call. MaxTokens defaults to 4096 and
// Temperature to 0 when left zero-valued.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int64
	Temperature float64
}

// Caller produces a raw model response for a request. Implementations
// must be safe for concurrent use.
type Caller interface {
	GenerateJSON(ctx context.Context, req Request) (string, error)
}

type AnthropicCaller struct {
	messages AnthropicMessager
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

func NewAnthropicCallerFromEnv() (*AnthropicCaller, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	return &AnthropicCaller{messages: newAnthropicClient(apiKey)}, nil
}

func (a *AnthropicCaller) GenerateJSON(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.ModelClaudeSonnet4_20250514,
		MaxTokens:   maxTokens,
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt))},
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	resp, err := a.messages.New(ctx, params)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}

// StepError wraps a failure with the pipeline step it came from.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// AttemptMetrics records how many calls a step consumed. ContentRetries
// counts re-prompts caused by bad output rather than transport trouble.
type AttemptMetrics struct {
	Attempts       int
	ContentRetries int
}

const maxAttempts = 3

// DefaultCallTimeout bounds a single generative call when the incoming
// context carries no deadline of its own.
const DefaultCallTimeout = 60 * time.Second

// Executor runs JSON-producing prompts with bounded retries. Transport
// failures that look transient back off and retry; malformed or invalid
// output re-prompts with corrective feedback.
type Executor struct {
	caller Caller
}

func NewExecutor(caller Caller) *Executor {
	return &Executor{caller: caller}
}

// Run executes req until its response unmarshals into out and passes
// validate, or attempts are exhausted.
func (e *Executor) Run(ctx context.Context, step string, req Request, out any, validate func() error) (AttemptMetrics, error) {
	metrics := AttemptMetrics{}
	feedback := ""
	basePrompt := req.Prompt
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		metrics.Attempts = attempt
		req.Prompt = basePrompt + "\n\nRespond with only valid JSON matching the schema."
		if feedback != "" {
			req.Prompt += "\n\n" + feedback
		}

		raw, err := e.generate(ctx, req)
		if err != nil {
			class := classifyTransportError(err)
			if class == failureTimeout || class == failureRateLimit || class == failureServer {
				if attempt < maxAttempts {
					time.Sleep(backoffDelay(attempt))
					continue
				}
			}
			return metrics, &StepError{Step: step, Err: fmt.Errorf("transport failure: %w", err)}
		}

		raw = strings.TrimSpace(raw)
		if raw == "" {
			if attempt < maxAttempts {
				metrics.ContentRetries++
				feedback = "Your previous response was empty. Respond with valid JSON."
				continue
			}
			return metrics, &StepError{Step: step, Err: errors.New("empty response")}
		}

		clean := FirstJSONObject(raw)
		if err := json.Unmarshal([]byte(clean), out); err != nil {
			if attempt < maxAttempts {
				metrics.ContentRetries++
				feedback = "Your previous response was not valid JSON. Respond with only valid JSON."
				continue
			}
			return metrics, &StepError{Step: step, Err: fmt.Errorf("json parse: %w", err)}
		}
		if err := validate(); err != nil {
			if attempt < maxAttempts {
				metrics.ContentRetries++
				feedback = fmt.Sprintf("Your response failed validation: %s. Fix these issues.", err)
				continue
			}
			return metrics, &StepError{Step: step, Err: fmt.Errorf("validation: %w", err)}
		}
		return metrics, nil
	}
	return metrics, &StepError{Step: step, Err: errors.New("failed after retries")}
}

// generate issues one call with an upper bound on its duration. Callers
// that already set a deadline keep it.
func (e *Executor) generate(ctx context.Context, req Request) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCallTimeout)
		defer cancel()
	}
	return e.caller.GenerateJSON(ctx, req)
}

// FirstJSONObject strips markdown code fences and any prose surrounding
// the first top-level JSON object in a response.
func FirstJSONObject(s string) string {
	s = stripCodeFences(s)
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return s
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

func classifyTransportError(err error) failureClass {
	msg := strings.ToLower(err.Error())
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failureTimeout
	}
	switch {
	case strings.Contains(msg, "429"):
		return failureRateLimit
	case strings.Contains(msg, " 5") || strings.Contains(msg, "status code: 5") || strings.Contains(msg, "server error"):
		return failureServer
	case strings.Contains(msg, " 4") || strings.Contains(msg, "status code: 4"):
		return failureClient
	default:
		return failureServer
	}
}

func backoffDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 1 * time.Second
	}
	return 2 * time.Second
}
