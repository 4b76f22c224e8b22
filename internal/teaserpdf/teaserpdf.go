// Package teaserpdf pulls text out of deal-teaser PDFs via the
// pdftotext tool, with a printable-byte fallback for files the tool
// cannot handle.
package teaserpdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"
	"unicode"
)

const (
	maxPDFBytes    = 20 * 1024 * 1024
	maxTextRun     = 24000
	extractTimeout = 30 * time.Second
)

// Result is extracted teaser text plus how it was obtained.
type Result struct {
	Text      string
	Method    string
	Truncated bool
}

// Extract reads the text layer of a teaser PDF. The layout flag keeps
// tabular financials aligned so table detection downstream still works.
func Extract(ctx context.Context, path string) (Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, err
	}
	if info.Size() > maxPDFBytes {
		return Result{}, fmt.Errorf("pdf too large: %d bytes", info.Size())
	}

	if text, err := runPdfToText(ctx, path); err == nil && strings.TrimSpace(text) != "" {
		return truncate(text, "pdftotext"), nil
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}
	fallback := extractPrintableText(blob)
	if strings.TrimSpace(fallback) == "" {
		return Result{}, errors.New("no extractable text found")
	}
	return truncate(fallback, "byte-fallback"), nil
}

// runPdfToText bounds the subprocess so a wedged pdftotext is killed
// rather than hanging the extraction.
func runPdfToText(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("pdftotext timed out after %s", extractTimeout)
		}
		return "", err
	}
	return string(out), nil
}

func extractPrintableText(blob []byte) string {
	var runs []string
	var b strings.Builder
	flush := func() {
		s := strings.TrimSpace(b.String())
		if len(s) >= 24 {
			runs = append(runs, s)
		}
		b.Reset()
	}
	for _, c := range blob {
		r := rune(c)
		if unicode.IsPrint(r) || r == '\n' || r == '\t' || r == '\r' {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	joined := strings.Join(runs, "\n")
	joined = strings.ReplaceAll(joined, "\x00", "")
	return strings.TrimSpace(joined)
}

func truncate(text, method string) Result {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= maxTextRun {
		return Result{Text: trimmed, Method: method}
	}
	prefix := trimmed[:maxTextRun]
	// Avoid cutting in the middle of a rune sequence.
	prefix = string(bytes.Runes([]byte(prefix)))
	return Result{
		Text:      prefix + "\n\n[TRUNCATED]",
		Method:    method,
		Truncated: true,
	}
}

var projectCodePattern = regexp.MustCompile(`(?i)\bproject\s+([A-Z][A-Za-z]{2,20})\b`)

// DetectProjectCode finds a sell-side project codename ("Project
// Orchard") near the top of extracted teaser text, or empty.
func DetectProjectCode(text string) string {
	s := strings.TrimSpace(text)
	if s == "" {
		return ""
	}
	if len(s) > 4000 {
		s = s[:4000]
	}
	if m := projectCodePattern.FindStringSubmatch(s); len(m) == 2 {
		code := strings.ToLower(m[1])
		return "Project " + strings.ToUpper(code[:1]) + code[1:]
	}
	return ""
}
