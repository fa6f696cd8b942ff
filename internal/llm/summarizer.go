package llm

import (
	"context"
	"fmt"
	"strings"
)

const summarySystemPrompt = `You summarize emails. Respond with a single JSON object:
{"summary": string, "keyPoints": string[], "sentiment": "positive"|"negative"|"neutral",
 "category": string, "priority": "high"|"medium"|"low"}. No other text.`

const metadataSystemPrompt = `You extract structured metadata from emails. Respond with a single JSON object:
{"entities": string[], "topics": string[], "language": ISO 639-1 code,
 "actionItems": string[], "tags": string[]}. No other text.`

const defaultMaxInputChars = 8000

type Summarizer struct {
	completer     Completer
	maxInputChars int
}

func NewSummarizer(c Completer, maxInputChars int) *Summarizer {
	if maxInputChars <= 0 {
		maxInputChars = defaultMaxInputChars
	}
	return &Summarizer{completer: c, maxInputChars: maxInputChars}
}

// Summarize returns an error only when the provider call fails; unparseable output yields defaults.
func (s *Summarizer) Summarize(ctx context.Context, subject, body, sender string) (Summary, error) {
	prompt := fmt.Sprintf("From: %s\nSubject: %s\n\n%s", sender, subject, clip(body, s.maxInputChars))
	raw, err := s.completer.Complete(ctx, summarySystemPrompt, prompt)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize: %w", err)
	}
	return ParseSummary(raw), nil
}

type MetadataExtractor struct {
	completer     Completer
	maxInputChars int
}

func NewMetadataExtractor(c Completer, maxInputChars int) *MetadataExtractor {
	if maxInputChars <= 0 {
		maxInputChars = defaultMaxInputChars
	}
	return &MetadataExtractor{completer: c, maxInputChars: maxInputChars}
}

func (m *MetadataExtractor) Extract(ctx context.Context, subject, body string) (Metadata, error) {
	prompt := fmt.Sprintf("Subject: %s\n\n%s", subject, clip(body, m.maxInputChars))
	raw, err := m.completer.Complete(ctx, metadataSystemPrompt, prompt)
	if err != nil {
		return DefaultMetadataResult(), fmt.Errorf("extract metadata: %w", err)
	}
	return ParseMetadata(raw), nil
}

// clip 按 rune 截断，避免截断半个 UTF-8 字符
func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
