package llm

import (
	"encoding/json"
	"strings"
)

const (
	DefaultSummary   = "No summary available"
	DefaultCategory  = "general"
	DefaultSentiment = "neutral"
	DefaultPriority  = "medium"
	DefaultLanguage  = "en"
)

// Summary is the typed result of a summarization call.
type Summary struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"keyPoints"`
	Sentiment string   `json:"sentiment"`
	Category  string   `json:"category"`
	Priority  string   `json:"priority"`
}

// Metadata is the typed result of a metadata extraction call.
type Metadata struct {
	Entities    []string `json:"entities"`
	Topics      []string `json:"topics"`
	Language    string   `json:"language"`
	ActionItems []string `json:"actionItems"`
	Tags        []string `json:"tags"`
}

func DefaultSummaryResult() Summary {
	return Summary{
		Summary:   DefaultSummary,
		KeyPoints: []string{},
		Sentiment: DefaultSentiment,
		Category:  DefaultCategory,
		Priority:  DefaultPriority,
	}
}

func DefaultMetadataResult() Metadata {
	return Metadata{
		Entities:    []string{},
		Topics:      []string{},
		Language:    DefaultLanguage,
		ActionItems: []string{},
		Tags:        []string{},
	}
}

// ParseSummary extracts the first JSON object from model output. Missing or
// malformed fields take their defaults; it never fails.
func ParseSummary(raw string) Summary {
	out := DefaultSummaryResult()
	fields := extractObject(raw)
	if fields == nil {
		return out
	}

	if s := stringField(fields, "summary"); s != "" {
		out.Summary = s
	}
	out.KeyPoints = stringList(fields["keyPoints"], fields["key_points"])
	out.Sentiment = oneOf(stringField(fields, "sentiment"), DefaultSentiment, "positive", "negative", "neutral")
	out.Priority = oneOf(stringField(fields, "priority"), DefaultPriority, "high", "medium", "low")
	if c := strings.ToLower(stringField(fields, "category")); c != "" {
		out.Category = c
	}
	return out
}

// ParseMetadata 同 ParseSummary，字段缺失取默认值
func ParseMetadata(raw string) Metadata {
	out := DefaultMetadataResult()
	fields := extractObject(raw)
	if fields == nil {
		return out
	}

	out.Entities = stringList(fields["entities"])
	out.Topics = stringList(fields["topics"])
	out.ActionItems = stringList(fields["actionItems"], fields["action_items"])
	out.Tags = stringList(fields["tags"])
	if lang := strings.ToLower(stringField(fields, "language")); lang != "" && len(lang) <= 16 {
		out.Language = lang
	}
	return out
}

// extractObject 找到第一个能解析的 {...}，容忍 ```json 包裹和前后说明文字
func extractObject(raw string) map[string]any {
	for start := strings.IndexByte(raw, '{'); start >= 0; {
		if end := matchingBrace(raw, start); end > start {
			var fields map[string]any
			if err := json.Unmarshal([]byte(raw[start:end+1]), &fields); err == nil {
				return fields
			}
		}
		next := strings.IndexByte(raw[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil
}

func matchingBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return strings.TrimSpace(s)
}

// stringList 接受字符串数组，或 {name|text|value: ...} 对象数组；取第一个存在的 key
func stringList(candidates ...any) []string {
	out := []string{}
	for _, c := range candidates {
		list, ok := c.([]any)
		if !ok {
			continue
		}
		for _, v := range list {
			switch x := v.(type) {
			case string:
				if s := strings.TrimSpace(x); s != "" {
					out = append(out, s)
				}
			case map[string]any:
				for _, k := range []string{"name", "text", "value"} {
					if s, ok := x[k].(string); ok && strings.TrimSpace(s) != "" {
						out = append(out, strings.TrimSpace(s))
						break
					}
				}
			}
		}
		return out
	}
	return out
}

func oneOf(v, def string, allowed ...string) string {
	v = strings.ToLower(v)
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return def
}
