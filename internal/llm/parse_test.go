package llm

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestParseSummary(t *testing.T) {
	raw := "Sure! Here it is:\n```json\n" + `{"summary":"Invoice {#42} is overdue","keyPoints":["pay by Friday",""," late fee "],
"sentiment":"NEGATIVE","category":"Finance","priority":"urgent"}` + "\n```"

	got := ParseSummary(raw)
	assert.Equal(t, "Invoice {#42} is overdue", got.Summary)
	assert.Equal(t, []string{"pay by Friday", "late fee"}, got.KeyPoints)
	assert.Equal(t, "negative", got.Sentiment)
	assert.Equal(t, "finance", got.Category)
	assert.Equal(t, DefaultPriority, got.Priority, "unknown priority falls back")
}

func TestParseSummaryDefaults(t *testing.T) {
	for _, raw := range []string{"", "no json here", "{broken", `{"summary": 12, "keyPoints": "x"}`} {
		got := ParseSummary(raw)
		assert.Equal(t, DefaultSummaryResult(), got, raw)
	}
}

func TestParseSummarySkipsInvalidLeadingBraces(t *testing.T) {
	got := ParseSummary(`thinking {not json} then {"summary":"ok","priority":"high"}`)
	assert.Equal(t, "ok", got.Summary)
	assert.Equal(t, "high", got.Priority)
}

func TestParseMetadata(t *testing.T) {
	got := ParseMetadata(`{"entities":[{"name":"ACME","type":"org"},"Bob"],"topics":["billing"],
"language":"DE","action_items":["reply"],"tags":["invoice"]}`)
	assert.Equal(t, []string{"ACME", "Bob"}, got.Entities)
	assert.Equal(t, []string{"billing"}, got.Topics)
	assert.Equal(t, "de", got.Language)
	assert.Equal(t, []string{"reply"}, got.ActionItems)
	assert.Equal(t, []string{"invoice"}, got.Tags)

	assert.Equal(t, DefaultMetadataResult(), ParseMetadata("model refused"))
}

func TestParseNeverFails(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("summary fields stay within their domains", prop.ForAll(
		func(raw string) bool {
			s := ParseSummary(raw)
			okSentiment := s.Sentiment == "positive" || s.Sentiment == "negative" || s.Sentiment == "neutral"
			okPriority := s.Priority == "high" || s.Priority == "medium" || s.Priority == "low"
			return okSentiment && okPriority && s.Summary != "" && s.Category != "" && s.KeyPoints != nil
		},
		gen.AnyString(),
	))

	properties.Property("metadata lists are never nil", prop.ForAll(
		func(raw string) bool {
			m := ParseMetadata("{" + raw + "}")
			return m.Entities != nil && m.Topics != nil && m.ActionItems != nil && m.Tags != nil && m.Language != ""
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
