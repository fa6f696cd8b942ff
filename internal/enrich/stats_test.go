package enrich

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"ezmail/contracts/db"
)

func TestWordCountAndReadingTime(t *testing.T) {
	assert.Equal(t, 0, WordCount("  \n\t "))
	assert.Equal(t, 3, WordCount("a  b\nc"))
	assert.Equal(t, 0, ReadingTime(0))
	assert.Equal(t, 1, ReadingTime(1))
	assert.Equal(t, 1, ReadingTime(200))
	assert.Equal(t, 2, ReadingTime(201))
}

func TestReadingTimeIsCeiling(t *testing.T) {
	properties := gopter.NewProperties(nil)
	properties.Property("ceil(words/200)", prop.ForAll(
		func(words int) bool {
			m := ReadingTime(words)
			return m*wordsPerMinute >= words && (m-1)*wordsPerMinute < words
		},
		gen.IntRange(1, 1_000_000),
	))
	properties.TestingRun(t)
}

func TestBestBody(t *testing.T) {
	assert.Equal(t, "plain", BestBody(&db.EmailItem{BodyText: " plain ", BodyHTML: "<p>html</p>"}))
	assert.Equal(t, "html", BestBody(&db.EmailItem{BodyHTML: "<p>html</p>"}))
	assert.Equal(t, "snip", BestBody(&db.EmailItem{Snippet: "snip"}))
}

func TestEmbeddingInputExcludesBody(t *testing.T) {
	item := &db.EmailItem{Subject: "Offsite", SenderName: "Eve", SenderAddress: "eve@example.com", BodyText: "secret agenda"}
	assert.Equal(t, "Offsite\nEve\neve@example.com\nshort summary", EmbeddingInput(item, "short summary"))
}
