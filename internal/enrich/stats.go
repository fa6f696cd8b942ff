package enrich

import (
	"strings"

	"github.com/jaytaylor/html2text"

	"ezmail/contracts/db"
)

const wordsPerMinute = 200

// WordCount counts whitespace separated tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// ReadingTime = ceil(words / 200) 分钟
func ReadingTime(words int) int {
	if words <= 0 {
		return 0
	}
	return (words + wordsPerMinute - 1) / wordsPerMinute
}

// BestBody picks the plain text body, then the HTML body rendered as text, then the snippet.
func BestBody(item *db.EmailItem) string {
	if s := strings.TrimSpace(item.BodyText); s != "" {
		return s
	}
	if strings.TrimSpace(item.BodyHTML) != "" {
		if text, err := html2text.FromString(item.BodyHTML, html2text.Options{OmitLinks: true}); err == nil {
			if s := strings.TrimSpace(text); s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(item.Snippet)
}

// EmbeddingInput 只用主题、发件人和摘要，不用正文
func EmbeddingInput(item *db.EmailItem, summary string) string {
	parts := make([]string, 0, 4)
	for _, s := range []string{item.Subject, item.SenderName, item.SenderAddress, summary} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}
