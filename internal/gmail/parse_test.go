package gmail

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ezmail/contracts/db"
)

func b64(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

func TestParseSender(t *testing.T) {
	cases := []struct {
		in, name, addr string
	}{
		{"Alice Doe <alice@example.com>", "Alice Doe", "alice@example.com"},
		{`"Doe, Alice" <alice@example.com>`, "Doe, Alice", "alice@example.com"},
		{"alice@example.com", "", "alice@example.com"},
		{"Broken Name <bob@local>", "Broken Name", "bob@local"},
		{"", "", ""},
	}
	for _, tc := range cases {
		name, addr := ParseSender(tc.in)
		assert.Equal(t, tc.name, name, tc.in)
		assert.Equal(t, tc.addr, addr, tc.in)
	}
}

func TestParseMessage(t *testing.T) {
	msg := &Message{
		ID:           "ext-1",
		ThreadID:     "th-1",
		LabelIDs:     []string{"INBOX", "UNREAD", "STARRED"},
		Snippet:      "Quarterly numbers",
		InternalDate: "1767268800000",
		Payload: &MessagePart{
			MimeType: "multipart/mixed",
			Headers: []Header{
				{Name: "From", Value: "Carol <carol@example.com>"},
				{Name: "To", Value: "dev@example.com, Ops <ops@example.com>"},
				{Name: "Subject", Value: " Q3 report "},
				{Name: "Date", Value: "Mon, 02 Mar 2026 09:30:00 +0100"},
			},
			Parts: []*MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*MessagePart{
						{MimeType: "text/plain", Body: PartBody{Data: b64("plain body")}},
						{MimeType: "text/html", Body: PartBody{Data: b64("<p>html body</p>")}},
					},
				},
				{MimeType: "text/plain", Filename: "notes.txt", Body: PartBody{AttachmentID: "a1"}},
			},
		},
		Raw: json.RawMessage(`{}`),
	}

	sent := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	want := &db.EmailItem{
		OwnerID:       7,
		Source:        db.SourceGmail,
		ExternalID:    "ext-1",
		ThreadID:      "th-1",
		SenderName:    "Carol",
		SenderAddress: "carol@example.com",
		Recipients:    []string{"dev@example.com", "ops@example.com"},
		Subject:       "Q3 report",
		BodyText:      "plain body",
		BodyHTML:      "<p>html body</p>",
		Snippet:       "Quarterly numbers",
		IsRead:        false,
		IsStarred:     true,
		Labels:        []string{"INBOX", "UNREAD", "STARRED"},
		SentAt:        &sent,
		ReceivedAt:    &sent,
		RawPayload:    json.RawMessage(`{}`),
		Status:        db.ItemStatusActive,
	}

	got := ParseMessage(7, msg)
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("ParseMessage mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMessageFallsBackToInternalDate(t *testing.T) {
	msg := &Message{
		ID:           "ext-2",
		InternalDate: "1767268800000",
		Payload: &MessagePart{
			MimeType: "text/html",
			Headers:  []Header{{Name: "Date", Value: "not a date"}, {Name: "from", Value: "x@y.z"}},
			Body:     PartBody{Data: base64.URLEncoding.EncodeToString([]byte("<b>hi</b>"))},
		},
	}
	got := ParseMessage(1, msg)
	require.NotNil(t, got.ReceivedAt)
	assert.Nil(t, got.SentAt)
	assert.Equal(t, time.UnixMilli(1767268800000).UTC(), *got.ReceivedAt)
	assert.Equal(t, "<b>hi</b>", got.BodyHTML)
	assert.Equal(t, "x@y.z", got.SenderAddress)
	assert.True(t, got.IsRead)
}

func TestExtractBodiesDeepNesting(t *testing.T) {
	// 深层嵌套不会爆栈
	leaf := &MessagePart{MimeType: "text/plain", Body: PartBody{Data: b64("deep")}}
	root := leaf
	for i := 0; i < 10000; i++ {
		root = &MessagePart{MimeType: "multipart/mixed", Parts: []*MessagePart{root}}
	}
	text, html := extractBodies(root)
	assert.Equal(t, "deep", text)
	assert.Equal(t, "", html)
}

func TestScanAttachments(t *testing.T) {
	raw := json.RawMessage(`{"id":"m","payload":{"mimeType":"multipart/mixed","parts":[
		{"mimeType":"text/plain","body":{"data":"aGk"}},
		{"mimeType":"application/PDF","filename":"a.pdf","body":{"attachmentId":"1"}},
		{"mimeType":"multipart/mixed","parts":[
			{"mimeType":"image/png","filename":"b.png"},
			{"mimeType":"application/pdf","filename":"c.pdf"}
		]}
	]}}`)
	has, types := ScanAttachments(raw)
	assert.True(t, has)
	assert.Equal(t, []string{"application/pdf", "image/png"}, types)

	has, types = ScanAttachments(json.RawMessage(`{"payload":{"mimeType":"text/plain"}}`))
	assert.False(t, has)
	assert.Empty(t, types)

	has, _ = ScanAttachments(json.RawMessage(`not json`))
	assert.False(t, has)
}
