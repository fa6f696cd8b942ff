package gmail

import (
	"encoding/base64"
	"encoding/json"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"ezmail/contracts/db"
)

const (
	labelUnread    = "UNREAD"
	labelStarred   = "STARRED"
	labelImportant = "IMPORTANT"
)

// ParseMessage converts a Gmail message into an EmailItem for ownerID.
func ParseMessage(ownerID int64, msg *Message) *db.EmailItem {
	p := msg.Payload
	name, address := ParseSender(p.Header("From"))

	item := &db.EmailItem{
		OwnerID:       ownerID,
		Source:        db.SourceGmail,
		ExternalID:    msg.ID,
		ThreadID:      msg.ThreadID,
		SenderName:    name,
		SenderAddress: address,
		Recipients:    parseRecipients(p.Header("To"), p.Header("Cc")),
		Subject:       strings.TrimSpace(p.Header("Subject")),
		Snippet:       msg.Snippet,
		IsRead:        true,
		Labels:        append([]string(nil), msg.LabelIDs...),
		RawPayload:    msg.Raw,
		Status:        db.ItemStatusActive,
	}
	item.BodyText, item.BodyHTML = extractBodies(p)

	for _, l := range msg.LabelIDs {
		switch l {
		case labelUnread:
			item.IsRead = false
		case labelStarred:
			item.IsStarred = true
		case labelImportant:
			item.IsImportant = true
		}
	}

	// Date 头优先，其次 internalDate；解析失败的值丢弃
	sent := parseDateHeader(p.Header("Date"))
	internal := parseInternalDate(msg.InternalDate)
	item.SentAt = sent
	item.ReceivedAt = sent
	if item.ReceivedAt == nil {
		item.ReceivedAt = internal
	}
	return item
}

// ParseSender splits a From header into display name and address.
// "Alice <a@x.io>" -> ("Alice", "a@x.io"); "a@x.io" -> ("", "a@x.io").
func ParseSender(from string) (string, string) {
	from = strings.TrimSpace(from)
	if from == "" {
		return "", ""
	}
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Name, addr.Address
	}
	// 非标准格式的兜底
	if lt := strings.LastIndex(from, "<"); lt >= 0 {
		if gt := strings.Index(from[lt:], ">"); gt > 0 {
			name := strings.Trim(strings.TrimSpace(from[:lt]), `"`)
			return name, strings.TrimSpace(from[lt+1 : lt+gt])
		}
	}
	return "", from
}

func parseRecipients(headers ...string) []string {
	var out []string
	for _, h := range headers {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if list, err := mail.ParseAddressList(h); err == nil {
			for _, a := range list {
				out = append(out, a.Address)
			}
			continue
		}
		for _, part := range strings.Split(h, ",") {
			if _, addr := ParseSender(part); addr != "" {
				out = append(out, addr)
			}
		}
	}
	return out
}

// extractBodies walks the part tree depth-first with an explicit stack and returns
// the first text/plain and the first text/html body. Attachment parts are skipped.
func extractBodies(root *MessagePart) (text, html string) {
	if root == nil {
		return "", ""
	}
	stack := []*MessagePart{root}
	for len(stack) > 0 && (text == "" || html == "") {
		part := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if part == nil {
			continue
		}

		// 子节点逆序入栈，保持文档顺序
		for i := len(part.Parts) - 1; i >= 0; i-- {
			stack = append(stack, part.Parts[i])
		}

		if part.Filename != "" || part.Body.Data == "" {
			continue
		}
		mimeType := strings.ToLower(part.MimeType)
		switch {
		case text == "" && strings.HasPrefix(mimeType, "text/plain"):
			text = decodeBody(part.Body.Data)
		case html == "" && strings.HasPrefix(mimeType, "text/html"):
			html = decodeBody(part.Body.Data)
		}
	}
	return text, html
}

// ScanAttachments reports whether the raw message JSON carries any part with a filename,
// and the distinct MIME types of those parts in document order.
func ScanAttachments(raw json.RawMessage) (bool, []string) {
	if len(raw) == 0 {
		return false, nil
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Payload == nil {
		return false, nil
	}

	var types []string
	seen := make(map[string]bool)
	found := false
	stack := []*MessagePart{msg.Payload}
	for len(stack) > 0 {
		part := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if part == nil {
			continue
		}
		for i := len(part.Parts) - 1; i >= 0; i-- {
			stack = append(stack, part.Parts[i])
		}
		if part.Filename == "" {
			continue
		}
		found = true
		mt := strings.ToLower(part.MimeType)
		if mt == "" {
			mt = "application/octet-stream"
		}
		if !seen[mt] {
			seen[mt] = true
			types = append(types, mt)
		}
	}
	return found, types
}

// decodeBody 兼容有无 padding 的 base64url；解码失败返回空
func decodeBody(data string) string {
	var (
		b   []byte
		err error
	)
	if strings.ContainsRune(data, '=') {
		b, err = base64.URLEncoding.DecodeString(data)
	} else {
		b, err = base64.RawURLEncoding.DecodeString(data)
	}
	if err != nil {
		return ""
	}
	return string(b)
}

func parseDateHeader(v string) *time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	t, err := mail.ParseDate(v)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func parseInternalDate(v string) *time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
