package db

import "time"

// EmailSummary 与 EmailItem 一对一，存在即表示"已经处理过"
type EmailSummary struct {
	ID        int64     `json:"id"`
	EmailID   int64     `json:"email_id"`
	Summary   string    `json:"summary"`
	KeyPoints []string  `json:"key_points"`
	Sentiment string    `json:"sentiment"`
	Category  string    `json:"category"`
	Priority  string    `json:"priority"`
	VectorKey *string   `json:"vector_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EmailMetadata 与 EmailItem 一对一
type EmailMetadata struct {
	EmailID            int64     `json:"email_id"`
	Entities           []string  `json:"entities"`
	Topics             []string  `json:"topics"`
	Language           string    `json:"language"`
	WordCount          int       `json:"word_count"`
	ReadingTimeMinutes int       `json:"reading_time_minutes"`
	Tags               []string  `json:"tags"`
	ActionItems        []string  `json:"action_items"`
	HasAttachments     bool      `json:"has_attachments"`
	AttachmentTypes    []string  `json:"attachment_types"`
	CreatedAt          time.Time `json:"created_at"`
}

// SearchRow 搜索结果 join 回来的字段
type SearchRow struct {
	EmailID    int64      `json:"email_id"`
	OwnerID    int64      `json:"owner_id"`
	Subject    string     `json:"subject"`
	Sender     string     `json:"sender"`
	Summary    string     `json:"summary"`
	Category   string     `json:"category"`
	Priority   string     `json:"priority"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
}
