package db

import (
	"encoding/json"
	"time"
)

// ItemStatus 邮件生命周期状态
type ItemStatus string

const (
	ItemStatusActive   ItemStatus = "active"
	ItemStatusSnoozed  ItemStatus = "snoozed"
	ItemStatusArchived ItemStatus = "archived"
)

// SourceGmail is the only source the fetcher pulls from today.
const SourceGmail = "gmail"

// EmailItem 表示 email_items 表的完整结构
// (owner_id, source, external_id) 唯一
type EmailItem struct {
	ID            int64           `json:"id"`
	OwnerID       int64           `json:"owner_id"`
	Source        string          `json:"source"`
	ExternalID    string          `json:"external_id"`
	ThreadID      string          `json:"thread_id,omitempty"`
	SenderName    string          `json:"sender_name,omitempty"`
	SenderAddress string          `json:"sender_address"`
	Recipients    []string        `json:"recipients"`
	Subject       string          `json:"subject"`
	BodyText      string          `json:"body_text,omitempty"`
	BodyHTML      string          `json:"body_html,omitempty"`
	Snippet       string          `json:"snippet,omitempty"`
	IsRead        bool            `json:"is_read"`
	IsStarred     bool            `json:"is_starred"`
	IsImportant   bool            `json:"is_important"`
	Labels        []string        `json:"labels"`
	ReceivedAt    *time.Time      `json:"received_at,omitempty"`
	SentAt        *time.Time      `json:"sent_at,omitempty"`
	RawPayload    json.RawMessage `json:"-"`
	Status        ItemStatus      `json:"status"`
	SnoozedUntil  *time.Time      `json:"snoozed_until,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Sender renders the sender as "name <address>", or the bare address.
func (e *EmailItem) Sender() string {
	if e.SenderName == "" {
		return e.SenderAddress
	}
	if e.SenderAddress == "" {
		return e.SenderName
	}
	return e.SenderName + " <" + e.SenderAddress + ">"
}

// Credential 每个 owner 一行
type Credential struct {
	OwnerID      int64     `json:"owner_id"`
	RefreshToken string    `json:"-"`
	AccessToken  string    `json:"-"`
	Expiry       time.Time `json:"expiry"`
	UpdatedAt    time.Time `json:"updated_at"`
}
