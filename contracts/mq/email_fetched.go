package mq

import (
	"strconv"
	"time"
)

const (
	// EmailFetchedBinding 消费端绑定所有 owner
	EmailFetchedBinding = "email.fetched.*"
	// EmailFetchedQueue 多个 processor 实例共享同一个队列
	EmailFetchedQueue = "email.fetched.enrich.q"
	// PartitionKeyHeader carries the stringified owner id.
	PartitionKeyHeader = "x-partition-key"
)

// EmailFetchedPayload is published after a fetch batch stored at least one new item.
type EmailFetchedPayload struct {
	OwnerID   int64     `json:"ownerId"`
	ItemIDs   []int64   `json:"itemIds"`
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"traceId,omitempty"`
}

// EmailFetchedRoutingKey returns the routing key for an owner, e.g. "email.fetched.7".
func EmailFetchedRoutingKey(ownerID int64) string {
	return "email.fetched." + PartitionKey(ownerID)
}

// PartitionKey 生产端 key = ownerId 字符串
func PartitionKey(ownerID int64) string {
	return strconv.FormatInt(ownerID, 10)
}

// EmailFetchedSchema 用于 listener 端校验
const EmailFetchedSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["ownerId", "itemIds", "timestamp"],
  "properties": {
    "ownerId": {"type": "integer", "minimum": 1},
    "itemIds": {
      "type": "array",
      "items": {"type": "integer", "minimum": 1}
    },
    "timestamp": {"type": "string", "format": "date-time"},
    "traceId": {"type": "string"}
  }
}`
