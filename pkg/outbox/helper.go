package outbox

import (
	"context"
	"encoding/json"
	"fmt"
)

// NewEvent 序列化 payload 并构造一个 pending 事件
func NewEvent(aggregateType string, aggregateID *int64, routingKey string, payload any) (*Event, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal outbox payload: %w", err)
	}

	return &Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		RoutingKey:    routingKey,
		Payload:       payloadJSON,
		Status:        StatusPending,
	}, nil
}

// Enqueue 写入 outbox，等待 Dispatcher 补发
func Enqueue(ctx context.Context, store Store, aggregateType string, aggregateID *int64, routingKey string, payload any) (*Event, error) {
	event, err := NewEvent(aggregateType, aggregateID, routingKey, payload)
	if err != nil {
		return nil, err
	}
	if err := store.Add(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// traceIDFromPayload 读取 payload 里的 traceId，兼容旧的 trace_id
func traceIDFromPayload(payload json.RawMessage) string {
	var fields struct {
		TraceID    string `json:"traceId"`
		OldTraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return ""
	}
	if fields.TraceID != "" {
		return fields.TraceID
	}
	return fields.OldTraceID
}
