package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	mqcontracts "ezmail/contracts/mq"
	"ezmail/pkg/metrics"
	"ezmail/pkg/mq"
	"ezmail/pkg/trace"
)

// EventPublisher 由 *mq.Publisher 实现
type EventPublisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload interface{}, opts ...mq.PublishOption) error
}

// Dispatcher 负责从 outbox 中读取事件并发布到 MQ
type Dispatcher struct {
	store      Store
	publisher  EventPublisher
	logger     *zap.Logger
	maxRetries int
	interval   time.Duration
	batchSize  int
}

func NewDispatcher(store Store, publisher EventPublisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:      store,
		publisher:  publisher,
		logger:     logger,
		maxRetries: 5,
		interval:   time.Second,
		batchSize:  100,
	}
}

func (d *Dispatcher) WithMaxRetries(maxRetries int) *Dispatcher {
	if maxRetries > 0 {
		d.maxRetries = maxRetries
	}
	return d
}

func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Dispatcher) WithBatchSize(batchSize int) *Dispatcher {
	if batchSize > 0 {
		d.batchSize = batchSize
	}
	return d
}

// Start 阻塞直到 ctx 结束
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("outbox dispatcher started",
		zap.Int("max_retries", d.maxRetries),
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
			d.DispatchOnce(ctx)
		}
	}
}

// DispatchOnce 处理一批到期事件，返回成功发布的条数
func (d *Dispatcher) DispatchOnce(ctx context.Context) int {
	events, err := d.store.GetPendingEvents(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("failed to get pending events", zap.Error(err))
		return 0
	}
	if len(events) == 0 {
		return 0
	}

	sent := 0
	for _, event := range events {
		if err := publishEvent(ctx, d.publisher, event); err != nil {
			metrics.IncrementEventPublish("outbox", "failed")
			d.logger.Warn("failed to publish outbox event",
				zap.Int64("event_id", event.ID),
				zap.String("routing_key", event.RoutingKey),
				zap.Int("retry_count", event.RetryCount),
				zap.Error(err),
			)
			if err := d.store.MarkAsFailed(ctx, event.ID, d.maxRetries); err != nil {
				d.logger.Error("failed to mark outbox event failed", zap.Int64("event_id", event.ID), zap.Error(err))
			}
			continue
		}

		metrics.IncrementEventPublish("outbox", "success")
		if err := d.store.MarkAsSent(ctx, event.ID); err != nil {
			// 事件已经发出，下一轮会重复发布；消费端按 summary 是否存在去重
			d.logger.Error("failed to mark outbox event sent", zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}
		sent++
	}

	d.logger.Debug("outbox batch dispatched", zap.Int("pending", len(events)), zap.Int("sent", sent))
	return sent
}

func publishEvent(ctx context.Context, publisher EventPublisher, event *Event) error {
	// 保持原始 JSON，不做二次解码
	payload := json.RawMessage(event.Payload)

	if traceID := traceIDFromPayload(event.Payload); traceID != "" {
		ctx = trace.WithContext(ctx, traceID)
	}

	var opts []mq.PublishOption
	if event.AggregateID != nil {
		opts = append(opts, mq.WithHeader(mqcontracts.PartitionKeyHeader, mqcontracts.PartitionKey(*event.AggregateID)))
	}

	if err := publisher.PublishWithContext(ctx, event.RoutingKey, payload, opts...); err != nil {
		return fmt.Errorf("failed to publish to MQ: %w", err)
	}
	return nil
}
