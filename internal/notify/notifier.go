// Package notify announces freshly stored emails and consumes those
// announcements on the enrichment side.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	mqcontracts "ezmail/contracts/mq"
	"ezmail/pkg/logger"
	"ezmail/pkg/metrics"
	"ezmail/pkg/mq"
	"ezmail/pkg/outbox"
	"ezmail/pkg/trace"
)

// AggregateEmailBatch is the outbox aggregate type of fetched-batch events.
const AggregateEmailBatch = "email_batch"

// Notifier publishes email.fetched events; failed publishes land in the outbox.
type Notifier struct {
	publisher outbox.EventPublisher
	outbox    outbox.Store
	now       func() time.Time
	logger    *zap.Logger
}

// NewNotifier 的 publisher 可以为 nil，此时事件直接写 outbox
func NewNotifier(publisher outbox.EventPublisher, store outbox.Store, logger *zap.Logger) *Notifier {
	return &Notifier{publisher: publisher, outbox: store, now: time.Now, logger: logger}
}

func (n *Notifier) NotifyFetched(ctx context.Context, ownerID int64, itemIDs []int64) error {
	if len(itemIDs) == 0 {
		return nil
	}
	ctx = trace.Ensure(ctx)
	payload := mqcontracts.EmailFetchedPayload{
		OwnerID:   ownerID,
		ItemIDs:   itemIDs,
		Timestamp: n.now().UTC(),
		TraceID:   trace.FromContext(ctx),
	}
	key := mqcontracts.EmailFetchedRoutingKey(ownerID)
	log := logger.WithTrace(ctx, n.logger).With(zap.Int64("owner_id", ownerID), zap.Int("items", len(itemIDs)))

	var pubErr error
	if n.publisher != nil {
		pubErr = n.publisher.PublishWithContext(ctx, key, payload,
			mq.WithHeader(mqcontracts.PartitionKeyHeader, mqcontracts.PartitionKey(ownerID)))
		if pubErr == nil {
			metrics.IncrementEventPublish("direct", "success")
			log.Debug("email.fetched published", zap.String("routing_key", key))
			return nil
		}
		metrics.IncrementEventPublish("direct", "failed")
		log.Warn("publish failed, falling back to outbox", zap.Error(pubErr))
	}

	if n.outbox == nil {
		if pubErr == nil {
			pubErr = errors.New("no publisher configured")
		}
		return fmt.Errorf("publish %s: %w", key, pubErr)
	}
	owner := ownerID
	event, err := outbox.Enqueue(ctx, n.outbox, AggregateEmailBatch, &owner, key, payload)
	if err != nil {
		metrics.IncrementEventPublish("outbox", "failed")
		return fmt.Errorf("notify owner %d: %w", ownerID, errors.Join(pubErr, err))
	}
	log.Info("email.fetched queued in outbox", zap.Int64("event_id", event.ID))
	return nil
}
