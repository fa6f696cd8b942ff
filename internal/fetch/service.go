// Package fetch pulls new messages for an owner, stores them once and announces the batch.
package fetch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ezmail/contracts/db"
	"ezmail/internal/apperr"
	"ezmail/internal/gmail"
	"ezmail/pkg/logger"
	"ezmail/pkg/metrics"
	"ezmail/pkg/util"
)

type TokenProvider interface {
	GetValidAccessToken(ctx context.Context, ownerID int64) (string, error)
}

type Source interface {
	ListMessageIDs(ctx context.Context, token string, max int) ([]gmail.MessageRef, error)
	GetMessage(ctx context.Context, token, id string) (*gmail.Message, error)
}

// Store InsertItem 在 (owner_id, source, external_id) 冲突时返回 inserted=false
type Store interface {
	ExistsByExternalID(ctx context.Context, ownerID int64, source, externalID string) (bool, error)
	InsertItem(ctx context.Context, item *db.EmailItem) (id int64, inserted bool, err error)
}

type Notifier interface {
	NotifyFetched(ctx context.Context, ownerID int64, itemIDs []int64) error
}

// Result of one fetch run.
type Result struct {
	Stored  int     `json:"stored"`
	Skipped int     `json:"skipped"`
	Failed  int     `json:"failed"`
	ItemIDs []int64 `json:"item_ids"`
}

type Options struct {
	Concurrency     int
	DefaultMaxItems int
	ItemTimeout     time.Duration
}

type Service struct {
	tokens   TokenProvider
	source   Source
	store    Store
	notifier Notifier
	logger   *zap.Logger
	opts     Options
}

func NewService(tokens TokenProvider, source Source, store Store, notifier Notifier, logger *zap.Logger, opts Options) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.DefaultMaxItems <= 0 {
		opts.DefaultMaxItems = 50
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = 30 * time.Second
	}
	return &Service{
		tokens:   tokens,
		source:   source,
		store:    store,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
	}
}

type outcome int

const (
	outcomeStored outcome = iota
	outcomeSkipped
	outcomeFailed
)

// FetchAndStore lists up to maxItems messages, stores the ones not seen before and
// notifies the enrichment side about the new ids. Only credential and listing
// failures fail the call; per-item failures are counted in Result.Failed.
func (s *Service) FetchAndStore(ctx context.Context, ownerID int64, maxItems int) (*Result, error) {
	if ownerID <= 0 {
		return nil, fmt.Errorf("owner id %d: %w", ownerID, apperr.ErrValidation)
	}
	if maxItems <= 0 {
		maxItems = s.opts.DefaultMaxItems
	}
	log := logger.WithTrace(ctx, s.logger).With(zap.Int64("owner_id", ownerID))

	token, err := s.tokens.GetValidAccessToken(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	refs, err := s.source.ListMessageIDs(ctx, token, maxItems)
	if err != nil {
		_, errType := util.IsRetryableError(err)
		log.Warn("list messages failed", zap.String("error_type", errType), zap.Error(err))
		return nil, fmt.Errorf("list messages: %w", err)
	}

	refs = uniqueRefs(refs)
	outcomes := make([]outcome, len(refs))
	ids := make([]int64, len(refs))

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			outcomes[i], ids[i] = s.fetchOne(ctx, log, ownerID, token, ref.ID)
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{}
	for i := range refs {
		switch outcomes[i] {
		case outcomeStored:
			res.Stored++
			res.ItemIDs = append(res.ItemIDs, ids[i])
		case outcomeSkipped:
			res.Skipped++
		default:
			res.Failed++
		}
	}
	metrics.AddEmailFetched("stored", res.Stored)
	metrics.AddEmailFetched("skipped", res.Skipped)
	metrics.AddEmailFetched("failed", res.Failed)

	log.Info("fetch completed",
		zap.Int("listed", len(refs)),
		zap.Int("stored", res.Stored),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)

	if res.Stored > 0 && s.notifier != nil {
		// 通知失败不影响拉取结果
		if err := s.notifier.NotifyFetched(ctx, ownerID, res.ItemIDs); err != nil {
			log.Warn("notify fetched failed", zap.Int("items", len(res.ItemIDs)), zap.Error(err))
		}
	}
	return res, nil
}

func (s *Service) fetchOne(ctx context.Context, log *zap.Logger, ownerID int64, token, externalID string) (outcome, int64) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ItemTimeout)
	defer cancel()
	log = log.With(zap.String("external_id", externalID))

	exists, err := s.store.ExistsByExternalID(ctx, ownerID, db.SourceGmail, externalID)
	if err != nil {
		logItemError(log, "check existing item failed", err)
		return outcomeFailed, 0
	}
	if exists {
		return outcomeSkipped, 0
	}

	msg, err := s.source.GetMessage(ctx, token, externalID)
	if err != nil {
		logItemError(log, "get message failed", err)
		return outcomeFailed, 0
	}

	item := gmail.ParseMessage(ownerID, msg)
	id, inserted, err := s.store.InsertItem(ctx, item)
	if err != nil {
		logItemError(log, "store message failed", err)
		return outcomeFailed, 0
	}
	if !inserted {
		// 并发拉取时另一方先写入
		return outcomeSkipped, 0
	}
	return outcomeStored, id
}

func logItemError(log *zap.Logger, msg string, err error) {
	_, errType := util.IsRetryableError(err)
	log.Warn(msg, zap.String("error_type", errType), zap.Error(err))
}

func uniqueRefs(refs []gmail.MessageRef) []gmail.MessageRef {
	seen := make(map[string]struct{}, len(refs))
	out := refs[:0:0]
	for _, r := range refs {
		if r.ID == "" {
			continue
		}
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}

