// Package enrich summarizes, annotates and indexes stored emails.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ezmail/contracts/db"
	"ezmail/internal/apperr"
	"ezmail/internal/gmail"
	"ezmail/internal/llm"
	"ezmail/internal/vectorindex"
	"ezmail/pkg/logger"
	"ezmail/pkg/metrics"
	"ezmail/pkg/util"
)

const claimHandler = "enrich"

// Store 的 SaveEnrichment 在同一事务里写 summary 和 metadata；summary 已存在时返回 false
type Store interface {
	GetItem(ctx context.Context, id int64) (*db.EmailItem, error)
	SummaryExists(ctx context.Context, emailID int64) (bool, error)
	GetSummary(ctx context.Context, emailID int64) (*db.EmailSummary, error)
	SaveEnrichment(ctx context.Context, summary *db.EmailSummary, meta *db.EmailMetadata) (bool, error)
	SetVectorKey(ctx context.Context, emailID int64, key string) error
}

type Summarizer interface {
	Summarize(ctx context.Context, subject, body, sender string) (llm.Summary, error)
}

type MetadataExtractor interface {
	Extract(ctx context.Context, subject, body string) (llm.Metadata, error)
}

// Claimer is satisfied by util.Deduper.
type Claimer interface {
	AcquireOnce(ctx context.Context, handler string, id int64) bool
	Release(ctx context.Context, handler string, id int64)
}

type Result struct {
	Enriched int `json:"enriched"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
	// Partial 文本已保存但向量写入失败，或只拿到 fallback 向量
	Partial   int     `json:"partial"`
	FailedIDs []int64 `json:"failed_ids,omitempty"`
}

type Options struct {
	Concurrency int
	ItemTimeout time.Duration
}

type Pipeline struct {
	store      Store
	summarizer Summarizer
	extractor  MetadataExtractor
	embedder   llm.Embedder
	index      vectorindex.Index
	claims     Claimer
	logger     *zap.Logger
	opts       Options
}

func NewPipeline(store Store, summarizer Summarizer, extractor MetadataExtractor, embedder llm.Embedder,
	index vectorindex.Index, claims Claimer, logger *zap.Logger, opts Options) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = 2 * time.Minute
	}
	return &Pipeline{
		store:      store,
		summarizer: summarizer,
		extractor:  extractor,
		embedder:   embedder,
		index:      index,
		claims:     claims,
		logger:     logger,
		opts:       opts,
	}
}

type outcome int

const (
	outcomeEnriched outcome = iota
	outcomeSkipped
	outcomeFailed
	outcomePartial
)

// Process enriches every id independently. One item failing never aborts the others;
// the error return is reserved for a context that is already done.
func (p *Pipeline) Process(ctx context.Context, ids []int64) (*Result, error) {
	return p.run(ctx, ids, p.processOne)
}

// Reindex re-embeds items whose summary exists but has no vector key.
func (p *Pipeline) Reindex(ctx context.Context, ids []int64) (*Result, error) {
	return p.run(ctx, ids, p.reindexOne)
}

func (p *Pipeline) run(ctx context.Context, ids []int64, fn func(context.Context, *zap.Logger, int64) outcome) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := logger.WithTrace(ctx, p.logger)
	outcomes := make([]outcome, len(ids))

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			itemCtx, cancel := context.WithTimeout(ctx, p.opts.ItemTimeout)
			defer cancel()
			outcomes[i] = fn(itemCtx, log.With(zap.Int64("email_id", id)), id)
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{}
	for i, o := range outcomes {
		switch o {
		case outcomeEnriched:
			res.Enriched++
		case outcomeSkipped:
			res.Skipped++
		case outcomePartial:
			res.Partial++
		default:
			res.Failed++
			res.FailedIDs = append(res.FailedIDs, ids[i])
		}
	}
	return res, nil
}

func (p *Pipeline) processOne(ctx context.Context, log *zap.Logger, id int64) (result outcome) {
	defer func() { metrics.IncrementEmailEnriched(outcomeLabel(result)) }()

	if id <= 0 {
		log.Warn("invalid email id")
		return outcomeFailed
	}
	if p.claims != nil {
		if !p.claims.AcquireOnce(ctx, claimHandler, id) {
			log.Debug("email is being enriched by another worker")
			return outcomeSkipped
		}
		defer func() {
			if result == outcomeFailed {
				p.claims.Release(context.WithoutCancel(ctx), claimHandler, id)
			}
		}()
	}

	item, err := p.store.GetItem(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		log.Warn("email not found, skipping")
		return outcomeSkipped
	}
	if err != nil {
		logFailure(log, "load email failed", err)
		return outcomeFailed
	}
	log = log.With(zap.Int64("owner_id", item.OwnerID))

	exists, err := p.store.SummaryExists(ctx, id)
	if err != nil {
		logFailure(log, "check summary failed", err)
		return outcomeFailed
	}
	if exists {
		return outcomeSkipped
	}

	body := BestBody(item)
	sum, err := p.summarizer.Summarize(ctx, item.Subject, body, item.Sender())
	if err != nil {
		logFailure(log, "summarize failed", err)
		return outcomeFailed
	}
	meta, err := p.extractor.Extract(ctx, item.Subject, body)
	if err != nil {
		// 元数据降级为默认值，不影响摘要
		log.Warn("metadata extraction failed, using defaults", zap.Error(err))
		meta = llm.DefaultMetadataResult()
	}

	words := WordCount(item.Subject + " " + body)
	hasAttachments, attachmentTypes := gmail.ScanAttachments(item.RawPayload)

	summary := &db.EmailSummary{
		EmailID:   id,
		Summary:   sum.Summary,
		KeyPoints: sum.KeyPoints,
		Sentiment: sum.Sentiment,
		Category:  sum.Category,
		Priority:  sum.Priority,
	}
	metadata := &db.EmailMetadata{
		EmailID:            id,
		Entities:           meta.Entities,
		Topics:             meta.Topics,
		Language:           meta.Language,
		WordCount:          words,
		ReadingTimeMinutes: ReadingTime(words),
		Tags:               meta.Tags,
		ActionItems:        meta.ActionItems,
		HasAttachments:     hasAttachments,
		AttachmentTypes:    nonNil(attachmentTypes),
	}

	inserted, err := p.store.SaveEnrichment(ctx, summary, metadata)
	if err != nil {
		logFailure(log, "save enrichment failed", err)
		return outcomeFailed
	}
	if !inserted {
		log.Debug("summary written concurrently, skipping")
		return outcomeSkipped
	}

	degraded, err := p.indexItem(ctx, item, sum.Summary)
	if err != nil {
		// 文本结果已落库，向量失败只记录，由 sweeper 补偿
		logFailure(log, "vector indexing failed, text enrichment kept", err)
		return outcomePartial
	}
	if degraded {
		log.Info("indexed with fallback embedding, left for reindex")
		return outcomePartial
	}
	return outcomeEnriched
}

func (p *Pipeline) reindexOne(ctx context.Context, log *zap.Logger, id int64) outcome {
	summary, err := p.store.GetSummary(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return outcomeSkipped
	}
	if err != nil {
		logFailure(log, "load summary failed", err)
		return outcomeFailed
	}
	if summary.VectorKey != nil {
		return outcomeSkipped
	}
	item, err := p.store.GetItem(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return outcomeSkipped
	}
	if err != nil {
		logFailure(log, "load email failed", err)
		return outcomeFailed
	}
	degraded, err := p.indexItem(ctx, item, summary.Summary)
	if err != nil {
		logFailure(log, "reindex failed", err)
		return outcomeFailed
	}
	if degraded {
		return outcomePartial
	}
	return outcomeEnriched
}

// indexItem 返回 degraded=true 时向量来自 fallback embedder：照常写入索引以便可搜，
// 但不记录 vector_key，Reindex 会在主模型恢复后重写
func (p *Pipeline) indexItem(ctx context.Context, item *db.EmailItem, summary string) (degraded bool, err error) {
	if p.embedder == nil || p.index == nil {
		return false, errors.New("vector indexing not configured")
	}
	vec, degraded, err := p.embed(ctx, EmbeddingInput(item, summary))
	if err != nil {
		return false, fmt.Errorf("embed: %w", err)
	}
	key, err := p.index.Upsert(ctx, vectorindex.Point{
		ID:     item.ID,
		Vector: vec,
		Payload: map[string]any{
			vectorindex.PayloadItemID:  item.ID,
			vectorindex.PayloadSubject: item.Subject,
			vectorindex.PayloadSummary: summary,
			vectorindex.PayloadSender:  item.Sender(),
			vectorindex.PayloadOwnerID: item.OwnerID,
		},
	})
	if err != nil {
		return false, fmt.Errorf("upsert vector: %w", err)
	}
	if degraded {
		return true, nil
	}
	if err := p.store.SetVectorKey(ctx, item.ID, key); err != nil {
		return false, fmt.Errorf("record vector key: %w", err)
	}
	return false, nil
}

func (p *Pipeline) embed(ctx context.Context, text string) ([]float32, bool, error) {
	if d, ok := p.embedder.(llm.DegradableEmbedder); ok {
		return d.EmbedDetailed(ctx, text)
	}
	vec, err := p.embedder.Embed(ctx, text)
	return vec, false, err
}

func logFailure(log *zap.Logger, msg string, err error) {
	retryable, errType := util.IsRetryableError(err)
	log.Warn(msg, zap.String("error_type", errType), zap.Bool("retryable", retryable), zap.Error(err))
}

func outcomeLabel(o outcome) string {
	switch o {
	case outcomeEnriched:
		return "enriched"
	case outcomeSkipped:
		return "skipped"
	case outcomePartial:
		return "partial"
	default:
		return "failed"
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
