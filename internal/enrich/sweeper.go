package enrich

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"ezmail/pkg/trace"
	"ezmail/pkg/util"
)

const (
	sweepHandler   = "enrich_sweep"
	reindexHandler = "enrich_reindex"
)

// SweepStore lists ids in ascending order, strictly after afterID.
type SweepStore interface {
	ListUnenriched(ctx context.Context, olderThan time.Time, afterID int64, limit int) ([]int64, error)
	ListMissingVector(ctx context.Context, afterID int64, limit int) ([]int64, error)
}

// RetryBudget is satisfied by util.RetryCounter.
type RetryBudget interface {
	Get(ctx context.Context, key string) (int64, error)
	IncrementAndGet(ctx context.Context, key string) (int64, error)
}

type SweepOptions struct {
	Grace       time.Duration
	Batch       int
	MaxAttempts int64
	Now         func() time.Time
}

type SweepResult struct {
	Candidates       int     `json:"candidates"`
	Exhausted        int     `json:"exhausted"`
	ReindexExhausted int     `json:"reindex_exhausted"`
	Enrich           *Result `json:"enrich"`
	Reindex          *Result `json:"reindex"`
}

// Sweeper re-drives emails the listener never finished: no summary after the grace
// period, or a summary without a vector key.
//
// Both lists are walked with a cursor so ids that keep failing cannot pin the batch.
type Sweeper struct {
	store    SweepStore
	pipeline *Pipeline
	budget   RetryBudget
	logger   *zap.Logger
	opts     SweepOptions

	mu            sync.Mutex
	enrichCursor  int64
	reindexCursor int64
}

func NewSweeper(store SweepStore, pipeline *Pipeline, budget RetryBudget, logger *zap.Logger, opts SweepOptions) *Sweeper {
	if opts.Grace <= 0 {
		opts.Grace = 10 * time.Minute
	}
	if opts.Batch <= 0 {
		opts.Batch = 100
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sweeper{store: store, pipeline: pipeline, budget: budget, logger: logger, opts: opts}
}

func (s *Sweeper) SweepOnce(ctx context.Context) (*SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	olderThan := s.opts.Now().Add(-s.opts.Grace)
	ids, err := s.page(&s.enrichCursor, func(after int64) ([]int64, error) {
		return s.store.ListUnenriched(ctx, olderThan, after, s.opts.Batch)
	})
	if err != nil {
		return nil, err
	}

	res := &SweepResult{Candidates: len(ids)}
	eligible, exhausted := s.withinBudget(ctx, sweepHandler, ids)
	res.Exhausted = exhausted
	if res.Enrich, err = s.pipeline.Process(ctx, eligible); err != nil {
		return res, err
	}

	missing, err := s.page(&s.reindexCursor, func(after int64) ([]int64, error) {
		return s.store.ListMissingVector(ctx, after, s.opts.Batch)
	})
	if err != nil {
		return res, err
	}
	missing, res.ReindexExhausted = s.withinBudget(ctx, reindexHandler, missing)
	if res.Reindex, err = s.pipeline.Reindex(ctx, missing); err != nil {
		return res, err
	}
	return res, nil
}

// page 从 cursor 之后取一批；取不满说明到底了，下一轮从头开始
func (s *Sweeper) page(cursor *int64, list func(after int64) ([]int64, error)) ([]int64, error) {
	ids, err := list(*cursor)
	if err != nil {
		return nil, err
	}
	if len(ids) < s.opts.Batch {
		*cursor = 0
	} else {
		*cursor = ids[len(ids)-1]
	}
	return ids, nil
}

// withinBudget 先读计数再递增：已耗尽的 id 不再刷新 TTL，过期后会重新获得预算
func (s *Sweeper) withinBudget(ctx context.Context, handler string, ids []int64) ([]int64, int) {
	if s.budget == nil {
		return ids, 0
	}
	eligible := make([]int64, 0, len(ids))
	exhausted := 0
	for _, id := range ids {
		key := util.FormatRetryKey(handler, id)
		n, err := s.budget.Get(ctx, key)
		if err != nil {
			s.logger.Warn("retry budget unavailable, sweeping anyway", zap.Int64("email_id", id), zap.Error(err))
			eligible = append(eligible, id)
			continue
		}
		if n >= s.opts.MaxAttempts {
			exhausted++
			continue
		}
		if _, err := s.budget.IncrementAndGet(ctx, key); err != nil {
			s.logger.Warn("retry budget not recorded", zap.Int64("email_id", id), zap.Error(err))
		}
		eligible = append(eligible, id)
	}
	return eligible, exhausted
}

// Start 按 interval 周期执行，阻塞直到 ctx 结束
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(zap.NewStdLog(s.logger)))))
	if _, err := c.AddFunc("@every "+interval.String(), func() { s.tick(ctx) }); err != nil {
		return err
	}
	c.Start()
	s.logger.Info("enrichment sweeper started", zap.Duration("interval", interval))

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("enrichment sweeper stopped")
	return nil
}

func (s *Sweeper) tick(ctx context.Context) {
	ctx = trace.Ensure(ctx)
	res, err := s.SweepOnce(ctx)
	if err != nil {
		s.logger.Error("enrichment sweep failed", zap.String("trace_id", trace.FromContext(ctx)), zap.Error(err))
		return
	}
	if res.Candidates == 0 && (res.Reindex == nil || res.Reindex.Enriched+res.Reindex.Failed == 0) {
		return
	}
	s.logger.Info("enrichment sweep completed",
		zap.String("trace_id", trace.FromContext(ctx)),
		zap.Int("candidates", res.Candidates),
		zap.Int("exhausted", res.Exhausted),
		zap.Int("reindex_exhausted", res.ReindexExhausted),
		zap.Int("enriched", res.Enrich.Enriched),
		zap.Int("failed", res.Enrich.Failed),
		zap.Int("reindexed", res.Reindex.Enriched),
	)
}
