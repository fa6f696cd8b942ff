// Package search answers semantic queries over an owner's enriched emails.
package search

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"ezmail/contracts/db"
	"ezmail/internal/apperr"
	"ezmail/internal/llm"
	"ezmail/internal/vectorindex"
	"ezmail/pkg/config"
	"ezmail/pkg/logger"
	"ezmail/pkg/metrics"
)

// Store resolves hits back to stored rows; ids not owned by ownerID are left out.
type Store interface {
	GetSearchRows(ctx context.Context, ownerID int64, ids []int64) (map[int64]db.SearchRow, error)
}

type Result struct {
	db.SearchRow
	RelevanceScore float64 `json:"relevance_score"`
}

type Service struct {
	embedder llm.Embedder
	index    vectorindex.Index
	store    Store
	logger   *zap.Logger

	minScore     float64
	overFetch    int
	defaultLimit int
	maxLimit     int
}

func NewService(embedder llm.Embedder, index vectorindex.Index, store Store, logger *zap.Logger, cfg config.SearchConfig) *Service {
	s := &Service{
		embedder:     embedder,
		index:        index,
		store:        store,
		logger:       logger,
		minScore:     cfg.MinScore,
		overFetch:    cfg.OverFetchFactor,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
	}
	if s.overFetch <= 0 {
		s.overFetch = 2
	}
	if s.defaultLimit <= 0 {
		s.defaultLimit = 10
	}
	if s.maxLimit <= 0 {
		s.maxLimit = 50
	}
	return s
}

// Search returns at most limit results ordered by descending relevance.
func (s *Service) Search(ctx context.Context, ownerID int64, query string, limit int) (results []Result, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = apperr.Kind(err)
		}
		metrics.RecordSearchDuration(status, time.Since(start))
	}()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query: %w", apperr.ErrValidation)
	}
	if ownerID <= 0 {
		return nil, fmt.Errorf("owner id %d: %w", ownerID, apperr.ErrValidation)
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	threshold := s.minScore
	hits, err := s.index.Search(ctx, vectorindex.Query{
		Vector:         vec,
		Limit:          limit * s.overFetch,
		ScoreThreshold: &threshold,
		OwnerID:        ownerID,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	log := logger.WithTrace(ctx, s.logger).With(zap.Int64("owner_id", ownerID))
	ids := make([]int64, 0, len(hits))
	kept := hits[:0]
	for _, h := range hits {
		// 索引端已按 owner 过滤，这里再按 payload 校验一次
		if owner, err := vectorindex.PointIDFrom(h.Payload[vectorindex.PayloadOwnerID]); err != nil || owner != ownerID {
			log.Warn("dropping vector hit with foreign owner", zap.Int64("email_id", h.ID))
			continue
		}
		if h.Score < s.minScore {
			continue
		}
		ids = append(ids, h.ID)
		kept = append(kept, h)
	}
	if len(ids) == 0 {
		return []Result{}, nil
	}

	rows, err := s.store.GetSearchRows(ctx, ownerID, ids)
	if err != nil {
		return nil, fmt.Errorf("load search rows: %w", err)
	}

	results = make([]Result, 0, limit)
	for _, h := range kept {
		row, ok := rows[h.ID]
		if !ok {
			// 向量过期：邮件已删除
			log.Debug("dropping stale vector hit", zap.Int64("email_id", h.ID))
			continue
		}
		results = append(results, Result{SearchRow: row, RelevanceScore: RoundScore(h.Score)})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// RoundScore clamps to [0,1] and rounds to three decimals.
func RoundScore(score float64) float64 {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return math.Round(score*1000) / 1000
}
