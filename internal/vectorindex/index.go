// Package vectorindex stores one embedding per email and answers owner-filtered
// nearest-neighbour queries.
package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"ezmail/internal/apperr"
)

// Payload keys written by the enrichment pipeline.
const (
	PayloadItemID  = "itemId"
	PayloadSubject = "subject"
	PayloadSummary = "summary"
	PayloadSender  = "sender"
	PayloadOwnerID = "ownerId"
)

// Point is one vector record. ID is the email's internal id.
type Point struct {
	ID      int64
	Vector  []float32
	Payload map[string]any
}

type Query struct {
	Vector []float32
	Limit  int
	// ScoreThreshold 为 nil 时不过滤
	ScoreThreshold *float64
	// OwnerID 为 0 时不过滤
	OwnerID int64
}

type Hit struct {
	ID      int64
	Score   float64
	Payload map[string]any
}

type Index interface {
	// Upsert returns the index key recorded on the summary row.
	Upsert(ctx context.Context, p Point) (string, error)
	Search(ctx context.Context, q Query) ([]Hit, error)
	Dimensions() int
}

// PointIDFrom converts a loosely typed id into a positive integer id.
func PointIDFrom(v any) (int64, error) {
	var id int64
	switch x := v.(type) {
	case int:
		id = int64(x)
	case int32:
		id = int64(x)
	case int64:
		id = x
	case uint32:
		id = int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("vector id %d overflows: %w", x, apperr.ErrValidation)
		}
		id = int64(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) || x > math.MaxInt64 {
			return 0, fmt.Errorf("vector id %v is not an integer: %w", x, apperr.ErrValidation)
		}
		id = int64(x)
	case json.Number:
		n, err := strconv.ParseInt(string(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("vector id %q is not an integer: %w", x, apperr.ErrValidation)
		}
		id = n
	default:
		return 0, fmt.Errorf("vector id of type %T is not an integer: %w", v, apperr.ErrValidation)
	}
	if id <= 0 {
		return 0, fmt.Errorf("vector id %d must be positive: %w", id, apperr.ErrValidation)
	}
	return id, nil
}

// ValidatePoint 在任何 I/O 之前校验 id、维度和 payload
func ValidatePoint(p Point, dims int) error {
	if p.ID <= 0 {
		return fmt.Errorf("vector id %d must be positive: %w", p.ID, apperr.ErrValidation)
	}
	if err := validateVector(p.Vector, dims); err != nil {
		return err
	}
	for k, v := range p.Payload {
		switch v.(type) {
		case nil, string, bool, int, int32, int64, uint32, uint64, float32, float64, json.Number:
		default:
			return fmt.Errorf("payload key %q has nested or unsupported type %T: %w", k, v, apperr.ErrValidation)
		}
	}
	return nil
}

func validateVector(vec []float32, dims int) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty vector: %w", apperr.ErrValidation)
	}
	if dims > 0 && len(vec) != dims {
		return fmt.Errorf("vector has %d dimensions, index expects %d: %w", len(vec), dims, apperr.ErrValidation)
	}
	for _, f := range vec {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return fmt.Errorf("vector contains NaN or Inf: %w", apperr.ErrValidation)
		}
	}
	return nil
}

func ownerFromPayload(payload map[string]any) (int64, error) {
	v, ok := payload[PayloadOwnerID]
	if !ok {
		return 0, fmt.Errorf("payload missing %s: %w", PayloadOwnerID, apperr.ErrValidation)
	}
	return PointIDFrom(v)
}
