package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	mqcontracts "ezmail/contracts/mq"
	"ezmail/internal/enrich"
	"ezmail/pkg/logger"
	"ezmail/pkg/mq"
	"ezmail/pkg/trace"
)

const schemaURL = "ezmail://contracts/email_fetched.json"

// Processor is satisfied by *enrich.Pipeline.
type Processor interface {
	Process(ctx context.Context, ids []int64) (*enrich.Result, error)
}

type Listener struct {
	processor Processor
	schema    *jsonschema.Schema
	logger    *zap.Logger
}

func NewListener(processor Processor, logger *zap.Logger) (*Listener, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	return &Listener{processor: processor, schema: schema, logger: logger}, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(mqcontracts.EmailFetchedSchema))
	if err != nil {
		return nil, fmt.Errorf("parse email.fetched schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("add email.fetched schema: %w", err)
	}
	return c.Compile(schemaURL)
}

// Handle is an mq.MessageHandler. Only malformed payloads produce an error;
// enrichment failures are logged and the delivery is acknowledged.
func (l *Listener) Handle(ctx context.Context, data json.RawMessage) error {
	payload, err := l.decode(data)
	if err != nil {
		return fmt.Errorf("%w: %v", mq.ErrPoisonMessage, err)
	}
	if payload.TraceID != "" {
		ctx = trace.WithContext(ctx, payload.TraceID)
	}
	log := logger.WithTrace(ctx, l.logger).With(zap.Int64("owner_id", payload.OwnerID))

	if len(payload.ItemIDs) == 0 {
		log.Debug("email.fetched without items")
		return nil
	}

	res, err := l.processor.Process(ctx, payload.ItemIDs)
	if err != nil {
		log.Error("enrichment batch failed", zap.Int("items", len(payload.ItemIDs)), zap.Error(err))
		return nil
	}
	log.Info("enrichment batch done",
		zap.Int("items", len(payload.ItemIDs)),
		zap.Int("enriched", res.Enriched),
		zap.Int("skipped", res.Skipped),
		zap.Int("partial", res.Partial),
		zap.Int("failed", res.Failed),
	)
	return nil
}

func (l *Listener) decode(data json.RawMessage) (*mqcontracts.EmailFetchedPayload, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if err := l.schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	var payload mqcontracts.EmailFetchedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &payload, nil
}
