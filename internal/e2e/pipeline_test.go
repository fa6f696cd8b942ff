// Package e2e drives fetch, notification, enrichment and search together
// over in-memory stores and an in-process broker.
package e2e

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ezmail/internal/enrich"
	"ezmail/internal/fetch"
	"ezmail/internal/gmail"
	"ezmail/internal/llm"
	"ezmail/internal/notify"
	"ezmail/internal/search"
	"ezmail/internal/testutil/memstore"
	"ezmail/internal/vectorindex"
	"ezmail/pkg/config"
	"ezmail/pkg/mq"
	"ezmail/pkg/outbox"
)

const dims = 1024

type message struct {
	subject, from, body string
}

var mailbox = map[string]message{
	"m1": {"March invoice", "Billing <billing@acme.example>", "Invoice 4471 payment is due Friday"},
	"m2": {"Offsite agenda", "Eve <eve@example.com>", "Hiking and lunch plans for the team offsite"},
}

// gmailServer serves messages.list and messages.get for the mailbox above.
func gmailServer(t *testing.T) *gmail.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/users/me/messages" {
			_, _ = w.Write([]byte(`{"messages":[{"id":"m1"},{"id":"m2"}]}`))
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/users/me/messages/")
		m, ok := mailbox[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(gmail.Message{
			ID:       id,
			LabelIDs: []string{"INBOX", "UNREAD"},
			Payload: &gmail.MessagePart{
				MimeType: "text/plain",
				Headers:  []gmail.Header{{Name: "From", Value: m.from}, {Name: "Subject", Value: m.subject}},
				Body:     gmail.PartBody{Data: base64.URLEncoding.EncodeToString([]byte(m.body))},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return gmail.NewClient(config.GmailConfig{BaseURL: srv.URL, QPS: 1000, Burst: 100, MaxRetries: 1}, srv.Client(), zap.NewNop())
}

type staticTokens struct{}

func (staticTokens) GetValidAccessToken(context.Context, int64) (string, error) { return "tok", nil }

// echoCompleter summarizes by repeating the body.
type echoCompleter struct{}

func (echoCompleter) Complete(_ context.Context, system, prompt string) (string, error) {
	body := prompt
	if i := strings.Index(prompt, "\n\n"); i >= 0 {
		body = prompt[i+2:]
	}
	var out any
	if strings.Contains(system, "summarize") {
		out = map[string]any{"summary": body, "keyPoints": []string{}, "sentiment": "neutral", "category": "work", "priority": "medium"}
	} else {
		out = map[string]any{"entities": []string{}, "topics": []string{"work"}, "language": "en", "actionItems": []string{}, "tags": []string{}}
	}
	b, err := json.Marshal(out)
	return string(b), err
}

// broker delivers each publish to the listener synchronously, as JSON on the wire.
type broker struct {
	mu       sync.Mutex
	down     bool
	keys     []string
	listener *notify.Listener
}

func (b *broker) PublishWithContext(ctx context.Context, key string, payload interface{}, _ ...mq.PublishOption) error {
	b.mu.Lock()
	down := b.down
	b.mu.Unlock()
	if down {
		return mq.ErrNotConnected
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.keys = append(b.keys, key)
	b.mu.Unlock()
	return b.listener.Handle(ctx, data)
}

type system struct {
	store    *memstore.Store
	broker   *broker
	fetcher  *fetch.Service
	searcher *search.Service
	index    *vectorindex.MemoryIndex
}

func newSystem(t *testing.T) *system {
	t.Helper()
	store := memstore.New()
	store.SetNextItemID(101)

	embedder := llm.NewHashEmbedder(dims)
	index := vectorindex.NewMemoryIndex(dims)
	pipeline := enrich.NewPipeline(store,
		llm.NewSummarizer(echoCompleter{}, 0),
		llm.NewMetadataExtractor(echoCompleter{}, 0),
		embedder, index, nil, zap.NewNop(), enrich.Options{Concurrency: 2})

	listener, err := notify.NewListener(pipeline, zap.NewNop())
	require.NoError(t, err)
	b := &broker{listener: listener}

	notifier := notify.NewNotifier(b, store, zap.NewNop())
	return &system{
		store:    store,
		broker:   b,
		fetcher:  fetch.NewService(staticTokens{}, gmailServer(t), store, notifier, zap.NewNop(), fetch.Options{Concurrency: 1}),
		searcher: search.NewService(embedder, index, store, zap.NewNop(), config.SearchConfig{MinScore: 0.1}),
		index:    index,
	}
}

func (s *system) invoiceID(t *testing.T) int64 {
	t.Helper()
	for _, item := range s.store.Items(7) {
		if item.Subject == "March invoice" {
			return item.ID
		}
	}
	t.Fatal("invoice not stored")
	return 0
}

func TestFetchEnrichSearch(t *testing.T) {
	ctx := context.Background()
	s := newSystem(t)

	res, err := s.fetcher.FetchAndStore(ctx, 7, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stored)
	assert.ElementsMatch(t, []int64{101, 102}, res.ItemIDs)
	assert.Equal(t, []string{"email.fetched.7"}, s.broker.keys)

	assert.Equal(t, 2, s.store.SummaryCount())
	assert.Equal(t, 2, s.store.MetadataCount())
	assert.Equal(t, 2, s.index.Len())
	assert.Equal(t, 2, s.index.Upserts(), "one vector write per item")

	results, err := s.searcher.Search(ctx, 7, "invoice payment due", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, s.invoiceID(t), results[0].EmailID)
	assert.Equal(t, "work", results[0].Category)
	assert.GreaterOrEqual(t, results[0].RelevanceScore, 0.0)
	assert.LessOrEqual(t, results[0].RelevanceScore, 1.0)

	// 其他 owner 看不到
	foreign, err := s.searcher.Search(ctx, 8, "invoice payment due", 5)
	require.NoError(t, err)
	assert.Empty(t, foreign)

	// 重复拉取不产生新事件
	again, err := s.fetcher.FetchAndStore(ctx, 7, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Skipped)
	assert.Len(t, s.broker.keys, 1)
}

func TestBrokerOutageGoesThroughOutbox(t *testing.T) {
	ctx := context.Background()
	s := newSystem(t)
	s.broker.down = true

	res, err := s.fetcher.FetchAndStore(ctx, 7, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stored)
	assert.Zero(t, s.store.SummaryCount())

	pending, err := s.store.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	s.broker.down = false
	sent := outbox.NewDispatcher(s.store, s.broker, zap.NewNop()).DispatchOnce(ctx)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 2, s.store.SummaryCount())

	results, err := s.searcher.Search(ctx, 7, "invoice payment due", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, s.invoiceID(t), results[0].EmailID)
}

func TestPoisonPayloadIsNotRetried(t *testing.T) {
	s := newSystem(t)
	err := s.broker.listener.Handle(context.Background(), json.RawMessage(`{"ownerId":"seven"}`))
	assert.True(t, errors.Is(err, mq.ErrPoisonMessage))
}
