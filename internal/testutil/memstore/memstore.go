// Package memstore is an in-memory stand-in for the Postgres repositories.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ezmail/contracts/db"
	"ezmail/internal/apperr"
	"ezmail/pkg/outbox"
)

type itemKey struct {
	owner    int64
	source   string
	external string
}

// Store implements every store interface used by the pipeline.
type Store struct {
	mu sync.Mutex

	nextItemID  int64
	items       map[int64]*db.EmailItem
	byExternal  map[itemKey]int64
	credentials map[int64]db.Credential
	summaries   map[int64]*db.EmailSummary
	metadata    map[int64]*db.EmailMetadata
	events      map[int64]*outbox.Event
	nextEventID int64

	// 测试注入
	FailInsert     func(item *db.EmailItem) error
	FailSaveEnrich func(emailID int64) error
	FailAddEvent   error
}

func New() *Store {
	return &Store{
		nextItemID:  100,
		items:       make(map[int64]*db.EmailItem),
		byExternal:  make(map[itemKey]int64),
		credentials: make(map[int64]db.Credential),
		summaries:   make(map[int64]*db.EmailSummary),
		metadata:    make(map[int64]*db.EmailMetadata),
		events:      make(map[int64]*outbox.Event),
	}
}

// SetNextItemID makes the next inserted item receive id.
func (s *Store) SetNextItemID(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextItemID = id - 1
}

// ---- items ----

func (s *Store) ExistsByExternalID(_ context.Context, ownerID int64, source, externalID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byExternal[itemKey{ownerID, source, externalID}]
	return ok, nil
}

func (s *Store) InsertItem(_ context.Context, item *db.EmailItem) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInsert != nil {
		if err := s.FailInsert(item); err != nil {
			return 0, false, err
		}
	}
	key := itemKey{item.OwnerID, item.Source, item.ExternalID}
	if id, ok := s.byExternal[key]; ok {
		return id, false, nil
	}
	s.nextItemID++
	cp := *item
	cp.ID = s.nextItemID
	if cp.Status == "" {
		cp.Status = db.ItemStatusActive
	}
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.items[cp.ID] = &cp
	s.byExternal[key] = cp.ID
	item.ID = cp.ID
	return cp.ID, true, nil
}

// PutItem stores an item with a fixed id.
func (s *Store) PutItem(item db.EmailItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.Source == "" {
		item.Source = db.SourceGmail
	}
	if item.Status == "" {
		item.Status = db.ItemStatusActive
	}
	s.items[item.ID] = &item
	s.byExternal[itemKey{item.OwnerID, item.Source, item.ExternalID}] = item.ID
	if item.ID > s.nextItemID {
		s.nextItemID = item.ID
	}
}

func (s *Store) GetItem(_ context.Context, id int64) (*db.EmailItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("email %d: %w", id, apperr.ErrNotFound)
	}
	cp := *item
	return &cp, nil
}

// Items returns all items for an owner ordered by id.
func (s *Store) Items(ownerID int64) []db.EmailItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.EmailItem
	for _, item := range s.items {
		if item.OwnerID == ownerID {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---- snooze ----

func (s *Store) SetSnooze(_ context.Context, ownerID, itemID int64, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok || item.OwnerID != ownerID {
		return fmt.Errorf("email %d: %w", itemID, apperr.ErrNotFound)
	}
	item.Status = db.ItemStatusSnoozed
	u := until
	item.SnoozedUntil = &u
	return nil
}

func (s *Store) ClearSnooze(_ context.Context, ownerID, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok || item.OwnerID != ownerID {
		return fmt.Errorf("email %d: %w", itemID, apperr.ErrNotFound)
	}
	item.Status = db.ItemStatusActive
	item.SnoozedUntil = nil
	return nil
}

func (s *Store) RestoreDue(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, item := range s.items {
		if item.Status == db.ItemStatusSnoozed && item.SnoozedUntil != nil && !item.SnoozedUntil.After(now) {
			item.Status = db.ItemStatusActive
			item.SnoozedUntil = nil
			n++
		}
	}
	return n, nil
}

// ---- credentials ----

func (s *Store) GetCredential(_ context.Context, ownerID int64) (*db.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.credentials[ownerID]
	if !ok {
		return nil, fmt.Errorf("credential for owner %d: %w", ownerID, apperr.ErrNotFound)
	}
	return &cred, nil
}

func (s *Store) UpsertCredential(_ context.Context, cred *db.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cred
	cp.UpdatedAt = time.Now()
	s.credentials[cred.OwnerID] = cp
	return nil
}

func (s *Store) DeleteCredential(_ context.Context, ownerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.credentials, ownerID)
	return nil
}

// ---- enrichment ----

func (s *Store) SummaryExists(_ context.Context, emailID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.summaries[emailID]
	return ok, nil
}

func (s *Store) SaveEnrichment(_ context.Context, summary *db.EmailSummary, meta *db.EmailMetadata) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSaveEnrich != nil {
		if err := s.FailSaveEnrich(summary.EmailID); err != nil {
			return false, err
		}
	}
	if _, ok := s.summaries[summary.EmailID]; ok {
		return false, nil
	}
	now := time.Now()
	sc := *summary
	sc.ID = summary.EmailID
	sc.CreatedAt = now
	mc := *meta
	mc.CreatedAt = now
	s.summaries[summary.EmailID] = &sc
	s.metadata[meta.EmailID] = &mc
	summary.ID = sc.ID
	return true, nil
}

func (s *Store) SetVectorKey(_ context.Context, emailID int64, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.summaries[emailID]
	if !ok {
		return fmt.Errorf("summary %d: %w", emailID, apperr.ErrNotFound)
	}
	k := key
	sum.VectorKey = &k
	return nil
}

func (s *Store) GetSummary(_ context.Context, emailID int64) (*db.EmailSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.summaries[emailID]
	if !ok {
		return nil, fmt.Errorf("summary %d: %w", emailID, apperr.ErrNotFound)
	}
	cp := *sum
	return &cp, nil
}

func (s *Store) GetMetadata(_ context.Context, emailID int64) (*db.EmailMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.metadata[emailID]
	if !ok {
		return nil, fmt.Errorf("metadata %d: %w", emailID, apperr.ErrNotFound)
	}
	cp := *meta
	return &cp, nil
}

func (s *Store) ListUnenriched(_ context.Context, olderThan time.Time, afterID int64, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, item := range s.items {
		if id <= afterID {
			continue
		}
		if _, ok := s.summaries[id]; ok {
			continue
		}
		if item.CreatedAt.After(olderThan) {
			continue
		}
		ids = append(ids, id)
	}
	return limitIDs(ids, limit), nil
}

func (s *Store) ListMissingVector(_ context.Context, afterID int64, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, sum := range s.summaries {
		if id > afterID && sum.VectorKey == nil {
			ids = append(ids, id)
		}
	}
	return limitIDs(ids, limit), nil
}

func limitIDs(ids []int64, limit int) []int64 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

// SummaryCount / MetadataCount 给断言用
func (s *Store) SummaryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.summaries)
}

func (s *Store) MetadataCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.metadata)
}

// ---- search ----

func (s *Store) GetSearchRows(_ context.Context, ownerID int64, ids []int64) (map[int64]db.SearchRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make(map[int64]db.SearchRow, len(ids))
	for _, id := range ids {
		item, ok := s.items[id]
		if !ok || item.OwnerID != ownerID {
			continue
		}
		row := db.SearchRow{
			EmailID:    id,
			OwnerID:    item.OwnerID,
			Subject:    item.Subject,
			Sender:     item.Sender(),
			ReceivedAt: item.ReceivedAt,
		}
		if sum, ok := s.summaries[id]; ok {
			row.Summary = sum.Summary
			row.Category = sum.Category
			row.Priority = sum.Priority
		}
		rows[id] = row
	}
	return rows, nil
}

// ---- outbox ----

func (s *Store) Add(_ context.Context, event *outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAddEvent != nil {
		return s.FailAddEvent
	}
	s.nextEventID++
	cp := *event
	cp.ID = s.nextEventID
	cp.Status = outbox.StatusPending
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.events[cp.ID] = &cp
	event.ID = cp.ID
	return nil
}

func (s *Store) GetPendingEvents(_ context.Context, limit int) ([]*outbox.Event, error) {
	return s.eventsWithStatus(outbox.StatusPending, limit), nil
}

func (s *Store) GetFailedEvents(_ context.Context, limit int) ([]*outbox.Event, error) {
	return s.eventsWithStatus(outbox.StatusFailed, limit), nil
}

func (s *Store) eventsWithStatus(status string, limit int) []*outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*outbox.Event
	for _, e := range s.events {
		if e.Status == status {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) GetEventByID(_ context.Context, eventID int64) (*outbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return nil, fmt.Errorf("event %d: %w", eventID, outbox.ErrEventNotFound)
	}
	cp := *e
	return &cp, nil
}

func (s *Store) MarkAsSent(_ context.Context, eventID int64) error {
	return s.setEventStatus(eventID, func(e *outbox.Event) { e.Status = outbox.StatusSent })
}

func (s *Store) MarkAsFailed(_ context.Context, eventID int64, maxRetries int) error {
	return s.setEventStatus(eventID, func(e *outbox.Event) {
		e.RetryCount++
		if e.RetryCount >= maxRetries {
			e.Status = outbox.StatusFailed
		}
	})
}

func (s *Store) setEventStatus(eventID int64, fn func(*outbox.Event)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return fmt.Errorf("event %d: %w", eventID, apperr.ErrNotFound)
	}
	fn(e)
	e.UpdatedAt = time.Now()
	return nil
}
