package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/garyjia/koe-workflow/internal/application/port"
	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

const draftKeyPrefix = "draft/"

// DraftKey identifies a draft by case and track
type DraftKey struct {
	CaseID string
	Track  entity.TrackType
}

// storageKey is the key-value representation; only used at the persistence boundary
func (k DraftKey) storageKey() string {
	return draftKeyPrefix + k.CaseID + "/" + k.Track.String()
}

func draftPrefix(caseID string) string {
	return draftKeyPrefix + caseID + "/"
}

// DraftStore keeps unsubmitted BH responses in memory, mirrored to a durable key-value store.
// A case's stored drafts are loaded on first access. It is never the source of truth for a
// submitted response.
type DraftStore struct {
	mu     sync.RWMutex
	drafts map[DraftKey]entity.DraftResponseData
	loaded map[string]bool
	loadMu sync.Mutex

	kv        port.KeyValueStore
	persistMu sync.Mutex
	wg        sync.WaitGroup

	logger Logger
	now    func() time.Time
}

// NewDraftStore creates a draft store backed by kv
func NewDraftStore(kv port.KeyValueStore, logger Logger) *DraftStore {
	return &DraftStore{
		drafts: make(map[DraftKey]entity.DraftResponseData),
		loaded: make(map[string]bool),
		kv:     kv,
		logger: logger,
		now:    time.Now,
	}
}

// Save upserts the draft for (caseID, draft.Track)
func (s *DraftStore) Save(ctx context.Context, caseID string, draft entity.DraftResponseData) (entity.DraftResponseData, error) {
	if strings.TrimSpace(caseID) == "" {
		return entity.DraftResponseData{}, fmt.Errorf("case id is required")
	}
	if !draft.Track.IsValid() {
		return entity.DraftResponseData{}, fmt.Errorf("unknown track %q", draft.Track)
	}

	s.ensureLoaded(ctx, caseID)

	draft.CaseID = caseID
	draft.UpdatedAt = s.now()
	key := DraftKey{CaseID: caseID, Track: draft.Track}

	s.mu.Lock()
	s.drafts[key] = draft
	s.mu.Unlock()

	s.persist(ctx, key)
	return draft, nil
}

// Get returns the draft for a track
func (s *DraftStore) Get(ctx context.Context, caseID string, track entity.TrackType) (entity.DraftResponseData, bool) {
	s.ensureLoaded(ctx, caseID)

	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drafts[DraftKey{CaseID: caseID, Track: track}]
	return d, ok
}

// Has reports whether a draft exists for a track
func (s *DraftStore) Has(ctx context.Context, caseID string, track entity.TrackType) bool {
	_, ok := s.Get(ctx, caseID, track)
	return ok
}

// Delete removes the draft for a track; deleting a missing draft is a no-op
func (s *DraftStore) Delete(ctx context.Context, caseID string, track entity.TrackType) {
	s.ensureLoaded(ctx, caseID)
	key := DraftKey{CaseID: caseID, Track: track}

	s.mu.Lock()
	_, existed := s.drafts[key]
	delete(s.drafts, key)
	s.mu.Unlock()

	if existed {
		s.persist(ctx, key)
	}
}

// ListByCase returns a case's drafts in track order
func (s *DraftStore) ListByCase(ctx context.Context, caseID string) []entity.DraftResponseData {
	s.ensureLoaded(ctx, caseID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []entity.DraftResponseData
	for _, track := range entity.AllTracks {
		if d, ok := s.drafts[DraftKey{CaseID: caseID, Track: track}]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Restore loads a case's drafts from the key-value store. Drafts already in memory win.
func (s *DraftStore) Restore(ctx context.Context, caseID string) (int, error) {
	if s.kv == nil {
		s.mu.Lock()
		s.loaded[caseID] = true
		s.mu.Unlock()
		return 0, nil
	}

	keys, err := s.kv.Keys(ctx, draftPrefix(caseID))
	if err != nil {
		return 0, fmt.Errorf("list drafts: %w", err)
	}

	restored := 0
	for _, k := range keys {
		raw, ok, err := s.kv.Get(ctx, k)
		if err != nil {
			return restored, fmt.Errorf("get draft %s: %w", k, err)
		}
		if !ok {
			continue
		}

		var d entity.DraftResponseData
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			s.logger.Warn("Skipping unreadable draft", "key", k, "error", err)
			continue
		}
		if d.CaseID != caseID || !d.Track.IsValid() {
			continue
		}

		key := DraftKey{CaseID: caseID, Track: d.Track}
		s.mu.Lock()
		if _, exists := s.drafts[key]; !exists {
			s.drafts[key] = d
			restored++
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.loaded[caseID] = true
	s.mu.Unlock()
	return restored, nil
}

// ensureLoaded restores a case's stored drafts once. A failed load is retried on the next access.
func (s *DraftStore) ensureLoaded(ctx context.Context, caseID string) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	s.mu.RLock()
	done := s.loaded[caseID]
	s.mu.RUnlock()
	if done {
		return
	}

	if n, err := s.Restore(ctx, caseID); err != nil {
		s.logger.Warn("Failed to load stored drafts", "case_id", caseID, "error", err)
	} else if n > 0 {
		s.logger.Info("Drafts restored", "case_id", caseID, "count", n)
	}
}

// Flush waits for outstanding key-value writes
func (s *DraftStore) Flush() {
	s.wg.Wait()
}

// persist mirrors the current in-memory value of key without blocking the caller.
// Writes are serialized and read the latest value, so the last mutation wins.
func (s *DraftStore) persist(ctx context.Context, key DraftKey) {
	if s.kv == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.persistMu.Lock()
		defer s.persistMu.Unlock()

		s.mu.RLock()
		d, ok := s.drafts[key]
		s.mu.RUnlock()

		if !ok {
			if err := s.kv.Remove(ctx, key.storageKey()); err != nil {
				s.logger.Warn("Failed to remove persisted draft", "case_id", key.CaseID, "track", key.Track, "error", err)
			}
			return
		}

		raw, err := json.Marshal(d)
		if err != nil {
			s.logger.Warn("Failed to encode draft", "case_id", key.CaseID, "track", key.Track, "error", err)
			return
		}
		if err := s.kv.Set(ctx, key.storageKey(), string(raw)); err != nil {
			s.logger.Warn("Failed to persist draft", "case_id", key.CaseID, "track", key.Track, "error", err)
		}
	}()
}
