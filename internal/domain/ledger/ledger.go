// Package ledger holds the append-only revision history of a case's claim tracks.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

var (
	// ErrCaseIDRequired indicates a missing case id
	ErrCaseIDRequired = errors.New("case id is required")
	// ErrCaseMismatch indicates an entry that belongs to another case
	ErrCaseMismatch = errors.New("entry belongs to another case")
	// ErrUnknownTrack indicates an entry on an unknown track
	ErrUnknownTrack = errors.New("unknown track")
	// ErrUnknownKind indicates an entry with an unknown kind
	ErrUnknownKind = errors.New("unknown entry kind")
	// ErrPartyMismatch indicates an entry recorded by the wrong contract party
	ErrPartyMismatch = errors.New("entry kind not allowed for party")
	// ErrSequenceGap indicates a stored history with missing or reordered entries
	ErrSequenceGap = errors.New("revision sequence gap")
)

// Ledger is the in-memory revision history for one case.
// Entries are never mutated or removed once appended.
type Ledger struct {
	caseID  string
	entries []entity.RevisionEntry
	lastSeq map[entity.TrackType]int64
	now     func() time.Time
}

// New creates an empty ledger for a case
func New(caseID string) (*Ledger, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return nil, ErrCaseIDRequired
	}
	return &Ledger{
		caseID:  caseID,
		lastSeq: make(map[entity.TrackType]int64),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Load rebuilds a ledger from stored entries in append order, verifying that
// every track's sequence runs 1, 2, 3... without gaps.
func Load(caseID string, stored []entity.RevisionEntry) (*Ledger, error) {
	l, err := New(caseID)
	if err != nil {
		return nil, err
	}

	for _, e := range stored {
		if e.CaseID != l.caseID {
			return nil, fmt.Errorf("%w: %s", ErrCaseMismatch, e.CaseID)
		}
		if !e.Track.IsValid() {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTrack, e.Track)
		}
		expected := l.lastSeq[e.Track] + 1
		if e.Seq != expected {
			return nil, fmt.Errorf("%w: track %s expected %d got %d", ErrSequenceGap, e.Track, expected, e.Seq)
		}
		l.lastSeq[e.Track] = e.Seq
		l.entries = append(l.entries, e)
	}
	return l, nil
}

// CaseID returns the case the ledger belongs to
func (l *Ledger) CaseID() string {
	return l.caseID
}

// Append validates an entry, assigns the next sequence number on its track
// and records it. The stored copy is returned.
func (l *Ledger) Append(e entity.RevisionEntry) (entity.RevisionEntry, error) {
	if e.CaseID == "" {
		e.CaseID = l.caseID
	}
	if e.CaseID != l.caseID {
		return entity.RevisionEntry{}, fmt.Errorf("%w: %s", ErrCaseMismatch, e.CaseID)
	}
	if !e.Track.IsValid() {
		return entity.RevisionEntry{}, fmt.Errorf("%w: %s", ErrUnknownTrack, e.Track)
	}
	if !e.Kind.IsValid() {
		return entity.RevisionEntry{}, fmt.Errorf("%w: %s", ErrUnknownKind, e.Kind)
	}

	party := entity.PartyFor(e.Kind)
	if e.Party == "" {
		e.Party = party
	}
	if e.Party != party {
		return entity.RevisionEntry{}, fmt.Errorf("%w: %s by %s", ErrPartyMismatch, e.Kind, e.Party)
	}

	if e.RecordedAt.IsZero() {
		e.RecordedAt = l.now()
	}
	e.Seq = l.lastSeq[e.Track] + 1
	e.Payload = clonePayload(e.Payload)

	l.lastSeq[e.Track] = e.Seq
	l.entries = append(l.entries, e)
	return e, nil
}

// Entries returns a copy of all entries in append order
func (l *Ledger) Entries() []entity.RevisionEntry {
	return append([]entity.RevisionEntry(nil), l.entries...)
}

// ByTrack returns a copy of one track's entries in sequence order
func (l *Ledger) ByTrack(track entity.TrackType) []entity.RevisionEntry {
	var out []entity.RevisionEntry
	for _, e := range l.entries {
		if e.Track == track {
			out = append(out, e)
		}
	}
	return out
}

// LastSeq returns the highest sequence number on a track, 0 when empty
func (l *Ledger) LastSeq(track entity.TrackType) int64 {
	return l.lastSeq[track]
}

// Len returns the total number of entries
func (l *Ledger) Len() int {
	return len(l.entries)
}

func clonePayload(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
