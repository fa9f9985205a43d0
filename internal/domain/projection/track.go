// Package projection derives current track and case state by replaying revision entries.
package projection

import (
	"fmt"
	"sort"

	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

// Options tunes how an empty track is reported
type Options struct {
	// TemplateExists marks a track that has been prepared but never sent
	TemplateExists bool
}

// Anomaly records an entry that was skipped because applying it would break a track invariant
type Anomaly struct {
	Track  entity.TrackType `json:"track"`
	Seq    int64            `json:"seq"`
	Kind   entity.EntryKind `json:"kind"`
	Reason string           `json:"reason"`
}

func (a Anomaly) String() string {
	return fmt.Sprintf("%s#%d %s: %s", a.Track, a.Seq, a.Kind, a.Reason)
}

// visitFunc observes each entry after it was folded. applied is false for skipped entries.
type visitFunc func(e entity.RevisionEntry, applied bool, state entity.Track)

// Project folds a track's entries in sequence order into its current state.
// Entries belonging to other tracks are ignored.
func Project(track entity.TrackType, entries []entity.RevisionEntry, opts Options) (entity.Track, []Anomaly) {
	return fold(track, entries, opts, nil)
}

func fold(track entity.TrackType, entries []entity.RevisionEntry, opts Options, visit visitFunc) (entity.Track, []Anomaly) {
	state := entity.Track{Type: track}
	var anomalies []Anomaly

	for _, e := range inSequence(track, entries) {
		reason := apply(&state, e)
		state.LastSeq = e.Seq
		if reason != "" {
			anomalies = append(anomalies, Anomaly{Track: track, Seq: e.Seq, Kind: e.Kind, Reason: reason})
		}
		if visit != nil {
			visit(e, reason == "", state)
		}
	}

	if !state.Initiated {
		state.Status = entity.TrackStatusNotApplicable
		if opts.TemplateExists {
			state.Status = entity.TrackStatusDraft
		}
	}
	return state, anomalies
}

// apply mutates state for one entry and returns a non-empty reason when the entry is skipped
func apply(t *entity.Track, e entity.RevisionEntry) string {
	if t.Status == entity.TrackStatusLocked {
		return "track is locked"
	}

	switch e.Kind {
	case entity.EntrySend, entity.EntryRevise:
		if t.Initiated {
			t.RevisionCount++
		} else {
			t.Initiated = true
			t.RevisionCount = 0
		}
		t.OwnerResult = entity.ResultNone
		t.SubsidiaryApprovedValue = nil
		t.ApprovedValue = nil
		if e.Amount != nil {
			t.ClaimedAmount = e.Amount
		}
		if e.Days != nil {
			t.ClaimedDays = e.Days
		}
		if e.Kind == entity.EntrySend {
			t.Status = entity.TrackStatusSent
		} else {
			t.Status = entity.TrackStatusUnderNegotiation
		}

	case entity.EntryReview:
		if !t.Initiated {
			return "review before any send"
		}
		if t.Status == entity.TrackStatusWithdrawn {
			return "review of withdrawn claim"
		}
		t.Status = entity.TrackStatusUnderReview

	case entity.EntryResponse:
		if !t.Initiated {
			return "response before any send"
		}
		if t.Status == entity.TrackStatusWithdrawn {
			return "response to withdrawn claim"
		}
		if e.RespondedToVersion > t.RevisionCount {
			return fmt.Sprintf("responds to revision %d but only %d exists", e.RespondedToVersion, t.RevisionCount)
		}
		if e.RespondedToVersion < t.RevisionCount {
			return fmt.Sprintf("responds to superseded revision %d (current %d)", e.RespondedToVersion, t.RevisionCount)
		}
		status, ok := statusForResult(e.Result)
		if !ok {
			return fmt.Sprintf("unknown result %q", e.Result)
		}
		t.OwnerResult = e.Result
		t.LastRevisionRespondedTo = e.RespondedToVersion
		t.ApprovedValue = e.ApprovedValue
		t.SubsidiaryApprovedValue = nil
		if e.Result == entity.ResultRejected {
			t.SubsidiaryApprovedValue = e.SubsidiaryValue
		}
		t.Status = status

	case entity.EntryWithdraw:
		if !t.Initiated {
			return "withdraw before any send"
		}
		t.Status = entity.TrackStatusWithdrawn

	case entity.EntryAccept:
		if !t.OwnerResult.IsRecorded() {
			return "accept without owner result"
		}
		t.Status = entity.TrackStatusLocked

	default:
		return fmt.Sprintf("unknown entry kind %q", e.Kind)
	}
	return ""
}

func statusForResult(r entity.OwnerResult) (entity.TrackStatus, bool) {
	switch r {
	case entity.ResultApproved:
		return entity.TrackStatusApproved, true
	case entity.ResultPartiallyApproved:
		return entity.TrackStatusPartiallyApproved, true
	case entity.ResultRejected:
		return entity.TrackStatusRejected, true
	case entity.ResultWaived:
		return entity.TrackStatusUnderNegotiation, true
	}
	return "", false
}

func inSequence(track entity.TrackType, entries []entity.RevisionEntry) []entity.RevisionEntry {
	var out []entity.RevisionEntry
	for _, e := range entries {
		if e.Track == track {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}
