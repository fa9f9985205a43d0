package projection

import (
	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

// KoeRevisionKey is the payload key carrying the claim revision number on
// vederlag and frist send/revise entries
const KoeRevisionKey = "koe_revision"

// CaseProjection is the result of replaying a whole case
type CaseProjection struct {
	State     entity.CaseState
	Anomalies []Anomaly
}

// ProjectCase replays all entries of a case. templates marks tracks prepared but not yet sent.
// Status and Mode are left for the caller, which owns the case registry.
func ProjectCase(caseID string, entries []entity.RevisionEntry, templates map[entity.TrackType]bool) CaseProjection {
	state := entity.CaseState{
		CaseID: caseID,
		Tracks: make(map[entity.TrackType]entity.Track, len(entity.AllTracks)),
	}
	var anomalies []Anomaly

	rb := &revisionBuilder{versions: make(map[entity.TrackType]map[int]int)}

	for _, track := range entity.AllTracks {
		var visit visitFunc
		switch track {
		case entity.TrackGrunnlag:
			visit = func(e entity.RevisionEntry, applied bool, _ entity.Track) {
				if applied && e.Kind.CreatesRevision() && e.Grunnlag != nil {
					state.Grunnlag = *e.Grunnlag
				}
			}
		default:
			visit = rb.visit
		}
		t, a := fold(track, entries, Options{TemplateExists: templates[track]}, visit)
		state.Tracks[track] = t
		anomalies = append(anomalies, a...)
	}

	state.Revisions = rb.revisions
	return CaseProjection{State: state, Anomalies: anomalies}
}

// revisionBuilder pairs per-track revision numbers with claim revisions
type revisionBuilder struct {
	revisions []entity.KoeRevision
	// track revision count -> claim revision number
	versions map[entity.TrackType]map[int]int
}

func (b *revisionBuilder) visit(e entity.RevisionEntry, applied bool, t entity.Track) {
	if !applied {
		return
	}

	switch {
	case e.Kind.CreatesRevision():
		n := koeRevisionNumber(e, t.RevisionCount)
		if b.versions[e.Track] == nil {
			b.versions[e.Track] = make(map[int]int)
		}
		b.versions[e.Track][t.RevisionCount] = n
		rev := b.at(n)
		if e.Signer != nil {
			rev.Signer = e.Signer
		}
		switch e.Track {
		case entity.TrackVederlag:
			rev.Vederlag = entity.VederlagKrav{
				Claimed:       true,
				Method:        e.Method,
				Amount:        e.Amount,
				Justification: e.Justification,
			}
		case entity.TrackFrist:
			rev.Frist = entity.FristKrav{
				Claimed:       true,
				Type:          e.ExtensionType,
				Days:          e.Days,
				Justification: e.Justification,
			}
		}

	case e.Kind == entity.EntryResponse:
		n, ok := b.versions[e.Track][e.RespondedToVersion]
		if !ok {
			return
		}
		rev := b.at(n)
		switch e.Track {
		case entity.TrackVederlag:
			rev.VederlagResult = e.Result
		case entity.TrackFrist:
			rev.FristResult = e.Result
		}

	case e.Kind == entity.EntryWithdraw:
		n, ok := b.versions[e.Track][t.RevisionCount]
		if !ok {
			return
		}
		rev := b.at(n)
		switch e.Track {
		case entity.TrackVederlag:
			rev.Vederlag.Claimed = false
		case entity.TrackFrist:
			rev.Frist.Claimed = false
		}
	}
}

func (b *revisionBuilder) at(n int) *entity.KoeRevision {
	for len(b.revisions) <= n {
		b.revisions = append(b.revisions, entity.KoeRevision{Number: len(b.revisions)})
	}
	return &b.revisions[n]
}

func koeRevisionNumber(e entity.RevisionEntry, fallback int) int {
	n := fallback
	switch v := e.Payload[KoeRevisionKey].(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		n = int(v)
	}
	if n < 0 {
		return fallback
	}
	return n
}
