package session

import (
	"context"
	"fmt"

	"github.com/garyjia/koe-workflow/internal/application/port"
)

// Marker records how far magic-link verification got in a session
type Marker string

const (
	// MarkerUnused means no token has been verified in this session
	MarkerUnused Marker = "unused"
	// MarkerUsed is written before verification starts
	MarkerUsed Marker = "used"
	// MarkerConsumed is written after verification succeeded
	MarkerConsumed Marker = "consumed"
)

// Session keys
const (
	keyMarker        = "magic_link_marker"
	keyFromMagicLink = "is_from_magic_link"
	keyCaseID        = "case_id"
	keyCachedForm    = "cached_form/"
)

// ParseMarker maps a stored value to a marker; anything unknown is unused
func ParseMarker(v string) Marker {
	switch Marker(v) {
	case MarkerUsed, MarkerConsumed:
		return Marker(v)
	default:
		return MarkerUnused
	}
}

// AllowsVerify reports whether a token may still be verified
func (m Marker) AllowsVerify() bool {
	return m == MarkerUnused
}

func (m Marker) String() string {
	return string(m)
}

// state is the session data the orchestrator reads and writes
type state struct {
	kv port.KeyValueStore
}

func (s state) marker(ctx context.Context) (Marker, error) {
	v, _, err := s.kv.Get(ctx, keyMarker)
	if err != nil {
		return MarkerUnused, fmt.Errorf("read marker: %w", err)
	}
	return ParseMarker(v), nil
}

func (s state) setMarker(ctx context.Context, m Marker) error {
	if err := s.kv.Set(ctx, keyMarker, m.String()); err != nil {
		return fmt.Errorf("write marker %s: %w", m, err)
	}
	return nil
}

// origin returns the persisted magic-link flag and case id
func (s state) origin(ctx context.Context) (bool, string, error) {
	flag, _, err := s.kv.Get(ctx, keyFromMagicLink)
	if err != nil {
		return false, "", fmt.Errorf("read origin: %w", err)
	}
	caseID, _, err := s.kv.Get(ctx, keyCaseID)
	if err != nil {
		return false, "", fmt.Errorf("read case id: %w", err)
	}
	return flag == "true", caseID, nil
}

func (s state) setOrigin(ctx context.Context, fromMagicLink bool, caseID string) error {
	if fromMagicLink {
		if err := s.kv.Set(ctx, keyFromMagicLink, "true"); err != nil {
			return fmt.Errorf("write origin: %w", err)
		}
	}
	if err := s.kv.Set(ctx, keyCaseID, caseID); err != nil {
		return fmt.Errorf("write case id: %w", err)
	}
	return nil
}
