package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"hls-catchup/internal/catchup"
)

// SessionID uniquely identifies a catch-up playback session.
type SessionID string

// NewSessionID returns a random session id.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// Segment is a media segment on the session's shifted timeline.
// This also matches the JSON shape returned by the segments endpoint.
type Segment struct {
	Sequence      int64   `json:"sequence"`
	Duration      float64 `json:"duration"`
	Path          string  `json:"path"`
	PTS           int64   `json:"pts"`
	Discontinuity bool    `json:"discontinuity,omitempty"`
}

// OpenRequest is the JSON payload that opens a session. URL may be empty,
// in which case the URL for the seeded buffer offset is opened.
type OpenRequest struct {
	catchup.Config
	URL        string            `json:"url"`
	MimeType   string            `json:"mime_type"`
	Realtime   bool              `json:"realtime"`
	Properties map[string]string `json:"properties"`
}

// Session holds all in-memory state for one open catch-up session.
type Session struct {
	ID       SessionID
	Stream   *catchup.Stream
	OpenedAt time.Time

	// readMu serialises segment reads and guards the cursor below.
	readMu  sync.Mutex
	nextPTS int64 // expected PTS of the next segment
	hasNext bool
}

// SessionStatus is a point-in-time view of a session.
type SessionStatus struct {
	ID            SessionID `json:"id"`
	URL           string    `json:"url"`
	State         string    `json:"state"`
	OffsetSeconds int64     `json:"offset_seconds"`
	CurrentTimeMs int64     `json:"current_time_ms"`
	OpenedAt      time.Time `json:"opened_at"`
}
