package catchup

import (
	"errors"
	"fmt"
)

// DefaultProgrammeDuration is used when a session does not supply its own
// default programme length (seconds).
const DefaultProgrammeDuration = 4 * 60 * 60

var (
	// ErrUnsupported is returned when catch-up mode is inactive or the
	// requested operation cannot be served by the buffer.
	ErrUnsupported = errors.New("catchup: operation unsupported")

	// ErrNegativeSeek is returned for seek requests before time zero.
	ErrNegativeSeek = errors.New("catchup: negative seek time")

	// ErrReopenFailed wraps a pipeline failure after a successful seek.
	ErrReopenFailed = errors.New("catchup: pipeline reopen failed")
)

// Config is the immutable per-session catch-up configuration. All times are
// unix epoch seconds.
type Config struct {
	DefaultURL               string `json:"default_url"`
	URLFormat                string `json:"url_format"`
	URLNearLiveFormat        string `json:"url_near_live_format"`
	BufferStartTime          int64  `json:"buffer_start_time"`
	BufferEndTime            int64  `json:"buffer_end_time"`
	BufferOffset             int64  `json:"buffer_offset"`
	TimezoneShift            int64  `json:"timezone_shift"`
	DefaultProgrammeDuration int64  `json:"default_programme_duration"`
	ProgrammeStartTime       int64  `json:"programme_start_time"`
	ProgrammeEndTime         int64  `json:"programme_end_time"`
	ProgrammeCatchupID       string `json:"programme_catchup_id"`
	PlaybackAsLive           bool   `json:"playback_as_live"`
}

// Active reports whether the session is in catch-up mode. A zero buffer
// start means a plain live stream.
func (c Config) Active() bool {
	return c.BufferStartTime > 0
}

// Validate checks the buffer window bounds.
func (c Config) Validate() error {
	if c.BufferStartTime < 0 {
		return fmt.Errorf("catchup: buffer start %d is negative", c.BufferStartTime)
	}
	if c.Active() && c.BufferEndTime < c.BufferStartTime {
		return fmt.Errorf("catchup: buffer end %d precedes start %d", c.BufferEndTime, c.BufferStartTime)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.DefaultProgrammeDuration <= 0 {
		c.DefaultProgrammeDuration = DefaultProgrammeDuration
	}
	return c
}
