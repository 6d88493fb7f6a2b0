package catchup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// State is the seek/pause state of a Stream.
type State int

const (
	StateOpening State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StreamCapabilities is the fixed capability set of a catch-up stream.
const StreamCapabilities = CapInternalDemux | CapTimes | CapSeek | CapPause | CapChapters

// Option configures a Stream.
type Option func(*Stream)

// WithLogger sets the logger. Seek decisions are logged at debug level.
func WithLogger(log *slog.Logger) Option {
	return func(s *Stream) { s.log = log }
}

// WithClock sets the wall clock used for live-edge decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Stream) { s.now = now }
}

// WithFormatter sets the URL template formatter.
func WithFormatter(f *Formatter) Option {
	return func(s *Stream) { s.formatter = f }
}

// Stream plays a catch-up buffer through a Pipeline. It turns player seeks
// and pauses into buffer offsets, reopens the pipeline at the matching URL
// and shifts every packet so the player sees one continuous timeline.
//
// Seek and packet paths may run on different goroutines. mu guards the
// window, the offsets and the state; it is never held across pipeline I/O.
type Stream struct {
	pipe      Pipeline
	log       *slog.Logger
	now       func() time.Time
	formatter *Formatter

	mu         sync.Mutex
	window     *Window
	state      State
	seekOffset int64 // ticks added to every packet
	currentMs  int64 // presentation time of the last packet
	pauseStart int64 // currentMs when paused
}

// NewStream returns a Stream in StateOpening for cfg.
func NewStream(cfg Config, pipe Pipeline, opts ...Option) *Stream {
	s := &Stream{
		pipe:  pipe,
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:   time.Now,
		state: StateOpening,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.formatter == nil {
		s.formatter = NewFormatter(WithNow(s.now))
	}
	s.window = NewWindow(cfg, s.formatter, s.now, s.log)
	return s
}

// Open opens the pipeline at url, or at the URL of the seeded buffer offset
// when url is empty, and captures the current buffer offset so the first
// packets are placed at it. The pipeline's open result is returned.
func (s *Stream) Open(ctx context.Context, url, mimeType string, realtime bool, props map[string]string) error {
	s.mu.Lock()
	s.state = StateOpening
	if url == "" {
		url = s.window.URL()
	}
	s.mu.Unlock()

	err := s.pipe.Open(ctx, url, mimeType, realtime, props)

	if _, serr := s.seek(ctx, 0, true); serr != nil {
		s.log.Debug("catchup initial seek skipped", slog.String("error", serr.Error()))
	}

	s.mu.Lock()
	s.state = StatePlaying
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("catchup: open %s: %w", url, err)
	}
	return nil
}

// SeekTime seeks to ms milliseconds after the buffer start and returns the
// new start PTS. While the stream is opening it only reports the current
// offset. A pipeline reopen failure fails the seek; the resolved offset is
// kept.
func (s *Stream) SeekTime(ctx context.Context, ms int64, backwards bool) (int64, error) {
	s.mu.Lock()
	opening := s.state == StateOpening
	s.mu.Unlock()

	pts, err := s.seek(ctx, ms, opening)
	if err != nil {
		s.log.Debug("catchup seek failed",
			slog.Int64("time_ms", ms),
			slog.Bool("backwards", backwards),
			slog.String("error", err.Error()))
	}
	return pts, err
}

func (s *Stream) seek(ctx context.Context, ms int64, opening bool) (int64, error) {
	if ms < 0 {
		return 0, ErrNegativeSeek
	}

	s.mu.Lock()
	var (
		pts int64
		err error
	)
	if opening {
		pts, err = s.window.ResolveRelativeSeek()
	} else {
		pts, err = s.window.ResolveAbsoluteSeek(ms)
	}
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	s.seekOffset = pts
	url := s.window.URL()
	currentMs := s.currentMs
	s.mu.Unlock()

	s.log.Debug("catchup seek successful",
		slog.Int64("seek_offset", pts),
		slog.Int64("current_ms", currentMs),
		slog.Int64("time_ms", ms),
		slog.Bool("opening", opening))

	if opening {
		return pts, nil
	}
	if err := s.pipe.Reopen(ctx, url); err != nil {
		return pts, fmt.Errorf("%w: %s: %w", ErrReopenFailed, url, err)
	}
	return pts, nil
}

// SetSpeed changes the playback speed. Pausing records the current
// presentation time; resuming seeks back to it, since catch-up backends are
// not expected to hold a paused connection. The speed is always forwarded
// to the pipeline.
func (s *Stream) SetSpeed(ctx context.Context, speed int) error {
	s.mu.Lock()
	paused := s.state == StatePaused
	resume := false
	var resumeAt int64
	switch {
	case paused && speed != SpeedPause:
		resume = true
		resumeAt = s.pauseStart
		s.state = StatePlaying
	case !paused && speed == SpeedPause:
		s.pauseStart = s.currentMs
		s.state = StatePaused
	}
	pauseStart := s.pauseStart
	s.mu.Unlock()

	s.log.Debug("catchup set speed",
		slog.Int("speed", speed),
		slog.Bool("resume", resume),
		slog.Int64("pause_start_ms", pauseStart))

	var err error
	if resume {
		_, err = s.seek(ctx, resumeAt, false)
	}
	s.pipe.SetSpeed(speed)
	return err
}

// ReadPacket reads the next packet and shifts its timestamps by the current
// seek offset.
func (s *Stream) ReadPacket(ctx context.Context) (*Packet, error) {
	pkt, err := s.pipe.ReadPacket(ctx)
	if err != nil || pkt == nil {
		return pkt, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if pkt.PTS != NoPTS {
		pkt.PTS += s.seekOffset
		s.currentMs = pkt.PTS / (TimeBase / 1000)
	}
	if pkt.DTS != NoPTS {
		pkt.DTS += s.seekOffset
	}
	return pkt, nil
}

// CurrentPTS returns the pipeline's decoded position on the shifted timeline.
func (s *Stream) CurrentPTS() (int64, bool) {
	pts, ok := s.pipe.CurrentPTS()
	if !ok || pts == NoPTS {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return pts + s.seekOffset, true
}

// CurrentTime returns the presentation time of the last packet in ms.
func (s *Stream) CurrentTime() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentMs
}

// Capabilities returns the fixed capability mask.
func (s *Stream) Capabilities() Capabilities {
	return StreamCapabilities
}

// Times returns the seekable range of the buffer.
func (s *Stream) Times() (Times, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.Times()
}

// Length returns the playable duration in ticks.
func (s *Stream) Length() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.Length()
}

// URL returns the backend URL for the current offset.
func (s *Stream) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.URL()
}

// Offset returns the buffer offset in seconds.
func (s *Stream) Offset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.Offset()
}

// State returns the current seek/pause state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close closes the pipeline.
func (s *Stream) Close() error {
	return s.pipe.Close()
}
