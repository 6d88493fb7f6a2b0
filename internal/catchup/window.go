package catchup

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

const (
	// seekLiveMargin is how far behind now a seek target must be to be
	// honoured as requested; anything closer is clamped to now.
	seekLiveMargin = 10
	// liveEdgeMargin is the distance from now inside which the default
	// (live) URL is served.
	liveEdgeMargin = 5

	catchupIDToken = "{catchup-id}"
)

// Window resolves seek requests against the catch-up buffer and keeps the
// URL that serves the current offset. A Window is not safe for concurrent
// use; Stream serialises access to it.
type Window struct {
	cfg       Config
	formatter *Formatter
	now       func() time.Time
	log       *slog.Logger

	offset int64 // seconds since cfg.BufferStartTime
	url    string
}

// NewWindow returns a Window seeded with cfg.BufferOffset. The URL for the
// seeded offset is computed immediately.
func NewWindow(cfg Config, f *Formatter, now func() time.Time, log *slog.Logger) *Window {
	if now == nil {
		now = time.Now
	}
	if f == nil {
		f = NewFormatter(WithNow(now))
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	w := &Window{
		cfg:       cfg.withDefaults(),
		formatter: f,
		now:       now,
		log:       log,
		offset:    cfg.BufferOffset,
	}
	w.url = w.computeActiveURL()
	return w
}

// Offset returns the current buffer offset in seconds.
func (w *Window) Offset() int64 {
	return w.offset
}

// URL returns the URL serving the current offset.
func (w *Window) URL() string {
	return w.url
}

// ResolveAbsoluteSeek moves the window to ms milliseconds after the buffer
// start and returns the resulting offset in ticks. Targets within
// seekLiveMargin seconds of now are clamped to now.
func (w *Window) ResolveAbsoluteSeek(ms int64) (int64, error) {
	if !w.cfg.Active() {
		return 0, ErrUnsupported
	}
	if ms < 0 {
		return 0, ErrNegativeSeek
	}

	pos := ms/1000 + (ms%1000+500)/1000
	now := w.now().Unix()
	if w.cfg.BufferStartTime+pos < now-seekLiveMargin {
		w.offset = pos
	} else {
		w.offset = now - w.cfg.BufferStartTime
	}
	w.url = w.computeActiveURL()

	w.log.Debug("catchup seek resolved",
		slog.Int64("requested_ms", ms),
		slog.Int64("offset", w.offset),
		slog.String("url", w.url))
	return w.offset * TimeBase, nil
}

// ResolveRelativeSeek reports the current offset in ticks without moving.
func (w *Window) ResolveRelativeSeek() (int64, error) {
	if !w.cfg.Active() {
		return 0, ErrUnsupported
	}
	return w.offset * TimeBase, nil
}

// Times returns the seekable range of the buffer.
func (w *Window) Times() (Times, error) {
	if !w.cfg.Active() {
		return Times{}, ErrUnsupported
	}
	now := w.now().Unix()
	t := Times{StartTime: w.cfg.BufferStartTime}
	if w.cfg.PlaybackAsLive {
		t.PTSEnd = (now - t.StartTime) * TimeBase
	} else {
		t.PTSEnd = (min(now, w.cfg.BufferEndTime) - t.StartTime) * TimeBase
	}
	return t, nil
}

// Length returns the playable duration of the buffer in ticks.
func (w *Window) Length() (int64, error) {
	if !w.cfg.Active() || w.cfg.BufferEndTime < w.cfg.BufferStartTime {
		return 0, ErrUnsupported
	}
	t, err := w.Times()
	if err != nil {
		return 0, err
	}
	if t.PTSEnd < t.PTSBegin {
		return 0, ErrUnsupported
	}
	return t.PTSEnd - t.PTSBegin, nil
}

func (w *Window) computeActiveURL() string {
	now := w.now().Unix()
	at := w.cfg.BufferStartTime + w.offset

	if !w.cfg.Active() || at >= now-liveEdgeMargin {
		w.log.Debug("catchup using default url", slog.String("url", w.cfg.DefaultURL))
		return w.cfg.DefaultURL
	}

	duration := w.cfg.DefaultProgrammeDuration
	if w.inProgramme(at) {
		duration = w.cfg.ProgrammeEndTime - w.cfg.ProgrammeStartTime
	}
	if at+duration > now {
		duration = now - at
	}

	tmpl := w.cfg.URLFormat
	if w.cfg.URLNearLiveFormat != "" && at > now-w.cfg.DefaultProgrammeDuration {
		tmpl = w.cfg.URLNearLiveFormat
	}

	url := w.formatter.Render(at-w.cfg.TimezoneShift, duration, tmpl)
	if w.cfg.ProgrammeCatchupID != "" {
		url = strings.ReplaceAll(url, catchupIDToken, w.cfg.ProgrammeCatchupID)
	}
	if url == "" {
		w.log.Debug("catchup template rendered empty, using default url", slog.String("url", w.cfg.DefaultURL))
		return w.cfg.DefaultURL
	}

	w.log.Debug("catchup url rendered",
		slog.Int64("at", at),
		slog.Int64("duration", duration),
		slog.String("url", url))
	return url
}

// inProgramme reports whether at falls inside a valid [start, end) programme.
func (w *Window) inProgramme(at int64) bool {
	start, end := w.cfg.ProgrammeStartTime, w.cfg.ProgrammeEndTime
	return start > 0 && start < end && start <= at && at < end
}
