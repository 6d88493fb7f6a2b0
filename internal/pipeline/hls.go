// Package pipeline provides catchup.Pipeline implementations.
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/livepeer/m3u8"

	"hls-catchup/internal/catchup"
)

// DefaultTimeout bounds a single playlist fetch.
const DefaultTimeout = 10 * time.Second

var (
	// ErrNotOpen is returned when reading from a pipeline that was never opened.
	ErrNotOpen = errors.New("pipeline: not open")

	// ErrEmptyPlaylist is returned when a master playlist has no variants.
	ErrEmptyPlaylist = errors.New("pipeline: playlist has no variants")
)

// hlsSegment is a media segment with its position in the media sequence.
type hlsSegment struct {
	seq uint64
	*m3u8.MediaSegment
}

// HLS is a catchup.Pipeline that demuxes an HLS media playlist at segment
// granularity: every media segment is delivered as one packet whose PTS is
// the sum of the preceding segment durations since the last (re)open.
type HLS struct {
	client *http.Client
	log    *slog.Logger

	mu       sync.Mutex
	base     *url.URL
	headers  http.Header
	segments []hlsSegment
	closed   bool // playlist carries EXT-X-ENDLIST
	next     int
	lastSeq  uint64
	pts      int64
	current  int64
	hasPTS   bool
	speed    int
	isOpen   bool
	fetchURL string
}

// NewHLS returns an HLS pipeline using client. A nil client gets one with
// DefaultTimeout.
func NewHLS(client *http.Client, log *slog.Logger) *HLS {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &HLS{client: client, log: log, speed: catchup.SpeedNormal}
}

// Open fetches the playlist at rawURL. Session properties are sent as HTTP
// request headers on every fetch.
func (h *HLS) Open(ctx context.Context, rawURL, mimeType string, realtime bool, props map[string]string) error {
	headers := make(http.Header, len(props))
	for k, v := range props {
		headers.Set(k, v)
	}
	h.mu.Lock()
	h.headers = headers
	h.mu.Unlock()

	h.log.Debug("hls pipeline open",
		slog.String("url", rawURL),
		slog.String("mime_type", mimeType),
		slog.Bool("realtime", realtime))
	return h.load(ctx, rawURL, true)
}

// Reopen discards the current playlist and loads rawURL with timestamps
// restarting at zero.
func (h *HLS) Reopen(ctx context.Context, rawURL string) error {
	h.log.Debug("hls pipeline reopen", slog.String("url", rawURL))
	return h.load(ctx, rawURL, true)
}

// ReadPacket returns the next segment. A live playlist is refetched once its
// segments are exhausted; a closed one reports io.EOF.
func (h *HLS) ReadPacket(ctx context.Context) (*catchup.Packet, error) {
	h.mu.Lock()
	if !h.isOpen {
		h.mu.Unlock()
		return nil, ErrNotOpen
	}
	if h.next >= len(h.segments) {
		if h.closed {
			h.mu.Unlock()
			return nil, io.EOF
		}
		fetchURL := h.fetchURL
		h.mu.Unlock()
		if err := h.load(ctx, fetchURL, false); err != nil {
			return nil, err
		}
		h.mu.Lock()
		if h.next >= len(h.segments) {
			h.mu.Unlock()
			return nil, io.EOF
		}
	}
	defer h.mu.Unlock()

	seg := h.segments[h.next]
	h.next++
	h.lastSeq = seg.seq

	duration := int64(seg.Duration * catchup.TimeBase)
	pkt := &catchup.Packet{
		PTS:      h.pts,
		DTS:      h.pts,
		Duration: duration,
		Sequence: int64(seg.seq),
		URI:      h.resolve(seg.URI),
	}
	h.current = h.pts
	h.hasPTS = true
	h.pts += duration
	return pkt, nil
}

// CurrentPTS returns the PTS of the last delivered segment.
func (h *HLS) CurrentPTS() (int64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current, h.hasPTS
}

// SetSpeed records the playback speed. Segments are fetched on demand, so
// pausing needs no further action.
func (h *HLS) SetSpeed(speed int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.speed = speed
}

// Speed returns the last speed set.
func (h *HLS) Speed() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.speed
}

// Close releases the playlist state.
func (h *HLS) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.isOpen = false
	h.segments = nil
	h.client.CloseIdleConnections()
	return nil
}

// load fetches rawURL, following a master playlist to its first variant.
// A reset load restarts the timeline; a refresh keeps position and only
// appends segments newer than the last delivered one.
func (h *HLS) load(ctx context.Context, rawURL string, reset bool) error {
	pl, base, err := h.fetchMedia(ctx, rawURL, 1)
	if err != nil {
		return err
	}

	// The decoder leaves SeqId unset; sequence numbers follow
	// EXT-X-MEDIA-SEQUENCE in playlist order.
	var segs []hlsSegment
	for i, s := range pl.Segments {
		if s != nil {
			segs = append(segs, hlsSegment{seq: pl.SeqNo + uint64(i), MediaSegment: s})
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.base = base
	h.fetchURL = rawURL
	h.closed = !pl.Live
	h.isOpen = true
	if reset {
		h.segments = segs
		h.next = 0
		h.pts = 0
		h.hasPTS = false
		return nil
	}

	fresh := segs[:0:0]
	for _, s := range segs {
		if !h.hasPTS || s.seq > h.lastSeq {
			fresh = append(fresh, s)
		}
	}
	h.segments = fresh
	h.next = 0
	return nil
}

func (h *HLS) fetchMedia(ctx context.Context, rawURL string, depth int) (*m3u8.MediaPlaylist, *url.URL, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: parse url %q: %w", rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: new request: %w", err)
	}
	h.mu.Lock()
	for k, v := range h.headers {
		req.Header[k] = v
	}
	h.mu.Unlock()

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("pipeline: fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	p, listType, err := m3u8.DecodeFrom(bufio.NewReader(resp.Body), false)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: decode %s: %w", rawURL, err)
	}

	switch listType {
	case m3u8.MEDIA:
		return p.(*m3u8.MediaPlaylist), base, nil
	case m3u8.MASTER:
		master := p.(*m3u8.MasterPlaylist)
		if depth <= 0 || len(master.Variants) == 0 || master.Variants[0] == nil {
			return nil, nil, ErrEmptyPlaylist
		}
		variant, err := base.Parse(master.Variants[0].URI)
		if err != nil {
			return nil, nil, fmt.Errorf("pipeline: variant uri: %w", err)
		}
		h.log.Debug("hls pipeline following variant", slog.String("url", variant.String()))
		return h.fetchMedia(ctx, variant.String(), depth-1)
	default:
		return nil, nil, fmt.Errorf("pipeline: %s: unknown playlist type", rawURL)
	}
}

// resolve turns a segment URI into an absolute URL. Caller holds h.mu.
func (h *HLS) resolve(uri string) string {
	if h.base == nil {
		return uri
	}
	u, err := h.base.Parse(uri)
	if err != nil {
		return uri
	}
	return u.String()
}
