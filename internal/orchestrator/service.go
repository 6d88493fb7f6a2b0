package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"hls-catchup/internal/catchup"
)

// DefaultWindowSize is the default number of segments returned per playlist read.
const DefaultWindowSize = 6

var (
	// ErrInvalidConfig is returned when a session's catch-up configuration is rejected.
	ErrInvalidConfig = errors.New("invalid catchup config")

	// ErrPipelineFailed wraps open and read failures of a session's pipeline.
	ErrPipelineFailed = errors.New("pipeline failed")
)

// PipelineFactory returns a fresh, unopened pipeline for a new session.
type PipelineFactory func() catchup.Pipeline

// Service opens catch-up sessions and drives them on behalf of the HTTP
// handlers; session bookkeeping is delegated to a Repository.
type Service struct {
	repo        Repository
	newPipeline PipelineFactory
	windowSize  int
	log         *slog.Logger
	streamOpts  []catchup.Option
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the service logger.
func WithServiceLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

// WithStreamOptions adds options applied to every session's stream.
func WithStreamOptions(opts ...catchup.Option) ServiceOption {
	return func(s *Service) { s.streamOpts = append(s.streamOpts, opts...) }
}

// NewService returns a Service that uses repo and newPipeline and returns at
// most windowSize segments per playlist read. If windowSize <= 0,
// DefaultWindowSize is used.
func NewService(repo Repository, newPipeline PipelineFactory, windowSize int, opts ...ServiceOption) *Service {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	s := &Service{
		repo:        repo,
		newPipeline: newPipeline,
		windowSize:  windowSize,
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenSession validates the request, opens a stream on a new pipeline and
// registers the session.
func (s *Service) OpenSession(ctx context.Context, req OpenRequest) (*Session, error) {
	if err := req.Config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	id := NewSessionID()
	log := s.log.With(slog.String("session_id", string(id)))
	opts := append([]catchup.Option{catchup.WithLogger(log)}, s.streamOpts...)
	stream := catchup.NewStream(req.Config, s.newPipeline(), opts...)

	if err := stream.Open(ctx, req.URL, req.MimeType, req.Realtime, req.Properties); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("%w: %w", ErrPipelineFailed, err)
	}

	sess := &Session{
		ID:       id,
		Stream:   stream,
		OpenedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateSession(sess); err != nil {
		_ = stream.Close()
		return nil, err
	}

	log.Info("session opened",
		slog.String("url", stream.URL()),
		slog.Bool("catchup", req.Config.Active()))
	return sess, nil
}

// Seek moves the session to timeMs after the buffer start and returns the
// new start PTS.
func (s *Service) Seek(ctx context.Context, id SessionID, timeMs int64, backwards bool) (int64, error) {
	sess, err := s.repo.GetSession(id)
	if err != nil {
		return 0, err
	}
	pts, err := sess.Stream.SeekTime(ctx, timeMs, backwards)
	if err != nil {
		return 0, err
	}
	return pts, nil
}

// SetSpeed changes the playback speed; 0 pauses.
func (s *Service) SetSpeed(ctx context.Context, id SessionID, speed int) error {
	sess, err := s.repo.GetSession(id)
	if err != nil {
		return err
	}
	return sess.Stream.SetSpeed(ctx, speed)
}

// ReadSegments reads up to s.windowSize segments from the session. ended is
// true when the pipeline reported the end of the stream.
func (s *Service) ReadSegments(ctx context.Context, id SessionID) (segments []Segment, ended bool, err error) {
	sess, err := s.repo.GetSession(id)
	if err != nil {
		return nil, false, err
	}

	sess.readMu.Lock()
	defer sess.readMu.Unlock()

	segments = make([]Segment, 0, s.windowSize)
	for len(segments) < s.windowSize {
		pkt, err := sess.Stream.ReadPacket(ctx)
		if errors.Is(err, io.EOF) {
			ended = true
			break
		}
		if err != nil {
			if len(segments) > 0 {
				s.log.Debug("segment read stopped early",
					slog.String("session_id", string(id)),
					slog.String("error", err.Error()))
				break
			}
			return nil, false, fmt.Errorf("%w: %w", ErrPipelineFailed, err)
		}

		seg := Segment{
			Sequence: pkt.Sequence,
			Duration: float64(pkt.Duration) / catchup.TimeBase,
			Path:     pkt.URI,
			PTS:      pkt.PTS,
		}
		if sess.hasNext && pkt.PTS != sess.nextPTS {
			seg.Discontinuity = true
		}
		sess.nextPTS = pkt.PTS + pkt.Duration
		sess.hasNext = true
		segments = append(segments, seg)
	}
	return segments, ended, nil
}

// GetPlaylist reads the next window of segments and renders them as an HLS
// media playlist.
func (s *Service) GetPlaylist(ctx context.Context, id SessionID) (string, error) {
	segments, ended, err := s.ReadSegments(ctx, id)
	if err != nil {
		return "", err
	}
	return BuildLivePlaylist(segments, ended), nil
}

// Times returns the session's seekable range.
func (s *Service) Times(id SessionID) (catchup.Times, error) {
	sess, err := s.repo.GetSession(id)
	if err != nil {
		return catchup.Times{}, err
	}
	return sess.Stream.Times()
}

// Length returns the session's playable length in ticks.
func (s *Service) Length(id SessionID) (int64, error) {
	sess, err := s.repo.GetSession(id)
	if err != nil {
		return 0, err
	}
	return sess.Stream.Length()
}

// Capabilities returns the session's capability mask.
func (s *Service) Capabilities(id SessionID) (catchup.Capabilities, error) {
	sess, err := s.repo.GetSession(id)
	if err != nil {
		return 0, err
	}
	return sess.Stream.Capabilities(), nil
}

// Status returns a snapshot of the session.
func (s *Service) Status(id SessionID) (SessionStatus, error) {
	sess, err := s.repo.GetSession(id)
	if err != nil {
		return SessionStatus{}, err
	}
	return SessionStatus{
		ID:            sess.ID,
		URL:           sess.Stream.URL(),
		State:         sess.Stream.State().String(),
		OffsetSeconds: sess.Stream.Offset(),
		CurrentTimeMs: sess.Stream.CurrentTime(),
		OpenedAt:      sess.OpenedAt,
	}, nil
}

// CloseSession closes the session's pipeline and forgets it.
func (s *Service) CloseSession(id SessionID) error {
	sess, err := s.repo.CloseSession(id)
	if err != nil {
		return err
	}
	if err := sess.Stream.Close(); err != nil {
		s.log.Warn("session pipeline close failed",
			slog.String("session_id", string(id)),
			slog.String("error", err.Error()))
	}
	s.log.Info("session closed", slog.String("session_id", string(id)))
	return nil
}

// CloseAll closes every open session. Used on shutdown.
func (s *Service) CloseAll() {
	for _, id := range s.repo.ListSessions() {
		_ = s.CloseSession(id)
	}
}

// ActiveSessionCount returns the number of open sessions.
func (s *Service) ActiveSessionCount() int {
	return s.repo.ActiveSessionCount()
}
