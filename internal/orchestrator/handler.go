package orchestrator

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"hls-catchup/internal/catchup"
	"hls-catchup/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// Handler exposes catch-up session HTTP endpoints using go-chi.
type Handler struct {
	svc     *Service
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler that uses the given Service, Logger, and optional Metrics.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, log: log, metrics: m}
}

// Routes mounts the session endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/sessions", h.OpenSession)
	r.Route("/sessions/{session_id}", func(r chi.Router) {
		r.Delete("/", h.CloseSession)
		r.Post("/seek", h.Seek)
		r.Post("/speed", h.SetSpeed)
		r.Get("/times", h.GetTimes)
		r.Get("/length", h.GetLength)
		r.Get("/capabilities", h.GetCapabilities)
		r.Get("/url", h.GetStatus)
		r.Get("/segments", h.GetSegments)
		r.Get("/playlist.m3u8", h.GetPlaylist)
	})
}

type seekRequest struct {
	TimeMs    int64 `json:"time_ms"`
	Backwards bool  `json:"backwards"`
}

type seekResponse struct {
	StartPTS int64  `json:"start_pts"`
	URL      string `json:"url"`
}

type speedRequest struct {
	Speed *int `json:"speed"`
}

type timesResponse struct {
	StartTime int64 `json:"start_time"`
	PTSStart  int64 `json:"pts_start"`
	PTSBegin  int64 `json:"pts_begin"`
	PTSEnd    int64 `json:"pts_end"`
}

type lengthResponse struct {
	Length        int64   `json:"length"`
	LengthSeconds float64 `json:"length_seconds"`
}

type capabilitiesResponse struct {
	Mask         uint32   `json:"mask"`
	Capabilities []string `json:"capabilities"`
}

type segmentsResponse struct {
	Segments []Segment `json:"segments"`
	Ended    bool      `json:"ended"`
}

// OpenSession handles POST /sessions.
// Body: catch-up config fields plus optional "url", "mime_type", "realtime"
// and "properties".
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid open body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	sess, err := h.svc.OpenSession(r.Context(), req)
	if err != nil {
		h.writeError(w, "open session failed", "", err)
		return
	}

	if h.metrics != nil {
		h.metrics.IncSessionsOpened()
	}
	status, err := h.svc.Status(sess.ID)
	if err != nil {
		h.writeError(w, "session status failed", sess.ID, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, status)
}

// CloseSession handles DELETE /sessions/{session_id}.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.svc.CloseSession(id); err != nil {
		h.writeError(w, "close session failed", id, err)
		return
	}

	if h.metrics != nil {
		h.metrics.IncSessionsClosed()
	}
	w.WriteHeader(http.StatusNoContent)
}

// Seek handles POST /sessions/{session_id}/seek.
// Body: { "time_ms": 1800000, "backwards": false }.
func (h *Handler) Seek(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var req seekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid seek body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	pts, err := h.svc.Seek(r.Context(), id, req.TimeMs, req.Backwards)
	if h.metrics != nil {
		switch {
		case err == nil:
			h.metrics.ObserveSeek(metrics.SeekOK)
		case errors.Is(err, catchup.ErrUnsupported):
			h.metrics.ObserveSeek(metrics.SeekUnsupported)
		case !errors.Is(err, ErrSessionNotFound):
			h.metrics.ObserveSeek(metrics.SeekFailed)
		}
	}
	if err != nil {
		h.writeError(w, "seek failed", id, err)
		return
	}

	status, err := h.svc.Status(id)
	if err != nil {
		h.writeError(w, "session status failed", id, err)
		return
	}
	h.log.Debug("session seeked",
		slog.String("session_id", string(id)),
		slog.Int64("time_ms", req.TimeMs),
		slog.String("url", status.URL))
	h.writeJSON(w, http.StatusOK, seekResponse{StartPTS: pts, URL: status.URL})
}

// SetSpeed handles POST /sessions/{session_id}/speed.
// Body: { "speed": 0 } pauses, { "speed": 1000 } plays.
func (h *Handler) SetSpeed(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var req speedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Speed == nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.svc.SetSpeed(r.Context(), id, *req.Speed); err != nil {
		h.writeError(w, "set speed failed", id, err)
		return
	}

	if h.metrics != nil {
		h.metrics.ObserveSpeed(*req.Speed)
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetTimes handles GET /sessions/{session_id}/times.
func (h *Handler) GetTimes(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	t, err := h.svc.Times(id)
	if err != nil {
		h.writeError(w, "times failed", id, err)
		return
	}
	h.writeJSON(w, http.StatusOK, timesResponse{
		StartTime: t.StartTime,
		PTSStart:  t.PTSStart,
		PTSBegin:  t.PTSBegin,
		PTSEnd:    t.PTSEnd,
	})
}

// GetLength handles GET /sessions/{session_id}/length.
func (h *Handler) GetLength(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	n, err := h.svc.Length(id)
	if err != nil {
		h.writeError(w, "length failed", id, err)
		return
	}
	h.writeJSON(w, http.StatusOK, lengthResponse{
		Length:        n,
		LengthSeconds: float64(n) / catchup.TimeBase,
	})
}

// GetCapabilities handles GET /sessions/{session_id}/capabilities.
func (h *Handler) GetCapabilities(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	caps, err := h.svc.Capabilities(id)
	if err != nil {
		h.writeError(w, "capabilities failed", id, err)
		return
	}
	h.writeJSON(w, http.StatusOK, capabilitiesResponse{
		Mask:         uint32(caps),
		Capabilities: caps.Names(),
	})
}

// GetStatus handles GET /sessions/{session_id}/url.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	status, err := h.svc.Status(id)
	if err != nil {
		h.writeError(w, "session status failed", id, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// GetSegments handles GET /sessions/{session_id}/segments.
func (h *Handler) GetSegments(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	segments, ended, err := h.svc.ReadSegments(r.Context(), id)
	if err != nil {
		h.writeError(w, "read segments failed", id, err)
		return
	}
	if h.metrics != nil {
		h.metrics.AddSegmentsServed(len(segments))
	}
	h.writeJSON(w, http.StatusOK, segmentsResponse{Segments: segments, Ended: ended})
}

// GetPlaylist handles GET /sessions/{session_id}/playlist.m3u8.
func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	segments, ended, err := h.svc.ReadSegments(r.Context(), id)
	if err != nil {
		h.writeError(w, "read playlist failed", id, err)
		return
	}
	if h.metrics != nil {
		h.metrics.AddSegmentsServed(len(segments))
	}

	w.Header().Set("Content-Type", playlistContentType)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(BuildLivePlaylist(segments, ended)))
}

// writeError maps service errors onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, msg string, id SessionID, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, catchup.ErrNegativeSeek):
		status = http.StatusBadRequest
	case errors.Is(err, catchup.ErrUnsupported):
		status = http.StatusConflict
	case errors.Is(err, catchup.ErrReopenFailed), errors.Is(err, ErrPipelineFailed):
		status = http.StatusBadGateway
	}

	attrs := []any{slog.String("error", err.Error()), slog.Int("status", status)}
	if id != "" {
		attrs = append(attrs, slog.String("session_id", string(id)))
	}
	if status >= http.StatusInternalServerError {
		h.log.Error(msg, attrs...)
	} else {
		h.log.Info(msg, attrs...)
	}
	http.Error(w, http.StatusText(status), status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("encode response failed", slog.String("error", err.Error()))
	}
}
