package pipeline

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"hls-catchup/internal/catchup"
)

const vodPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:4
#EXT-X-MEDIA-SEQUENCE:10
#EXTINF:4.000,
seg10.ts
#EXTINF:2.500,
seg11.ts
#EXT-X-ENDLIST
`

const masterPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1280000
variant/media.m3u8
`

func newPlaylistServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHLS_ReadPacket_vod(t *testing.T) {
	srv := newPlaylistServer(t, map[string]string{"/vod.m3u8": vodPlaylist})
	h := NewHLS(srv.Client(), nil)
	ctx := context.Background()

	require.NoError(t, h.Open(ctx, srv.URL+"/vod.m3u8", "application/x-mpegURL", false, nil))

	pkt, err := h.ReadPacket(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), pkt.PTS)
	require.Equal(t, int64(0), pkt.DTS)
	require.Equal(t, int64(4*catchup.TimeBase), pkt.Duration)
	require.Equal(t, int64(10), pkt.Sequence)
	require.Equal(t, srv.URL+"/seg10.ts", pkt.URI)

	pkt, err = h.ReadPacket(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(4*catchup.TimeBase), pkt.PTS)
	require.Equal(t, int64(2500000), pkt.Duration)
	require.Equal(t, int64(11), pkt.Sequence)

	pts, ok := h.CurrentPTS()
	require.True(t, ok)
	require.Equal(t, int64(4*catchup.TimeBase), pts)

	_, err = h.ReadPacket(ctx)
	require.ErrorIs(t, err, io.EOF)
}

func TestHLS_Reopen_restarts_timeline(t *testing.T) {
	srv := newPlaylistServer(t, map[string]string{
		"/a.m3u8": vodPlaylist,
		"/b.m3u8": vodPlaylist,
	})
	h := NewHLS(srv.Client(), nil)
	ctx := context.Background()
	require.NoError(t, h.Open(ctx, srv.URL+"/a.m3u8", "", false, nil))
	_, err := h.ReadPacket(ctx)
	require.NoError(t, err)
	_, err = h.ReadPacket(ctx)
	require.NoError(t, err)

	require.NoError(t, h.Reopen(ctx, srv.URL+"/b.m3u8"))
	_, ok := h.CurrentPTS()
	require.False(t, ok)

	pkt, err := h.ReadPacket(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), pkt.PTS)
}

func TestHLS_Open_follows_master(t *testing.T) {
	srv := newPlaylistServer(t, map[string]string{
		"/master.m3u8":        masterPlaylist,
		"/variant/media.m3u8": vodPlaylist,
	})
	h := NewHLS(srv.Client(), nil)
	ctx := context.Background()
	require.NoError(t, h.Open(ctx, srv.URL+"/master.m3u8", "", false, nil))

	pkt, err := h.ReadPacket(ctx)
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/variant/seg10.ts", pkt.URI)
}

func TestHLS_Open_sends_properties_as_headers(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(vodPlaylist))
	}))
	defer srv.Close()

	h := NewHLS(srv.Client(), nil)
	require.NoError(t, h.Open(context.Background(), srv.URL, "", false, map[string]string{"User-Agent": "catchup-test"}))
	require.Equal(t, "catchup-test", got.Load())
}

func TestHLS_Open_bad_status(t *testing.T) {
	srv := newPlaylistServer(t, nil)
	h := NewHLS(srv.Client(), nil)
	err := h.Open(context.Background(), srv.URL+"/missing.m3u8", "", false, nil)
	require.Error(t, err)

	_, err = h.ReadPacket(context.Background())
	require.ErrorIs(t, err, ErrNotOpen)
}

func TestHLS_ReadPacket_live_refresh(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte("#EXTM3U\n#EXT-X-TARGETDURATION:2\n#EXT-X-MEDIA-SEQUENCE:1\n#EXTINF:2.0,\n1.ts\n"))
			return
		}
		_, _ = w.Write([]byte("#EXTM3U\n#EXT-X-TARGETDURATION:2\n#EXT-X-MEDIA-SEQUENCE:1\n#EXTINF:2.0,\n1.ts\n#EXTINF:2.0,\n2.ts\n"))
	}))
	defer srv.Close()

	h := NewHLS(srv.Client(), nil)
	ctx := context.Background()
	require.NoError(t, h.Open(ctx, srv.URL+"/live.m3u8", "", true, nil))

	pkt, err := h.ReadPacket(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), pkt.Sequence)

	pkt, err = h.ReadPacket(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), pkt.Sequence)
	require.Equal(t, int64(2*catchup.TimeBase), pkt.PTS)
	require.Equal(t, srv.URL+"/2.ts", pkt.URI)
}

func TestHLS_SetSpeed_and_Close(t *testing.T) {
	h := NewHLS(nil, nil)
	require.Equal(t, catchup.SpeedNormal, h.Speed())
	h.SetSpeed(catchup.SpeedPause)
	require.Equal(t, catchup.SpeedPause, h.Speed())
	require.NoError(t, h.Close())

	_, err := h.ReadPacket(context.Background())
	require.ErrorIs(t, err, ErrNotOpen)
}

func TestHLS_ReadPacket_live_sliding_window(t *testing.T) {
	playlists := []string{
		"#EXTM3U\n#EXT-X-TARGETDURATION:2\n#EXT-X-MEDIA-SEQUENCE:5\n#EXTINF:2.0,\n5.ts\n#EXTINF:2.0,\n6.ts\n",
		"#EXTM3U\n#EXT-X-TARGETDURATION:2\n#EXT-X-MEDIA-SEQUENCE:6\n#EXTINF:2.0,\n6.ts\n#EXTINF:2.0,\n7.ts\n",
		"#EXTM3U\n#EXT-X-TARGETDURATION:2\n#EXT-X-MEDIA-SEQUENCE:7\n#EXTINF:2.0,\n7.ts\n#EXTINF:2.0,\n8.ts\n#EXT-X-ENDLIST\n",
	}
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := int(calls.Add(1)) - 1
		if i >= len(playlists) {
			i = len(playlists) - 1
		}
		_, _ = w.Write([]byte(playlists[i]))
	}))
	defer srv.Close()

	h := NewHLS(srv.Client(), nil)
	ctx := context.Background()
	require.NoError(t, h.Open(ctx, srv.URL+"/live.m3u8", "", true, nil))

	var seqs []int64
	var uris []string
	for {
		pkt, err := h.ReadPacket(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		seqs = append(seqs, pkt.Sequence)
		uris = append(uris, pkt.URI)
	}
	require.Equal(t, []int64{5, 6, 7, 8}, seqs)
	require.Equal(t, srv.URL+"/8.ts", uris[3])
	require.Equal(t, int32(3), calls.Load())
}
