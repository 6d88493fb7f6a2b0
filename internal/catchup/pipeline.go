package catchup

import (
	"context"
	"math"
)

// TimeBase is the number of presentation ticks per second.
const TimeBase = 1000000

// NoPTS marks an unknown presentation or decode timestamp.
const NoPTS int64 = math.MinInt64

// Playback speeds understood by SetSpeed. Any non-zero value plays.
const (
	SpeedPause  = 0
	SpeedNormal = 1000
)

// Packet is a unit of media produced by a Pipeline. Timestamps are in
// TimeBase ticks.
type Packet struct {
	PTS      int64
	DTS      int64
	Duration int64
	Sequence int64
	URI      string
}

// Pipeline is the demux collaborator a Stream drives. Open and Reopen may
// block on network I/O.
type Pipeline interface {
	Open(ctx context.Context, url, mimeType string, realtime bool, props map[string]string) error
	// Reopen resets the pipeline at url; timestamps restart from zero.
	Reopen(ctx context.Context, url string) error
	// ReadPacket returns the next packet, or io.EOF when the stream ended.
	ReadPacket(ctx context.Context) (*Packet, error)
	// CurrentPTS is the last decoded presentation time, if known.
	CurrentPTS() (int64, bool)
	SetSpeed(speed int)
	Close() error
}

// Capabilities is a bit mask of features a Stream offers to the host player.
type Capabilities uint32

const (
	CapInternalDemux Capabilities = 1 << iota
	CapDisplayTime
	CapTimes
	CapPosTime
	CapSeek
	CapPause
	CapChapters
)

// Has reports whether all bits of c2 are set.
func (c Capabilities) Has(c2 Capabilities) bool {
	return c&c2 == c2
}

// Names lists the set capabilities in bit order.
func (c Capabilities) Names() []string {
	all := []struct {
		cap  Capabilities
		name string
	}{
		{CapInternalDemux, "internal_demux"},
		{CapDisplayTime, "display_time"},
		{CapTimes, "times"},
		{CapPosTime, "pos_time"},
		{CapSeek, "seek"},
		{CapPause, "pause"},
		{CapChapters, "chapters"},
	}
	names := make([]string, 0, len(all))
	for _, a := range all {
		if c.Has(a.cap) {
			names = append(names, a.name)
		}
	}
	return names
}

// Times describes the seekable range of a stream.
type Times struct {
	StartTime int64 // epoch seconds
	PTSStart  int64
	PTSBegin  int64
	PTSEnd    int64
}
