package catchup

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const testEpoch = int64(1700000000) // 2023-11-14 22:13:20 UTC

func fixedClock(unix int64) func() time.Time {
	return func() time.Time { return time.Unix(unix, 0) }
}

func newTestFormatter(now int64) *Formatter {
	return NewFormatter(WithNow(fixedClock(now)), WithLocation(time.UTC))
}

func TestFormatter_Render_calendar(t *testing.T) {
	f := newTestFormatter(testEpoch)
	out := f.Render(testEpoch, 0, "http://x/{Y}/{m}/{d}/{H}-{M}-{S}.m3u8")
	require.Equal(t, "http://x/2023/11/14/22-13-20.m3u8", out)
}

func TestFormatter_Render_calendar_zero_padded(t *testing.T) {
	f := newTestFormatter(0)
	epoch := time.Date(2024, time.February, 3, 4, 5, 6, 0, time.UTC).Unix()
	require.Equal(t, "20240203040506", f.Render(epoch, 0, "{Y}{m}{d}{H}{M}{S}"))
}

func TestFormatter_Render_location(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	f := NewFormatter(WithNow(fixedClock(testEpoch)), WithLocation(loc))
	require.Equal(t, "00:13", f.Render(testEpoch, 0, "{H}:{M}"))
}

func TestFormatter_Render_epoch_tokens(t *testing.T) {
	f := newTestFormatter(testEpoch + 600)
	out := f.Render(testEpoch, 3600, "{utc}|${start}|{utcend}|${end}|{duration}")
	require.Equal(t, "1700000000|1700000000|1700003600|1700003600|3600", out)
}

func TestFormatter_Render_now_tokens(t *testing.T) {
	f := newTestFormatter(testEpoch + 600)
	out := f.Render(testEpoch, 3600, "{lutc}|${timestamp}|${offset}|{offset:60}")
	require.Equal(t, "1700000600|1700000600|600|10", out)
}

func TestFormatter_Render_duration_isolation(t *testing.T) {
	f := newTestFormatter(testEpoch)
	out := f.Render(testEpoch, 3600, "d={duration}&m={duration:60}&h={duration:3600}")
	require.Equal(t, "d=3600&m=60&h=1", out)
}

func TestFormatter_Render_negative_offset(t *testing.T) {
	f := newTestFormatter(testEpoch - 100)
	require.Equal(t, "-100", f.Render(testEpoch, 0, "${offset}"))
	require.Equal(t, "0", f.Render(testEpoch, 0, "{offset:60}"))
}

func TestFormatter_Render_malformed_left_untouched(t *testing.T) {
	f := newTestFormatter(testEpoch)
	for _, tmpl := range []string{
		"{duration:0}",
		"{duration:abc}",
		"{duration:}",
		"{duration:-5}",
		"{duration:+5}",
		"{start}",
		"{foo}",
		"{catchup-id}",
		"{utc",
		"${",
		"plain",
		"",
	} {
		require.Equal(t, tmpl, f.Render(testEpoch, 3600, tmpl), "template %q", tmpl)
	}
}

func TestFormatter_Render_every_occurrence(t *testing.T) {
	f := newTestFormatter(testEpoch)
	require.Equal(t, "1700000000-1700000000", f.Render(testEpoch, 0, "{utc}-{utc}"))
}

func TestFormatter_Render_nested_braces(t *testing.T) {
	f := newTestFormatter(testEpoch)
	require.Equal(t, "{1700000000}", f.Render(testEpoch, 0, "{{utc}}"))
	require.Equal(t, "$1", f.Render(testEpoch, 3600, "${duration:3600}"))
}

func TestFormatter_Render_substitution_not_rescanned(t *testing.T) {
	f := newTestFormatter(testEpoch)
	// A literal "{" right before a token must not combine with its output.
	require.Equal(t, "{3600}", f.Render(testEpoch, 3600, "{{duration}}"))
}

func TestFormatter_Render_idempotent(t *testing.T) {
	tokens := []string{
		"{Y}", "{m}", "{d}", "{H}", "{M}", "{S}",
		"{utc}", "${start}", "{utcend}", "${end}", "{lutc}", "${timestamp}",
		"{duration}", "${offset}", "{duration:60}", "{offset:15}",
		"{catchup-id}", "/", "?", "&x=", "{", "}", "$",
	}
	rapid.Check(t, func(t *rapid.T) {
		parts := rapid.SliceOfN(rapid.SampledFrom(tokens), 0, 12).Draw(t, "parts")
		tmpl := strings.Join(parts, "")
		epoch := rapid.Int64Range(0, 4102444800).Draw(t, "epoch")
		duration := rapid.Int64Range(0, 86400).Draw(t, "duration")
		now := rapid.Int64Range(0, 4102444800).Draw(t, "now")

		f := newTestFormatter(now)
		first := f.Render(epoch, duration, tmpl)
		second := f.Render(epoch, duration, tmpl)
		if first != second {
			t.Fatalf("render not deterministic: %q vs %q", first, second)
		}
	})
}

func TestFormatter_Render_utc_round_trip(t *testing.T) {
	f := newTestFormatter(testEpoch)
	rapid.Check(t, func(t *rapid.T) {
		epoch := rapid.Int64Range(0, 1<<40).Draw(t, "epoch")
		got, err := strconv.ParseInt(f.Render(epoch, 0, "{utc}"), 10, 64)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if got != epoch {
			t.Fatalf("round trip: got %d want %d", got, epoch)
		}
	})
}
