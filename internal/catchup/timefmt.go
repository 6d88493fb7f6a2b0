package catchup

import (
	"strconv"
	"strings"
	"time"
)

// renderValues carries the inputs of a single Render call.
type renderValues struct {
	epoch    int64
	duration int64
	now      int64
	local    time.Time
}

type tokenFunc func(v *renderValues) int64

// Formatter renders catch-up URL templates. The placeholder tables are built
// once in NewFormatter and shared by every Render call.
type Formatter struct {
	now func() time.Time
	loc *time.Location

	calendar map[string]string    // {Y} etc, value is a time layout
	brace    map[string]tokenFunc // {utc} etc
	dollar   map[string]tokenFunc // ${start} etc
	scaled   map[string]tokenFunc // {duration:N}, {offset:N}
}

// FormatterOption configures a Formatter.
type FormatterOption func(*Formatter)

// WithNow sets the wall clock used for {lutc}, ${timestamp} and offsets.
func WithNow(now func() time.Time) FormatterOption {
	return func(f *Formatter) { f.now = now }
}

// WithLocation sets the zone for calendar placeholders. Defaults to time.Local.
func WithLocation(loc *time.Location) FormatterOption {
	return func(f *Formatter) { f.loc = loc }
}

// NewFormatter returns a Formatter with the fixed placeholder set.
func NewFormatter(opts ...FormatterOption) *Formatter {
	f := &Formatter{
		now: time.Now,
		loc: time.Local,
	}
	for _, opt := range opts {
		opt(f)
	}

	epoch := func(v *renderValues) int64 { return v.epoch }
	end := func(v *renderValues) int64 { return v.epoch + v.duration }
	now := func(v *renderValues) int64 { return v.now }
	duration := func(v *renderValues) int64 { return v.duration }
	offset := func(v *renderValues) int64 { return v.now - v.epoch }

	f.calendar = map[string]string{
		"Y": "2006",
		"m": "01",
		"d": "02",
		"H": "15",
		"M": "04",
		"S": "05",
	}
	f.brace = map[string]tokenFunc{
		"utc":      epoch,
		"utcend":   end,
		"lutc":     now,
		"duration": duration,
	}
	f.dollar = map[string]tokenFunc{
		"start":     epoch,
		"end":       end,
		"timestamp": now,
		"offset":    offset,
	}
	f.scaled = map[string]tokenFunc{
		"duration": duration,
		"offset":   offset,
	}
	return f
}

// Render substitutes every recognised placeholder in tmpl. Unknown or
// malformed placeholders are copied through unchanged; substituted text is
// never scanned again.
func (f *Formatter) Render(epoch, duration int64, tmpl string) string {
	v := renderValues{
		epoch:    epoch,
		duration: duration,
		now:      f.now().Unix(),
		local:    time.Unix(epoch, 0).In(f.loc),
	}

	var b strings.Builder
	b.Grow(len(tmpl) + 16)
	for i := 0; i < len(tmpl); {
		if rep, n, ok := f.match(tmpl[i:], &v); ok {
			b.WriteString(rep)
			i += n
			continue
		}
		b.WriteByte(tmpl[i])
		i++
	}
	return b.String()
}

// match tries to read one placeholder at the start of s. It returns the
// replacement and the number of bytes consumed.
func (f *Formatter) match(s string, v *renderValues) (string, int, bool) {
	var body string
	dollar := false
	switch {
	case strings.HasPrefix(s, "${"):
		dollar = true
		body = s[2:]
	case strings.HasPrefix(s, "{"):
		body = s[1:]
	default:
		return "", 0, false
	}

	end := strings.IndexByte(body, '}')
	if end < 0 {
		return "", 0, false
	}
	name := body[:end]
	consumed := len(s) - len(body) + end + 1

	if dollar {
		fn, ok := f.dollar[name]
		if !ok {
			return "", 0, false
		}
		return strconv.FormatInt(fn(v), 10), consumed, true
	}

	if layout, ok := f.calendar[name]; ok {
		return v.local.Format(layout), consumed, true
	}
	if fn, ok := f.brace[name]; ok {
		return strconv.FormatInt(fn(v), 10), consumed, true
	}

	unit, divisor, ok := strings.Cut(name, ":")
	if !ok {
		return "", 0, false
	}
	fn, ok := f.scaled[unit]
	if !ok {
		return "", 0, false
	}
	d, ok := parseDivisor(divisor)
	if !ok {
		return "", 0, false
	}
	units := fn(v) / d
	if units < 0 {
		units = 0
	}
	return strconv.FormatInt(units, 10), consumed, true
}

// parseDivisor accepts a non-empty run of decimal digits with a non-zero value.
func parseDivisor(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	d, err := strconv.ParseInt(s, 10, 64)
	if err != nil || d == 0 {
		return 0, false
	}
	return d, true
}
