// Package clock converts race-clock strings to integer milliseconds and back.
//
// Every value crossing this package boundary is an integer millisecond count.
// Parsing is total: malformed input yields None, never an error or panic.
package clock

import (
	"strconv"
	"strings"
)

const (
	msPerSecond = 1000
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute

	// one digit past the millisecond decides rounding; longer fractions are malformed
	maxFractionDigits = 4
)

// Time is a normalized race time: a non-negative millisecond count, or None.
type Time struct {
	ms    int64
	valid bool
}

// None is the "no time" value used for DNF, DNS, unfinished and malformed input.
var None = Time{}

// FromMillis builds a Time from a millisecond count. Negative values map to None.
func FromMillis(ms int64) Time {
	if ms < 0 {
		return None
	}
	return Time{ms: ms, valid: true}
}

// Valid reports whether t holds a time.
func (t Time) Valid() bool { return t.valid }

// Millis returns the millisecond count and whether it is set.
func (t Time) Millis() (int64, bool) { return t.ms, t.valid }

// MustMillis returns the millisecond count, or 0 for None.
func (t Time) MustMillis() int64 { return t.ms }

// String renders t with Format, or "" for None.
func (t Time) String() string { return Format(t) }

// sentinels that commissioners and feeds use instead of a time
var sentinels = map[string]struct{}{
	"DNF": {},
	"DNS": {},
	"DQ":  {},
	"N/A": {},
	"NA":  {},
	"-":   {},
}

// IsSentinel reports whether raw is a recognized "no time" marker.
func IsSentinel(raw string) bool {
	_, ok := sentinels[strings.ToUpper(strings.TrimSpace(raw))]
	return ok
}

// Parse converts H:MM:SS[.fff] into a Time.
//
// Hours take one or two digits (a leading zero hour such as "02" is accepted),
// minutes and seconds exactly two digits below 60. The fraction is rounded
// half-up to whole milliseconds. Anything else returns None.
func Parse(raw string) Time {
	s := strings.TrimSpace(raw)
	if s == "" || IsSentinel(s) {
		return None
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return None
	}

	hours, ok := digits(parts[0], 1, 2)
	if !ok {
		return None
	}
	minutes, ok := digits(parts[1], 2, 2)
	if !ok || minutes >= 60 {
		return None
	}

	secPart, fracPart, hasFrac := strings.Cut(parts[2], ".")
	seconds, ok := digits(secPart, 2, 2)
	if !ok || seconds >= 60 {
		return None
	}

	var fracMs int64
	if hasFrac {
		fracMs, ok = fractionMillis(fracPart)
		if !ok {
			return None
		}
	}

	ms := hours*msPerHour + minutes*msPerMinute + seconds*msPerSecond + fracMs
	return Time{ms: ms, valid: true}
}

// digits parses an all-digit string whose length lies in [minLen, maxLen].
func digits(s string, minLen, maxLen int) (int64, bool) {
	if len(s) < minLen || len(s) > maxLen {
		return 0, false
	}
	var v int64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + int64(c-'0')
	}
	return v, true
}

// fractionMillis turns the digits after the decimal point into milliseconds,
// rounding half-up on a fourth digit. A carry can yield 1000.
func fractionMillis(frac string) (int64, bool) {
	if frac == "" || len(frac) > maxFractionDigits {
		return 0, false
	}
	if _, ok := digits(frac, 1, maxFractionDigits); !ok {
		return 0, false
	}
	if len(frac) <= 3 {
		padded := frac + strings.Repeat("0", 3-len(frac))
		v, _ := digits(padded, 3, 3)
		return v, true
	}
	v, _ := digits(frac[:3], 3, 3)
	if frac[3] >= '5' {
		v++
	}
	return v, true
}

// Format renders t as H:MM:SS with a millisecond fraction when non-zero.
// Trailing fractional zeros are dropped, so 7689030 renders as "2:08:09.03".
// None renders as "".
func Format(t Time) string {
	if !t.valid {
		return ""
	}
	h, m, s, frac := split(t.ms)
	var b strings.Builder
	b.WriteString(strconv.FormatInt(h, 10))
	b.WriteByte(':')
	pad2(&b, m)
	b.WriteByte(':')
	pad2(&b, s)
	if frac > 0 {
		f := strconv.FormatInt(frac+1000, 10)[1:] // zero-padded to 3
		b.WriteByte('.')
		b.WriteString(strings.TrimRight(f, "0"))
	}
	return b.String()
}

// FormatGap renders a gap to the leader as +M:SS[.ff], rounded half-up to the
// nearest hundredth. Whole-second gaps omit the decimal. Gaps of an hour or
// more render as +H:MM:SS[.ff]. Negative input is clamped to zero.
func FormatGap(gapMs int64) string {
	if gapMs < 0 {
		gapMs = 0
	}
	hundredths := (gapMs + 5) / 10
	totalSeconds := hundredths / 100
	cs := hundredths % 100

	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60

	var b strings.Builder
	b.WriteByte('+')
	if h > 0 {
		b.WriteString(strconv.FormatInt(h, 10))
		b.WriteByte(':')
		pad2(&b, m)
	} else {
		b.WriteString(strconv.FormatInt(m, 10))
	}
	b.WriteByte(':')
	pad2(&b, s)
	if cs > 0 {
		b.WriteByte('.')
		pad2(&b, cs)
	}
	return b.String()
}

// RoundToDisplaySecond rounds ms half-up to a whole second and renders H:MM:SS,
// carrying into minutes and hours. Display only; ranking never uses it.
func RoundToDisplaySecond(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	rounded := ((ms + msPerSecond/2) / msPerSecond) * msPerSecond
	h, m, s, _ := split(rounded)
	var b strings.Builder
	b.WriteString(strconv.FormatInt(h, 10))
	b.WriteByte(':')
	pad2(&b, m)
	b.WriteByte(':')
	pad2(&b, s)
	return b.String()
}

func split(ms int64) (h, m, s, frac int64) {
	h = ms / msPerHour
	ms %= msPerHour
	m = ms / msPerMinute
	ms %= msPerMinute
	s = ms / msPerSecond
	frac = ms % msPerSecond
	return h, m, s, frac
}

func pad2(b *strings.Builder, v int64) {
	if v < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.FormatInt(v, 10))
}
