package clock

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidOffset = errors.New("clock: invalid utc offset")

// Offset is a UTC offset in seconds east of UTC.
type Offset int

var (
	regexNumericOffset = regexp.MustCompile(`^([+-])(\d{2}):?(\d{2})$`)
	// matches the "(UTC+01:00) Amsterdam, Berlin" style Windows time zone descriptions
	regexUTCDescription = regexp.MustCompile(`\(UTC(?:([+-])(\d{2}):(\d{2}))?\)`)
)

// ParseOffset accepts "+0200", "+02:00", "-05:30", "Z", "UTC" and Windows
// descriptions such as "(UTC+01:00) Amsterdam, Berlin" or "(UTC) Coordinated Universal Time".
func ParseOffset(s string) (Offset, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "Z", "UTC", "GMT":
		return 0, nil
	}

	if m := regexNumericOffset.FindStringSubmatch(s); m != nil {
		return fromParts(m[1], m[2], m[3])
	}
	if m := regexUTCDescription.FindStringSubmatch(s); m != nil {
		if m[1] == "" {
			return 0, nil
		}
		return fromParts(m[1], m[2], m[3])
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, s)
}

// FromMinutes converts a minute count east of UTC (as reported by Windows CurrentTimeZone).
func FromMinutes(minutes int) Offset {
	return Offset(minutes * 60)
}

// Local returns the offset of the local time zone at t.
func Local(t time.Time) Offset {
	_, off := t.Zone()
	return Offset(off)
}

// Seconds returns the offset in seconds.
func (o Offset) Seconds() int64 {
	return int64(o)
}

// Location returns a fixed zone for this offset.
func (o Offset) Location() *time.Location {
	return time.FixedZone(o.String(), int(o))
}

// String formats the offset as "+02:00".
func (o Offset) String() string {
	sign := '+'
	v := int(o)
	if v < 0 {
		sign = '-'
		v = -v
	}
	return fmt.Sprintf("%c%02d:%02d", sign, v/3600, (v%3600)/60)
}

func fromParts(sign, hours, minutes string) (Offset, error) {
	h, err := strconv.Atoi(hours)
	if err != nil {
		return 0, fmt.Errorf("%w: hours %q", ErrInvalidOffset, hours)
	}
	m, err := strconv.Atoi(minutes)
	if err != nil {
		return 0, fmt.Errorf("%w: minutes %q", ErrInvalidOffset, minutes)
	}
	if h > 14 || m > 59 {
		return 0, fmt.Errorf("%w: %s%s:%s out of range", ErrInvalidOffset, sign, hours, minutes)
	}
	secs := h*3600 + m*60
	if sign == "-" {
		secs = -secs
	}
	return Offset(secs), nil
}
