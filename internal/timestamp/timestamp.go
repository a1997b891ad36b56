// Package timestamp converts server timestamps into epoch milliseconds and
// human-relative labels.
package timestamp

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/pkg/logger"
)

const (
	// JustNow is the label for anything under a minute old, or in the future.
	JustNow = "just now"

	// DateLayout formats timestamps older than a week.
	DateLayout = "Jan 2, 2006"

	week = 7 * 24 * time.Hour
)

// ErrUnparseable is returned by Parse for values that match no known layout.
var ErrUnparseable = errors.New("unparseable timestamp")

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04Z07:00",
}

// Parse interprets a server timestamp. Date-time values without a zone are
// taken as UTC. All-digit values are epoch seconds, or epoch milliseconds
// when they have twelve or more digits.
func Parse(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrUnparseable
	}

	if isDigits(raw) {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return time.Time{}, ErrUnparseable
		}
		if len(raw) >= 12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}

	if len(raw) == len("2006-01-02") {
		t, err := time.ParseInLocation(time.DateOnly, raw, time.UTC)
		if err != nil {
			return time.Time{}, ErrUnparseable
		}
		return t, nil
	}

	s := canonical(raw)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrUnparseable
}

// canonical upper-cases the date-time separator and zone marker and appends
// "Z" to naive values.
func canonical(raw string) string {
	if len(raw) <= 10 || !isSeparator(raw[10]) {
		return raw
	}
	b := []byte(raw)
	b[10] = 'T'
	if last := len(b) - 1; b[last] == 'z' {
		b[last] = 'Z'
	}
	s := string(b)
	if !hasZone(s) {
		s += "Z"
	}
	return s
}

func hasZone(s string) bool {
	if strings.HasSuffix(s, "Z") {
		return true
	}
	clock := s[11:]
	return strings.ContainsAny(clock, "+-")
}

func isSeparator(c byte) bool {
	return c == 'T' || c == 't' || c == ' '
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock sets the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// WithLocation sets the zone used for absolute date labels.
func WithLocation(loc *time.Location) Option {
	return func(n *Normalizer) {
		n.loc = loc
	}
}

// Normalizer turns raw timestamps into epoch milliseconds. It never fails:
// missing or malformed values degrade to the current time.
type Normalizer struct {
	now    func() time.Time
	loc    *time.Location
	logger *logger.Logger
}

// NewNormalizer creates a normalizer.
func NewNormalizer(log *logger.Logger, opts ...Option) *Normalizer {
	n := &Normalizer{
		now:    time.Now,
		loc:    time.Local,
		logger: log,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Now returns the current time in epoch milliseconds.
func (n *Normalizer) Now() int64 {
	return n.now().UnixMilli()
}

// Normalize converts a raw timestamp into epoch milliseconds.
func (n *Normalizer) Normalize(raw string) int64 {
	if strings.TrimSpace(raw) == "" {
		return n.Now()
	}
	t, err := Parse(raw)
	if err != nil {
		n.logger.Warn("unparseable timestamp, using current time", zap.String("raw", raw))
		return n.Now()
	}
	return t.UnixMilli()
}

// RelativeLabel describes how long ago epochMs was.
func (n *Normalizer) RelativeLabel(epochMs int64) string {
	now := n.now()
	t := time.UnixMilli(epochMs)
	delta := now.Sub(t)

	switch {
	case delta < 0:
		// Clock skew and bad data both land here.
		if -delta > 24*time.Hour {
			n.logger.Warn("timestamp more than a day in the future",
				zap.Int64("epoch_ms", epochMs),
				zap.Duration("ahead", -delta),
			)
		}
		return JustNow
	case delta < time.Minute:
		return JustNow
	case delta < week:
		return humanize.RelTime(t, now, "ago", "from now")
	default:
		return t.In(n.loc).Format(DateLayout)
	}
}
