// Package datetime normalizes publish dates from heterogeneous feeds into
// UTC timestamps with second precision.
package datetime

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// CanonicalLayout is the textual form of a normalized timestamp.
const CanonicalLayout = "2006-01-02 15:04:05"

var errEmpty = errors.New("empty date value")

type Normalizer struct {
	logger *slog.Logger
}

func NewNormalizer(logger *slog.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize parses value and reports false when it cannot. Parse failures
// are logged, never returned: a bad date only means the field is missing.
func (n *Normalizer) Normalize(value, layout string) (time.Time, bool) {
	t, err := Parse(value, layout)
	if err != nil {
		if n.logger != nil && !errors.Is(err, errEmpty) {
			n.logger.Debug("failed to parse date",
				"value", value,
				"layout", layout,
				"error", err,
			)
		}
		return time.Time{}, false
	}
	return t, true
}

// Parse converts value into a UTC time truncated to the second. layout may be
// a Go reference layout or a strftime pattern; when empty the format is
// guessed. Inputs without a zone are read as UTC.
func Parse(value, layout string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errEmpty
	}

	var (
		t   time.Time
		err error
	)
	if layout = strings.TrimSpace(layout); layout != "" {
		if strings.Contains(layout, "%") {
			layout = FromStrftime(layout)
		}
		t, err = time.ParseInLocation(layout, value, time.UTC)
	} else {
		t, err = dateparse.ParseIn(value, time.UTC)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", value, err)
	}

	return t.UTC().Truncate(time.Second), nil
}

// Format renders t in the canonical layout.
func Format(t time.Time) string {
	return t.UTC().Format(CanonicalLayout)
}

var strftimeDirectives = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'e': "_2",
	'H': "15",
	'I': "03",
	'M': "04",
	'S': "05",
	'f': "000000",
	'p': "PM",
	'b': "Jan",
	'h': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'j': "002",
	'z': "-0700",
	'Z': "MST",
	'%': "%",
}

// FromStrftime translates a strftime pattern into a Go layout. Unknown
// directives are copied through unchanged.
func FromStrftime(format string) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 >= len(format) {
			b.WriteByte(c)
			continue
		}
		i++
		if repl, ok := strftimeDirectives[format[i]]; ok {
			b.WriteString(repl)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(format[i])
	}
	return b.String()
}
