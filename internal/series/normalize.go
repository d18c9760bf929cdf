// Package series turns raw historical records into a validated, ordered
// working series.
package series

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"pm25cast/internal/errs"
	"pm25cast/internal/models"
)

const DefaultMinHistory = 24

type Options struct {
	MinHistory int
	// RequireContiguous rejects series whose consecutive points are not
	// exactly one hour apart. Off by default: lookups are positional.
	RequireContiguous bool
}

func (o Options) minHistory() int {
	if o.MinHistory <= 0 {
		return DefaultMinHistory
	}
	return o.MinHistory
}

// Zone-less layouts are interpreted as UTC.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Normalize parses, validates and sorts records. Records with equal
// timestamps keep their presentation order.
func Normalize(records []models.RawRecord, opts Options) (models.Series, error) {
	out := make(models.Series, 0, len(records))
	for i, rec := range records {
		ts, err := ParseTimestamp(rec.Datetime)
		if err != nil {
			return nil, errs.Validation(i, "invalid datetime", err)
		}
		v, err := parseValue(rec.PM25)
		if err != nil {
			return nil, errs.Validation(i, "invalid pm25", err)
		}
		out = append(out, models.TimePoint{Timestamp: ts, Value: v})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	if err := Check(out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// Check enforces the history requirements on an already ordered series.
func Check(s models.Series, opts Options) error {
	if need := opts.minHistory(); len(s) < need {
		return errs.InsufficientHistory(len(s), need)
	}
	if !opts.RequireContiguous {
		return nil
	}
	for i := 1; i < len(s); i++ {
		if gap := s[i].Timestamp.Sub(s[i-1].Timestamp); gap != time.Hour {
			return errs.Validation(i, fmt.Sprintf("expected hourly spacing, got %s after %s",
				gap, s[i-1].Timestamp.Format(time.RFC3339)), nil)
		}
	}
	return nil
}

func parseValue(raw interface{}) (float64, error) {
	var v float64
	switch x := raw.(type) {
	case nil:
		return 0, fmt.Errorf("value is missing")
	case float64:
		v = x
	case float32:
		v = float64(x)
	case int:
		v = float64(x)
	case int64:
		v = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("value %q is not numeric", x.String())
		}
		v = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not numeric", x)
		}
		v = f
	default:
		return 0, fmt.Errorf("value %v is not numeric", raw)
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("value %v is not finite", v)
	}
	if v < 0 {
		return 0, fmt.Errorf("value %v is negative", v)
	}
	return v, nil
}
