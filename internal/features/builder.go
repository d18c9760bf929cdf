// Package features derives the model's input vector from a PM2.5 series.
//
// Lag and rolling features are positional: "lag k" is the value k records
// before the target, whatever the wall-clock distance between them.
package features

import (
	"fmt"
	"math"
	"sort"
	"time"

	"pm25cast/internal/errs"
	"pm25cast/internal/models"
)

var (
	DefaultLags    = []int{1, 2, 3, 6, 12, 24}
	DefaultWindows = []int{3, 6, 12, 24}
)

// DefaultColumns is the column order produced by the training pipeline.
func DefaultColumns() []string {
	return Catalog(DefaultLags, DefaultWindows)
}

// Catalog lists every feature the builder can compute for the given lags
// and windows.
func Catalog(lags, windows []int) []string {
	names := []string{"hour", "day_of_week", "day_of_month", "month", "is_weekend", "hour_sin", "hour_cos"}
	for _, k := range lags {
		names = append(names, LagName(k))
	}
	for _, w := range windows {
		names = append(names, RollingMeanName(w), RollingStdName(w))
	}
	return names
}

func LagName(k int) string         { return fmt.Sprintf("pm25_lag_%dh", k) }
func RollingMeanName(w int) string { return fmt.Sprintf("pm25_rolling_mean_%dh", w) }
func RollingStdName(w int) string  { return fmt.Sprintf("pm25_rolling_std_%dh", w) }

// target is the point a vector is built for: its timestamp and the values
// strictly before it.
type target struct {
	ts      time.Time
	history []float64
}

type extractor func(t target) float64

type Options struct {
	Lags    []int
	Windows []int
}

// Builder computes feature vectors in a fixed column order. It is immutable
// and safe for concurrent use.
type Builder struct {
	columns  []string
	extract  []extractor
	lookback int
}

// NewBuilder binds the builder to the model's column list. Any column outside
// the catalog is a SchemaMismatchError; columns are never zero-filled.
func NewBuilder(columns []string, opts Options) (*Builder, error) {
	if len(columns) == 0 {
		return nil, errs.SchemaMismatch("feature column list is empty")
	}
	lags, windows := opts.Lags, opts.Windows
	if lags == nil {
		lags = DefaultLags
	}
	if windows == nil {
		windows = DefaultWindows
	}

	catalog := make(map[string]extractor)
	lookbackOf := make(map[string]int)
	for name, fn := range temporal {
		catalog[name] = fn
	}
	for _, k := range lags {
		if k <= 0 {
			return nil, fmt.Errorf("lag offset must be positive, got %d", k)
		}
		catalog[LagName(k)] = lag(k)
		lookbackOf[LagName(k)] = k
	}
	for _, w := range windows {
		if w <= 0 {
			return nil, fmt.Errorf("rolling window must be positive, got %d", w)
		}
		catalog[RollingMeanName(w)] = rolling(w, Mean)
		catalog[RollingStdName(w)] = rolling(w, StdDev)
		lookbackOf[RollingMeanName(w)] = w
		lookbackOf[RollingStdName(w)] = w
	}

	b := &Builder{columns: append([]string(nil), columns...)}
	var unknown []string
	seen := make(map[string]bool, len(columns))
	for _, col := range columns {
		if seen[col] {
			return nil, errs.SchemaMismatch("duplicate feature column", col)
		}
		seen[col] = true

		fn, ok := catalog[col]
		if !ok {
			unknown = append(unknown, col)
			continue
		}
		b.extract = append(b.extract, fn)
		if lookbackOf[col] > b.lookback {
			b.lookback = lookbackOf[col]
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, errs.SchemaMismatch("unknown feature columns", unknown...)
	}
	return b, nil
}

func (b *Builder) Columns() []string {
	return append([]string(nil), b.columns...)
}

// Lookback is the number of prior points needed to build one vector.
func (b *Builder) Lookback() int { return b.lookback }

// BuildNext builds the vector for a virtual point at ts placed right after
// the last element of s.
func (b *Builder) BuildNext(s models.Series, ts time.Time) (models.FeatureVector, error) {
	return b.build(target{ts: ts, history: s.Values()})
}

// BuildAt builds the vector for the existing point s[i], using only the
// points before it.
func (b *Builder) BuildAt(s models.Series, i int) (models.FeatureVector, error) {
	if i < 0 || i >= len(s) {
		return models.FeatureVector{}, fmt.Errorf("index %d out of range for series of length %d", i, len(s))
	}
	return b.build(target{ts: s[i].Timestamp, history: s[:i].Values()})
}

func (b *Builder) build(t target) (models.FeatureVector, error) {
	if len(t.history) < b.lookback {
		return models.FeatureVector{}, errs.InsufficientHistory(len(t.history), b.lookback)
	}
	values := make([]float64, len(b.extract))
	for i, fn := range b.extract {
		values[i] = fn(t)
	}
	return models.FeatureVector{Names: b.Columns(), Values: values}, nil
}

// dayOfWeek numbers Monday as 0.
func dayOfWeek(ts time.Time) int {
	return (int(ts.Weekday()) + 6) % 7
}

var temporal = map[string]extractor{
	"hour":         func(t target) float64 { return float64(t.ts.Hour()) },
	"day_of_week":  func(t target) float64 { return float64(dayOfWeek(t.ts)) },
	"day_of_month": func(t target) float64 { return float64(t.ts.Day()) },
	"month":        func(t target) float64 { return float64(t.ts.Month()) },
	"is_weekend": func(t target) float64 {
		if dayOfWeek(t.ts) >= 5 {
			return 1
		}
		return 0
	},
	"hour_sin": func(t target) float64 { return math.Sin(2 * math.Pi * float64(t.ts.Hour()) / 24) },
	"hour_cos": func(t target) float64 { return math.Cos(2 * math.Pi * float64(t.ts.Hour()) / 24) },
}

func lag(k int) extractor {
	return func(t target) float64 {
		return t.history[len(t.history)-k]
	}
}

// rolling windows end at the point immediately before the target.
func rolling(w int, agg func([]float64) float64) extractor {
	return func(t target) float64 {
		return agg(t.history[len(t.history)-w:])
	}
}
