package features

import (
	"math"
	"testing"
	"time"

	"pm25cast/internal/errs"
	"pm25cast/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-01-01 is a Monday.
var monday = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func rampSeries(n int) models.Series {
	s := make(models.Series, n)
	for i := range s {
		s[i] = models.TimePoint{Timestamp: monday.Add(time.Duration(i) * time.Hour), Value: float64(i + 1)}
	}
	return s
}

func TestDefaultColumns(t *testing.T) {
	cols := DefaultColumns()
	assert.Len(t, cols, 21)
	assert.Equal(t, "hour", cols[0])
	assert.Equal(t, "pm25_lag_1h", cols[7])
	assert.Equal(t, "pm25_rolling_mean_3h", cols[13])
	assert.Equal(t, "pm25_rolling_std_24h", cols[20])
}

func TestNewBuilder_UnknownColumn(t *testing.T) {
	_, err := NewBuilder([]string{"hour", "temperature_2m", "pm25_lag_5h"}, Options{})
	var se *errs.SchemaMismatchError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"pm25_lag_5h", "temperature_2m"}, se.Unknown)
}

func TestNewBuilder_RejectsBadConfig(t *testing.T) {
	_, err := NewBuilder(nil, Options{})
	assert.Equal(t, errs.KindSchemaMismatch, errs.KindOf(err))

	_, err = NewBuilder([]string{"hour", "hour"}, Options{})
	assert.Equal(t, errs.KindSchemaMismatch, errs.KindOf(err))

	_, err = NewBuilder([]string{"hour"}, Options{Lags: []int{0}})
	assert.Error(t, err)

	_, err = NewBuilder([]string{"hour"}, Options{Windows: []int{-3}})
	assert.Error(t, err)
}

func TestBuildNext_OrderMatchesColumns(t *testing.T) {
	cols := []string{"pm25_lag_24h", "hour", "pm25_rolling_mean_3h", "month", "pm25_lag_1h"}
	b, err := NewBuilder(cols, Options{})
	require.NoError(t, err)
	assert.Equal(t, 24, b.Lookback())

	s := rampSeries(24) // values 1..24, last at 23:00
	v, err := b.BuildNext(s, s.Last().Timestamp.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, cols, v.Names)
	assert.Equal(t, []float64{1, 0, 23, 1, 24}, v.Values)
}

func TestBuildNext_TemporalFeatures(t *testing.T) {
	b, err := NewBuilder([]string{"hour", "day_of_week", "day_of_month", "month", "is_weekend", "hour_sin", "hour_cos"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, b.Lookback())

	tests := []struct {
		name    string
		ts      time.Time
		dow     float64
		weekend float64
	}{
		{"monday", monday.Add(6 * time.Hour), 0, 0},
		{"friday", monday.AddDate(0, 0, 4).Add(6 * time.Hour), 4, 0},
		{"saturday", monday.AddDate(0, 0, 5).Add(6 * time.Hour), 5, 1},
		{"sunday", monday.AddDate(0, 0, 6).Add(6 * time.Hour), 6, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := b.BuildNext(nil, tt.ts)
			require.NoError(t, err)
			assert.Equal(t, 6.0, v.Values[0])
			assert.Equal(t, tt.dow, v.Values[1])
			assert.Equal(t, float64(tt.ts.Day()), v.Values[2])
			assert.Equal(t, 1.0, v.Values[3])
			assert.Equal(t, tt.weekend, v.Values[4])
			assert.InDelta(t, 1.0, v.Values[5], 1e-12)
			assert.InDelta(t, 0.0, v.Values[6], 1e-12)
		})
	}
}

func TestBuildNext_RollingWindowsEndBeforeTarget(t *testing.T) {
	cols := []string{"pm25_rolling_mean_3h", "pm25_rolling_std_3h", "pm25_rolling_mean_24h", "pm25_rolling_std_24h"}
	b, err := NewBuilder(cols, Options{})
	require.NoError(t, err)

	s := rampSeries(30) // 1..30
	v, err := b.BuildNext(s, s.Last().Timestamp.Add(time.Hour))
	require.NoError(t, err)

	assert.InDelta(t, 29.0, v.Values[0], 1e-12) // mean(28,29,30)
	assert.InDelta(t, 1.0, v.Values[1], 1e-12)
	assert.InDelta(t, 18.5, v.Values[2], 1e-12) // mean(7..30)
	assert.InDelta(t, math.Sqrt(50), v.Values[3], 1e-12)
}

func TestBuildNext_ConstantSeries(t *testing.T) {
	b, err := NewBuilder(DefaultColumns(), Options{})
	require.NoError(t, err)

	s := make(models.Series, 24)
	for i := range s {
		s[i] = models.TimePoint{Timestamp: monday.Add(time.Duration(i) * time.Hour), Value: 20}
	}
	v, err := b.BuildNext(s, s.Last().Timestamp.Add(time.Hour))
	require.NoError(t, err)

	for _, k := range DefaultLags {
		got, _ := v.Get(LagName(k))
		assert.Equal(t, 20.0, got)
	}
	for _, w := range DefaultWindows {
		mean, _ := v.Get(RollingMeanName(w))
		std, _ := v.Get(RollingStdName(w))
		assert.InDelta(t, 20.0, mean, 1e-12)
		assert.Equal(t, 0.0, std)
	}
}

func TestBuildNext_InsufficientLookback(t *testing.T) {
	b, err := NewBuilder(DefaultColumns(), Options{})
	require.NoError(t, err)

	s := rampSeries(23)
	_, err = b.BuildNext(s, s.Last().Timestamp.Add(time.Hour))
	assert.Equal(t, errs.KindInsufficientHistory, errs.KindOf(err))
}

func TestBuildAt_MatchesShiftedRows(t *testing.T) {
	b, err := NewBuilder([]string{"pm25_lag_1h", "pm25_lag_3h", "pm25_rolling_mean_3h"}, Options{Lags: []int{1, 3}, Windows: []int{3}})
	require.NoError(t, err)

	s := rampSeries(10)
	v, err := b.BuildAt(s, 5) // target value 6, history 1..5
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 3, 4}, v.Values)

	_, err = b.BuildAt(s, 2)
	assert.Equal(t, errs.KindInsufficientHistory, errs.KindOf(err))

	_, err = b.BuildAt(s, 10)
	assert.Error(t, err)
}

func TestBuildNext_PositionalAcrossGaps(t *testing.T) {
	b, err := NewBuilder([]string{"pm25_lag_1h"}, Options{Lags: []int{1}, Windows: []int{}})
	require.NoError(t, err)

	s := models.Series{
		{Timestamp: monday, Value: 4},
		{Timestamp: monday.Add(5 * time.Hour), Value: 9},
	}
	v, err := b.BuildNext(s, monday.Add(6*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 9.0, v.Values[0])
}

func TestStats(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, StdDev(nil))
	assert.Equal(t, 0.0, StdDev([]float64{42}))
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-12)
	assert.InDelta(t, 1.0, StdDev([]float64{1, 2, 3}), 1e-12)
	assert.InDelta(t, math.Sqrt(2), StdDev([]float64{2, 4}), 1e-12)
}
