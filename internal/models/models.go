package models

import (
	"fmt"
	"time"
)

// RawRecord is one historical observation as received from a caller.
// PM25 is left untyped so non-numeric values can be reported per record.
type RawRecord struct {
	Datetime string      `json:"datetime"`
	PM25     interface{} `json:"pm25"`
}

// TimePoint is a single hourly PM2.5 observation (or a forecast fed back in).
type TimePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Series is ordered ascending by timestamp.
type Series []TimePoint

func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}

func (s Series) Last() TimePoint {
	return s[len(s)-1]
}

func (s Series) Clone() Series {
	out := make(Series, len(s), len(s)+8)
	copy(out, s)
	return out
}

// FeatureVector holds named features in model column order.
type FeatureVector struct {
	Names  []string
	Values []float64
}

func (v FeatureVector) Len() int { return len(v.Values) }

func (v FeatureVector) Get(name string) (float64, bool) {
	for i, n := range v.Names {
		if n == name {
			return v.Values[i], true
		}
	}
	return 0, false
}

// Prediction is one forecast step.
type Prediction struct {
	Datetime      time.Time `json:"datetime"`
	PredictedPM25 float64   `json:"predicted_pm25"`
	ForecastHour  int       `json:"forecast_hour"`
}

// AirQuality represents the hourly response of the Open-Meteo Air Quality API
type AirQuality struct {
	Latitude         float64     `json:"latitude"`
	Longitude        float64     `json:"longitude"`
	Timezone         string      `json:"timezone"`
	HourlyUnits      HourlyUnits `json:"hourly_units"`
	Hourly           Hourly      `json:"hourly"`
	GenerationTimeMs float64     `json:"generation_time_ms"`
}

type HourlyUnits struct {
	Time string `json:"time"`
	PM25 string `json:"pm2_5"`
	PM10 string `json:"pm10"`
}

// Hourly values are nil where the upstream model has no data.
type Hourly struct {
	Time []string   `json:"time"`
	PM25 []*float64 `json:"pm2_5"`
	PM10 []*float64 `json:"pm10,omitempty"`
}

const openMeteoTimeLayout = "2006-01-02T15:04"

// Measurements flattens the hourly pm2_5 column, skipping hours without data.
func (a *AirQuality) Measurements(location string) ([]Measurement, error) {
	if len(a.Hourly.PM25) != len(a.Hourly.Time) {
		return nil, fmt.Errorf("pm2_5 has %d values but %d timestamps", len(a.Hourly.PM25), len(a.Hourly.Time))
	}

	out := make([]Measurement, 0, len(a.Hourly.Time))
	for i, ts := range a.Hourly.Time {
		if a.Hourly.PM25[i] == nil {
			continue
		}
		t, err := time.Parse(openMeteoTimeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp %s: %w", ts, err)
		}
		out = append(out, Measurement{
			Location:  location,
			Timestamp: t,
			PM25:      *a.Hourly.PM25[i],
		})
	}
	return out, nil
}

// Measurement represents a single stored hourly PM2.5 value
type Measurement struct {
	ID        int64     `json:"id"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
	PM25      float64   `json:"pm25"`
}

// Location represents a monitored location
type Location struct {
	ID        int64   `json:"id" yaml:"-"`
	Name      string  `json:"name" yaml:"name"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

const (
	PayloadHistorical = "historical"
	PayloadCurrent    = "current"
)

// StreamPayload is the collector's message body on the Redis stream.
type StreamPayload struct {
	Location   Location    `json:"location"`
	AirQuality *AirQuality `json:"air_quality"`
	Type       string      `json:"type"`
}
