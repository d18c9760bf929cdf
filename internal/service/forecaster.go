// Package service composes the normalizer, feature builder, forecast loop
// and model into the operations exposed by the HTTP server and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"pm25cast/internal/errs"
	"pm25cast/internal/forecast"
	"pm25cast/internal/metrics"
	"pm25cast/internal/models"
	"pm25cast/internal/series"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// ErrNoHistoryStore is returned by ForecastLocation when no database is
// configured.
var ErrNoHistoryStore = errors.New("location forecasts are not enabled")

// HistoryStore supplies stored hourly history for named locations.
type HistoryStore interface {
	GetLocationByName(ctx context.Context, name string) (*models.Location, error)
	GetSeries(ctx context.Context, location string, since time.Time) (models.Series, error)
}

type Result struct {
	Predictions   []models.Prediction
	ForecastStart time.Time
	ForecastHours int
}

type Options struct {
	Series       series.Options
	HistoryHours int
	CacheSize    int
	Timeout      time.Duration
}

type cacheKey struct {
	location string
	last     int64
}

type Forecaster struct {
	loop     *forecast.Forecaster
	features int
	opts     Options
	store    HistoryStore
	clock    clockwork.Clock
	cache    *lru.Cache[cacheKey, *Result]
	log      *logrus.Entry
}

type Option func(*Forecaster)

func WithHistoryStore(s HistoryStore) Option {
	return func(f *Forecaster) { f.store = s }
}

func WithClock(c clockwork.Clock) Option {
	return func(f *Forecaster) { f.clock = c }
}

func WithLogger(l *logrus.Entry) Option {
	return func(f *Forecaster) { f.log = l }
}

// New builds a Forecaster around loop. featureCount is reported by health
// checks.
func New(loop *forecast.Forecaster, featureCount int, opts Options, options ...Option) (*Forecaster, error) {
	if opts.HistoryHours <= 0 {
		opts.HistoryHours = 48
	}
	f := &Forecaster{
		loop:     loop,
		features: featureCount,
		opts:     opts,
		clock:    clockwork.NewRealClock(),
		log:      logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, o := range options {
		o(f)
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[cacheKey, *Result](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create forecast cache: %w", err)
		}
		f.cache = cache
	}
	return f, nil
}

func (f *Forecaster) FeatureCount() int { return f.features }

func (f *Forecaster) LocationsEnabled() bool { return f.store != nil }

// Predict validates caller-supplied history and forecasts the following hours.
func (f *Forecaster) Predict(ctx context.Context, records []models.RawRecord) (res *Result, err error) {
	start := time.Now()
	defer func() { metrics.RecordForecast("request", time.Since(start), err) }()

	s, err := series.Normalize(records, f.opts.Series)
	if err != nil {
		return nil, err
	}
	return f.run(ctx, s)
}

// PredictSeries forecasts from an already ordered series.
func (f *Forecaster) PredictSeries(ctx context.Context, s models.Series) (*Result, error) {
	if err := series.Check(s, f.opts.Series); err != nil {
		return nil, err
	}
	return f.run(ctx, s)
}

// ForecastLocation forecasts from the stored history of a location. Results
// are cached until a newer measurement arrives.
func (f *Forecaster) ForecastLocation(ctx context.Context, name string) (res *Result, err error) {
	if f.store == nil {
		return nil, ErrNoHistoryStore
	}
	start := time.Now()
	defer func() { metrics.RecordForecast("location", time.Since(start), err) }()

	loc, err := f.store.GetLocationByName(ctx, name)
	if err != nil {
		return nil, err
	}

	since := f.clock.Now().Add(-time.Duration(f.opts.HistoryHours) * time.Hour)
	s, err := f.store.GetSeries(ctx, loc.Name, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", loc.Name, err)
	}
	if err := series.Check(s, f.opts.Series); err != nil {
		return nil, err
	}

	key := cacheKey{location: loc.Name, last: s.Last().Timestamp.Unix()}
	if f.cache != nil {
		if cached, ok := f.cache.Get(key); ok {
			metrics.RecordCacheLookup(true)
			return cached, nil
		}
		metrics.RecordCacheLookup(false)
	}

	res, err = f.run(ctx, s)
	if err != nil {
		return nil, err
	}
	if f.cache != nil {
		f.cache.Add(key, res)
	}
	return res, nil
}

func (f *Forecaster) run(ctx context.Context, s models.Series) (*Result, error) {
	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	preds, err := f.loop.Run(ctx, s)
	if err != nil {
		f.log.WithError(err).WithField("kind", errs.KindOf(err).String()).Warn("forecast failed")
		return nil, err
	}

	for _, p := range preds {
		metrics.LastPrediction.WithLabelValues(strconv.Itoa(p.ForecastHour)).Set(p.PredictedPM25)
	}
	f.log.WithFields(logrus.Fields{
		"history": len(s),
		"start":   s.Last().Timestamp,
	}).Debug("forecast complete")

	return &Result{
		Predictions:   preds,
		ForecastStart: s.Last().Timestamp,
		ForecastHours: len(preds),
	}, nil
}
