package service

import (
	"context"
	"fmt"

	"pm25cast/internal/config"
	"pm25cast/internal/errs"
	"pm25cast/internal/features"
	"pm25cast/internal/forecast"
	"pm25cast/internal/model"
	"pm25cast/internal/series"

	"github.com/sirupsen/logrus"
)

// Deps are the optional external collaborators.
type Deps struct {
	Store  HistoryStore
	Redis  model.StreamClient // required when the remote model is enabled
	S3     model.ObjectGetter // nil builds a client on demand for s3:// paths
	Log    *logrus.Entry
	Option []Option
	Loop   []forecast.Option
}

// FromConfig loads the model artifact and wires the pipeline. Column and
// artifact disagreements surface here as SchemaMismatchError so the process
// can refuse to start.
func FromConfig(ctx context.Context, cfg *config.Config, deps Deps) (*Forecaster, error) {
	if deps.Log == nil {
		deps.Log = logrus.NewEntry(logrus.StandardLogger())
	}

	getter, err := objectGetter(ctx, cfg, deps, cfg.Model.Path, cfg.Model.ColumnsPath)
	if err != nil {
		return nil, err
	}

	adapter, err := model.Load(ctx, model.LoadOptions{
		ModelPath:    cfg.Model.Path,
		ColumnsPath:  cfg.Model.ColumnsPath,
		Remote:       cfg.Model.Remote.Enabled,
		RemoteClient: deps.Redis,
		RemoteOpts: model.RemoteOptions{
			InputStream:  cfg.Model.Remote.InputStream,
			OutputStream: cfg.Model.Remote.OutputStream,
			Timeout:      cfg.Model.Remote.Timeout,
		},
		S3:  getter,
		Log: deps.Log,
	})
	if err != nil {
		return nil, err
	}

	builder, err := features.NewBuilder(adapter.Columns(), features.Options{
		Lags:    cfg.Forecast.Lags,
		Windows: cfg.Forecast.Windows,
	})
	if err != nil {
		return nil, err
	}
	if builder.Lookback() > cfg.Forecast.MinHistory {
		return nil, fmt.Errorf("model needs %d hours of history but forecast.min_history is %d",
			builder.Lookback(), cfg.Forecast.MinHistory)
	}

	loopOpts := append([]forecast.Option{forecast.WithHorizon(cfg.Forecast.Horizon)}, deps.Loop...)
	loop := forecast.New(builder, adapter, loopOpts...)

	opts := append([]Option{WithLogger(deps.Log)}, deps.Option...)
	if deps.Store != nil {
		opts = append(opts, WithHistoryStore(deps.Store))
	}
	return New(loop, len(adapter.Columns()), Options{
		Series: series.Options{
			MinHistory:        cfg.Forecast.MinHistory,
			RequireContiguous: cfg.Forecast.RequireContiguous,
		},
		HistoryHours: cfg.Forecast.HistoryHours,
		CacheSize:    cfg.Forecast.CacheSize,
		Timeout:      cfg.Forecast.Timeout,
	}, opts...)
}

// BuilderFromConfig returns a feature builder bound to the configured
// column list without loading the model.
func BuilderFromConfig(ctx context.Context, cfg *config.Config, deps Deps) (*features.Builder, error) {
	getter, err := objectGetter(ctx, cfg, deps, cfg.Model.ColumnsPath)
	if err != nil {
		return nil, err
	}
	data, err := model.ReadSource(ctx, cfg.Model.ColumnsPath, getter)
	if err != nil {
		return nil, errs.SchemaMismatchCause("failed to load feature columns", err)
	}
	cols, err := model.ParseColumns(data)
	if err != nil {
		return nil, errs.SchemaMismatchCause("invalid feature columns", err)
	}
	return features.NewBuilder(cols, features.Options{Lags: cfg.Forecast.Lags, Windows: cfg.Forecast.Windows})
}

func objectGetter(ctx context.Context, cfg *config.Config, deps Deps, paths ...string) (model.ObjectGetter, error) {
	if deps.S3 != nil {
		return deps.S3, nil
	}
	for _, p := range paths {
		if !model.IsS3URI(p) {
			continue
		}
		client, err := model.NewS3Client(ctx, model.S3Options{
			Region:    cfg.Model.S3.Region,
			Endpoint:  cfg.Model.S3.Endpoint,
			PathStyle: cfg.Model.S3.PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return nil, nil
}
