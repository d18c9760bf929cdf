package model

import (
	"context"
	"fmt"

	"pm25cast/internal/errs"

	"github.com/sirupsen/logrus"
)

type LoadOptions struct {
	ModelPath   string
	ColumnsPath string
	// Remote switches to the stream-backed worker; ModelPath is then unused.
	Remote       bool
	RemoteClient StreamClient
	RemoteOpts   RemoteOptions
	S3           ObjectGetter
	Log          *logrus.Entry
}

// Load reads the column list and the artifact once and validates their
// binding. Read, parse and binding failures are all returned as
// SchemaMismatchError.
func Load(ctx context.Context, opts LoadOptions) (*Adapter, error) {
	colData, err := ReadSource(ctx, opts.ColumnsPath, opts.S3)
	if err != nil {
		return nil, errs.SchemaMismatchCause("failed to load feature columns", err)
	}
	columns, err := ParseColumns(colData)
	if err != nil {
		return nil, errs.SchemaMismatchCause("invalid feature columns", err)
	}

	var reg Regressor
	if opts.Remote {
		if opts.RemoteClient == nil {
			return nil, fmt.Errorf("remote model requires a redis client")
		}
		reg = NewRemoteModel(opts.RemoteClient, columns, opts.RemoteOpts, opts.Log)
	} else {
		data, err := ReadSource(ctx, opts.ModelPath, opts.S3)
		if err != nil {
			return nil, errs.SchemaMismatchCause("failed to load model", err)
		}
		if reg, err = ParseArtifact(data); err != nil {
			return nil, errs.SchemaMismatchCause("invalid model artifact", err)
		}
	}

	adapter, err := NewAdapter(reg, columns)
	if err != nil {
		return nil, err
	}
	if opts.Log != nil {
		opts.Log.WithFields(logrus.Fields{
			"kind":     reg.Kind(),
			"features": len(columns),
		}).Info("model loaded")
	}
	return adapter, nil
}
