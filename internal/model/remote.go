package model

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StreamClient is the subset of *redis.Client the remote model needs.
type StreamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XRead(ctx context.Context, a *redis.XReadArgs) *redis.XStreamSliceCmd
	XRevRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd
}

type RemoteOptions struct {
	InputStream  string
	OutputStream string
	Timeout      time.Duration
	PollInterval time.Duration
}

// RemoteModel hands each vector to a model worker over Redis streams: a job
// is published on the input stream and its result is awaited on the output
// stream, matched by job id.
type RemoteModel struct {
	client  StreamClient
	names   []string
	opts    RemoteOptions
	log     *logrus.Entry
	newUUID func() string
}

type remoteJob struct {
	JobID    string    `json:"job_id"`
	Features []string  `json:"features"`
	Values   []float64 `json:"values"`
}

type remoteResult struct {
	JobID      string   `json:"job_id"`
	Prediction *float64 `json:"prediction"`
	Error      string   `json:"error"`
}

func NewRemoteModel(client StreamClient, columns []string, opts RemoteOptions, log *logrus.Entry) *RemoteModel {
	if opts.InputStream == "" {
		opts.InputStream = "model_input"
	}
	if opts.OutputStream == "" {
		opts.OutputStream = "model_output"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RemoteModel{
		client:  client,
		names:   append([]string(nil), columns...),
		opts:    opts,
		log:     log,
		newUUID: uuid.NewString,
	}
}

func (m *RemoteModel) Kind() string { return KindRemote }

// FeatureNames is the column list the worker is told to expect; the worker
// rejects jobs that do not match its artifact.
func (m *RemoteModel) FeatureNames() []string { return m.names }

func (m *RemoteModel) NumFeatures() int { return len(m.names) }

func (m *RemoteModel) Predict(ctx context.Context, x []float64) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	jobID := m.newUUID()

	// Results published before our job cannot be ours.
	lastID := "0-0"
	if msgs, err := m.client.XRevRangeN(ctx, m.opts.OutputStream, "+", "-", 1).Result(); err == nil && len(msgs) > 0 {
		lastID = msgs[0].ID
	}

	data, err := json.Marshal(remoteJob{JobID: jobID, Features: m.names, Values: x})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := m.client.XAdd(ctx, &redis.XAddArgs{
		Stream: m.opts.InputStream,
		Values: map[string]interface{}{"data": string(data)},
	}).Err(); err != nil {
		return 0, fmt.Errorf("failed to publish job %s: %w", jobID, err)
	}

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("timeout waiting for result of job %s: %w", jobID, ctx.Err())
		case <-ticker.C:
		}

		streams, err := m.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{m.opts.OutputStream, lastID},
			Count:   50,
			Block:   -1,
		}).Result()
		if err != nil {
			if err != redis.Nil && ctx.Err() == nil {
				m.log.WithError(err).Warn("error reading model output stream")
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				res, ok := decodeResult(msg)
				if !ok || res.JobID != jobID {
					continue
				}
				if res.Error != "" {
					return 0, fmt.Errorf("worker rejected job %s: %s", jobID, res.Error)
				}
				if res.Prediction == nil {
					return 0, fmt.Errorf("worker returned no prediction for job %s", jobID)
				}
				return *res.Prediction, nil
			}
		}
	}
}

func decodeResult(msg redis.XMessage) (remoteResult, bool) {
	var res remoteResult
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return res, false
	}
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return res, false
	}
	return res, true
}
