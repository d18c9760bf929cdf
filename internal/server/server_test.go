package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pm25cast/internal/database"
	"pm25cast/internal/errs"
	"pm25cast/internal/models"
	"pm25cast/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var start = time.Date(2024, 6, 3, 23, 0, 0, 0, time.UTC)

type stubForecaster struct {
	result *service.Result
	err    error
	got    []models.RawRecord
	name   string
}

func (s *stubForecaster) Predict(_ context.Context, records []models.RawRecord) (*service.Result, error) {
	s.got = records
	return s.result, s.err
}

func (s *stubForecaster) ForecastLocation(_ context.Context, name string) (*service.Result, error) {
	s.name = name
	return s.result, s.err
}

func (s *stubForecaster) FeatureCount() int { return 21 }

func sixHours() *service.Result {
	preds := make([]models.Prediction, 6)
	for i := range preds {
		preds[i] = models.Prediction{
			Datetime:      start.Add(time.Duration(i+1) * time.Hour),
			PredictedPM25: 10 + float64(i),
			ForecastHour:  i + 1,
		}
	}
	return &service.Result{Predictions: preds, ForecastStart: start, ForecastHours: 6}
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestRootAndHealth(t *testing.T) {
	s := NewServer(&stubForecaster{}, nil, nil)

	w := do(t, s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"PM2.5 Prediction Service","status":"running","forecast_hours":"6 hours ahead"}`, w.Body.String())

	w = do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","model_loaded":true,"features":21}`, w.Body.String())
}

func TestPredict(t *testing.T) {
	stub := &stubForecaster{result: sixHours()}
	s := NewServer(stub, nil, nil)

	body := `{"historical_data":[{"datetime":"2024-06-03T22:00:00","pm25":9.5},{"datetime":"2024-06-03T23:00:00","pm25":11}]}`
	w := do(t, s, http.MethodPost, "/predict", body)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, stub.got, 2)
	assert.Equal(t, "2024-06-03T22:00:00", stub.got[0].Datetime)

	var resp PredictResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "2024-06-03T23:00:00Z", resp.ForecastStart)
	assert.Equal(t, 6, resp.ForecastHours)
	require.Len(t, resp.Predictions, 6)
	assert.Equal(t, 1, resp.Predictions[0].ForecastHour)
	assert.Equal(t, start.Add(time.Hour), resp.Predictions[0].Datetime)
	assert.Empty(t, resp.Location)
}

func TestPredict_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{"insufficient history", errs.InsufficientHistory(10, 24), http.StatusBadRequest, "need at least 24 hours of data, got 10 hours"},
		{"validation", errs.Validation(3, "missing pm25", nil), http.StatusBadRequest, "missing pm25"},
		{"model failure", errs.ModelInference(2, errors.New("nan output")), http.StatusInternalServerError, "prediction failed"},
		{"timeout", fmt.Errorf("forecast hour 4: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "deadline"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(&stubForecaster{err: tt.err}, nil, nil)
			w := do(t, s, http.MethodPost, "/predict", `{"historical_data":[]}`)
			assert.Equal(t, tt.status, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Detail, tt.detail)
		})
	}
}

func TestPredict_MalformedBody(t *testing.T) {
	stub := &stubForecaster{result: sixHours()}
	s := NewServer(stub, nil, nil)

	w := do(t, s, http.MethodPost, "/predict", `{"historical_data": [`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, stub.got)

	w = do(t, s, http.MethodGet, "/predict", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLocationForecast(t *testing.T) {
	stub := &stubForecaster{result: sixHours()}
	s := NewServer(stub, nil, nil)

	w := do(t, s, http.MethodGet, "/locations/Denver/forecast", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Denver", stub.name)

	var resp PredictResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Denver", resp.Location)
	assert.Len(t, resp.Predictions, 6)
}

func TestLocationForecast_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unknown location", fmt.Errorf("%w: Atlantis", database.ErrLocationNotFound), http.StatusNotFound},
		{"no database", service.ErrNoHistoryStore, http.StatusServiceUnavailable},
		{"short history", errs.InsufficientHistory(3, 24), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(&stubForecaster{err: tt.err}, nil, nil)
			w := do(t, s, http.MethodGet, "/locations/Atlantis/forecast", "")
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestCORS(t *testing.T) {
	s := NewServer(&stubForecaster{}, []string{"http://localhost:3000"}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := NewServer(&stubForecaster{}, nil, nil)
	w := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := NewServer(&stubForecaster{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
