package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Forecast metrics
var (
	// ForecastsTotal counts forecast runs by origin and outcome
	ForecastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm25_forecasts_total",
			Help: "Total number of forecast runs",
		},
		[]string{"source", "status"},
	)

	ForecastDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pm25_forecast_duration_seconds",
			Help:    "Duration of a full multi-step forecast in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// ModelInferenceDuration tracks single-step model calls
	ModelInferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pm25_model_inference_duration_seconds",
			Help:    "Duration of a single model prediction in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"model"},
	)

	ModelInferenceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm25_model_inference_errors_total",
			Help: "Total number of failed model predictions",
		},
		[]string{"model"},
	)

	// LastPrediction exposes the most recent forecast value per forecast hour
	LastPrediction = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pm25_last_prediction",
			Help: "Most recently predicted PM2.5 concentration by forecast hour",
		},
		[]string{"forecast_hour"},
	)

	ForecastCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm25_forecast_cache_lookups_total",
			Help: "Location forecast cache lookups by result",
		},
		[]string{"result"},
	)

	// UpstreamRequests tracks calls to the air quality API
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "air_quality_api_requests_total",
			Help: "Total number of air quality API requests",
		},
		[]string{"status"},
	)
)

// Database metrics
var (
	// DBQueriesTotal tracks the total number of database queries
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_queries_total",
			Help: "Total number of database queries executed",
		},
		[]string{"query_type", "table", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query_type", "table"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_open",
			Help: "Number of established connections both in use and idle",
		},
	)

	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_in_use",
			Help: "Number of connections currently in use",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle connections",
		},
	)

	AppInfo = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pm25cast_app_info",
			Help: "Application information (always 1)",
		},
	)

	AppStartTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pm25cast_app_start_time_seconds",
			Help: "Unix timestamp of when the application started",
		},
	)
)

func init() {
	AppInfo.Set(1)
	AppStartTime.SetToCurrentTime()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordForecast records one forecast run
func RecordForecast(source string, duration time.Duration, err error) {
	ForecastsTotal.WithLabelValues(source, status(err)).Inc()
	ForecastDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func RecordInference(model string, duration time.Duration, err error) {
	ModelInferenceDuration.WithLabelValues(model).Observe(duration.Seconds())
	if err != nil {
		ModelInferenceErrors.WithLabelValues(model).Inc()
	}
}

func RecordCacheLookup(hit bool) {
	if hit {
		ForecastCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	ForecastCacheLookups.WithLabelValues("miss").Inc()
}

func RecordUpstream(err error) {
	UpstreamRequests.WithLabelValues(status(err)).Inc()
}

// RecordDBQuery records a database query execution
func RecordDBQuery(queryType, table string, duration time.Duration, err error) {
	DBQueriesTotal.WithLabelValues(queryType, table, status(err)).Inc()
	DBQueryDuration.WithLabelValues(queryType, table).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics
func UpdateDBConnectionStats(open, inUse, idle int) {
	DBConnectionsOpen.Set(float64(open))
	DBConnectionsInUse.Set(float64(inUse))
	DBConnectionsIdle.Set(float64(idle))
}
