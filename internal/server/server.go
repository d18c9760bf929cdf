// Package server exposes the forecaster over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"pm25cast/internal/database"
	"pm25cast/internal/errs"
	"pm25cast/internal/models"
	"pm25cast/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Forecaster is the subset of service.Forecaster the handlers use.
type Forecaster interface {
	Predict(ctx context.Context, records []models.RawRecord) (*service.Result, error)
	ForecastLocation(ctx context.Context, name string) (*service.Result, error)
	FeatureCount() int
}

type PredictRequest struct {
	HistoricalData []models.RawRecord `json:"historical_data"`
}

type PredictResponse struct {
	Success       bool                `json:"success"`
	Predictions   []models.Prediction `json:"predictions"`
	ForecastStart string              `json:"forecast_start"`
	ForecastHours int                 `json:"forecast_hours"`
	Location      string              `json:"location,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
}

type Server struct {
	forecaster Forecaster
	origins    []string
	log        *logrus.Entry
	router     *gin.Engine
	httpServer *http.Server
}

func NewServer(f Forecaster, origins []string, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{forecaster: f, origins: origins, log: log}
	s.router = s.buildRouter()
	return s
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler { return s.router }

// SetupCORS allows the configured origins with credentials.
func SetupCORS(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	if len(s.origins) > 0 {
		router.Use(SetupCORS(s.origins))
	}

	router.GET("/", s.handleRoot)
	router.GET("/health", s.handleHealth)
	router.POST("/predict", s.handlePredict)
	router.GET("/locations/:name/forecast", s.handleLocationForecast)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := s.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request served")
	}
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":        "PM2.5 Prediction Service",
		"status":         "running",
		"forecast_hours": "6 hours ahead",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"model_loaded": true,
		"features":     s.forecaster.FeatureCount(),
	})
}

func (s *Server) handlePredict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: "invalid request body: " + err.Error()})
		return
	}

	res, err := s.forecaster.Predict(c.Request.Context(), req.HistoricalData)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(res, ""))
}

func (s *Server) handleLocationForecast(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	res, err := s.forecaster.ForecastLocation(c.Request.Context(), name)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(res, name))
}

func toResponse(res *service.Result, location string) PredictResponse {
	preds := res.Predictions
	if preds == nil {
		preds = []models.Prediction{}
	}
	return PredictResponse{
		Success:       true,
		Predictions:   preds,
		ForecastStart: res.ForecastStart.Format(time.RFC3339),
		ForecastHours: res.ForecastHours,
		Location:      location,
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		s.log.WithError(err).WithField("kind", errs.KindOf(err).String()).Error("forecast request failed")
		if errs.KindOf(err) == errs.KindModelInference {
			detail = "prediction failed: " + err.Error()
		}
	}
	c.JSON(status, ErrorResponse{Detail: detail})
}

func statusFor(err error) int {
	switch {
	case errs.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrLocationNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNoHistoryStore):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
