package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"pm25cast/internal/api"
	"pm25cast/internal/config"
	"pm25cast/internal/database"
	"pm25cast/internal/logger"
	"pm25cast/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Hours already stored only need the latest day refreshed.
const currentPastDays = 1

type fetcher interface {
	GetHourlyPM25(ctx context.Context, lat, long float64, pastDays int) (*models.AirQuality, error)
}

type publisher interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

type collector struct {
	client   fetcher
	redis    publisher
	stream   string
	pastDays int
	log      *logrus.Entry
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Get().WithError(err).Warn("failed to load .env")
	}
	cfg, err := config.Load("./config.yaml")
	if err != nil {
		logger.Get().WithError(err).Fatal("failed to load config")
	}
	if err := logger.Get().Configure(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.MaxAgeDays); err != nil {
		logger.Get().WithError(err).Fatal("failed to configure logger")
	}
	log := logger.WithComponent("collect")
	ctx := context.Background()

	redisCfg := cfg.GetRedisConfig()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	defer redisClient.Close()

	db, err := database.NewDB(config.GetDatabaseDSN())
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer db.Close()

	locations := cfg.Locations
	if len(locations) == 0 {
		if locations, err = db.GetAllLocations(ctx); err != nil {
			log.WithError(err).Fatal("failed to load locations")
		}
	}

	withData, err := db.GetLocationsWithData(ctx)
	if err != nil {
		log.WithError(err).Fatal("failed to get locations with data")
	}

	opts := []api.Option{api.WithRateLimit(cfg.AirQuality.RequestsPerSecond)}
	if cfg.AirQuality.BaseURL != "" {
		opts = append(opts, api.WithBaseURL(cfg.AirQuality.BaseURL))
	}

	c := &collector{
		client:   api.NewOpenMeteoClient(opts...),
		redis:    redisClient,
		stream:   redisCfg.Stream,
		pastDays: cfg.AirQuality.PastDays,
		log:      log,
	}
	n := c.run(ctx, locations, withData)
	log.WithFields(logrus.Fields{"published": n, "locations": len(locations)}).Info("data collection completed")
}

// run fetches every location concurrently and returns how many payloads were
// published. New locations get the full backfill window.
func (c *collector) run(ctx context.Context, locations []models.Location, withData map[string]bool) int {
	var (
		wg        sync.WaitGroup
		published atomic.Int64
	)
	for _, loc := range locations {
		wg.Add(1)
		go func(loc models.Location) {
			defer wg.Done()

			kind, days := models.PayloadCurrent, currentPastDays
			if !withData[loc.Name] {
				kind, days = models.PayloadHistorical, c.pastDays
				c.log.WithField("location", loc.Name).Info("new location, fetching historical data")
			}

			aq, err := c.client.GetHourlyPM25(ctx, loc.Latitude, loc.Longitude, days)
			if err != nil {
				c.log.WithError(err).WithField("location", loc.Name).Warn("failed to fetch air quality")
				return
			}
			if err := c.publish(ctx, models.StreamPayload{Location: loc, AirQuality: aq, Type: kind}); err != nil {
				c.log.WithError(err).WithField("location", loc.Name).Warn("failed to publish")
				return
			}
			published.Add(1)
			c.log.WithFields(logrus.Fields{"location": loc.Name, "type": kind}).Info("published air quality data")
		}(loc)
	}
	wg.Wait()
	return int(published.Load())
}

func (c *collector) publish(ctx context.Context, p models.StreamPayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to serialize payload: %w", err)
	}
	return c.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: c.stream,
		Values: map[string]interface{}{"data": string(data)},
	}).Err()
}
