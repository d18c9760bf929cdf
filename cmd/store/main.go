package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pm25cast/internal/config"
	"pm25cast/internal/database"
	"pm25cast/internal/logger"
	"pm25cast/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	consumerGroup = "pm25_consumers"
	consumerName  = "consumer-1"
)

type measurementStore interface {
	StoreMeasurements(ctx context.Context, ms []models.Measurement) (int, error)
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
	log := logger.WithComponent("store")

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

	stream := redisCfg.Stream
	err = redisClient.XGroupCreateMkStream(context.Background(), stream, consumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		log.WithError(err).Fatal("failed to create consumer group")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithField("stream", stream).Info("store started, reading from redis stream")

	for {
		msgs, err := redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    consumerGroup,
			Consumer: consumerName,
			Streams:  []string{stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if ctx.Err() != nil {
			break
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			log.WithError(err).Warn("failed to read from redis")
			continue
		}

		for _, msg := range msgs {
			for _, m := range msg.Messages {
				n, err := handleMessage(ctx, db, m.Values)
				if err != nil {
					// Left pending for inspection; malformed payloads are never retried.
					log.WithError(err).WithField("id", m.ID).Warn("failed to store message")
					continue
				}
				log.WithFields(logrus.Fields{"id": m.ID, "stored": n}).Info("stored measurements")
				redisClient.XAck(context.Background(), stream, consumerGroup, m.ID)
			}
		}
	}

	log.Info("store service stopped")
}

// handleMessage decodes one stream entry and upserts its hourly values.
func handleMessage(ctx context.Context, store measurementStore, values map[string]interface{}) (int, error) {
	raw, ok := values["data"].(string)
	if !ok {
		return 0, fmt.Errorf("message has no data field")
	}

	var payload models.StreamPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return 0, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if payload.AirQuality == nil {
		return 0, fmt.Errorf("payload for %s has no air quality data", payload.Location.Name)
	}

	ms, err := payload.AirQuality.Measurements(payload.Location.Name)
	if err != nil {
		return 0, fmt.Errorf("bad air quality data for %s: %w", payload.Location.Name, err)
	}
	return store.StoreMeasurements(ctx, ms)
}
