package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"pm25cast/internal/config"
	"pm25cast/internal/database"
	"pm25cast/internal/logger"
	"pm25cast/internal/server"
	"pm25cast/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Get().WithError(err).Warn("failed to load .env")
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		logger.Get().WithError(err).Fatal("failed to load config")
	}
	if err := logger.Get().Configure(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.MaxAgeDays); err != nil {
		logger.Get().WithError(err).Fatal("failed to configure logger")
	}
	log := logger.WithComponent("server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := service.Deps{Log: logger.WithComponent("forecast")}

	if cfg.Model.Remote.Enabled {
		redisCfg := cfg.GetRedisConfig()
		rdb := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Fatal("failed to reach redis for remote model")
		}
		deps.Redis = rdb
	}

	if dsn, ok := config.DatabaseDSNFromEnv(); ok {
		db, err := database.NewDB(dsn)
		if err != nil {
			log.WithError(err).Fatal("failed to initialize database")
		}
		defer db.Close()
		deps.Store = db
		log.Info("location forecasts enabled")
	}

	forecaster, err := service.FromConfig(ctx, cfg, deps)
	if err != nil {
		log.WithError(err).Fatal("failed to load model")
	}

	gin.SetMode(gin.ReleaseMode)
	srv := server.NewServer(forecaster, cfg.Server.CORSOrigins, log)
	log.WithField("addr", cfg.Server.Addr).Info("starting prediction service")
	if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
	log.Info("server stopped")
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "./config.yaml"
}
