package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"pm25cast/internal/models"

	"gopkg.in/yaml.v3"
)

type Location = models.Location

var (
	instance *Config
	once     sync.Once
)

var DefaultCORSOrigins = []string{
	"https://tempo-backend-rzn2.onrender.com",
	"http://localhost:8080",
}

type Config struct {
	Server struct {
		Addr        string   `yaml:"addr"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Forecast struct {
		MinHistory        int           `yaml:"min_history"`
		Horizon           int           `yaml:"horizon"`
		Lags              []int         `yaml:"lags"`
		Windows           []int         `yaml:"windows"`
		HistoryHours      int           `yaml:"history_hours"`
		RequireContiguous bool          `yaml:"require_contiguous"`
		CacheSize         int           `yaml:"cache_size"`
		Timeout           time.Duration `yaml:"timeout"`
	} `yaml:"forecast"`
	Model struct {
		Path        string `yaml:"path"`
		ColumnsPath string `yaml:"columns_path"`
		Remote      struct {
			Enabled      bool          `yaml:"enabled"`
			InputStream  string        `yaml:"input_stream"`
			OutputStream string        `yaml:"output_stream"`
			Timeout      time.Duration `yaml:"timeout"`
		} `yaml:"remote"`
		S3 struct {
			Region    string `yaml:"region"`
			Endpoint  string `yaml:"endpoint"`
			PathStyle bool   `yaml:"path_style"`
		} `yaml:"s3"`
	} `yaml:"model"`
	Log struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		Output     string `yaml:"output"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	AirQuality struct {
		BaseURL           string  `yaml:"base_url"`
		PastDays          int     `yaml:"past_days"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
	} `yaml:"air_quality"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Stream   string `yaml:"stream"`
	} `yaml:"redis"`
	Locations []Location `yaml:"locations"`
}

// Load reads the config once. A missing file is not an error: defaults and
// environment overrides apply.
func Load(configPath string) (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}

		data, readErr := os.ReadFile(configPath)
		switch {
		case errors.Is(readErr, fs.ErrNotExist):
		case readErr != nil:
			err = fmt.Errorf("failed to read config file %s: %w", configPath, readErr)
			return
		default:
			if parseErr := yaml.Unmarshal(data, instance); parseErr != nil {
				err = fmt.Errorf("failed to parse config: %w", parseErr)
				return
			}
		}

		instance.applyDefaults()
		instance.applyEnv()

		if validateErr := instance.validate(); validateErr != nil {
			err = validateErr
			return
		}
	})

	return instance, err
}

func Get() *Config {
	if instance == nil {
		panic("config not loaded - call config.Load() first")
	}
	return instance
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":5000"
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = append([]string(nil), DefaultCORSOrigins...)
	}
	if c.Forecast.MinHistory == 0 {
		c.Forecast.MinHistory = 24
	}
	if c.Forecast.Horizon == 0 {
		c.Forecast.Horizon = 6
	}
	if c.Forecast.Lags == nil {
		c.Forecast.Lags = []int{1, 2, 3, 6, 12, 24}
	}
	if c.Forecast.Windows == nil {
		c.Forecast.Windows = []int{3, 6, 12, 24}
	}
	if c.Forecast.HistoryHours == 0 {
		c.Forecast.HistoryHours = 48
	}
	if c.Forecast.CacheSize == 0 {
		c.Forecast.CacheSize = 256
	}
	if c.Forecast.Timeout == 0 {
		c.Forecast.Timeout = 30 * time.Second
	}
	if c.Model.Path == "" {
		c.Model.Path = "models/pm25_model.yaml"
	}
	if c.Model.ColumnsPath == "" {
		c.Model.ColumnsPath = "models/feature_cols.yaml"
	}
	if c.Model.Remote.InputStream == "" {
		c.Model.Remote.InputStream = "model_input"
	}
	if c.Model.Remote.OutputStream == "" {
		c.Model.Remote.OutputStream = "model_output"
	}
	if c.Model.Remote.Timeout == 0 {
		c.Model.Remote.Timeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.AirQuality.PastDays == 0 {
		c.AirQuality.PastDays = 7
	}
	if c.AirQuality.RequestsPerSecond == 0 {
		c.AirQuality.RequestsPerSecond = 5
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "air_quality"
	}
}

func (c *Config) applyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	if raw := os.Getenv("PREDICTION_CORS_ORIGINS"); raw != "" {
		if origins := ParseOrigins(raw); len(origins) > 0 {
			c.Server.CORSOrigins = origins
		}
	}
	if v := os.Getenv("MODEL_PATH"); v != "" {
		c.Model.Path = v
	}
	if v := os.Getenv("FEATURE_COLS_PATH"); v != "" {
		c.Model.ColumnsPath = v
	}
	if v := os.Getenv("MIN_HISTORY_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Forecast.MinHistory = n
		}
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

// ParseOrigins splits a comma or semicolon separated origin list.
func ParseOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(strings.ReplaceAll(raw, ";", ","), ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c *Config) validate() error {
	if c.Forecast.Horizon < 1 {
		return fmt.Errorf("forecast.horizon must be at least 1")
	}
	need := 1
	for _, k := range c.Forecast.Lags {
		if k <= 0 {
			return fmt.Errorf("forecast.lags must be positive, got %d", k)
		}
		if k > need {
			need = k
		}
	}
	for _, w := range c.Forecast.Windows {
		if w <= 0 {
			return fmt.Errorf("forecast.windows must be positive, got %d", w)
		}
		if w > need {
			need = w
		}
	}
	if c.Forecast.MinHistory < need {
		return fmt.Errorf("forecast.min_history (%d) must cover the largest lag or window (%d)", c.Forecast.MinHistory, need)
	}
	if c.Forecast.HistoryHours < c.Forecast.MinHistory {
		return fmt.Errorf("forecast.history_hours (%d) cannot be less than forecast.min_history (%d)", c.Forecast.HistoryHours, c.Forecast.MinHistory)
	}
	for i, loc := range c.Locations {
		if loc.Name == "" {
			return fmt.Errorf("locations[%d].name cannot be empty", i)
		}
		if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
			return fmt.Errorf("locations[%d] (%s) has invalid coordinates", i, loc.Name)
		}
	}
	return nil
}
