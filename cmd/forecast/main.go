// Command forecast runs the PM2.5 pipeline against a JSON file of hourly
// readings without starting the HTTP service.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"pm25cast/internal/config"
	"pm25cast/internal/forecast"
	"pm25cast/internal/logger"
	"pm25cast/internal/models"
	"pm25cast/internal/series"
	"pm25cast/internal/service"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configFile  string
	modelPath   string
	columnsPath string
	verbose     bool
}

type forecastOutput struct {
	Predictions   []models.Prediction `json:"predictions"`
	ForecastStart string              `json:"forecast_start"`
	ForecastHours int                 `json:"forecast_hours"`
}

type featuresOutput struct {
	Target   string         `json:"target"`
	Features []featureValue `json:"features"`
}

type featureValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "forecast",
		Short:         "Offline PM2.5 forecasting",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&g.configFile, "config", "c", "./config.yaml", "Config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&g.modelPath, "model", "", "Model artifact path or s3:// URI (overrides config)")
	rootCmd.PersistentFlags().StringVar(&g.columnsPath, "columns", "", "Feature column list path or s3:// URI (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log every forecast step to stderr")

	rootCmd.AddCommand(runCmd(g))
	rootCmd.AddCommand(featuresCmd(g))
	return rootCmd
}

// runCmd forecasts the hours following the input history.
func runCmd(g *globalFlags) *cobra.Command {
	var input string
	var horizon int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Forecast the hours following the input history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if horizon > 0 {
				cfg.Forecast.Horizon = horizon
			}
			records, err := readRecords(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}

			deps := service.Deps{Log: log}
			if g.verbose {
				deps.Loop = append(deps.Loop, forecast.WithObserver(func(hour int, v models.FeatureVector, p float64) {
					log.WithFields(logrus.Fields{"hour": hour, "features": v.Len(), "predicted": p}).Info("forecast step")
				}))
			}

			f, err := service.FromConfig(cmd.Context(), cfg, deps)
			if err != nil {
				return fmt.Errorf("failed to load model: %w", err)
			}
			res, err := f.Predict(cmd.Context(), records)
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), forecastOutput{
				Predictions:   res.Predictions,
				ForecastStart: res.ForecastStart.Format(time.RFC3339),
				ForecastHours: res.ForecastHours,
			})
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "-", "JSON input file, - for stdin")
	cmd.Flags().IntVar(&horizon, "horizon", 0, "Hours to forecast (overrides config)")
	return cmd
}

// featuresCmd prints the feature vector for the hour after the input history.
func featuresCmd(g *globalFlags) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "features",
		Short: "Print the next-hour feature vector for the input history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			records, err := readRecords(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}

			b, err := service.BuilderFromConfig(cmd.Context(), cfg, service.Deps{Log: log})
			if err != nil {
				return err
			}
			s, err := series.Normalize(records, series.Options{
				MinHistory:        cfg.Forecast.MinHistory,
				RequireContiguous: cfg.Forecast.RequireContiguous,
			})
			if err != nil {
				return err
			}

			target := s.Last().Timestamp.Add(forecast.Step)
			v, err := b.BuildNext(s, target)
			if err != nil {
				return err
			}

			out := featuresOutput{Target: target.Format(time.RFC3339), Features: make([]featureValue, v.Len())}
			for i, name := range v.Names {
				out.Features[i] = featureValue{Name: name, Value: v.Values[i]}
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "-", "JSON input file, - for stdin")
	return cmd
}

func setup(g *globalFlags, stderr io.Writer) (*config.Config, *logrus.Entry, error) {
	loaded, err := config.Load(g.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := *loaded
	if g.modelPath != "" {
		cfg.Model.Path = g.modelPath
	}
	if g.columnsPath != "" {
		cfg.Model.ColumnsPath = g.columnsPath
	}

	log := logger.New()
	log.SetOutput(stderr)
	level := logrus.WarnLevel
	if g.verbose {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return &cfg, log.WithComponent("forecast"), nil
}

// readRecords accepts {"historical_data": [...]} or a bare array.
func readRecords(stdin io.Reader, path string) ([]models.RawRecord, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" || path == "" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var records []models.RawRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("failed to parse input: %w", err)
		}
		return records, nil
	}

	var req struct {
		HistoricalData []models.RawRecord `json:"historical_data"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse input: %w", err)
	}
	return req.HistoricalData, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
