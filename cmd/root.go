package cmd

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-classifier/internal/logger"
)

const (
	app       = "cv-classifier"
	envPrefix = "CV_CLASSIFIER"
)

type Config struct {
	ModelsDir     string          `mapstructure:"models-dir"`
	DeepModelsDir string          `mapstructure:"deep-models-dir"`
	HistoryDB     string          `mapstructure:"history-db"`
	CacheSize     int             `mapstructure:"cache-size"`
	Log           *LogConfig      `mapstructure:"log"`
	Training      *TrainingConfig `mapstructure:"training"`
	Deep          *DeepConfig     `mapstructure:"deep"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max-size-mb"`
	MaxBackups int    `mapstructure:"max-backups"`
	MaxAgeDays int    `mapstructure:"max-age-days"`
}

type TrainingConfig struct {
	Algorithm string  `mapstructure:"algorithm"`
	TestSize  float64 `mapstructure:"test-size"`
	Seed      int64   `mapstructure:"seed"`
	Workers   int     `mapstructure:"workers"`
}

type DeepConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey      string  `mapstructure:"api-key"`
	APIKeyFile  string  `mapstructure:"api-key-file"`
	Model       string  `mapstructure:"model"`
	MaxRetries  int     `mapstructure:"max-retries"`
	BatchSize   int     `mapstructure:"batch-size"`
	Temperature float64 `mapstructure:"temperature"`
}

var defaults = map[string]any{
	"models-dir":               "models",
	"deep-models-dir":          "deep_models",
	"history-db":               "training_history.db",
	"cache-size":               8,
	"log.file":                 "",
	"log.max-size-mb":          10,
	"log.max-backups":          3,
	"log.max-age-days":         28,
	"training.algorithm":       "random_forest",
	"training.test-size":       0.2,
	"training.seed":            42,
	"training.workers":         4,
	"deep.enabled":             false,
	"deep.provider":            "gemini",
	"deep.gemini.api-key":      "",
	"deep.gemini.api-key-file": "",
	"deep.gemini.model":        "gemini-embedding-001",
	"deep.gemini.max-retries":  3,
	"deep.gemini.batch-size":   32,
	"deep.gemini.temperature":  0.05,
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "cv-classifier trains models that sort résumés by profession and uses them to classify new ones",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	for key, value := range defaults {
		viper.SetDefault(key, value)
	}
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is cv-classifier.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("models-dir", "", "directory of classical models")
	rootCmd.PersistentFlags().String("deep-models-dir", "", "directory of deep-learning models")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("models-dir", rootCmd.PersistentFlags().Lookup("models-dir"))
	viper.BindPFlag("deep-models-dir", rootCmd.PersistentFlags().Lookup("deep-models-dir"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Every key has a default, so only a broken or explicitly requested
	// file is fatal.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		logger.Stderr().Fatal("reading config", zap.Error(err))
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}

// bootstrap reads the config and builds the logger. Failures are fatal.
func bootstrap() (*Config, *zap.Logger) {
	config, err := getConfig()
	if err != nil {
		logger.Stderr().Fatal("getting a config", zap.Error(err))
	}

	log, err := logger.New(logger.Options{
		JSON:       viper.GetBool("json"),
		Debug:      viper.GetBool("debug"),
		File:       config.Log.File,
		MaxSizeMB:  config.Log.MaxSizeMB,
		MaxBackups: config.Log.MaxBackups,
		MaxAgeDays: config.Log.MaxAgeDays,
	})
	if err != nil {
		logger.Stderr().Fatal("creating a logger", zap.Error(err))
	}

	log.Debug("starting", zap.String("version", version), zap.String("config", viper.ConfigFileUsed()))
	return config, log
}
