package cmd

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/profile-evaluator/internal/ai/gemini"
	"github.com/spigell/profile-evaluator/internal/secrets"
)

const (
	app = "profile-evaluator"
)

type Config struct {
	Server  *ServerConfig  `mapstructure:"server"`
	Gemini  *GeminiConfig  `mapstructure:"gemini"`
	History *HistoryConfig `mapstructure:"history"`
	Chat    *ChatConfig    `mapstructure:"chat"`
}

type ServerConfig struct {
	Address        string   `mapstructure:"address"`
	AllowedOrigins []string `mapstructure:"allowed-origins"`
}

type GeminiConfig struct {
	APIKey     string         `mapstructure:"api-key"`
	APIKeyFile string         `mapstructure:"api-key-file"`
	Model      string         `mapstructure:"model"`
	MaxRetries int            `mapstructure:"max-retries"`
	BaseDelay  time.Duration  `mapstructure:"base-delay"`
	Generation map[string]any `mapstructure:"generation"`
}

type HistoryConfig struct {
	Backend  string       `mapstructure:"backend"`
	MaxTurns int          `mapstructure:"max-turns"`
	Redis    *RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ChatConfig struct {
	Knowledge *KnowledgeConfig `mapstructure:"knowledge"`
}

type KnowledgeConfig struct {
	Text     string   `mapstructure:"text"`
	File     string   `mapstructure:"file"`
	Keywords []string `mapstructure:"keywords"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "profile-evaluator serves a chat and PDF profile evaluation API backed by Gemini",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is profile-evaluator.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Config is needed only for commands that talk to Gemini.
	if serveCmd.CalledAs() == "" && chatCmd.CalledAs() == "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		// Environment variables can stand in for a missing default config.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config == nil {
		config = &Config{}
	}

	return config, nil
}

func resolveAPIKey(cfg *GeminiConfig) (string, error) {
	src := secrets.Source{
		Name: "gemini api key",
		Env:  "GEMINI_API_KEY",
	}

	if cfg != nil {
		src.Value = cfg.APIKey
		src.File = cfg.APIKeyFile
	}

	key, err := secrets.Load(src)
	if err != nil {
		return "", fmt.Errorf("%w (set gemini.api-key-file, GEMINI_API_KEY_FILE or GEMINI_API_KEY)", err)
	}

	return key, nil
}

// decodeGenerationSettings turns the free-form gemini.generation map from the
// config into typed settings, leaving defaults for any omitted knob.
func decodeGenerationSettings(raw map[string]any) (*gemini.GenerationSettings, error) {
	settings := gemini.DefaultGenerationSettings()
	if len(raw) == 0 {
		return settings, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           settings,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode generation settings: %w", err)
	}

	return settings, nil
}
