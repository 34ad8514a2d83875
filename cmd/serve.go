package cmd

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/profile-evaluator/internal/ai/gemini"
	"github.com/spigell/profile-evaluator/internal/extract"
	"github.com/spigell/profile-evaluator/internal/history"
	"github.com/spigell/profile-evaluator/internal/logger"
	"github.com/spigell/profile-evaluator/internal/prompt"
	"github.com/spigell/profile-evaluator/internal/server"
	"github.com/spigell/profile-evaluator/internal/server/handlers"
)

const defaultAddress = ":8080"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the profile-evaluator HTTP service",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("address", "a", defaultAddress, "listen address for the http server")

	viper.BindPFlag("server.address", serveCmd.Flags().Lookup("address"))
}

func serve() {
	ctx := context.Background()

	log, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		stdlog.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		log.Fatal("getting a config", zap.Error(err))
	}

	log.Info("starting the profile-evaluator", zap.String("version", version))

	pipeline, model, err := newPipeline(ctx, config, log)
	if err != nil {
		log.Fatal("building the evaluation pipeline", zap.Error(err))
	}

	store, closeStore, err := buildHistoryStore(ctx, config.History)
	if err != nil {
		log.Fatal("building the history store", zap.Error(err))
	}
	defer closeStore()

	knowledge, err := buildKnowledge(config.Chat)
	if err != nil {
		log.Fatal("loading chat knowledge", zap.Error(err))
	}

	address := defaultAddress
	origins := []string{}
	if config.Server != nil {
		if strings.TrimSpace(config.Server.Address) != "" {
			address = config.Server.Address
		}
		origins = config.Server.AllowedOrigins
	}
	if flagAddress := viper.GetString("server.address"); flagAddress != "" && flagAddress != defaultAddress {
		address = flagAddress
	}

	srv := server.New(server.RouterConfig{
		Logger:          log,
		AllowedOrigins:  origins,
		ChatHandler:     handlers.NewChatHandler(pipeline, store, knowledge, log),
		EvaluateHandler: handlers.NewEvaluateHandler(pipeline, nil, log),
	})

	log.Info("listening",
		zap.String("address", address),
		zap.String(logger.FieldModel, model),
	)

	if err := srv.Run(address); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}

// newPipeline wires the Gemini generator and the resilient extraction
// pipeline from the configuration. Returns the model name for logging.
func newPipeline(ctx context.Context, config *Config, log *zap.Logger) (*extract.Pipeline, string, error) {
	gcfg := config.Gemini
	if gcfg == nil {
		gcfg = &GeminiConfig{}
	}

	apiKey, err := resolveAPIKey(gcfg)
	if err != nil {
		return nil, "", err
	}

	settings, err := decodeGenerationSettings(gcfg.Generation)
	if err != nil {
		return nil, "", err
	}

	genLogger := log.With(logger.CommonFields("gemini", gcfg.Model)...)

	generator, err := gemini.NewGenerator(ctx, apiKey, gcfg.Model, settings, genLogger)
	if err != nil {
		return nil, "", err
	}

	pipeline := extract.New(generator, gcfg.MaxRetries, gcfg.BaseDelay, genLogger)

	return pipeline, generator.Model(), nil
}

func buildHistoryStore(ctx context.Context, cfg *HistoryConfig) (history.Store, func(), error) {
	maxTurns := history.DefaultMaxTurns
	backend := "memory"

	if cfg != nil {
		if cfg.MaxTurns > 0 {
			maxTurns = cfg.MaxTurns
		}
		if b := strings.ToLower(strings.TrimSpace(cfg.Backend)); b != "" {
			backend = b
		}
	}

	switch backend {
	case "memory":
		return history.NewMemoryStore(maxTurns), func() {}, nil
	case "redis":
		if cfg == nil || cfg.Redis == nil {
			return nil, nil, fmt.Errorf("redis configuration is required for the redis history backend")
		}

		store, err := history.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, maxTurns)
		if err != nil {
			return nil, nil, err
		}

		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported history backend: %s", backend)
	}
}

func buildKnowledge(cfg *ChatConfig) (prompt.Knowledge, error) {
	if cfg == nil || cfg.Knowledge == nil {
		return prompt.Knowledge{}, nil
	}

	text := cfg.Knowledge.Text
	if file := strings.TrimSpace(cfg.Knowledge.File); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return prompt.Knowledge{}, fmt.Errorf("reading knowledge file: %w", err)
		}
		text = string(data)
	}

	return prompt.Knowledge{
		Text:     text,
		Keywords: cfg.Knowledge.Keywords,
	}, nil
}
