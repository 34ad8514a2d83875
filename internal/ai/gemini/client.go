package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/profile-evaluator/internal/utils"
)

const (
	defaultModel           = "gemini-2.0-flash"
	defaultMaxLogLength    = 200
	defaultSafetyThreshold = "BLOCK_MEDIUM_AND_ABOVE"
)

// ErrEmptyResponse is returned when the API call succeeds but yields no
// candidate text.
var ErrEmptyResponse = errors.New("gemini api returned empty response")

// GenerationSettings carries the knobs passed through to the API on every
// request. Zero values fall back to the defaults below.
type GenerationSettings struct {
	// Temperature controls output variance; higher means more varied output.
	Temperature float32 `mapstructure:"temperature"`
	// TopP and TopK bound nucleus and top-k sampling.
	TopP float32 `mapstructure:"top-p"`
	TopK float32 `mapstructure:"top-k"`
	// MaxOutputTokens is a hard cap on generated length.
	MaxOutputTokens int32 `mapstructure:"max-output-tokens"`
	// SafetyThreshold is the block level applied to every harm category.
	SafetyThreshold string `mapstructure:"safety-threshold"`
}

// DefaultGenerationSettings returns the settings used when the configuration
// does not override them.
func DefaultGenerationSettings() *GenerationSettings {
	return &GenerationSettings{
		Temperature:     0.7,
		TopP:            0.9,
		TopK:            40,
		MaxOutputTokens: 1500,
		SafetyThreshold: defaultSafetyThreshold,
	}
}

// contentCaller is the slice of the genai client the generator depends on.
type contentCaller interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator wraps the Google GenAI client to provide simple prompt-based
// interactions. It is stateless and never retries; callers own retry policy.
type Generator struct {
	models    contentCaller
	model     string
	config    *genai.GenerateContentConfig
	logger    *zap.Logger
	maxLogLen int
}

// NewGenerator creates a new Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey, model string, settings *GenerationSettings, logger *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Generator{
		models:    client.Models,
		model:     model,
		config:    buildGenerateConfig(settings),
		logger:    logger,
		maxLogLen: defaultMaxLogLength,
	}, nil
}

// GenerateContent sends the prompt to Gemini and returns the joined candidate text.
func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	g.logger.Debug("gemini generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, g.maxLogLen)),
	)

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), g.config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", ErrEmptyResponse
	}

	g.logger.Debug("gemini generate content response",
		zap.Int("response_length", utf8.RuneCountInString(output)),
		zap.String("response_preview", utils.TruncateForLog(output, g.maxLogLen)),
	)

	return output, nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

func buildGenerateConfig(settings *GenerationSettings) *genai.GenerateContentConfig {
	defaults := DefaultGenerationSettings()
	if settings == nil {
		settings = defaults
	}

	if settings.Temperature <= 0 {
		settings.Temperature = defaults.Temperature
	}
	if settings.TopP <= 0 {
		settings.TopP = defaults.TopP
	}
	if settings.TopK <= 0 {
		settings.TopK = defaults.TopK
	}
	if settings.MaxOutputTokens <= 0 {
		settings.MaxOutputTokens = defaults.MaxOutputTokens
	}

	threshold := genai.HarmBlockThreshold(strings.TrimSpace(strings.ToUpper(settings.SafetyThreshold)))
	if threshold == "" {
		threshold = genai.HarmBlockThreshold(defaultSafetyThreshold)
	}

	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}

	safety := make([]*genai.SafetySetting, 0, len(categories))
	for _, category := range categories {
		safety = append(safety, &genai.SafetySetting{
			Category:  category,
			Threshold: threshold,
		})
	}

	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(settings.Temperature),
		TopP:            genai.Ptr(settings.TopP),
		TopK:            genai.Ptr(settings.TopK),
		MaxOutputTokens: settings.MaxOutputTokens,
		SafetySettings:  safety,
	}
}
