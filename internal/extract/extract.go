package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/spigell/profile-evaluator/internal/ai"
	"github.com/spigell/profile-evaluator/internal/utils"
)

const (
	// DefaultMaxRetries bounds upstream round-trips per request.
	DefaultMaxRetries = 3
	// DefaultBaseDelay is the first backoff step; attempt n waits baseDelay * 2^n.
	DefaultBaseDelay = time.Second

	defaultMaxLogLength = 200

	fallbackSummary   = "Failed to generate a complete response from the profile text."
	fallbackVerdict   = "Not Suitable"
	fallbackReasoning = "Could not extract sufficient content from the model response for evaluation."
	defaultReasoning  = "No reasoning provided"
)

// ErrMaxRetries is returned when every upstream attempt failed or came back empty.
var ErrMaxRetries = errors.New("max retries reached")

// The strict parse accepts only responses shaped like the prompt asks for.
// Anything else goes through field recovery.
const resultSchemaJSON = `{
	"type": "object",
	"properties": {
		"summary":   {"type": "string", "minLength": 1},
		"verdict":   {"type": "string", "minLength": 1},
		"reasoning": {"type": "string"}
	},
	"required": ["summary", "verdict"]
}`

var resultSchema = jsonschema.MustCompileString("evaluation.json", resultSchemaJSON)

var (
	summaryRe   = regexp.MustCompile(`"summary"\s*:\s*"([^"]+)"`)
	verdictRe   = regexp.MustCompile(`"verdict"\s*:\s*"([^"]+)"`)
	reasoningRe = regexp.MustCompile(`"reasoning"\s*:\s*"([^"]+)"`)

	whitespaceRe = regexp.MustCompile(`\s+`)
)

// markdown decoration stripped from conversational replies.
var markdownReplacer = strings.NewReplacer("*", "", "_", "", "`", "", "#", "")

// Pipeline turns an unreliable raw model response into a guaranteed-complete
// result, retrying the upstream call with exponential backoff when it fails
// outright.
type Pipeline struct {
	generator  ai.Generator
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
	maxLogLen  int

	wait func(ctx context.Context, d time.Duration) error
}

var _ ai.Evaluator = (*Pipeline)(nil)

// New creates a Pipeline around the provided generator. Non-positive retry
// and delay values fall back to the defaults.
func New(generator ai.Generator, maxRetries int, baseDelay time.Duration, logger *zap.Logger) *Pipeline {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		generator:  generator,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
		maxLogLen:  defaultMaxLogLength,
		wait:       utils.WaitFor,
	}
}

// Evaluate runs the prompt through the generator and extracts a complete
// three-field result from whatever text comes back. The only fatal outcome
// is retry exhaustion; malformed text degrades, it never fails.
func (p *Pipeline) Evaluate(ctx context.Context, prompt string) (*ai.EvaluationResult, error) {
	raw, err := p.generateWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return p.extract(raw), nil
}

// Generate runs the prompt through the same retry loop and returns plain
// conversational text with markdown decoration removed.
func (p *Pipeline) Generate(ctx context.Context, prompt string) (string, error) {
	raw, err := p.generateWithRetry(ctx, prompt)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(markdownReplacer.Replace(raw)), nil
}

// FallbackResult is the degraded payload surfaced when evaluation cannot
// complete at all. Always structurally complete.
func FallbackResult() *ai.EvaluationResult {
	return &ai.EvaluationResult{
		Summary:   "Unable to Evaluate",
		Verdict:   fallbackVerdict,
		Reasoning: "Unable to find an evaluation result, returning Not Suitable",
		Degraded:  true,
	}
}

func (p *Pipeline) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt < p.maxRetries; attempt++ {
		raw, err := p.generator.GenerateContent(ctx, prompt)
		if err == nil {
			return raw, nil
		}

		lastErr = err
		p.logger.Warn("generation attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", p.maxRetries),
			zap.Error(err),
		)

		if attempt == p.maxRetries-1 {
			break
		}

		if werr := p.wait(ctx, p.baseDelay<<attempt); werr != nil {
			return "", werr
		}
	}

	return "", fmt.Errorf("%w after %d attempts: %v", ErrMaxRetries, p.maxRetries, lastErr)
}

// extract never fails: strict parse first, then field recovery, then fixed
// fallbacks. The returned result always carries all three fields.
func (p *Pipeline) extract(raw string) *ai.EvaluationResult {
	cleaned := stripFences(raw)

	if result, ok := parseStrict(cleaned); ok {
		return result
	}

	normalized := normalize(cleaned)

	if result, ok := parseStrict(normalized); ok {
		p.logger.Debug("response parsed after normalization",
			zap.String("response_preview", utils.TruncateForLog(raw, p.maxLogLen)),
		)
		return result
	}

	p.logger.Warn("strict parse failed, recovering fields",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, p.maxLogLen)),
	)

	return recoverFields(normalized)
}

func parseStrict(text string) (*ai.EvaluationResult, bool) {
	var data map[string]any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, false
	}

	var untyped any = data
	if err := resultSchema.Validate(untyped); err != nil {
		return nil, false
	}

	result := &ai.EvaluationResult{
		Summary:   strings.TrimSpace(asString(data["summary"])),
		Verdict:   strings.TrimSpace(asString(data["verdict"])),
		Reasoning: strings.TrimSpace(asString(data["reasoning"])),
	}

	if result.Summary == "" || result.Verdict == "" {
		return nil, false
	}

	if result.Reasoning == "" {
		result.Reasoning = defaultReasoning
	}

	return result, true
}

// recoverFields searches for each field independently and substitutes fixed
// fallbacks for misses. It always returns a complete result.
func recoverFields(text string) *ai.EvaluationResult {
	result := &ai.EvaluationResult{
		Summary:   fallbackSummary,
		Verdict:   fallbackVerdict,
		Reasoning: fallbackReasoning,
		Degraded:  true,
	}

	if m := summaryRe.FindStringSubmatch(text); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" {
			result.Summary = v
		}
	}

	if m := verdictRe.FindStringSubmatch(text); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" {
			result.Verdict = v
		}
	}

	if m := reasoningRe.FindStringSubmatch(text); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" {
			result.Reasoning = v
		}
	}

	return result
}

func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

// normalize flattens the response for the recovery pass: whitespace runs
// collapse to a single space, stray backticks and asterisks are dropped.
func normalize(s string) string {
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "`", "")
	s = strings.ReplaceAll(s, "*", "")
	return strings.TrimSpace(s)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
