package cmd

import (
	"testing"
)

func TestDecodeGenerationSettingsDefaults(t *testing.T) {
	settings, err := decodeGenerationSettings(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if settings.Temperature != 0.7 || settings.MaxOutputTokens != 1500 {
		t.Fatalf("unexpected defaults: %+v", settings)
	}
}

func TestDecodeGenerationSettingsOverrides(t *testing.T) {
	settings, err := decodeGenerationSettings(map[string]any{
		"temperature":       "0.3",
		"top-k":             20,
		"max-output-tokens": 512,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if settings.Temperature != 0.3 {
		t.Fatalf("unexpected temperature: %v", settings.Temperature)
	}

	if settings.TopK != 20 {
		t.Fatalf("unexpected topK: %v", settings.TopK)
	}

	if settings.MaxOutputTokens != 512 {
		t.Fatalf("unexpected maxOutputTokens: %v", settings.MaxOutputTokens)
	}

	// Untouched knobs keep their defaults.
	if settings.TopP != 0.9 {
		t.Fatalf("unexpected topP: %v", settings.TopP)
	}
}

func TestDecodeGenerationSettingsBadValue(t *testing.T) {
	if _, err := decodeGenerationSettings(map[string]any{"temperature": "warm"}); err == nil {
		t.Fatal("expected error for undecodable value")
	}
}
