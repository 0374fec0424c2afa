package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiEnricher translates text with a Gemini model.
type GeminiEnricher struct {
	client    *genai.Client
	modelName string
}

// NewGeminiEnricher creates a client for the given API key and model.
func NewGeminiEnricher(ctx context.Context, apiKey, modelName string) (*GeminiEnricher, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiEnricher{client: client, modelName: modelName}, nil
}

// Enrich returns text translated into the target language.
func (g *GeminiEnricher) Enrich(ctx context.Context, text, target string) (string, error) {
	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(0)

	res, err := model.GenerateContent(ctx, genai.Text(translationPrompt(text, target)))
	if err != nil {
		return "", err
	}
	return responseText(res)
}

// Close closes the underlying client.
func (g *GeminiEnricher) Close() error {
	return g.client.Close()
}

func translationPrompt(text, target string) string {
	return fmt.Sprintf("Translate the following text into the language with ISO 639-1 code %q. "+
		"Reply with the translation only, without quotes or explanations. "+
		"If the text is already in that language, reply with it unchanged.\n\n%s", target, text)
}

func responseText(res *genai.GenerateContentResponse) (string, error) {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil || len(res.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no response from Gemini API")
	}

	var sb strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	translated := strings.TrimSpace(sb.String())
	if translated == "" {
		return "", errors.New("unexpected response format from Gemini API")
	}
	return translated, nil
}
