package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/zombor/shoplist-invoicer/internal/pricing"
)

// geminiTimeout bounds a single extraction call.
const geminiTimeout = 30 * time.Second

// Gemini implements Extractor using Google Gemini
type Gemini struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
}

// NewGemini creates a Gemini extractor. When modelName is empty the
// available models are listed and a "flash" model is preferred.
func NewGemini(ctx context.Context, apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	if modelName == "" {
		modelName, err = discoverModel(ctx, client)
		if err != nil {
			client.Close()
			return nil, err
		}
		slog.Info("Discovered Gemini model", "model", modelName)
	}

	return &Gemini{
		client:    client,
		model:     client.GenerativeModel(modelName),
		modelName: modelName,
	}, nil
}

// ModelName returns the model in use.
func (g *Gemini) ModelName() string {
	return g.modelName
}

type modelCandidate struct {
	Name    string
	Methods []string
}

func discoverModel(ctx context.Context, client *genai.Client) (string, error) {
	var candidates []modelCandidate
	it := client.ListModels(ctx)
	for {
		m, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			if rl, ok := asRateLimit("gemini", err); ok {
				return "", rl
			}
			return "", fmt.Errorf("listing gemini models: %w", err)
		}
		candidates = append(candidates, modelCandidate{Name: m.Name, Methods: m.SupportedGenerationMethods})
	}
	return pickModel(candidates)
}

// pickModel returns the first model that supports generateContent and has
// "flash" in its name, falling back to the first that supports it at all.
func pickModel(candidates []modelCandidate) (string, error) {
	var usable []string
	for _, c := range candidates {
		if slices.Contains(c.Methods, "generateContent") {
			usable = append(usable, c.Name)
		}
	}
	for _, name := range usable {
		if strings.Contains(strings.ToLower(name), "flash") {
			return name, nil
		}
	}
	if len(usable) > 0 {
		return usable[0], nil
	}
	return "", ErrNoModel
}

// ExtractItems sends the image and prompt to Gemini and parses the reply.
func (g *Gemini) ExtractItems(ctx context.Context, imageData []byte, contentType string) ([]pricing.RawLineItem, error) {
	ctx, cancel := context.WithTimeout(ctx, geminiTimeout)
	defer cancel()

	pngData, err := toPNG(imageData, contentType)
	if err != nil {
		return nil, err
	}

	// genai.ImageData takes the format suffix, not the MIME type
	resp, err := g.model.GenerateContent(ctx, genai.ImageData("png", pngData), genai.Text(listScanPrompt))
	if err != nil {
		if rl, ok := asRateLimit("gemini", err); ok {
			return nil, rl
		}
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: empty response from gemini", ErrNoItems)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	slog.Debug("Gemini response", "model", g.modelName, "text", text.String())
	return ParseLineItems(text.String())
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
