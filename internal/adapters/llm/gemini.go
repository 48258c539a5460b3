package llm

import (
	"context"
	"strings"

	genai "google.golang.org/genai"

	"github.com/okian/grader/internal/domain/grading"
)

const jsonMIME = "application/json"

// GeminiClient is a thin wrapper around the official genai client. It only
// performs the API call itself.
type GeminiClient struct {
	cli   *genai.Client
	model string
}

// NewGeminiClient creates a client for the Gemini API. model is used when a
// request does not name one.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{cli: cli, model: model}, nil
}

// Name implements Client.
func (g *GeminiClient) Name() string { return "Gemini:" + g.model }

// Close implements Client.
func (g *GeminiClient) Close() error { return nil }

// Generate sends the prompt followed by the images and asks for JSON that
// conforms to the request schema.
func (g *GeminiClient) Generate(ctx context.Context, req Request) (*Reply, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}

	parts := make([]*genai.Part, 0, len(req.Images)+1)
	parts = append(parts, genai.NewPartFromText(req.Prompt))
	for _, img := range req.Images {
		mime := img.MIME
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, genai.NewPartFromBytes(img.Data, mime))
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(req.Temperature)),
		ResponseMIMEType: jsonMIME,
		ResponseSchema:   toGenaiSchema(req.Schema),
	}

	resp, err := g.cli.Models.GenerateContent(ctx, model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, cfg)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}

	out := &Reply{Text: resp.Text(), Model: model}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = grading.Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
		}
	}
	return out, nil
}

func toGenaiSchema(s *grading.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:     genai.Type(s.Type),
		Required: s.Required,
		Items:    toGenaiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = toGenaiSchema(v)
		}
	}
	return out
}
