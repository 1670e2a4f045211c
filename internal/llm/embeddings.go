package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultEmbeddingModel is used when no model is configured.
const DefaultEmbeddingModel = "text-embedding-004"

// EmbeddingClient turns text into vectors through the Gemini API, or through
// Vertex AI when no API key is given.
type EmbeddingClient struct {
	client *genai.Client
	model  string
}

// EmbeddingConfig selects the embeddings backend. With APIKey set the Gemini
// API is used; otherwise Project and Location address Vertex AI.
type EmbeddingConfig struct {
	APIKey   string
	Project  string
	Location string
	Model    string
}

func NewEmbeddingClient(ctx context.Context, cfg EmbeddingConfig) (*EmbeddingClient, error) {
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.APIKey == "" {
		if cfg.Project == "" {
			return nil, fmt.Errorf("embeddings need GEMINI_API_KEY or a Google Cloud project")
		}
		cc = &genai.ClientConfig{
			Backend:  genai.BackendVertexAI,
			Project:  cfg.Project,
			Location: cfg.Location,
		}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &EmbeddingClient{client: client, model: model}, nil
}

// Embed returns one vector per text, in order, from a single request.
func (e *EmbeddingClient) Embed(ctx context.Context, texts ...string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.Text(t)...)
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType: "SEMANTIC_SIMILARITY",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding for text %d", i)
		}
		out[i] = emb.Values
	}
	return out, nil
}
