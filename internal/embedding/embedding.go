package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"resume-rag/internal/config"
	"resume-rag/internal/models"
)

// NewEmbedder creates the langchaingo embedder for the configured provider.
func NewEmbedder(llmConfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        llmConfig.Provider,
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Creating embedder")

	var client embeddings.EmbedderClient
	switch llmConfig.Provider {
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithEmbeddingModel(llmConfig.Model),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, &models.ConfigurationError{Field: "embed_llm", Reason: err.Error()}
		}
		client = llm
	case config.ProviderOllama:
		llm, err := ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
		)
		if err != nil {
			return nil, &models.ConfigurationError{Field: "embed_llm", Reason: err.Error()}
		}
		client = llm
	default:
		return nil, &models.ConfigurationError{Field: "embed_llm.provider", Reason: fmt.Sprintf("unknown provider %q", llmConfig.Provider)}
	}

	batchSize := llmConfig.BatchSize
	if batchSize <= 0 {
		batchSize = 512
	}
	return embeddings.NewEmbedder(client, embeddings.WithBatchSize(batchSize))
}

// Client turns passages and queries into vectors and reports every failure
// as a *models.EmbeddingServiceError.
type Client struct {
	embedder embeddings.Embedder
}

func NewClient(embedder embeddings.Embedder) *Client {
	return &Client{embedder: embedder}
}

// Embed returns one vector per text, in input order. All vectors share one dimension.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := c.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, &models.EmbeddingServiceError{Op: "embed documents", Err: err}
	}
	if len(vectors) != len(texts) {
		return nil, &models.EmbeddingServiceError{
			Op:  "embed documents",
			Err: fmt.Errorf("got %d vectors for %d texts", len(vectors), len(texts)),
		}
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, &models.EmbeddingServiceError{Op: "embed documents", Err: fmt.Errorf("empty vector for text %d", i)}
		}
		if len(v) != dim {
			return nil, &models.EmbeddingServiceError{
				Op:  "embed documents",
				Err: fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim),
			}
		}
	}

	log.Debug().Int("texts", len(texts)).Int("dimension", dim).Msg("Embedded documents")
	return vectors, nil
}

// EmbedQuery embeds a single question.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty query")
	}
	vector, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, &models.EmbeddingServiceError{Op: "embed query", Err: err}
	}
	if len(vector) == 0 {
		return nil, &models.EmbeddingServiceError{Op: "embed query", Err: errors.New("empty vector")}
	}
	return vector, nil
}
