package llmservice

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"resume-rag/internal/config"
	"resume-rag/internal/models"
)

var thinkTagRe = regexp.MustCompile(models.ThinkTag)

// NewModel creates the chat model for the configured provider.
func NewModel(llmConfig *config.LLMConfig) (llms.Model, error) {
	log.Debug().Str("provider", llmConfig.Provider).Str("model", llmConfig.Model).Msg("Creating chat model")
	switch llmConfig.Provider {
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(llmConfig.Model),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, &models.ConfigurationError{Field: "inference_llm", Reason: err.Error()}
		}
		return llm, nil
	case config.ProviderOllama:
		llm, err := ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
		)
		if err != nil {
			return nil, &models.ConfigurationError{Field: "inference_llm", Reason: err.Error()}
		}
		return llm, nil
	default:
		return nil, &models.ConfigurationError{Field: "inference_llm.provider", Reason: fmt.Sprintf("unknown provider %q", llmConfig.Provider)}
	}
}

// Generator sends single-prompt requests with deterministic sampling.
type Generator struct {
	llm   llms.Model
	model string
}

func NewGenerator(llm llms.Model, model string) *Generator {
	return &Generator{llm: llm, model: model}
}

// Generate sends prompt as one human message at temperature 0 and returns the
// trimmed reply with any <think> blocks removed. No retry is attempted.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	msgContent := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	opts := []llms.CallOption{llms.WithTemperature(0)}
	if g.model != "" {
		opts = append(opts, llms.WithModel(g.model))
	}

	res, err := GenerateContent(ctx, g.llm, nil, msgContent, opts...)
	if err != nil {
		return "", &models.GenerationServiceError{Model: g.model, Err: err}
	}
	if len(res.Choices) == 0 {
		return "", &models.GenerationServiceError{Model: g.model, Err: errors.New("empty response")}
	}

	answer := thinkTagRe.ReplaceAllString(res.Choices[0].Content, "")
	return strings.TrimSpace(answer), nil
}

// call llm
func GenerateContent(ctx context.Context, llm llms.Model, tools []llms.Tool, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(tools))
	}
	return llm.GenerateContent(ctx, messages, opts...)
}
