package llmservice

import (
	"context"
	"errors"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"resume-rag/internal/config"
	"resume-rag/internal/models"
)

type recordingModel struct {
	reply   string
	err     error
	prompts []string
	options []llms.CallOptions
}

func (m *recordingModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{Temperature: -1}
	for _, o := range options {
		o(&opts)
	}
	m.options = append(m.options, opts)
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				m.prompts = append(m.prompts, text.Text)
			}
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *recordingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestGenerateUsesDeterministicSampling(t *testing.T) {
	m := &recordingModel{reply: "  Python and SQL.\n"}
	g := NewGenerator(m, "gpt-3.5-turbo")

	got, err := g.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got != "Python and SQL." {
		t.Errorf("Generate = %q", got)
	}
	if len(m.options) != 1 {
		t.Fatalf("model called %d times, want 1", len(m.options))
	}
	if m.options[0].Temperature != 0 {
		t.Errorf("Temperature = %v, want 0", m.options[0].Temperature)
	}
	if m.options[0].Model != "gpt-3.5-turbo" {
		t.Errorf("Model = %q", m.options[0].Model)
	}
	if len(m.prompts) != 1 || m.prompts[0] != "prompt" {
		t.Errorf("prompts = %q", m.prompts)
	}
}

func TestGenerateStripsThinkBlocks(t *testing.T) {
	m := &recordingModel{reply: "<think>\nlet me look\n</think>\nThe resume lists SQL."}
	got, err := NewGenerator(m, "").Generate(context.Background(), "p")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got != "The resume lists SQL." {
		t.Errorf("Generate = %q", got)
	}
	if m.options[0].Model != "" {
		t.Errorf("Model = %q, want unset", m.options[0].Model)
	}
}

func TestGenerateWrapsServiceErrors(t *testing.T) {
	boom := errors.New("503 service unavailable")
	m := &recordingModel{err: boom}
	_, err := NewGenerator(m, "gpt-3.5-turbo").Generate(context.Background(), "p")
	var genErr *models.GenerationServiceError
	if !errors.As(err, &genErr) {
		t.Fatalf("Generate error = %v, want GenerationServiceError", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("Generate error %v does not wrap the cause", err)
	}
	if len(m.options) != 1 {
		t.Errorf("model called %d times, want exactly 1 (no retry)", len(m.options))
	}
}

func TestNewModelUnknownProvider(t *testing.T) {
	_, err := NewModel(&config.LLMConfig{Provider: "bard"})
	var cfgErr *models.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("NewModel error = %v, want ConfigurationError", err)
	}
}
