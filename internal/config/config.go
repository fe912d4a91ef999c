package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"resume-rag/internal/models"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	StoreChromem  = "chromem"
	StorePgvector = "pgvector"

	DriverPgdriver = "pgdriver"
	DriverPq       = "pq"
)

type Config struct {
	RAG          RAGConfig      `yaml:"rag"`
	VectorStore  string         `yaml:"vector_store"`
	EmbedLLM     LLMConfig      `yaml:"embed_llm"`
	InferenceLLM LLMConfig      `yaml:"inference_llm"`
	Database     DatabaseConfig `yaml:"database"`
	Log          LogConfig      `yaml:"log"`
}

type RAGConfig struct {
	ChunkSize             int    `yaml:"chunk_size"`
	ChunkOverlap          int    `yaml:"chunk_overlap"`
	RetrievalK            int    `yaml:"retrieval_k"`
	CollectionName        string `yaml:"collection_name"`
	CollectionPerDocument bool   `yaml:"collection_per_document"`
	PersistPath           string `yaml:"persist_path"`
	Compress              bool   `yaml:"compress"`
	EncryptionKey         string `yaml:"encryption_key"`
}

type LLMConfig struct {
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url"`
	KeyEnv    string `yaml:"key_env"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`

	// Key is resolved from KeyEnv by Load and never read from the file.
	Key string `yaml:"-"`
}

type DatabaseConfig struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	PasswordEnv string `yaml:"password_env"`
	Debug       bool   `yaml:"debug"`

	Password string `yaml:"-"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig reads path, applies defaults and resolves credentials from the
// environment. A missing file yields the defaults. The result is validated.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, &models.ConfigurationError{Field: path, Reason: err.Error()}
		}
	}

	applyDefaults(&cfg)
	cfg.resolveCredentials()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = 500
	}
	if cfg.RAG.ChunkOverlap == 0 {
		cfg.RAG.ChunkOverlap = 50
	}
	if cfg.RAG.RetrievalK == 0 {
		cfg.RAG.RetrievalK = 4
	}
	if cfg.RAG.CollectionName == "" {
		cfg.RAG.CollectionName = "resume_collection"
	}
	if cfg.RAG.PersistPath == "" {
		cfg.RAG.PersistPath = "./chroma_db"
	}
	if cfg.VectorStore == "" {
		cfg.VectorStore = StoreChromem
	}

	llmDefaults(&cfg.EmbedLLM, "text-embedding-ada-002", "nomic-embed-text")
	llmDefaults(&cfg.InferenceLLM, "gpt-3.5-turbo", "llama3.1")
	if cfg.EmbedLLM.BatchSize == 0 {
		cfg.EmbedLLM.BatchSize = 512
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPgdriver
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

func llmDefaults(c *LLMConfig, openaiModel, ollamaModel string) {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	switch c.Provider {
	case ProviderOpenAI:
		if c.KeyEnv == "" {
			c.KeyEnv = "OPENAI_API_KEY"
		}
		if c.Model == "" {
			c.Model = openaiModel
		}
	case ProviderOllama:
		if c.BaseURL == "" {
			c.BaseURL = "http://localhost:11434"
		}
		if c.Model == "" {
			c.Model = ollamaModel
		}
	}
}

// resolveCredentials reads every credential exactly once.
func (c *Config) resolveCredentials() {
	if c.EmbedLLM.KeyEnv != "" {
		c.EmbedLLM.Key = os.Getenv(c.EmbedLLM.KeyEnv)
	}
	if c.InferenceLLM.KeyEnv != "" {
		c.InferenceLLM.Key = os.Getenv(c.InferenceLLM.KeyEnv)
	}
	if c.Database.PasswordEnv != "" {
		c.Database.Password = os.Getenv(c.Database.PasswordEnv)
	}
}

// Validate fails fast on missing credentials and invalid parameters.
func (c *Config) Validate() error {
	r := c.RAG
	if r.ChunkSize <= 0 {
		return &models.ConfigurationError{Field: "rag.chunk_size", Reason: "must be positive"}
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		return &models.ConfigurationError{Field: "rag.chunk_overlap", Reason: fmt.Sprintf("must be in [0, %d)", r.ChunkSize)}
	}
	if r.RetrievalK <= 0 {
		return &models.ConfigurationError{Field: "rag.retrieval_k", Reason: "must be positive"}
	}
	if r.EncryptionKey != "" && len(r.EncryptionKey) != 32 {
		return &models.ConfigurationError{Field: "rag.encryption_key", Reason: "must be 32 bytes long"}
	}

	if err := c.EmbedLLM.validate("embed_llm"); err != nil {
		return err
	}
	if err := c.InferenceLLM.validate("inference_llm"); err != nil {
		return err
	}

	switch c.VectorStore {
	case StoreChromem:
	case StorePgvector:
		if c.Database.DSN == "" {
			return &models.ConfigurationError{Field: "database.dsn", Reason: "required for the pgvector store"}
		}
		if c.Database.Driver != DriverPgdriver && c.Database.Driver != DriverPq {
			return &models.ConfigurationError{Field: "database.driver", Reason: fmt.Sprintf("unknown driver %q", c.Database.Driver)}
		}
	default:
		return &models.ConfigurationError{Field: "vector_store", Reason: fmt.Sprintf("unknown store %q", c.VectorStore)}
	}
	return nil
}

func (l *LLMConfig) validate(field string) error {
	switch l.Provider {
	case ProviderOpenAI:
		if l.Key == "" {
			return &models.ConfigurationError{Field: field + ".key_env", Reason: fmt.Sprintf("environment variable %s is not set", l.KeyEnv)}
		}
	case ProviderOllama:
	default:
		return &models.ConfigurationError{Field: field + ".provider", Reason: fmt.Sprintf("unknown provider %q", l.Provider)}
	}
	if l.Model == "" {
		return &models.ConfigurationError{Field: field + ".model", Reason: "must be set"}
	}
	return nil
}
