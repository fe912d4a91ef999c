package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"resume-rag/internal/config"
	"resume-rag/internal/helper"
	"resume-rag/internal/models"
	"resume-rag/internal/parser"
)

// Embedder turns passages and questions into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator sends one prompt to the language model.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type RAG struct {
	loader   *parser.Loader
	index    models.VectorIndex
	embedder Embedder
	llm      Generator
	cfg      config.RAGConfig
}

func NewRAG(index models.VectorIndex, embedder Embedder, llm Generator, cfg *config.Config) *RAG {
	return &RAG{
		loader:   &parser.Loader{},
		index:    index,
		embedder: embedder,
		llm:      llm,
		cfg:      cfg.RAG,
	}
}

// QueryOptions tunes a single question. A zero K uses the configured retrieval_k.
type QueryOptions struct {
	K                 int
	IncludeComparison bool
}

// ProcessFile loads the document at path and indexes it.
func (r *RAG) ProcessFile(ctx context.Context, path string) (models.IndexHandle, error) {
	doc, err := r.loader.Load(path)
	if err != nil {
		return nil, err
	}
	return r.Process(ctx, doc)
}

// ProcessUpload indexes an uploaded document given as raw bytes.
func (r *RAG) ProcessUpload(ctx context.Context, filename string, data []byte) (models.IndexHandle, error) {
	doc, err := r.loader.LoadBytes(filename, data)
	if err != nil {
		return nil, err
	}
	return r.Process(ctx, doc)
}

// Process chunks and embeds doc, then replaces its collection. Nothing is
// written to the index unless every passage was embedded.
func (r *RAG) Process(ctx context.Context, doc models.Document) (models.IndexHandle, error) {
	passages, err := parser.Chunk(doc.Pages, r.cfg.ChunkSize, r.cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if len(passages) == 0 {
		return nil, &models.DocumentLoadError{Path: doc.Source, Err: errors.New("no extractable text")}
	}
	log.Info().Str("source", doc.Source).Int("pages", len(doc.Pages)).Int("chunks", len(passages)).Msg("Chunked document")

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Content
	}
	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	entries := make([]models.IndexEntry, len(passages))
	for i, p := range passages {
		entries[i] = models.IndexEntry{Passage: p, Embedding: vectors[i]}
	}

	name := r.CollectionName(doc)
	handle, err := r.index.Build(ctx, name, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to build index: %w", err)
	}
	return handle, nil
}

// CollectionName is the configured collection, or one derived from the
// document content when collection_per_document is set.
func (r *RAG) CollectionName(doc models.Document) string {
	if !r.cfg.CollectionPerDocument {
		return r.cfg.CollectionName
	}
	return r.cfg.CollectionName + "_" + helper.ContentHash(doc)[:12]
}

// Open reopens the configured collection.
func (r *RAG) Open(ctx context.Context) (models.IndexHandle, error) {
	return r.OpenCollection(ctx, r.cfg.CollectionName)
}

func (r *RAG) OpenCollection(ctx context.Context, name string) (models.IndexHandle, error) {
	return r.index.Open(ctx, name)
}

// Retrieve returns the k passages most similar to question.
func (r *RAG) Retrieve(ctx context.Context, handle models.IndexHandle, question string, k int) ([]models.SearchResult, error) {
	queryEmbedding, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}
	results, err := handle.Search(ctx, queryEmbedding, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", handle.Name(), err)
	}
	log.Debug().Str("collection", handle.Name()).Int("k", k).Int("results", len(results)).Msg("Retrieved passages")
	return results, nil
}

// Answer asks the model to answer question from passages only.
func (r *RAG) Answer(ctx context.Context, question string, passages []models.Passage) (string, error) {
	return r.llm.Generate(ctx, BuildPrompt(question, passages))
}

// Compare asks the same model without any resume context.
func (r *RAG) Compare(ctx context.Context, question string) (string, error) {
	return r.llm.Generate(ctx, BuildComparisonPrompt(question))
}

// Query retrieves, answers and appends the record to a copy of history.
func (r *RAG) Query(ctx context.Context, handle models.IndexHandle, history History, question string, opts QueryOptions) (models.AnswerRecord, History, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.AnswerRecord{}, history, errors.New("empty question")
	}
	k := opts.K
	if k == 0 {
		k = r.cfg.RetrievalK
	}
	if k < 0 {
		return models.AnswerRecord{}, history, &models.ConfigurationError{Field: "k", Reason: "must be positive"}
	}

	results, err := r.Retrieve(ctx, handle, question, k)
	if err != nil {
		return models.AnswerRecord{}, history, err
	}

	passages := make([]models.Passage, len(results))
	for i, res := range results {
		passages[i] = res.Passage
	}
	answer, err := r.Answer(ctx, question, passages)
	if err != nil {
		return models.AnswerRecord{}, history, err
	}

	record := models.AnswerRecord{
		Question: question,
		Answer:   answer,
		Sources:  results,
		AskedAt:  time.Now(),
	}
	if opts.IncludeComparison {
		record.Comparison, err = r.Compare(ctx, question)
		if err != nil {
			return models.AnswerRecord{}, history, err
		}
	}

	return record, history.Append(record), nil
}

// BuildPrompt joins passages in rank order ahead of the question.
func BuildPrompt(question string, passages []models.Passage) string {
	contents := make([]string, len(passages))
	for i, p := range passages {
		contents[i] = p.Content
	}
	return fmt.Sprintf(models.GroundedPromptTemplate, strings.Join(contents, models.ContextSeparator), question)
}

func BuildComparisonPrompt(question string) string {
	return fmt.Sprintf(models.ComparisonPromptTemplate, question)
}
