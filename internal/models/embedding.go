package models

import (
	"context"
	"time"
)

// Page is the plain text of one physical page of a loaded document.
type Page struct {
	Index int
	Text  string
}

// Document is the ordered list of pages extracted from a source file.
type Document struct {
	Source string
	Pages  []Page
}

// Passage represents a parsed chunk with metadata
type Passage struct {
	Content string `json:"content"`
	Page    int    `json:"page"`
	ChunkID int    `json:"chunk_id"`
	Seq     int    `json:"seq"`
}

type IndexEntry struct {
	Passage   Passage
	Embedding []float32
}

type SearchResult struct {
	Passage Passage `json:"passage"`
	Score   float32 `json:"score"`
}

// AnswerRecord is one answered question together with the passages it was grounded on.
type AnswerRecord struct {
	Question   string         `json:"question"`
	Answer     string         `json:"answer"`
	Sources    []SearchResult `json:"sources"`
	Comparison string         `json:"comparison,omitempty"`
	AskedAt    time.Time      `json:"asked_at"`
}

// IndexHandle is an opened vector collection.
type IndexHandle interface {
	Name() string
	Count() int
	// Search returns at most k entries ordered by descending similarity,
	// equal scores in insertion order.
	Search(ctx context.Context, query []float32, k int) ([]SearchResult, error)
}

// VectorIndex creates and reopens named collections.
type VectorIndex interface {
	// Build replaces the named collection with entries. A failed build
	// leaves no partially populated collection behind.
	Build(ctx context.Context, name string, entries []IndexEntry) (IndexHandle, error)
	Open(ctx context.Context, name string) (IndexHandle, error)
}
