package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"resume-rag/internal/models"
)

const (
	metaPage    = "page"
	metaChunkID = "chunk_id"
	metaSeq     = "seq"
)

// VectorDBManager encapsulates the chromem-go database operations
type VectorDBManager struct {
	db            *chromem.DB
	dbPath        string
	compress      bool
	encryptionKey string
}

// NewVectorDBManager opens the database persisted under dbPath, or an
// in-memory one when inMemory is set.
func NewVectorDBManager(dbPath string, inMemory, compress bool, encryptionKey string) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if inMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	return &VectorDBManager{
		db:            db,
		dbPath:        dbPath,
		compress:      compress,
		encryptionKey: encryptionKey,
	}, nil
}

// Build replaces the named collection with entries. Entries are validated
// before the previous collection is dropped; a failed insert drops the new one.
func (m *VectorDBManager) Build(ctx context.Context, name string, entries []models.IndexEntry) (models.IndexHandle, error) {
	if err := validateEntries(entries); err != nil {
		return nil, fmt.Errorf("failed to build collection %s: %w", name, err)
	}

	if existing := m.db.GetCollection(name, nil); existing != nil {
		log.Warn().Str("collection", name).Int("entries", existing.Count()).Msg("Overwriting existing collection")
		if err := m.db.DeleteCollection(name); err != nil {
			return nil, fmt.Errorf("failed to drop collection: %w", err)
		}
	}

	c, err := m.db.CreateCollection(name, map[string]string{"entries": strconv.Itoa(len(entries))}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:        fmt.Sprintf("p%d-c%d-s%d", e.Passage.Page, e.Passage.ChunkID, e.Passage.Seq),
			Content:   e.Passage.Content,
			Metadata:  createMetadata(e.Passage),
			Embedding: e.Embedding,
		}
	}

	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		if delErr := m.db.DeleteCollection(name); delErr != nil {
			log.Error().Err(delErr).Str("collection", name).Msg("Failed to drop partially built collection")
		}
		return nil, fmt.Errorf("failed to add documents: %w", err)
	}

	log.Info().Str("collection", name).Int("entries", len(entries)).Msg("Built collection")
	return &Collection{col: c}, nil
}

// Open returns a previously built collection without re-embedding anything.
func (m *VectorDBManager) Open(_ context.Context, name string) (models.IndexHandle, error) {
	c := m.db.GetCollection(name, nil)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrCollectionNotFound, name)
	}
	return &Collection{col: c}, nil
}

// ListCollections returns collection names with their entry counts.
func (m *VectorDBManager) ListCollections() map[string]int {
	out := make(map[string]int)
	for name, c := range m.db.ListCollections() {
		out[name] = c.Count()
	}
	return out
}

// DeleteCollection drops the named collection and its persisted files.
func (m *VectorDBManager) DeleteCollection(name string) error {
	if err := m.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// Export writes the named collection to filePath, encrypted when an
// encryption key is configured.
func (m *VectorDBManager) Export(filePath, name string) error {
	if m.db.GetCollection(name, nil) == nil {
		return fmt.Errorf("%w: %s", models.ErrCollectionNotFound, name)
	}

	log.Debug().Str("collection", name).Str("file", filePath).Bool("compress", m.compress).
		Bool("encrypted", m.encryptionKey != "").Msg("Exporting collection")
	if err := m.db.ExportToFile(filePath, m.compress, m.encryptionKey, name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import loads the named collection from a file written by Export,
// replacing any collection of the same name.
func (m *VectorDBManager) Import(filePath, name string) error {
	if err := m.db.ImportFromFile(filePath, m.encryptionKey, name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	if m.db.GetCollection(name, nil) == nil {
		return fmt.Errorf("%w in %s: %s", models.ErrCollectionNotFound, filePath, name)
	}
	return nil
}

func validateEntries(entries []models.IndexEntry) error {
	if len(entries) == 0 {
		return errors.New("no entries")
	}
	dim := len(entries[0].Embedding)
	for i, e := range entries {
		if e.Passage.Content == "" {
			return fmt.Errorf("entry %d has no content", i)
		}
		if len(e.Embedding) == 0 || len(e.Embedding) != dim {
			return fmt.Errorf("entry %d has dimension %d, want %d", i, len(e.Embedding), dim)
		}
	}
	return nil
}

// meta data will have page number, chunk id and insertion sequence
func createMetadata(p models.Passage) map[string]string {
	return map[string]string{
		metaPage:    strconv.Itoa(p.Page),
		metaChunkID: strconv.Itoa(p.ChunkID),
		metaSeq:     strconv.Itoa(p.Seq),
	}
}

// Collection is an opened chromem collection.
type Collection struct {
	col *chromem.Collection
}

func (c *Collection) Name() string { return c.col.Name }

func (c *Collection) Count() int { return c.col.Count() }

// Search ranks every entry by cosine similarity and returns the best k.
// chromem's own top-k selection does not keep insertion order for equal
// scores, so the full collection is ranked here.
func (c *Collection) Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(query) == 0 {
		return nil, errors.New("empty query vector")
	}
	n := c.col.Count()
	if n == 0 {
		return nil, nil
	}

	results, err := c.col.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: query,
		NResults:       n,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		p, err := passageFromResult(r)
		if err != nil {
			return nil, err
		}
		out = append(out, models.SearchResult{Passage: p, Score: r.Similarity})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Passage.Seq < out[j].Passage.Seq
	})

	if k < len(out) {
		out = out[:k]
	}
	return out, nil
}

func passageFromResult(r chromem.Result) (models.Passage, error) {
	p := models.Passage{Content: r.Content}
	for key, dst := range map[string]*int{metaPage: &p.Page, metaChunkID: &p.ChunkID, metaSeq: &p.Seq} {
		v, err := strconv.Atoi(r.Metadata[key])
		if err != nil {
			return models.Passage{}, fmt.Errorf("document %s has bad %s metadata: %w", r.ID, key, err)
		}
		*dst = v
	}
	return p, nil
}
