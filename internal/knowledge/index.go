// Package knowledge provides the full-text knowledge index behind the
// semantic_search lookup.
package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Doc is one knowledge-base article.
type Doc struct {
	ID     string   `json:"id" yaml:"id"`
	Title  string   `json:"title" yaml:"title"`
	Body   string   `json:"body" yaml:"body"`
	Tags   []string `json:"tags" yaml:"tags"`
	Source string   `json:"source" yaml:"source"`
}

// Hit is a search result.
type Hit struct {
	ID     string
	Title  string
	Body   string
	Source string
	Score  float64
}

// Index wraps a bleve index.
type Index struct {
	mu    sync.RWMutex
	index bleve.Index
	path  string
}

// Open opens the index at path, creating it if missing. An empty path
// gives an in-memory index.
func Open(path string) (*Index, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(buildMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory index: %w", err)
		}
		return &Index{index: idx}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	var idx bleve.Index
	var err error
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		idx, err = bleve.New(path, buildMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create knowledge index: %w", err)
		}
	} else {
		idx, err = bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open knowledge index: %w", err)
		}
	}
	return &Index{index: idx, path: path}, nil
}

func buildMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	keyword := bleve.NewKeywordFieldMapping()

	docMapping.AddFieldMappingsAt("title", text)
	docMapping.AddFieldMappingsAt("body", text)
	docMapping.AddFieldMappingsAt("tags", keyword)
	docMapping.AddFieldMappingsAt("source", keyword)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = docMapping
	m.DefaultAnalyzer = standard.Name
	return m
}

// Add indexes a document. Documents without an ID get one.
func (i *Index) Add(ctx context.Context, doc Doc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(doc.Title) == "" && strings.TrimSpace(doc.Body) == "" {
		return fmt.Errorf("document has no title or body")
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.index.Index(doc.ID, doc); err != nil {
		return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
	}
	return nil
}

// Search returns up to limit hits ranked by relevance. Title matches weigh
// more than body matches.
func (i *Index) Search(ctx context.Context, text string, limit int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	title := bleve.NewMatchQuery(text)
	title.SetField("title")
	title.SetBoost(2.0)
	body := bleve.NewMatchQuery(text)
	body.SetField("body")
	tags := bleve.NewTermQuery(strings.ToLower(text))
	tags.SetField("tags")

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery([]query.Query{title, body, tags}...))
	req.Size = limit
	req.Fields = []string{"*"}

	i.mu.RLock()
	res, err := i.index.Search(req)
	i.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		t, _ := h.Fields["title"].(string)
		b, _ := h.Fields["body"].(string)
		src, _ := h.Fields["source"].(string)
		hits = append(hits, Hit{ID: h.ID, Title: t, Body: b, Source: src, Score: h.Score})
	}
	return hits, nil
}

// Count returns the number of indexed documents.
func (i *Index) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.index.DocCount()
}

// Close releases the index.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.index.Close()
}

// LoadDocs reads a YAML list of documents.
func LoadDocs(path string) ([]Doc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge docs: %w", err)
	}
	var file struct {
		Documents []Doc `yaml:"documents"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge docs: %w", err)
	}
	return file.Documents, nil
}

// Seed indexes docs and returns how many were added.
func (i *Index) Seed(ctx context.Context, docs []Doc) (int, error) {
	n := 0
	for _, d := range docs {
		if err := i.Add(ctx, d); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
