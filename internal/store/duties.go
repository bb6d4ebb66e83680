package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
)

// DutyDocument is the indexed form of a taxonomy entry.
type DutyDocument struct {
	Code   string
	Title  string
	Duties string
}

// bleveDuty is the struct Bleve maps; field names come from json tags.
type bleveDuty struct {
	Text string `json:"text"`
}

// DutyHit is one BM25 match.
type DutyHit struct {
	Code  string
	Score float64
}

// DutyIndex is an in-memory BM25 index over titles and duties text. It backs
// the lexical-only answer path used when the embedding service is down.
type DutyIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	closed bool
}

// NewDutyIndex indexes docs with the English analyzer (stemming, stop words).
func NewDutyIndex(docs []DutyDocument) (*DutyIndex, error) {
	m := bleve.NewIndexMapping()
	m.DefaultAnalyzer = en.AnalyzerName

	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create duty index: %w", err)
	}

	batch := idx.NewBatch()
	for _, d := range docs {
		text := strings.TrimSpace(d.Title + "\n" + d.Duties)
		if err := batch.Index(d.Code, bleveDuty{Text: text}); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("failed to index %s: %w", d.Code, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to execute batch: %w", err)
	}
	return &DutyIndex{index: idx}, nil
}

// Search returns up to limit entries ranked by BM25.
func (d *DutyIndex) Search(ctx context.Context, query string, limit int) ([]DutyHit, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []DutyHit{}, nil
	}

	q := bleve.NewMatchQuery(query)
	q.SetField("text")
	req := bleve.NewSearchRequest(q)
	req.Size = limit

	res, err := d.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	hits := make([]DutyHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, DutyHit{Code: h.ID, Score: h.Score})
	}
	return hits, nil
}

// Len returns the number of indexed documents.
func (d *DutyIndex) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return 0
	}
	n, err := d.index.DocCount()
	if err != nil {
		return 0
	}
	return int(n)
}

// Close releases the index.
func (d *DutyIndex) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.index.Close()
}
