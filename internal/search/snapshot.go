package search

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Aman-CERP/nocmatch/internal/store"
	"github.com/Aman-CERP/nocmatch/internal/taxonomy"
)

// Snapshot is an immutable, point-in-time view of the taxonomy and its
// indexes. Queries acquire a reference for their duration; a retired
// snapshot releases its duty index once the last reference drops.
type Snapshot struct {
	Store   *taxonomy.Store
	Lexicon *Lexicon
	Vectors store.VectorIndex

	// Titles holds one vector per entry title. Title queries score against
	// it; when nil they fall back to Vectors.
	Titles store.VectorIndex

	// Duties is nil when the BM25 duty index could not be built.
	Duties *store.DutyIndex

	Generation uint64
	Model      string
	BuiltAt    time.Time

	// FromArtifact is set when the HNSW graph was loaded from disk rather
	// than built.
	FromArtifact bool

	mu      sync.Mutex
	refs    int
	retired bool
	closed  bool
}

// SnapshotInfo summarizes a snapshot for status output.
type SnapshotInfo struct {
	Generation   uint64    `json:"generation"`
	Entries      int       `json:"entries"`
	Backend      string    `json:"backend"`
	Dimensions   int       `json:"dimensions"`
	Model        string    `json:"model"`
	FromArtifact bool      `json:"from_artifact"`
	TitleIndex   bool      `json:"title_index"`
	DutyDocs     int       `json:"duty_docs"`
	BuiltAt      time.Time `json:"built_at"`
}

// NewSnapshot bundles a store with its indexes.
func NewSnapshot(s *taxonomy.Store, vectors store.VectorIndex, duties *store.DutyIndex, generation uint64, model string) *Snapshot {
	return &Snapshot{
		Store:      s,
		Lexicon:    NewLexicon(s),
		Vectors:    vectors,
		Duties:     duties,
		Generation: generation,
		Model:      model,
		BuiltAt:    time.Now(),
	}
}

// Acquire takes a reference. It fails once the snapshot has been closed,
// in which case the caller should load the current snapshot again.
func (s *Snapshot) Acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.refs++
	return true
}

// Release drops a reference taken by Acquire.
func (s *Snapshot) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs--
	if s.refs <= 0 && s.retired {
		s.closeLocked()
	}
}

// Retire marks the snapshot as replaced. Resources are released now if no
// query holds it, otherwise when the last one finishes.
func (s *Snapshot) Retire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retired = true
	if s.refs <= 0 {
		s.closeLocked()
	}
}

func (s *Snapshot) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	if s.Duties != nil {
		if err := s.Duties.Close(); err != nil {
			slog.Warn("failed to close duty index",
				slog.Uint64("generation", s.Generation),
				slog.String("error", err.Error()))
		}
	}
}

// vectorsFor returns the index that semantic scores for field come from.
func (s *Snapshot) vectorsFor(field string) store.VectorIndex {
	if field == store.FieldTitle && s.Titles != nil {
		return s.Titles
	}
	return s.Vectors
}

// Info returns a summary of the snapshot.
func (s *Snapshot) Info() SnapshotInfo {
	info := SnapshotInfo{
		Generation:   s.Generation,
		Entries:      s.Store.Len(),
		Model:        s.Model,
		FromArtifact: s.FromArtifact,
		TitleIndex:   s.Titles != nil,
		BuiltAt:      s.BuiltAt,
	}
	if s.Vectors != nil {
		info.Backend = string(s.Vectors.Backend())
		info.Dimensions = s.Vectors.Dimensions()
	}
	if s.Duties != nil {
		info.DutyDocs = s.Duties.Len()
	}
	return info
}
