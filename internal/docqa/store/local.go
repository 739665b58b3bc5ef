package store

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/pkg/textutil"
	pkgerrors "github.com/kart-io/docqa/pkg/errors"
)

// wal ops
const (
	opInsert = "insert"
	opDelete = "delete"
)

// walRecord is one committed mutation in the append-only log.
type walRecord struct {
	Op         string        `json:"op"`
	Entries    []*IndexEntry `json:"entries,omitempty"`
	DocumentID string        `json:"document_id,omitempty"`
}

// LocalStore is a file-backed brute-force vector index. Mutations are
// committed to a JSON-lines log with fsync before they become visible, so an
// acknowledged write survives restart. Searches scan a consistent snapshot
// under the read lock.
type LocalStore struct {
	mu      sync.RWMutex
	entries []*IndexEntry
	byChunk map[string]struct{}
	dim     int

	file   *os.File
	closed bool
}

var _ VectorStore = (*LocalStore)(nil)

// NewLocalStore opens (or creates) the index log at path and replays it.
func NewLocalStore(path string, dim int) (*LocalStore, error) {
	if dim <= 0 {
		return nil, pkgerrors.ErrInvalidConfiguration.WithMessagef("embedding dimension %d must be positive", dim)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, pkgerrors.ErrIndexFailure.WithCause(err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, pkgerrors.ErrIndexFailure.WithCause(err)
	}

	s := &LocalStore{
		byChunk: make(map[string]struct{}),
		dim:     dim,
		file:    file,
	}

	if err := s.load(); err != nil {
		_ = file.Close()
		return nil, err
	}

	logger.Infow("Local vector index loaded",
		"path", path,
		"entries", len(s.entries),
		"dim", dim,
	)
	return s, nil
}

// load replays the log into memory. A torn trailing record can only belong to
// an unacknowledged write, so the file is truncated back to the last complete
// record.
func (s *LocalStore) load() error {
	dec := json.NewDecoder(s.file)
	var goodOffset int64

	for {
		var rec walRecord
		err := dec.Decode(&rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Warnw("Truncating torn record at end of index log",
				"offset", goodOffset,
				"error", err.Error(),
			)
			if terr := s.file.Truncate(goodOffset); terr != nil {
				return pkgerrors.ErrIndexFailure.WithCause(terr)
			}
			break
		}
		goodOffset = dec.InputOffset()

		switch rec.Op {
		case opInsert:
			for _, e := range rec.Entries {
				s.entries = append(s.entries, e)
				s.byChunk[e.ChunkID] = struct{}{}
			}
		case opDelete:
			s.removeDocument(rec.DocumentID)
		default:
			return pkgerrors.ErrIndexFailure.WithMessagef("unknown index log op %q", rec.Op)
		}
	}

	if _, err := s.file.Seek(0, io.SeekEnd); err != nil {
		return pkgerrors.ErrIndexFailure.WithCause(err)
	}
	return nil
}

// removeDocument drops all in-memory entries of a document. Caller holds the
// write lock (or is in load, before the store is shared).
func (s *LocalStore) removeDocument(documentID string) int {
	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.DocumentID == documentID {
			delete(s.byChunk, e.ChunkID)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return removed
}

// validateBatch checks the whole batch before any mutation.
func (s *LocalStore) validateBatch(entries []*IndexEntry) error {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.ChunkID == "" || e.DocumentID == "" {
			return pkgerrors.ErrInvalidInput.WithMessage("chunk id and document id are required")
		}
		if len(e.Vector) != s.dim {
			return pkgerrors.ErrDimensionMismatch.WithMessagef(
				"chunk %s has dimension %d, index expects %d", e.ChunkID, len(e.Vector), s.dim)
		}
		if textutil.VectorNorm(e.Vector) == 0 {
			return pkgerrors.ErrInvalidVector.WithMessagef("chunk %s has a zero-norm vector", e.ChunkID)
		}
		if _, dup := seen[e.ChunkID]; dup {
			return pkgerrors.ErrDuplicateChunk.WithMessagef("chunk %s appears twice in the batch", e.ChunkID)
		}
		if _, dup := s.byChunk[e.ChunkID]; dup {
			return pkgerrors.ErrDuplicateChunk.WithMessagef("chunk %s is already indexed", e.ChunkID)
		}
		seen[e.ChunkID] = struct{}{}
	}
	return nil
}

// commit appends a record to the log and fsyncs it.
func (s *LocalStore) commit(rec *walRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return pkgerrors.ErrIndexFailure.WithCause(err)
	}
	data = append(data, '\n')

	if _, err := s.file.Write(data); err != nil {
		return pkgerrors.ErrIndexFailure.WithCause(err)
	}
	if err := s.file.Sync(); err != nil {
		return pkgerrors.ErrIndexFailure.WithCause(err)
	}
	return nil
}

// Insert adds a batch of entries, all-or-nothing.
func (s *LocalStore) Insert(ctx context.Context, entries []*IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return pkgerrors.ErrIndexFailure.WithMessage("index is closed")
	}
	if err := s.validateBatch(entries); err != nil {
		return err
	}
	if err := s.commit(&walRecord{Op: opInsert, Entries: entries}); err != nil {
		return err
	}

	for _, e := range entries {
		s.entries = append(s.entries, e)
		s.byChunk[e.ChunkID] = struct{}{}
	}
	return nil
}

// DeleteByDocument removes every entry of a document.
func (s *LocalStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if documentID == "" {
		return 0, pkgerrors.ErrInvalidInput.WithMessage("document id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, pkgerrors.ErrIndexFailure.WithMessage("index is closed")
	}

	present := 0
	for _, e := range s.entries {
		if e.DocumentID == documentID {
			present++
		}
	}
	if present == 0 {
		return 0, nil
	}

	if err := s.commit(&walRecord{Op: opDelete, DocumentID: documentID}); err != nil {
		return 0, err
	}
	return s.removeDocument(documentID), nil
}

// Search scans the index and returns the topK most similar entries.
func (s *LocalStore) Search(ctx context.Context, vector []float32, topK int) ([]*SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, pkgerrors.ErrInvalidInput.WithMessagef("topK %d must be positive", topK)
	}
	if len(vector) != s.dim {
		return nil, pkgerrors.ErrDimensionMismatch.WithMessagef(
			"query vector has dimension %d, index expects %d", len(vector), s.dim)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*SearchResult, 0, len(s.entries))
	for _, e := range s.entries {
		results = append(results, &SearchResult{
			ChunkID:    e.ChunkID,
			DocumentID: e.DocumentID,
			Text:       e.Text,
			Score:      float32(textutil.CosineSimilarity(vector, e.Vector)),
		})
	}

	// Stable sort keeps insertion order for equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Count returns the number of indexed entries.
func (s *LocalStore) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}

// Close syncs and closes the log file.
func (s *LocalStore) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.file.Sync(); err != nil {
		_ = s.file.Close()
		return pkgerrors.ErrIndexFailure.WithCause(err)
	}
	return s.file.Close()
}
