package biz

import (
	"github.com/kart-io/docqa/internal/pkg/textutil"
	pkgerrors "github.com/kart-io/docqa/pkg/errors"
)

// Chunk is one contiguous slice of a document's normalized text.
type Chunk struct {
	// Index is the zero-based position of the chunk within the document.
	Index int
	// Text is normalized[Start:End].
	Text string
	// Start and End are byte offsets into the normalized text.
	Start int
	End   int
	// TokenCount is the estimated token count (whitespace words).
	TokenCount int
}

// Chunker splits normalized text into overlapping windows. Sizes are measured
// in estimated tokens, where one whitespace-delimited word counts as one
// token. The approximation is documented behavior: parity with any provider
// tokenizer is not guaranteed.
type Chunker struct {
	targetSize int
	overlap    int
}

// NewChunker validates the window configuration.
func NewChunker(targetSize, overlap int) (*Chunker, error) {
	if targetSize <= 0 {
		return nil, pkgerrors.ErrInvalidConfiguration.WithMessagef("chunk size %d must be positive", targetSize)
	}
	if overlap < 0 {
		return nil, pkgerrors.ErrInvalidConfiguration.WithMessagef("chunk overlap %d must not be negative", overlap)
	}
	if overlap >= targetSize {
		return nil, pkgerrors.ErrInvalidConfiguration.WithMessagef(
			"chunk overlap %d must be smaller than chunk size %d", overlap, targetSize)
	}
	return &Chunker{targetSize: targetSize, overlap: overlap}, nil
}

// Normalize collapses whitespace runs to single spaces and trims the ends.
// Chunk offsets refer to this form of the text.
func (c *Chunker) Normalize(text string) string {
	return textutil.NormalizeWhitespace(text)
}

// Chunk splits text into overlapping windows of targetSize words stepping
// targetSize-overlap. Pure and deterministic: the same text always yields the
// same chunks. Empty text yields zero chunks; text shorter than the window
// yields one.
func (c *Chunker) Chunk(text string) []Chunk {
	normalized := c.Normalize(text)
	if normalized == "" {
		return nil
	}

	// Word start/end offsets in the normalized text. Words are separated by
	// exactly one space after normalization.
	type span struct{ start, end int }
	var words []span
	start := -1
	for i := 0; i < len(normalized); i++ {
		if normalized[i] == ' ' {
			if start >= 0 {
				words = append(words, span{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, span{start, len(normalized)})
	}

	step := c.targetSize - c.overlap
	var chunks []Chunk
	for from := 0; from < len(words); from += step {
		to := from + c.targetSize
		if to > len(words) {
			to = len(words)
		}

		chunkStart := words[from].start
		chunkEnd := words[to-1].end
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Text:       normalized[chunkStart:chunkEnd],
			Start:      chunkStart,
			End:        chunkEnd,
			TokenCount: to - from,
		})

		if to == len(words) {
			break
		}
	}
	return chunks
}
