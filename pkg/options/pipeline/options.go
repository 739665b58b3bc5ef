// Package pipeline provides document QA pipeline configuration options.
package pipeline

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// DefaultSystemPrompt is the default prompt template for answer generation.
// {{context}} and {{question}} are replaced at query time.
const DefaultSystemPrompt = `You are a helpful assistant that answers questions based on the provided context.
Use the following context to answer the question. If you cannot find the answer in the context, say so.
Always cite the source documents when providing information.

Context:
{{context}}

Question: {{question}}

Answer:`

// Options contains the chunking, retrieval and generation configuration.
type Options struct {
	// ChunkSize is the target chunk size in estimated tokens.
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap is the overlap between consecutive chunks in estimated tokens.
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// TopK is the default number of chunks returned by a query.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// MaxTopK is the upper bound a request may ask for.
	MaxTopK int `json:"max-top-k" mapstructure:"max-top-k"`

	// EmbeddingDim is the dimension of embedding vectors.
	EmbeddingDim int `json:"embedding-dim" mapstructure:"embedding-dim"`

	// SimilarityThreshold drops retrieved chunks scoring below it.
	SimilarityThreshold float64 `json:"similarity-threshold" mapstructure:"similarity-threshold"`

	// DedupByDocument keeps only the best chunk per document when retrieving.
	DedupByDocument bool `json:"dedup-by-document" mapstructure:"dedup-by-document"`

	// MaxContextTokens caps the estimated token count of the prompt context block.
	MaxContextTokens int `json:"max-context-tokens" mapstructure:"max-context-tokens"`

	// MaxTextSize is the largest accepted document text in bytes.
	MaxTextSize int `json:"max-text-size" mapstructure:"max-text-size"`

	// EmbedBatchSize is the number of chunks embedded per provider call.
	EmbedBatchSize int `json:"embed-batch-size" mapstructure:"embed-batch-size"`

	// SystemPrompt is the prompt template for answer generation.
	SystemPrompt string `json:"system-prompt" mapstructure:"system-prompt"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		ChunkSize:           500,
		ChunkOverlap:        50,
		TopK:                5,
		MaxTopK:             20,
		EmbeddingDim:        768, // nomic-embed-text dimension
		SimilarityThreshold: 0.0,
		DedupByDocument:     false,
		MaxContextTokens:    3000,
		MaxTextSize:         10 << 20,
		EmbedBatchSize:      16,
		SystemPrompt:        DefaultSystemPrompt,
	}
}

// AddFlags adds flags for pipeline options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.ChunkSize, options.Join(prefixes...)+"pipeline.chunk-size", o.ChunkSize, "Target chunk size in estimated tokens.")
	fs.IntVar(&o.ChunkOverlap, options.Join(prefixes...)+"pipeline.chunk-overlap", o.ChunkOverlap, "Overlap between consecutive chunks.")
	fs.IntVar(&o.TopK, options.Join(prefixes...)+"pipeline.top-k", o.TopK, "Default number of chunks returned by a query.")
	fs.IntVar(&o.MaxTopK, options.Join(prefixes...)+"pipeline.max-top-k", o.MaxTopK, "Upper bound on the per-request top_k.")
	fs.IntVar(&o.EmbeddingDim, options.Join(prefixes...)+"pipeline.embedding-dim", o.EmbeddingDim, "Embedding vector dimension.")
	fs.Float64Var(&o.SimilarityThreshold, options.Join(prefixes...)+"pipeline.similarity-threshold", o.SimilarityThreshold, "Minimum similarity score for retrieved chunks.")
	fs.BoolVar(&o.DedupByDocument, options.Join(prefixes...)+"pipeline.dedup-by-document", o.DedupByDocument, "Keep only the best chunk per document when retrieving.")
	fs.IntVar(&o.MaxContextTokens, options.Join(prefixes...)+"pipeline.max-context-tokens", o.MaxContextTokens, "Estimated token budget for the prompt context block.")
	fs.IntVar(&o.MaxTextSize, options.Join(prefixes...)+"pipeline.max-text-size", o.MaxTextSize, "Largest accepted document text in bytes.")
	fs.IntVar(&o.EmbedBatchSize, options.Join(prefixes...)+"pipeline.embed-batch-size", o.EmbedBatchSize, "Chunks embedded per provider call.")
}

// Validate validates the pipeline options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("pipeline.chunk-overlap must not be negative"))
	}
	if o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("pipeline.chunk-overlap must be smaller than pipeline.chunk-size"))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.top-k must be positive"))
	}
	if o.MaxTopK < o.TopK {
		errs = append(errs, fmt.Errorf("pipeline.max-top-k must be at least pipeline.top-k"))
	}
	if o.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.embedding-dim must be positive"))
	}
	if o.MaxContextTokens <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.max-context-tokens must be positive"))
	}
	if o.EmbedBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.embed-batch-size must be positive"))
	}
	return errs
}

// Complete completes the pipeline options with defaults.
func (o *Options) Complete() error {
	if o.SystemPrompt == "" {
		o.SystemPrompt = DefaultSystemPrompt
	}
	return nil
}
