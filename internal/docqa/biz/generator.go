package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/pkg/textutil"
	pkgerrors "github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/llm"
)

// GeneratorConfig configures grounded answer generation.
type GeneratorConfig struct {
	// SystemPrompt is the prompt template. It must reference the
	// {{context}} and {{question}} placeholders.
	SystemPrompt string
	// MaxContextTokens bounds the estimated token count of the packed
	// context. Chunks that do not fit are dropped whole, lowest rank first.
	MaxContextTokens int
}

// Generator packs retrieved chunks into a prompt and asks the chat provider
// for a grounded answer.
type Generator struct {
	chat   llm.ChatProvider
	config *GeneratorConfig
}

// NewGenerator creates a generator.
func NewGenerator(chat llm.ChatProvider, config *GeneratorConfig) (*Generator, error) {
	if config.SystemPrompt == "" {
		return nil, pkgerrors.ErrInvalidConfiguration.WithMessage("system prompt must not be empty")
	}
	if !strings.Contains(config.SystemPrompt, "{{context}}") ||
		!strings.Contains(config.SystemPrompt, "{{question}}") {
		return nil, pkgerrors.ErrInvalidConfiguration.WithMessage(
			"system prompt must contain {{context}} and {{question}} placeholders")
	}
	if config.MaxContextTokens <= 0 {
		return nil, pkgerrors.ErrInvalidConfiguration.WithMessagef(
			"max context tokens %d must be positive", config.MaxContextTokens)
	}
	return &Generator{chat: chat, config: config}, nil
}

// Generate answers the question using the given chunks as context. It
// returns the answer and the chunks that actually made it into the prompt.
func (g *Generator) Generate(ctx context.Context, question string, chunks []*store.SearchResult) (string, []*store.SearchResult, error) {
	used := g.packContext(chunks)
	prompt := g.buildPrompt(question, used)

	answer, err := g.chat.Generate(ctx, prompt, "")
	if err != nil {
		return "", nil, pkgerrors.ErrGenerationFailed.
			WithMessagef("chat provider %s failed", g.chat.Name()).
			WithCause(err)
	}

	logger.Infow("Generated answer",
		"chunks_used", len(used),
		"answer_length", len(answer),
	)
	return strings.TrimSpace(answer), used, nil
}

// packContext keeps chunks in rank order until the token budget is spent.
// The first chunk that does not fit ends the packing, and everything
// ranked below it is dropped with it; letting a lower-ranked chunk jump
// the queue would reorder the context by size instead of relevance.
func (g *Generator) packContext(chunks []*store.SearchResult) []*store.SearchResult {
	var used []*store.SearchResult
	budget := g.config.MaxContextTokens
	for _, chunk := range chunks {
		cost := textutil.EstimateTokens(chunk.Text)
		if cost > budget {
			break
		}
		budget -= cost
		used = append(used, chunk)
	}
	return used
}

// buildPrompt renders the system prompt template with the packed context.
// Each chunk is labeled with its source so the model can cite documents.
func (g *Generator) buildPrompt(question string, chunks []*store.SearchResult) string {
	var sb strings.Builder
	for n, chunk := range chunks {
		if n > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[Source %d: document %s]\n%s", n+1, chunk.DocumentID, chunk.Text)
	}

	prompt := strings.ReplaceAll(g.config.SystemPrompt, "{{context}}", sb.String())
	return strings.ReplaceAll(prompt, "{{question}}", question)
}
