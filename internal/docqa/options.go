// Package docqa provides the document QA server implementation.
package docqa

import (
	"time"

	cacheopts "github.com/kart-io/docqa/pkg/options/cache"
	llmopts "github.com/kart-io/docqa/pkg/options/llm"
	logopts "github.com/kart-io/docqa/pkg/options/logger"
	milvusopts "github.com/kart-io/docqa/pkg/options/milvus"
	pipelineopts "github.com/kart-io/docqa/pkg/options/pipeline"
	httpopts "github.com/kart-io/docqa/pkg/options/server/http"
	storeopts "github.com/kart-io/docqa/pkg/options/store"
)

// Config contains application-related configurations.
type Config struct {
	HTTPOptions      *httpopts.Options
	LogOptions       *logopts.Options
	StoreOptions     *storeopts.Options
	MilvusOptions    *milvusopts.Options
	EmbeddingOptions *llmopts.ProviderOptions
	ChatOptions      *llmopts.ProviderOptions
	PipelineOptions  *pipelineopts.Options
	CacheOptions     *cacheopts.Options
	ShutdownTimeout  time.Duration
}
