// Package store provides storage backend configuration options.
package store

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Supported vector index backends.
const (
	BackendLocal  = "local"
	BackendMilvus = "milvus"
)

// Options contains storage backend configuration.
type Options struct {
	// Backend selects the vector index backend (local, milvus).
	Backend string `json:"backend" mapstructure:"backend"`

	// DataDir is the directory holding the local index log and sqlite database.
	DataDir string `json:"data-dir" mapstructure:"data-dir"`

	// Collection is the vector collection name (milvus backend).
	Collection string `json:"collection" mapstructure:"collection"`
}

// NewOptions creates new store Options with defaults.
func NewOptions() *Options {
	return &Options{
		Backend:    BackendLocal,
		DataDir:    "_output/docqa-data",
		Collection: "docqa_chunks",
	}
}

// AddFlags adds flags for store options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Backend, options.Join(prefixes...)+"store.backend", o.Backend, "Vector index backend (local, milvus).")
	fs.StringVar(&o.DataDir, options.Join(prefixes...)+"store.data-dir", o.DataDir, "Directory for the local index log and metadata database.")
	fs.StringVar(&o.Collection, options.Join(prefixes...)+"store.collection", o.Collection, "Vector collection name (milvus backend).")
}

// Validate validates the store options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Backend {
	case BackendLocal:
		if o.DataDir == "" {
			errs = append(errs, fmt.Errorf("store.data-dir is required for the local backend"))
		}
	case BackendMilvus:
		if o.Collection == "" {
			errs = append(errs, fmt.Errorf("store.collection is required for the milvus backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", o.Backend))
	}
	return errs
}

// Complete completes the store options with defaults.
func (o *Options) Complete() error {
	return nil
}
