package memfs

import (
	"encoding/json"
	"fmt"

	"github.com/brettbedarf/treefs"
)

// SourceOptions is the "memory" source definition
type SourceOptions struct {
	Label     string         `json:"label"`
	Tree      map[string]any `json:"tree"`
	Checksums bool           `json:"checksums"`
}

// Provider builds in-memory roots from "memory" source definitions.
type Provider struct{}

var _ treefs.RootProvider = Provider{}

func (Provider) NewRoot(raw []byte) (treefs.Node, error) {
	var o SourceOptions
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("memfs: invalid source definition: %w", err)
	}
	if o.Label == "" {
		o.Label = "memory/"
	}
	var opts []Option
	if o.Checksums {
		opts = append(opts, WithChecksums())
	}
	return New(o.Label, o.Tree, opts...)
}
