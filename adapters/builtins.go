package adapters

import (
	"github.com/brettbedarf/treefs/adapters/localfs"
	"github.com/brettbedarf/treefs/adapters/memfs"
	"github.com/brettbedarf/treefs/adapters/restfs"
	"github.com/brettbedarf/treefs/adapters/s3fs"
)

type BuiltInSourceType = string

const (
	LocalSourceType  BuiltInSourceType = "local"
	RestSourceType   BuiltInSourceType = "rest"
	S3SourceType     BuiltInSourceType = "s3"
	MemorySourceType BuiltInSourceType = "memory"
)

// RegisterBuiltins registers all built-in providers by default
// or only the specific ones if types are provided
func RegisterBuiltins(r *Registry, types ...BuiltInSourceType) {
	if len(types) == 0 {
		types = []BuiltInSourceType{LocalSourceType, RestSourceType, S3SourceType, MemorySourceType}
	}

	for _, t := range types {
		switch t {
		case LocalSourceType:
			r.Register(t, localfs.Provider{})
		case RestSourceType:
			r.Register(t, restfs.Provider{})
		case S3SourceType:
			r.Register(t, s3fs.Provider{})
		case MemorySourceType:
			r.Register(t, memfs.Provider{})
		}
	}
}
