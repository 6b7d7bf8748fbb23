package config

import "github.com/brettbedarf/treefs/internal/util"

// CLI verbosity values accepted by ConfigOverride.LogLvl, clamped to this range
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultLogLvl = util.WarnLevel

	// DefaultParallelism walks trees sequentially
	DefaultParallelism = 1

	// DefaultLocalPath is the working directory
	DefaultLocalPath = "."

	// DefaultRemoteTimeout is the per request timeout in seconds
	DefaultRemoteTimeout = 30.0

	// DefaultRemoteMaxRetries is how often a failed remote request is retried
	DefaultRemoteMaxRetries = 3

	// DefaultObjectStoreUseSSL connects to the object store over TLS
	DefaultObjectStoreUseSSL = true

	// DefaultFsName is the mount's FsName
	DefaultFsName = "treefs"

	// DefaultName is the mount's Name (type) shown by mount(8)
	DefaultName = "treefs"

	// DefaultAttrTimeout is the attribute cache timeout in seconds
	DefaultAttrTimeout = 1.0

	// DefaultEntryTimeout is the directory entry cache timeout in seconds
	DefaultEntryTimeout = 1.0

	// DefaultDirectIO determines whether to bypass the page cache for remote files
	DefaultDirectIO = true
)

// Collection kinds served by a remote store
const (
	KindObjects  = "objects"
	KindNested   = "nested"
	KindPackages = "packages"
)

// DefaultCollections is the layout of a remote repository when none is configured.
func DefaultCollections() []Collection {
	return []Collection{
		{Name: "clients", APIPath: "clients", Kind: KindObjects},
		{Name: "cookbooks", APIPath: "cookbooks", Kind: KindPackages},
		{Name: "data_bags", APIPath: "data", Kind: KindNested, Identity: "id"},
		{Name: "environments", APIPath: "environments", Kind: KindObjects},
		{Name: "nodes", APIPath: "nodes", Kind: KindObjects},
		{Name: "roles", APIPath: "roles", Kind: KindObjects},
	}
}
