package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/adapters"
	"github.com/brettbedarf/treefs/adapters/localfs"
	"github.com/brettbedarf/treefs/adapters/restfs"
	"github.com/brettbedarf/treefs/adapters/s3fs"
	"github.com/brettbedarf/treefs/config"
	"github.com/brettbedarf/treefs/internal/util"
	"github.com/brettbedarf/treefs/pathutil"
	"github.com/brettbedarf/treefs/pattern"
	"github.com/spf13/cobra"
)

// Source names accepted wherever a tree is selected. Any other name refers to
// an entry of the configured sources.
const (
	localSource  = "local"
	remoteSource = "remote"
)

// errReported is returned by commands that printed their errors already.
var errReported = errors.New("errors were reported")

// app carries what the commands share: configuration, output streams and the
// trees they operate on.
type app struct {
	out    io.Writer
	errOut io.Writer

	configPath string
	verbose    int

	cfg      *config.Config
	registry *adapters.Registry

	// openSource builds the tree of a source; replaced in tests
	openSource func(name string) (treefs.Node, error)
	roots      map[string]treefs.Node
	failed     bool
}

func newApp(out, errOut io.Writer) *app {
	a := &app{
		out:      out,
		errOut:   errOut,
		verbose:  config.WarnVerbose,
		registry: adapters.NewRegistry(),
		roots:    map[string]treefs.Node{},
	}
	adapters.RegisterBuiltins(a.registry)
	a.openSource = a.newSource
	return a
}

// setup loads the configuration and installs the logger. It runs before every command.
func (a *app) setup(cmd *cobra.Command) error {
	a.failed = false
	override := &config.ConfigOverride{}
	if a.configPath != "" {
		o, err := config.LoadConfigOverrideFile(a.configPath)
		if err != nil {
			return fmt.Errorf("load config %s: %w", a.configPath, err)
		}
		override = o
	}
	if cmd.Flags().Changed("verbose") || override.LogLvl == nil {
		override.LogLvl = util.Pointer(a.verbose)
	}
	a.cfg = config.NewConfig(override)
	util.InitializeLoggerTo(a.errOut, a.cfg.LogLvl)

	logger := util.GetLogger("cmd")
	logger.Debug().Str("config", a.configPath).Int("parallelism", a.cfg.Parallelism).Msg("Configuration loaded")
	return nil
}

// source returns the tree called name, building it on first use.
func (a *app) source(name string) (treefs.Node, error) {
	if root, ok := a.roots[name]; ok {
		return root, nil
	}
	root, err := a.openSource(name)
	if err != nil {
		return nil, fmt.Errorf("open %s tree: %w", name, err)
	}
	a.roots[name] = root
	return root, nil
}

func (a *app) newSource(name string) (treefs.Node, error) {
	// configured sources take precedence so "remote" can point at any store
	if src, ok := a.cfg.Sources[name]; ok {
		raw, err := src.Raw()
		if err != nil {
			return nil, err
		}
		return a.registry.NewRoot(raw)
	}

	switch name {
	case localSource:
		return localfs.New(a.cfg.Local)
	case remoteSource:
		if a.cfg.Remote.URL != "" {
			return restfs.New(a.cfg.Remote)
		}
		if a.cfg.ObjectStore.Endpoint != "" {
			return s3fs.New(a.cfg.ObjectStore)
		}
		return nil, fmt.Errorf("no remote configured, set remote.url or object_store.endpoint")
	}
	return nil, fmt.Errorf("unknown source %q, configured: %v", name, a.sourceNames())
}

func (a *app) sourceNames() []string {
	names := []string{localSource, remoteSource}
	for name := range a.cfg.Sources {
		if name != localSource && name != remoteSource {
			names = append(names, name)
		}
	}
	sort.Strings(names[2:])
	return names
}

func (a *app) local() (treefs.Node, error) {
	return a.source(localSource)
}

func (a *app) remote() (treefs.Node, error) {
	return a.source(remoteSource)
}

// fail prints a per entry error and marks the command as failed.
func (a *app) fail(format string, args ...any) {
	a.failed = true
	fmt.Fprintf(a.errOut, format+"\n", args...)
}

// result turns the failure state into the command's return value.
func (a *app) result(err error) error {
	if err != nil {
		a.fail("%v", err)
	}
	if a.failed {
		return errReported
	}
	return nil
}

func (a *app) context(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// patternArgs parses command line patterns. Relative patterns are taken from
// the root of the trees; no arguments select the root itself.
func patternArgs(args []string) ([]*pattern.Pattern, error) {
	if len(args) == 0 {
		args = []string{pathutil.Separator}
	}
	out := make([]*pattern.Pattern, 0, len(args))
	for _, arg := range args {
		if !pathutil.IsAbsolute(arg) {
			arg = pathutil.Separator + arg
		}
		p, err := pattern.New(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", arg, err)
		}
		out = append(out, p)
	}
	return out, nil
}
