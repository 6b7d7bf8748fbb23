package main

import (
	"context"
	"fmt"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/pathutil"
	"github.com/spf13/cobra"
)

type deleteCommand struct {
	Recurse bool
	Local   bool
	Both    bool
}

func newDeleteCmd(a *app) *cobra.Command {
	c := &deleteCommand{}
	cmd := &cobra.Command{
		Use:   "delete PATTERN...",
		Short: "Delete the entries matching the patterns",
		Long: `Delete the entries matching the patterns from the remote tree, the local tree
with --local, or both with --both. Directories are only deleted with -r.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf(`must specify at least one pattern; to delete everything use "treefs delete -r '*'"`)
			}
			if c.Local && c.Both {
				return fmt.Errorf("cannot accept --local and --both simultaneously")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.result(c.run(a.context(cmd), a, args))
		},
	}
	cmd.Flags().BoolVarP(&c.Recurse, "recurse", "r", false, "Delete directories recursively")
	cmd.Flags().BoolVar(&c.Local, "local", false, "Delete from the local tree instead of the remote one")
	cmd.Flags().BoolVar(&c.Both, "both", false, "Delete from both the remote and the local tree")
	return cmd
}

func (c *deleteCommand) run(ctx context.Context, a *app, args []string) error {
	patterns, err := patternArgs(args)
	if err != nil {
		return err
	}

	var sources []string
	switch {
	case c.Both:
		sources = []string{remoteSource, localSource}
	case c.Local:
		sources = []string{localSource}
	default:
		sources = []string{remoteSource}
	}

	for _, name := range sources {
		root, err := a.source(name)
		if err != nil {
			return err
		}
		for _, p := range patterns {
			matches, err := treefs.ListAll(ctx, root, p)
			if err != nil {
				a.fail("%s: %v", p, err)
			}
			if path, exact := p.ExactPath(); exact && len(matches) == 0 {
				a.fail("%s: No such file or directory", pathutil.Join(root.PrintablePath(), path))
			}
			c.deleteAll(ctx, a, matches)
		}
	}
	return nil
}

// deleteAll deletes matches in walk order, skipping entries below a directory
// that was already deleted with its contents.
func (c *deleteCommand) deleteAll(ctx context.Context, a *app, matches []treefs.Node) {
	var deleted []string
	for _, n := range matches {
		if below(n.Path(), deleted) {
			continue
		}
		err := n.Delete(ctx, c.Recurse)
		switch {
		case err == nil:
			deleted = append(deleted, n.Path())
			fmt.Fprintf(a.out, "Deleted %s\n", n.PrintablePath())
		case treefs.IsNotFound(err):
			a.fail("%s: No such file or directory", n.PrintablePath())
		case treefs.IsMustDeleteRecursively(err):
			a.fail("%s: is a directory, use -r to delete it", n.PrintablePath())
		default:
			a.fail("%v", err)
		}
	}
}

func below(path string, dirs []string) bool {
	for _, dir := range dirs {
		if pathutil.HasPrefix(path, dir) {
			return true
		}
	}
	return false
}
