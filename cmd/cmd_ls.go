package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/brettbedarf/treefs"
	"github.com/spf13/cobra"
)

type lsCommand struct {
	Recursive       bool
	BareDirectories bool
	Local           bool
}

func newLsCmd(a *app) *cobra.Command {
	c := &lsCommand{}
	cmd := &cobra.Command{
		Use:   "ls [PATTERN...]",
		Short: "List the entries matching the patterns",
		Long: `List the entries of the remote tree, or of the local tree with --local.
Matching files are printed first, then each matching directory with its
children. Without patterns the root is listed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.result(c.run(a.context(cmd), a, args))
		},
	}
	cmd.Flags().BoolVarP(&c.Recursive, "recursive", "R", false, "List directories recursively")
	cmd.Flags().BoolVarP(&c.BareDirectories, "directory", "d", false,
		"Print matching directories themselves instead of their children")
	cmd.Flags().BoolVar(&c.Local, "local", false, "List the local tree instead of the remote one")
	return cmd
}

func (c *lsCommand) run(ctx context.Context, a *app, args []string) error {
	patterns, err := patternArgs(args)
	if err != nil {
		return err
	}
	root, err := a.remote()
	if c.Local {
		root, err = a.local()
	}
	if err != nil {
		return err
	}

	var results []treefs.Node
	for _, p := range patterns {
		found := false
		err := treefs.List(ctx, root, p, func(n treefs.Node) error {
			exists, err := n.Exists(ctx)
			if err != nil || !exists {
				return err
			}
			found = true
			results = append(results, n)
			if c.Recursive {
				dirs, err := childDirsRecursive(ctx, n)
				if err != nil {
					return err
				}
				results = append(results, dirs...)
			}
			return nil
		})
		if err != nil {
			a.fail("%s: %v", p, err)
		} else if path, exact := p.ExactPath(); exact && !found {
			a.fail("%s: No such file or directory", path)
		}
	}
	sortByPath(results)

	if c.BareDirectories {
		for _, n := range results {
			fmt.Fprintln(a.out, n.Path())
		}
		return nil
	}

	if len(results) == 1 {
		if isDir, _ := results[0].IsDir(ctx); isDir {
			return c.printChildren(ctx, a, results[0], true)
		}
	}

	var dirs []treefs.Node
	for _, n := range results {
		isDir, err := n.IsDir(ctx)
		if err != nil {
			a.fail("%s: %v", n.Path(), err)
			continue
		}
		if isDir {
			dirs = append(dirs, n)
			continue
		}
		fmt.Fprintln(a.out, n.Path())
	}
	for _, dir := range dirs {
		fmt.Fprintf(a.out, "\n%s:\n", dir.Path())
		if err := c.printChildren(ctx, a, dir, false); err != nil {
			a.fail("%s: %v", dir.Path(), err)
		}
	}
	return nil
}

// printChildren prints the children of dir sorted by name, as full paths when
// fullPaths is set.
func (c *lsCommand) printChildren(ctx context.Context, a *app, dir treefs.Node, fullPaths bool) error {
	children, err := dir.Children(ctx)
	if err != nil {
		return err
	}
	children = append([]treefs.Node(nil), children...)
	sortByPath(children)
	for _, child := range children {
		if fullPaths {
			fmt.Fprintln(a.out, child.Path())
		} else {
			fmt.Fprintln(a.out, child.Name())
		}
	}
	return nil
}

func childDirsRecursive(ctx context.Context, n treefs.Node) ([]treefs.Node, error) {
	children, err := n.Children(ctx)
	if err != nil {
		if treefs.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []treefs.Node
	for _, child := range children {
		isDir, err := child.IsDir(ctx)
		if err != nil {
			return nil, err
		}
		if !isDir {
			continue
		}
		out = append(out, child)
		sub, err := childDirsRecursive(ctx, child)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

func sortByPath(nodes []treefs.Node) {
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Path() < nodes[j].Path() })
}
