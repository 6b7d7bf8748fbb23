package main

import (
	"context"
	"fmt"

	"github.com/brettbedarf/treefs"
	"github.com/spf13/cobra"
)

type showCommand struct {
	Local bool
}

func newShowCmd(a *app) *cobra.Command {
	c := &showCommand{}
	cmd := &cobra.Command{
		Use:   "show PATTERN...",
		Short: "Print the content of the files matching the patterns",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.result(c.run(a.context(cmd), a, args))
		},
	}
	cmd.Flags().BoolVar(&c.Local, "local", false, "Show files of the local tree instead of the remote one")
	return cmd
}

func (c *showCommand) run(ctx context.Context, a *app, args []string) error {
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

	for _, p := range patterns {
		path, exact := p.ExactPath()
		found := false
		err := treefs.List(ctx, root, p, func(n treefs.Node) error {
			isDir, err := n.IsDir(ctx)
			if err != nil {
				return err
			}
			if isDir {
				found = true
				if exact {
					a.fail("%s: is a directory", n.Path())
				}
				return nil
			}
			content, err := n.Read(ctx)
			switch {
			case treefs.IsNotFound(err):
				return nil
			case err != nil:
				found = true
				a.fail("%s: %v", n.Path(), err)
				return nil
			}
			found = true
			fmt.Fprintf(a.out, "%s:\n", n.Path())
			_, _ = a.out.Write(content)
			if len(content) > 0 && content[len(content)-1] != '\n' {
				fmt.Fprintln(a.out)
			}
			return nil
		})
		if err != nil {
			a.fail("%s: %v", p, err)
		} else if exact && !found {
			a.fail("%s: No such file or directory", path)
		}
	}
	return nil
}
