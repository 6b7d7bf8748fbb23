package main

import (
	"context"
	"fmt"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/copyto"
	"github.com/spf13/cobra"
)

// copyCommand is shared by upload and download, which only differ in direction.
type copyCommand struct {
	Purge     bool
	DryRun    bool
	Force     bool
	NoRecurse bool
	upload    bool
}

func newUploadCmd(a *app) *cobra.Command {
	return newCopyCmd(a, &copyCommand{upload: true}, &cobra.Command{
		Use:   "upload [PATTERN...]",
		Short: "Copy the entries matching the patterns from the local tree to the remote one",
	})
}

func newDownloadCmd(a *app) *cobra.Command {
	return newCopyCmd(a, &copyCommand{}, &cobra.Command{
		Use:   "download [PATTERN...]",
		Short: "Copy the entries matching the patterns from the remote tree to the local one",
	})
}

func newCopyCmd(a *app, c *copyCommand, cmd *cobra.Command) *cobra.Command {
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return a.result(c.run(a.context(cmd), a, args))
	}
	cmd.Flags().BoolVar(&c.Purge, "purge", false, "Delete destination entries that do not exist in the source")
	cmd.Flags().BoolVarP(&c.DryRun, "dry-run", "n", false, "Print what would change without changing anything")
	cmd.Flags().BoolVar(&c.Force, "force", false, "Write files without comparing their content first")
	cmd.Flags().BoolVar(&c.NoRecurse, "no-recurse", false, "Do not descend into matching directories")
	return cmd
}

func (c *copyCommand) roots(a *app) (src, dest treefs.Node, err error) {
	local, err := a.local()
	if err != nil {
		return nil, nil, err
	}
	remote, err := a.remote()
	if err != nil {
		return nil, nil, err
	}
	if c.upload {
		return local, remote, nil
	}
	return remote, local, nil
}

func (c *copyCommand) run(ctx context.Context, a *app, args []string) error {
	patterns, err := patternArgs(args)
	if err != nil {
		return err
	}
	src, dest, err := c.roots(a)
	if err != nil {
		return err
	}

	opts := copyto.Options{
		Depth:       copyto.Unlimited,
		Purge:       c.Purge,
		DryRun:      c.DryRun,
		Force:       c.Force,
		Parallelism: a.cfg.Parallelism,
	}
	if c.NoRecurse {
		opts.Depth = 0
	}
	// conflicts come back as errors as well and fail the command
	report := func(e copyto.Event) {
		fmt.Fprintln(a.out, e)
	}
	for _, p := range patterns {
		if err := copyto.CopyTo(ctx, p, src, dest, opts, report); err != nil {
			a.fail("%v", err)
		}
	}
	return nil
}
