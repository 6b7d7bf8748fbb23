package main

import (
	"context"
	"fmt"

	"github.com/brettbedarf/treefs/diff"
	"github.com/spf13/cobra"
)

type diffCommand struct {
	NameOnly   bool
	NameStatus bool
	DiffFilter string
	Depth      int
	Parallel   int
}

func newDiffCmd(a *app) *cobra.Command {
	c := &diffCommand{}
	cmd := &cobra.Command{
		Use:   "diff [PATTERN...]",
		Short: "Show the differences between the remote and the local tree",
		Long: `Compare the entries matching the patterns in the remote tree (old) with the
local tree (new). Structured JSON and YAML files are compared by value, other
files by unified diff.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.NameOnly && c.NameStatus {
				return fmt.Errorf("cannot accept --name-only and --name-status simultaneously")
			}
			if !cmd.Flags().Changed("parallel") {
				c.Parallel = a.cfg.Parallelism
			}
			return a.result(c.run(a.context(cmd), a, args))
		},
	}
	cmd.Flags().BoolVar(&c.NameOnly, "name-only", false, "Only show names of changed files")
	cmd.Flags().BoolVar(&c.NameStatus, "name-status", false, "Only show names and status of changed files")
	cmd.Flags().StringVar(&c.DiffFilter, "diff-filter", "",
		"Select (A)dded, (D)eleted, (M)odified or (T)ype changed entries; lowercase excludes")
	cmd.Flags().IntVar(&c.Depth, "depth", diff.Unlimited, "Maximum depth to descend below each match, -1 for unlimited")
	cmd.Flags().IntVar(&c.Parallel, "parallel", 1, "Number of subtrees compared concurrently")
	return cmd
}

func (c *diffCommand) run(ctx context.Context, a *app, args []string) error {
	filter, err := diff.ParseFilter(c.DiffFilter)
	if err != nil {
		return err
	}
	patterns, err := patternArgs(args)
	if err != nil {
		return err
	}
	remote, err := a.remote()
	if err != nil {
		return err
	}
	local, err := a.local()
	if err != nil {
		return err
	}

	opts := diff.Options{Depth: c.Depth, Parallelism: c.Parallel, Filter: filter}
	for _, p := range patterns {
		results, err := diff.Collect(ctx, p, remote, local, opts)
		for _, r := range results {
			switch {
			case c.NameOnly:
				fmt.Fprint(a.out, r.NameOnly())
			case c.NameStatus:
				fmt.Fprint(a.out, r.NameStatus())
			default:
				fmt.Fprint(a.out, r.String())
			}
		}
		if err != nil {
			a.fail("%v", err)
		}
	}
	return nil
}
