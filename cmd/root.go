package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "treefs",
		Short: "Browse, compare and synchronize trees of files across stores",
		Long: `treefs presents a local directory, a remote REST repository, an object store
bucket or an in-memory tree as one kind of tree and runs the same commands on
any of them.

Patterns are globs relative to the root of the trees: "*" and "?" match within
one path segment, "**" matches across segments. For example:

	treefs ls 'roles/*'
	treefs diff --name-status 'cookbooks/**'
	treefs upload --purge 'data_bags/users'
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a YAML or JSON config file")
	root.PersistentFlags().IntVarP(&a.verbose, "verbose", "v", a.verbose,
		"Log verbosity level between 1 (error) and 5 (trace)")

	root.AddCommand(
		newLsCmd(a),
		newShowCmd(a),
		newDiffCmd(a),
		newUploadCmd(a),
		newDownloadCmd(a),
		newDeleteCmd(a),
		newMountCmd(a),
	)
	return root
}
