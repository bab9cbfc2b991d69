package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bastionwaf/bastion/cfgparser"
)

func newParseCmd() *cobra.Command {
	var includePositions bool
	var skipIncludes bool

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a configuration file and dump the tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []cfgparser.Option
			if skipIncludes {
				opts = append(opts, cfgparser.WithoutIncludes())
			}
			p := cfgparser.New(opts...)
			err := p.ParseFile(args[0])

			if includePositions {
				fmt.Print(p.Root().StringWithPositions())
			} else {
				fmt.Print(p.Root().String())
			}

			for _, d := range p.Diagnostics() {
				fmt.Fprintln(os.Stderr, d)
			}
			if err != nil {
				return fmt.Errorf("parse configuration: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&includePositions, "positions", false, "include file:line positions in the dump")
	cmd.Flags().BoolVar(&skipIncludes, "no-includes", false, "do not execute Include directives")

	return cmd
}
