package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bastionwaf/bastion/cfgparser"
	"github.com/bastionwaf/bastion/engine"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a configuration against the sensor directive set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := cfgparser.New()
			p.ParseFile(args[0])

			e := engine.New()
			err := p.Apply(e.Registry())

			for _, d := range p.Diagnostics() {
				fmt.Fprintln(os.Stderr, d)
			}
			if err != nil {
				return fmt.Errorf("configuration is invalid: %d problems, first: %w",
					len(p.Diagnostics()), err)
			}
			fmt.Printf("%s: OK (%d sites)\n", args[0], len(e.Sites))
			return nil
		},
	}

	return cmd
}
