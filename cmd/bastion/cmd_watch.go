package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bastionwaf/bastion/engine"
	"github.com/bastionwaf/bastion/watch"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Watch a configuration and revalidate on every change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := watch.New(args[0])
			if err != nil {
				return fmt.Errorf("watch configuration: %w", err)
			}
			defer w.Close()

			for ev := range w.Events() {
				if ev.Err != nil {
					fmt.Fprintf(os.Stderr, "invalid: %v\n", ev.Err)
					for _, d := range ev.Parser.Diagnostics() {
						fmt.Fprintf(os.Stderr, "  %s\n", d)
					}
					continue
				}
				e := engine.New()
				if aerr := ev.Parser.Apply(e.Registry()); aerr != nil {
					fmt.Fprintf(os.Stderr, "invalid: %v\n", aerr)
					continue
				}
				fmt.Printf("ok: %d sites\n", len(e.Sites))
			}
			return nil
		},
	}

	return cmd
}
