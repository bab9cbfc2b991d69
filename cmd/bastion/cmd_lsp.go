package main

import (
	"github.com/spf13/cobra"

	"github.com/bastionwaf/bastion/lsp"
)

func newLSPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lsp",
		Short: "Run the configuration language server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return lsp.NewLSPServer(version).RunStdio()
		},
	}

	return cmd
}
