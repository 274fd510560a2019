package main

import (
	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-bridge/host"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of the host configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		data, err := host.ConfigSchema()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
