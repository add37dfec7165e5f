package chartcli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newSchemaCmd(opts *options) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "schema <table>",
		Short: "List the chartable columns of a table or view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := opts.client().Schema(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to fetch schema: %w", err)
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(schema)
			case "table":
				_, err := fmt.Fprintln(out, RenderSchema(schema))
				return err
			default:
				return fmt.Errorf("unknown output format %q (want table or json)", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "Output format (table, json)")
	return cmd
}
