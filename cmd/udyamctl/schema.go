package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"udyam/internal/formflow/schema"
)

func newSchemaCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the form schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := schema.Load()
			if err != nil {
				return err
			}
			if opts.output != "text" {
				return render(cmd.OutOrStdout(), opts.output, s)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, s.Title)
			for _, step := range s.Steps {
				fmt.Fprintf(out, "\nStep %d: %s\n", step.Number, step.Name)
				for _, f := range step.Fields {
					req := ""
					if f.Required {
						req = " *"
					}
					fmt.Fprintf(out, "  %-18s %s%s\n", f.Name, f.Label, req)
					for _, o := range f.Options {
						fmt.Fprintf(out, "      %-16s %s\n", o.Value, o.Label)
					}
				}
			}
			return nil
		},
	}
}
