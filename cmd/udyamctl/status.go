package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <aadhaar-number>",
		Short: "Show the registration status for an Aadhaar number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := opts.client().Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.output != "text" {
				return render(cmd.OutOrStdout(), opts.output, view)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status: %s\n", view.Status)
			if view.StepCompleted != nil {
				fmt.Fprintf(out, "Steps completed: %d\n", *view.StepCompleted)
			}
			if view.UdyamNumber != "" {
				fmt.Fprintf(out, "Udyam number: %s\n", view.UdyamNumber)
			}
			if view.CompletedAt != nil {
				fmt.Fprintf(out, "Completed at: %s\n", view.CompletedAt.Format("02 Jan 2006 15:04 MST"))
			}
			return nil
		},
	}
}
