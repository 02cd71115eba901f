package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewStepsCmd prints the REMS checklist with its progress from the store.
func NewStepsCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "steps",
		Short: "show REMS workflow progress",
		Long:  "Lists the REMS workflow steps, marking completed steps with their dates and the current step.",
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")

			session, store, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			view := session.Workflow()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%d/%d completed)\n", view.Name, len(view.State.CompletedSteps), view.State.TotalSteps)
			for _, s := range view.Steps {
				mark := "[ ]"
				switch {
				case s.Completed:
					mark = "[x]"
				case s.Current:
					mark = "[>]"
				}
				line := fmt.Sprintf("%s %d. %s", mark, s.Ordinal, s.Title)
				if s.CompletedOn != nil {
					line += " (" + s.CompletedOn.String() + ")"
				}
				fmt.Fprintln(out, line)
				if verbose {
					for _, c := range s.Content {
						fmt.Fprintln(out, "      -", c)
					}
				}
			}
			return nil
		},
	}
	cmd.PersistentFlags().BoolP("verbose", "v", false, "include step content")
	return cmd
}
