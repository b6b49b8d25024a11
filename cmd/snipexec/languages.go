package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/itstheanurag/snipexec/internal/languages"
)

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List the available languages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		reg := languages.Default()
		out := cmd.OutOrStdout()

		if !verbose {
			fmt.Fprintln(out, reg.Available())
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CODE\tNAME\tBUILD\tRUN")
		for _, l := range reg.List() {
			build := "-"
			for i, step := range l.CompileSteps {
				if i == 0 {
					build = step.String()
				} else {
					build += " && " + step.String()
				}
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.Code, l.Name, build, l.Run.String())
		}
		return tw.Flush()
	},
}

func init() {
	languagesCmd.Flags().BoolP("verbose", "v", false, "Show build and run commands")
	rootCmd.AddCommand(languagesCmd)
}
