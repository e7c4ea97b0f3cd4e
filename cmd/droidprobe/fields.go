package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/droidprobe/internal/device"
)

func newFieldsCmd(a *app) *cobra.Command {
	var (
		asJSON     bool
		fieldsFile string
	)

	cmd := &cobra.Command{
		Use:   "fields",
		Short: "Print the field catalogue: each command and the fields it feeds",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			reg, err := a.registry(device.DefaultSchema(), fieldsFile)
			if err != nil {
				return err
			}
			summary := reg.Summary()
			if asJSON {
				return a.writeJSON(summary)
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SOURCE\tGROUPS\tFIELDS")
			for _, c := range summary {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Source, strings.Join(c.Groups, ","), strings.Join(c.Fields, ", "))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.Flags().StringVar(&fieldsFile, "fields", "", "YAML field spec file merged into the catalogue")
	return cmd
}
