package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// deviceRow is one device in "devices --json" output.
type deviceRow struct {
	Serial     string            `json:"serial"`
	Status     string            `json:"status"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func newDevicesCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List attached devices and their status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, _, err := a.newSession("")
			if err != nil {
				return err
			}
			devices, err := sess.Scan(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([]deviceRow, 0, len(devices))
			for _, dev := range devices {
				rows = append(rows, deviceRow{
					Serial:     dev.Serial(),
					Status:     string(dev.Status()),
					Attributes: dev.Attributes(),
				})
			}
			if asJSON {
				return a.writeJSON(rows)
			}

			if len(rows) == 0 {
				fmt.Fprintln(a.stdout, "no devices attached")
				return nil
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SERIAL\tSTATUS\tMODEL")
			for _, r := range rows {
				model := r.Attributes["model"]
				if model == "" {
					model = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Serial, r.Status, model)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
