package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/droidprobe/internal/device"
	"github.com/nerrad567/droidprobe/internal/extraction"
	"github.com/nerrad567/droidprobe/internal/session"
)

// errNoOnlineDevices is returned by info when nothing can be extracted.
var errNoOnlineDevices = errors.New("no online devices")

// infoRecord is one device in "info --json" output.
type infoRecord struct {
	Serial string         `json:"serial"`
	Status string         `json:"status"`
	Groups []string       `json:"groups"`
	Fields map[string]any `json:"fields"`
}

func newInfoCmd(a *app) *cobra.Command {
	var (
		groups     []string
		force      bool
		asJSON     bool
		fieldsFile string
	)

	cmd := &cobra.Command{
		Use:   "info [serial...]",
		Short: "Extract and print device information records",
		Long: `Extract device information and print one record per device.

With no serials every online device is extracted. Devices are extracted in
parallel (extraction.parallelism). A device that fails does not stop the
others; its error is reported after the records that succeeded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, _, err := a.newSession(fieldsFile)
			if err != nil {
				return err
			}
			if _, err := sess.Scan(cmd.Context()); err != nil {
				return err
			}

			serials, err := infoTargets(sess, args)
			if err != nil {
				return err
			}

			opts := extraction.Options{Groups: groups, Force: force, KeepCache: a.cfg.Extraction.KeepCache}
			results, extractErr := sess.ExtractAll(cmd.Context(), serials, opts, a.cfg.Extraction.Parallelism)

			var done []string
			for _, serial := range serials {
				if _, ok := results[serial]; ok {
					done = append(done, serial)
				}
			}
			if err := a.printRecords(sess, done, asJSON); err != nil {
				return err
			}
			return extractErr
		},
	}
	cmd.Flags().StringSliceVar(&groups, "groups", nil, "extract only these groups (comma separated)")
	cmd.Flags().BoolVar(&force, "force", false, "re-run commands for groups already extracted")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text dumps")
	cmd.Flags().StringVar(&fieldsFile, "fields", "", "YAML field spec file merged into the catalogue")
	return cmd
}

// infoTargets returns the serials to extract: args when given (each must be
// attached), otherwise every online device.
func infoTargets(sess *session.Session, args []string) ([]string, error) {
	if len(args) > 0 {
		for _, serial := range args {
			if _, err := sess.Device(serial); err != nil {
				return nil, fmt.Errorf("%s: %w", serial, err)
			}
		}
		return args, nil
	}

	var serials []string
	for _, dev := range sess.Devices() {
		if dev.Status().Online() {
			serials = append(serials, dev.Serial())
		}
	}
	if len(serials) == 0 {
		return nil, errNoOnlineDevices
	}
	return serials, nil
}

func (a *app) printRecords(sess *session.Session, serials []string, asJSON bool) error {
	records := make([]infoRecord, 0, len(serials))
	for _, serial := range serials {
		dev, err := sess.Device(serial)
		if err != nil {
			continue
		}
		records = append(records, infoRecord{
			Serial: serial,
			Status: string(dev.Status()),
			Groups: dev.ExtractedGroups(),
			Fields: dev.Info().Snapshot(),
		})
	}

	if asJSON {
		return a.writeJSON(records)
	}
	for i, rec := range records {
		if i > 0 {
			fmt.Fprintln(a.stdout)
		}
		dev, err := sess.Device(rec.Serial)
		if err != nil {
			continue
		}
		fmt.Fprintf(a.stdout, "=== %s (%s) ===\n", rec.Serial, rec.Status)
		fmt.Fprint(a.stdout, device.Dump(sess.Schema(), dev.Info()))
	}
	return nil
}
