package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/droidprobe/internal/device"
	"github.com/nerrad567/droidprobe/internal/infrastructure/database"
	"github.com/nerrad567/droidprobe/migrations"
)

const defaultHistoryLimit = 10

var errNoDatabase = errors.New("database.path is not set")

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history <serial>",
		Short: "List stored snapshots of a device, newest first",
		Long: `List the snapshots "serve" stored for a device, newest first.

Snapshots are written to the SQLite database (database.path) after every
extraction pass that changed a field.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // read-only use

			snaps, err := device.NewSQLiteRepository(db.DB).ListSnapshots(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if asJSON {
				return a.writeJSON(snaps)
			}

			if len(snaps) == 0 {
				fmt.Fprintf(a.stdout, "no snapshots for %s\n", args[0])
				return nil
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tSTATUS\tGROUPS\tFIELDS")
			for _, s := range snaps {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n",
					s.CreatedAt.Local().Format(time.DateTime), s.Status, len(s.Groups), len(s.Fields))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", defaultHistoryLimit, "maximum number of snapshots (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

// openDatabase opens the snapshot database and applies pending migrations.
func (a *app) openDatabase(ctx context.Context) (*database.DB, error) {
	if a.cfg.Database.Path == "" {
		return nil, errNoDatabase
	}
	db, err := database.Open(ctx, database.Config{
		Path:        a.cfg.Database.Path,
		WALMode:     a.cfg.Database.WALMode,
		BusyTimeout: a.cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}
