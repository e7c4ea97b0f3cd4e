package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/droidprobe/internal/channel"
	"github.com/nerrad567/droidprobe/internal/device"
	"github.com/nerrad567/droidprobe/internal/extraction"
	"github.com/nerrad567/droidprobe/internal/fieldspec"
	"github.com/nerrad567/droidprobe/internal/infrastructure/config"
	"github.com/nerrad567/droidprobe/internal/infrastructure/logging"
	"github.com/nerrad567/droidprobe/internal/session"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnv names the environment variable that overrides --config.
const configEnv = "DROIDPROBE_CONFIG"

// app carries state shared by all subcommands. It is filled in by the root
// command's PersistentPreRunE.
type app struct {
	configPath string
	stdout     io.Writer
	stderr     io.Writer

	cfg *config.Config
	log *logging.Logger
}

// newRootCmd builds the command tree writing to stdout and stderr.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "droidprobe",
		Short: "Collect hardware and software facts from Android devices over adb",
		Long: `droidprobe runs a catalogue of adb commands against attached Android
devices and assembles a categorised information record for each one.

Examples:
  # List attached devices
  droidprobe devices

  # Print the full record of every online device
  droidprobe info

  # Battery and memory only, as JSON
  droidprobe info R58M12345 --groups battery,memory --json

  # Serve records over HTTP, MQTT and InfluxDB
  droidprobe serve --config /etc/droidprobe/config.yaml`,
		Version:           fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&a.configPath, "config", "",
		fmt.Sprintf("config file (default %s, or $%s)", defaultConfigPath, configEnv))

	root.AddCommand(
		newDevicesCmd(a),
		newInfoCmd(a),
		newServeCmd(a),
		newHistoryCmd(a),
		newFieldsCmd(a),
	)
	return root
}

// setup loads configuration and creates the logger.
//
// An explicit --config or $DROIDPROBE_CONFIG must exist; the default path
// falls back to built-in defaults when missing.
func (a *app) setup(_ *cobra.Command, _ []string) error {
	path := a.configPath
	if path == "" {
		path = os.Getenv(configEnv)
	}

	var err error
	if path != "" {
		a.cfg, err = config.Load(path)
	} else {
		a.cfg, err = config.LoadOptional(defaultConfigPath)
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr so command output on stdout stays parseable.
	a.log = logging.NewWithWriter(a.stderr, a.cfg.Logging, version)
	return nil
}

// registry builds the field-spec registry: the built-in catalogue merged
// with the fields file (override, else the configured one).
func (a *app) registry(schema *device.Schema, override string) (*fieldspec.Registry, error) {
	reg, err := fieldspec.Default(schema)
	if err != nil {
		return nil, fmt.Errorf("building field catalogue: %w", err)
	}

	path := override
	if path == "" {
		path = a.cfg.Extraction.FieldsFile
	}
	if path == "" {
		return reg, nil
	}

	extra, err := fieldspec.LoadFile(path, schema)
	if err != nil {
		return nil, fmt.Errorf("loading fields file: %w", err)
	}
	reg, err = reg.Merge(extra...)
	if err != nil {
		return nil, fmt.Errorf("merging fields file: %w", err)
	}
	a.log.Info("field specs merged", "path", path, "commands", len(extra))
	return reg, nil
}

// newSession verifies the adb binary and creates a session over it.
func (a *app) newSession(fieldsOverride string) (*session.Session, *extraction.Orchestrator, error) {
	schema := device.DefaultSchema()
	reg, err := a.registry(schema, fieldsOverride)
	if err != nil {
		return nil, nil, err
	}

	ch := channel.NewADB(channel.Config{
		Binary:     a.cfg.ADB.Binary,
		ServerPort: a.cfg.ADB.ServerPort,
		Stdout:     a.stdout,
	})
	ch.SetLogger(a.log)
	if err := ch.CheckBinary(); err != nil {
		return nil, nil, err
	}

	orch := extraction.New(ch, reg)
	orch.SetLogger(a.log)

	sess := session.New(ch, reg, schema, orch)
	sess.SetLogger(a.log)
	return sess, orch, nil
}

// writeJSON prints v as indented JSON on stdout.
func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
