package extraction

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nerrad567/droidprobe/internal/channel"
	"github.com/nerrad567/droidprobe/internal/device"
	"github.com/nerrad567/droidprobe/internal/fieldspec"
	"github.com/nerrad567/droidprobe/internal/resolve"
)

// Logger defines the logging interface used by the orchestrator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options controls one extraction pass.
type Options struct {
	// Groups limits the pass to these groups. Empty means all groups.
	Groups []string

	// Force re-extracts groups that were already extracted.
	Force bool

	// KeepCache leaves the raw-output cache populated after the pass.
	KeepCache bool
}

// Result summarises one extraction pass.
type Result struct {
	Serial    string        `json:"serial"`
	Commands  int           `json:"commands"`   // commands issued through the channel
	CacheHits int           `json:"cache_hits"` // commands answered from the cache
	Skipped   int           `json:"skipped"`    // commands with nothing left to extract
	Changed   []string      `json:"changed"`    // fields whose value changed
	Failed    []string      `json:"failed"`     // sources of commands that failed
	Groups    []string      `json:"groups"`     // groups marked extracted by this pass
	Duration  time.Duration `json:"duration"`
}

// Observer is called after every pass, including passes that ended in an
// error. It must not block.
type Observer func(Result, error)

// Orchestrator runs extraction passes for a field-spec registry.
type Orchestrator struct {
	channel  channel.Channel
	registry *fieldspec.Registry
	metrics  *Metrics
	observer Observer
	logger   Logger
}

// New creates an orchestrator that issues commands through ch.
func New(ch channel.Channel, registry *fieldspec.Registry) *Orchestrator {
	return &Orchestrator{
		channel:  ch,
		registry: registry,
		metrics:  NewMetrics(),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger.
func (o *Orchestrator) SetLogger(logger Logger) {
	o.logger = logger
}

// SetObserver registers a callback for pass results. Call before the first
// pass.
func (o *Orchestrator) SetObserver(fn Observer) {
	o.observer = fn
}

// Registry returns the field-spec registry the orchestrator uses.
func (o *Orchestrator) Registry() *fieldspec.Registry {
	return o.registry
}

// Extract runs one extraction pass on dev.
//
// Commands are visited in registry order. A command is skipped when none of
// its fields belong to an active group: a requested group that is not yet
// extracted (or any requested group when forced). At the end of the pass
// every active group whose commands all succeeded is marked extracted.
//
// Returns:
//   - ErrUnknownGroup if opts.Groups names a group the schema lacks
//   - channel.ErrDeviceOffline, fatal channel errors and context errors,
//     wrapped, with the partial Result
func (o *Orchestrator) Extract(ctx context.Context, dev *device.Device, opts Options) (Result, error) {
	if dev == nil {
		return Result{}, ErrNoDevice
	}
	if err := o.checkGroups(opts.Groups); err != nil {
		return Result{Serial: dev.Serial()}, err
	}

	release, err := dev.Acquire(ctx)
	if err != nil {
		return Result{Serial: dev.Serial()}, err
	}
	defer release()

	start := time.Now()
	res, err := o.pass(ctx, dev, opts)
	res.Duration = time.Since(start)

	if !opts.KeepCache {
		dev.Cache().Clear()
	}

	o.record(res, err)
	return res, err
}

func (o *Orchestrator) pass(ctx context.Context, dev *device.Device, opts Options) (Result, error) {
	res := Result{Serial: dev.Serial()}
	active := o.activeGroups(dev, opts)
	failed := make(map[string]bool)
	visited := make(map[string]bool)

	for _, cmd := range o.registry.Commands() {
		specs := o.activeSpecs(cmd, active)
		if len(specs) == 0 {
			res.Skipped++
			continue
		}
		groups := o.specGroups(specs)
		for _, g := range groups {
			visited[g] = true
		}

		text, hit, err := o.fetch(ctx, dev, cmd)
		if hit {
			res.CacheHits++
		} else {
			res.Commands++
		}
		if err != nil {
			if !errors.Is(err, channel.ErrCommandFailed) {
				return res, fmt.Errorf("extracting %s from %s: %w", cmd.Source, dev.Serial(), err)
			}
			o.logger.Warn("command failed, fields left unchanged",
				"serial", dev.Serial(), "source", cmd.Source, "error", err)
			res.Failed = append(res.Failed, cmd.Source)
			for _, g := range groups {
				failed[g] = true
			}
			continue
		}

		changed, err := o.apply(dev, specs, text)
		if err != nil {
			return res, fmt.Errorf("storing %s fields for %s: %w", cmd.Source, dev.Serial(), err)
		}
		for _, key := range changed {
			if !slices.Contains(res.Changed, key) {
				res.Changed = append(res.Changed, key)
			}
		}
	}

	for _, g := range o.registry.Schema().Groups() {
		if visited[g] && !failed[g] {
			res.Groups = append(res.Groups, g)
		}
	}
	if len(res.Groups) > 0 {
		dev.MarkExtracted(res.Groups...)
	}
	return res, nil
}

// fetch returns the command's output, from the cache when possible.
func (o *Orchestrator) fetch(ctx context.Context, dev *device.Device, cmd fieldspec.RawCommand) (string, bool, error) {
	key := cmd.Key()
	if text, ok := dev.Cache().Get(key); ok {
		o.logger.Debug("command output from cache", "serial", dev.Serial(), "source", cmd.Source, "cache_hit", true)
		o.metrics.CommandsTotal.WithLabelValues(cmd.Source, resultCached).Inc()
		o.metrics.CacheHitsTotal.Inc()
		return text, true, nil
	}

	o.logger.Debug("running command", "serial", dev.Serial(), "source", cmd.Source, "cache_hit", false)
	out, err := o.channel.Run(ctx, dev.Serial(), cmd.Args, cmd.Options)
	if err != nil {
		o.metrics.CommandsTotal.WithLabelValues(cmd.Source, outcome(err)).Inc()
		return "", false, err
	}
	o.metrics.CommandsTotal.WithLabelValues(cmd.Source, resultOK).Inc()
	dev.Cache().Put(key, out.Text)
	return out.Text, false, nil
}

// apply evaluates specs against text and commits the result in one update.
// Specs see the values staged by earlier specs of the same command.
func (o *Orchestrator) apply(dev *device.Device, specs []fieldspec.FieldSpec, text string) ([]string, error) {
	info := dev.Info()
	staged := make(map[string]any)
	var changed []string

	for _, spec := range specs {
		candidates, ok := fieldspec.Evaluate(spec, text)
		if !ok {
			continue
		}

		existing, inStage := staged[spec.Field]
		if !inStage {
			existing, _ = info.Get(spec.Field)
		}

		policy := spec.Existing
		if policy == "" {
			policy = resolve.Replace
		}
		updated, diff := resolve.Resolve(spec.Field, existing, candidates, policy)
		if !diff {
			continue
		}
		staged[spec.Field] = updated
		if !slices.Contains(changed, spec.Field) {
			changed = append(changed, spec.Field)
		}
	}

	if len(staged) == 0 {
		return nil, nil
	}
	if err := info.Apply(staged); err != nil {
		return nil, err
	}
	return changed, nil
}

// activeGroups returns the groups this pass extracts.
func (o *Orchestrator) activeGroups(dev *device.Device, opts Options) map[string]bool {
	active := make(map[string]bool)
	for _, g := range o.registry.Schema().Groups() {
		if len(opts.Groups) > 0 && !slices.Contains(opts.Groups, g) {
			continue
		}
		if !opts.Force && dev.Extracted(g) {
			continue
		}
		active[g] = true
	}
	return active
}

func (o *Orchestrator) activeSpecs(cmd fieldspec.RawCommand, active map[string]bool) []fieldspec.FieldSpec {
	var out []fieldspec.FieldSpec
	for _, spec := range o.registry.Lookup(cmd) {
		if g, ok := o.registry.Schema().GroupOf(spec.Field); ok && active[g] {
			out = append(out, spec)
		}
	}
	return out
}

func (o *Orchestrator) specGroups(specs []fieldspec.FieldSpec) []string {
	var groups []string
	for _, spec := range specs {
		g, _ := o.registry.Schema().GroupOf(spec.Field)
		if !slices.Contains(groups, g) {
			groups = append(groups, g)
		}
	}
	return groups
}

func (o *Orchestrator) checkGroups(groups []string) error {
	schema := o.registry.Schema()
	for _, g := range groups {
		if !schema.HasGroup(g) {
			return fmt.Errorf("%w: %q", ErrUnknownGroup, g)
		}
	}
	return nil
}

func (o *Orchestrator) record(res Result, err error) {
	o.metrics.PassDuration.Observe(res.Duration.Seconds())
	o.metrics.FieldsChangedTotal.Add(float64(len(res.Changed)))

	if err != nil {
		o.metrics.PassesTotal.WithLabelValues(resultError).Inc()
		o.logger.Warn("extraction pass aborted",
			"serial", res.Serial,
			"duration_ms", res.Duration.Milliseconds(),
			"commands", res.Commands,
			"error", err,
		)
	} else {
		o.metrics.PassesTotal.WithLabelValues(resultOK).Inc()
		o.logger.Info("extraction pass complete",
			"serial", res.Serial,
			"duration_ms", res.Duration.Milliseconds(),
			"commands", res.Commands,
			"cache_hits", res.CacheHits,
			"fields_changed", len(res.Changed),
			"failed", len(res.Failed),
		)
	}

	if o.observer != nil {
		o.observer(res, err)
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, channel.ErrCommandFailed):
		return resultFailed
	case errors.Is(err, channel.ErrDeviceOffline):
		return resultOffline
	default:
		return resultError
	}
}
