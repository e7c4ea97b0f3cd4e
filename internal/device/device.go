package device

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/droidprobe/internal/channel"
)

// Device is one attached Android device: its connection state, its
// information record, its raw-output cache and the set of groups already
// extracted.
//
// Extraction on a device is serialised through Acquire; everything else is
// safe for concurrent use.
type Device struct {
	serial string
	info   *Info
	cache  *Cache
	sem    chan struct{}

	mu            sync.RWMutex
	status        Status
	attrs         map[string]string
	extracted     map[string]bool
	lastExtracted time.Time
}

// New creates a device with an empty record and cache.
func New(serial string, schema *Schema) *Device {
	return &Device{
		serial:    serial,
		info:      NewInfo(schema),
		cache:     NewCache(),
		sem:       make(chan struct{}, 1),
		status:    StatusUnknown,
		attrs:     make(map[string]string),
		extracted: make(map[string]bool),
	}
}

// Serial returns the adb serial.
func (d *Device) Serial() string {
	return d.serial
}

// Info returns the device's information record.
func (d *Device) Info() *Info {
	return d.info
}

// Cache returns the device's raw-output cache.
func (d *Device) Cache() *Cache {
	return d.cache
}

// Status returns the last known status. It performs no I/O; call
// RefreshStatus to query the device.
func (d *Device) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// SetStatus records a status observed elsewhere (e.g. from "adb devices")
// and reports whether it changed.
func (d *Device) SetStatus(s Status) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status == s {
		return false
	}
	d.status = s
	return true
}

// RefreshStatus queries the device state through ch and stores it.
//
// An offline or unauthorised device is a status, not an error; only
// channel-level failures (missing adb, cancellation) are returned.
func (d *Device) RefreshStatus(ctx context.Context, ch channel.Channel) (Status, error) {
	out, err := ch.Run(ctx, d.serial, []string{"get-state"}, channel.Options{})

	var status Status
	switch {
	case err == nil:
		status = ParseStatus(out.Text)
	case errors.Is(err, channel.ErrDeviceOffline):
		status = statusFromError(err)
	default:
		return d.Status(), err
	}

	d.SetStatus(status)
	return status, nil
}

func statusFromError(err error) Status {
	var cmdErr *channel.CommandError
	if errors.As(err, &cmdErr) {
		msg := strings.ToLower(cmdErr.Stderr)
		if strings.Contains(msg, "unauthorized") || strings.Contains(msg, "authorizing") {
			return StatusUnauthorized
		}
	}
	return StatusOffline
}

// Attributes returns the descriptive attributes reported by "adb devices -l"
// (product, model, device, transport_id).
func (d *Device) Attributes() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(d.attrs)
}

// SetAttributes replaces the descriptive attributes.
func (d *Device) SetAttributes(attrs map[string]string) {
	d.mu.Lock()
	d.attrs = maps.Clone(attrs)
	d.mu.Unlock()
}

// Acquire takes the device's extraction lock, waiting until it is free or
// ctx is done. The returned function releases it.
func (d *Device) Acquire(ctx context.Context) (func(), error) {
	select {
	case d.sem <- struct{}{}:
		return func() { <-d.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Extracted reports whether group has been fully extracted.
func (d *Device) Extracted(group string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.extracted[group]
}

// ExtractedGroups returns the extracted groups in sorted order.
func (d *Device) ExtractedGroups() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Sorted(maps.Keys(d.extracted))
}

// MarkExtracted records groups as fully extracted.
func (d *Device) MarkExtracted(groups ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, g := range groups {
		d.extracted[g] = true
	}
	d.lastExtracted = time.Now()
}

// LastExtracted returns when groups were last marked extracted.
func (d *Device) LastExtracted() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastExtracted
}

// Invalidate clears the raw-output cache and the extracted-group set so the
// next extraction queries the device again. Known field values are kept.
// With no groups everything is invalidated.
func (d *Device) Invalidate(groups ...string) {
	d.mu.Lock()
	if len(groups) == 0 {
		clear(d.extracted)
	}
	for _, g := range groups {
		delete(d.extracted, g)
	}
	d.mu.Unlock()
	d.cache.Clear()
}
