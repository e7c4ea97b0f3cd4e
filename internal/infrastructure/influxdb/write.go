package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementPass  = "extraction_pass"
	MeasurementFacts = "device_facts"
)

// Pass describes one extraction pass for the extraction_pass measurement.
type Pass struct {
	Serial    string
	OK        bool
	Commands  int
	CacheHits int
	Changed   int
	Failed    int
	Duration  time.Duration
	Time      time.Time
}

// WritePass records an extraction pass, tagged by serial and result.
func (c *Client) WritePass(p Pass) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(passPoint(p))
}

func passPoint(p Pass) *write.Point {
	result := "ok"
	if !p.OK {
		result = "error"
	}
	ts := p.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(
		MeasurementPass,
		map[string]string{"serial": p.Serial, "result": result},
		map[string]any{
			"commands":       p.Commands,
			"cache_hits":     p.CacheHits,
			"fields_changed": p.Changed,
			"failed":         p.Failed,
			"duration_ms":    p.Duration.Milliseconds(),
		},
		ts,
	)
}

// WriteFacts records numeric device facts (battery level, RAM in MB, ...)
// as fields of one device_facts point. Nothing is written for an empty map.
func (c *Client) WriteFacts(serial string, facts map[string]float64, ts time.Time) {
	if !c.IsConnected() || len(facts) == 0 {
		return
	}
	fields := make(map[string]any, len(facts))
	for k, v := range facts {
		fields[k] = v
	}
	c.writeAPI.WritePoint(write.NewPoint(MeasurementFacts, map[string]string{"serial": serial}, fields, ts))
}

// WritePoint writes an arbitrary point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
