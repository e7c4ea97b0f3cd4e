// Package influxdb writes droidprobe telemetry to InfluxDB v2.
//
// Two measurements are written:
//
//	extraction_pass,serial=...,result=ok|error  commands,cache_hits,fields_changed,failed,duration_ms
//	device_facts,serial=...                     battery_level,ram_mb,sdk_level,...
//
// Writes are non-blocking and batched (batch_size, flush_interval in
// config.yaml). Batch failures are delivered to the SetOnError callback.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WritePass(influxdb.Pass{Serial: "emulator-5554", OK: true, Commands: 10})
package influxdb
