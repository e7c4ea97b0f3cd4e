// Package config handles loading and validating droidprobe configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with DROIDPROBE_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Sensitive values (MQTT password, InfluxDB token) should be supplied through
// environment variables rather than committed to the config file.
//
// Usage:
//
//	cfg, err := config.LoadOptional("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.ADB.Binary)
package config
