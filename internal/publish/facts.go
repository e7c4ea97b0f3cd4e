package publish

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nerrad567/droidprobe/internal/device"
)

// Fact names written to the time-series sink.
const (
	FactRAMMB          = "ram_mb"
	FactSDKLevel       = "sdk_level"
	FactCPUCores       = "cpu_cores"
	FactBatteryLevel   = "battery_level"
	FactBatteryTempC   = "battery_temp_c"
	FactBatteryVoltage = "battery_mv"
	FactRefreshRateHz  = "refresh_rate_hz"
	FactDensityDPI     = "density_dpi"
	FactPackageCount   = "package_count"
	FactGLExtensions   = "gles_extension_count"
)

// factFields maps record keys to fact names.
var factFields = map[string]string{
	device.KeySDK:                FactSDKLevel,
	device.KeyCPUCores:           FactCPUCores,
	device.KeyBatteryLevel:       FactBatteryLevel,
	device.KeyBatteryTemperature: FactBatteryTempC,
	device.KeyBatteryVoltage:     FactBatteryVoltage,
	device.KeyRefreshRate:        FactRefreshRateHz,
	device.KeyDensity:            FactDensityDPI,
	device.KeyPackageCount:       FactPackageCount,
	device.KeyGLExtensions:       FactGLExtensions,
}

var leadingNumber = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*(\S*)`)

var mbPerUnit = map[string]float64{
	"B":  1.0 / (1024 * 1024),
	"KB": 1.0 / 1024,
	"MB": 1,
	"GB": 1024,
	"TB": 1024 * 1024,
}

// Facts extracts the numeric facts from a record snapshot. Values that are
// missing or not numeric are left out.
func Facts(fields map[string]any) map[string]float64 {
	facts := make(map[string]float64)
	for key, name := range factFields {
		if n, _, ok := number(fields[key]); ok {
			facts[name] = n
		}
	}
	if n, unit, ok := number(fields[device.KeyRAMTotal]); ok {
		if scale, known := mbPerUnit[strings.ToUpper(unit)]; known {
			facts[FactRAMMB] = n * scale
		}
	}
	return facts
}

// number reads a value such as 85, "4213 mV" or "28.5 °C" and returns the
// number and the unit that follows it.
func number(v any) (float64, string, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), "", true
	case float64:
		return x, "", true
	case string:
		m := leadingNumber.FindStringSubmatch(x)
		if m == nil {
			return 0, "", false
		}
		f, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, "", false
		}
		return f, m[2], true
	}
	return 0, "", false
}
