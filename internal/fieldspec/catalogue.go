package fieldspec

import (
	"regexp"

	"github.com/nerrad567/droidprobe/internal/channel"
	"github.com/nerrad567/droidprobe/internal/device"
	"github.com/nerrad567/droidprobe/internal/resolve"
)

// Built-in commands, in extraction order.
var (
	CmdGetprop = RawCommand{Source: "getprop", Args: []string{"shell", "getprop"}}
	CmdCPUInfo = RawCommand{Source: "cpuinfo", Args: []string{"shell", "cat", "/proc/cpuinfo"}}
	CmdMemInfo = RawCommand{Source: "meminfo", Args: []string{"shell", "cat", "/proc/meminfo"}}
	CmdVersion = RawCommand{Source: "kernel", Args: []string{"shell", "cat", "/proc/version"}}
	CmdWMSize  = RawCommand{Source: "wm size", Args: []string{"shell", "wm", "size"}}
	CmdDensity = RawCommand{Source: "wm density", Args: []string{"shell", "wm", "density"}}
	CmdSurface = RawCommand{Source: "surfaceflinger", Args: []string{"shell", "dumpsys", "SurfaceFlinger"}}
	CmdBattery = RawCommand{Source: "battery", Args: []string{"shell", "dumpsys", "battery"}}
	CmdEnv     = RawCommand{Source: "storage env", Args: []string{"shell", "printenv"}}
	CmdPackage = RawCommand{
		Source:  "packages",
		Args:    []string{"shell", "pm", "list", "packages"},
		Options: channel.Options{SplitLines: true},
	}
)

// prop matches one "[name]: [value]" line of getprop output.
func prop(name string) Rule {
	return Search(`^\[`+regexp.QuoteMeta(name)+`\]: \[(.*)\]\s*$`, 1)
}

// line matches "Key : value" style lines (cpuinfo, dumpsys battery).
func line(key string) Rule {
	return Search(`^\s*`+regexp.QuoteMeta(key)+`\s*:\s*(.*?)\s*$`, 1)
}

// DefaultEntries returns the built-in field catalogue.
func DefaultEntries() []Entry {
	return []Entry{
		{Command: CmdGetprop, Fields: []FieldSpec{
			{Field: device.KeyModel, Rules: []Rule{prop("ro.product.model")}},
			{Field: device.KeyManufacturer, Rules: []Rule{prop("ro.product.manufacturer")},
				Transforms: []Step{Method("title")}},
			{Field: device.KeyBrand, Rules: []Rule{prop("ro.product.brand")}},
			{Field: device.KeyDeviceName, Rules: []Rule{prop("ro.product.device")}},
			{Field: device.KeyProduct, Rules: []Rule{prop("ro.product.name")}},
			{Field: device.KeyBoard, Rules: []Rule{prop("ro.product.board"), prop("ro.board.platform")}},
			{Field: device.KeySerialNumber, Rules: []Rule{prop("ro.serialno"), prop("ro.boot.serialno")}},
			{Field: device.KeyAndroid, Rules: []Rule{prop("ro.build.version.release")}},
			{Field: device.KeySDK, Rules: []Rule{prop("ro.build.version.sdk")},
				Transforms: []Step{Call("int")}},
			{Field: device.KeyBuildID, Rules: []Rule{prop("ro.build.id")}},
			{Field: device.KeyBuildType, Rules: []Rule{prop("ro.build.type")}},
			{Field: device.KeySecurityPatch, Rules: []Rule{prop("ro.build.version.security_patch")}},
			{Field: device.KeyFingerprint, Rules: []Rule{prop("ro.build.fingerprint")}},
			{
				Field:    device.KeyChipset,
				Rules:    []Rule{prop("ro.soc.model"), prop("ro.board.platform"), prop("ro.hardware")},
				Multi:    MultiAppend,
				Existing: resolve.Append,
			},
			{
				Field:      device.KeyCPUABIs,
				Rules:      []Rule{prop("ro.product.cpu.abilist"), prop("ro.product.cpu.abi")},
				Transforms: []Step{Method("split", Lit(","))},
			},
			{
				Field:      device.KeyGLESVersion,
				Rules:      []Rule{prop("ro.opengles.version")},
				Transforms: []Step{Call("gles_version")},
			},
		}},
		{Command: CmdCPUInfo, Fields: []FieldSpec{
			{
				Field:    device.KeyChipset,
				Rules:    []Rule{line("Hardware"), line("model name")},
				Existing: resolve.Append,
			},
			{Field: device.KeyCPUArch, Rules: []Rule{line("CPU architecture")},
				Transforms: []Step{Call("concat", Lit("ARMv"), Current)}},
			{
				Field:      device.KeyCPUCores,
				Rules:      []Rule{FindAll(`^processor\s*:\s*(\d+)`, 1)},
				Transforms: []Step{Call("len")},
			},
			{
				Field:      device.KeyCPUFeatures,
				Rules:      []Rule{line("Features"), line("flags")},
				Transforms: []Step{Method("split")},
			},
		}},
		{Command: CmdMemInfo, Fields: []FieldSpec{
			{
				Field: device.KeyRAMTotal,
				Rules: []Rule{Search(`^MemTotal:\s*(\d+) kB`, 1)},
				Transforms: []Step{
					Call("int"),
					Call("floordiv", Current, Lit(1024)),
					Call("str"),
					Call("concat", Current, Lit(" MB")),
				},
			},
		}},
		{Command: CmdVersion, Fields: []FieldSpec{
			{Field: device.KeyKernel, Rules: []Rule{Search(`^Linux version (\S+)`, 1)}},
		}},
		{Command: CmdWMSize, Fields: []FieldSpec{
			{
				Field: device.KeyResolution,
				Rules: []Rule{
					Search(`^Physical size: (\d+x\d+)`, 1),
					Search(`^Override size: (\d+x\d+)`, 1),
				},
				Multi: MultiReplace,
			},
		}},
		{Command: CmdDensity, Fields: []FieldSpec{
			{
				Field: device.KeyDensity,
				Rules: []Rule{
					Search(`^Physical density: (\d+)`, 1),
					Search(`^Override density: (\d+)`, 1),
				},
				Transforms: []Step{Method("append", Lit(" dpi"))},
				Multi:      MultiReplace,
			},
		}},
		{Command: CmdSurface, Fields: []FieldSpec{
			{Field: device.KeyGPUVendor, Rules: []Rule{Search(`^GLES: ([^,]+),`, 1)},
				Transforms: []Step{Method("strip")}},
			{Field: device.KeyGPUModel, Rules: []Rule{Search(`^GLES: [^,]+, ([^,]+),`, 1)},
				Transforms: []Step{Method("strip")}},
			{
				Field:    device.KeyGLESVersion,
				Rules:    []Rule{Search(`^GLES: .*?OpenGL ES (\d+\.\d+)`, 1)},
				Existing: resolve.Drop,
			},
			{
				Field:      device.KeyGLExtensions,
				Rules:      []Rule{FindAll(`\b(GL_\w+)`, 1)},
				Transforms: []Step{Call("unique"), Call("len")},
			},
			{
				Field: device.KeyRefreshRate,
				Rules: []Rule{
					Search(`refresh-rate\s*:\s*([\d.]+)`, 1),
					Search(`(\d+(?:\.\d+)?) ?fps`, 1),
				},
				Transforms: []Step{Call("float"), Call("int"), Call("str"), Method("append", Lit(" Hz"))},
			},
		}},
		{Command: CmdBattery, Fields: []FieldSpec{
			{Field: device.KeyBatteryLevel, Rules: []Rule{line("level")},
				Transforms: []Step{Call("int")}},
			{
				Field: device.KeyBatteryTemperature,
				Rules: []Rule{line("temperature")},
				Transforms: []Step{
					Call("int"),
					Call("div", Current, Lit(10)),
					Call("str"),
					Method("append", Lit(" °C")),
				},
			},
			{Field: device.KeyBatteryVoltage, Rules: []Rule{line("voltage")},
				Transforms: []Step{Call("int"), Call("str"), Method("append", Lit(" mV"))}},
			{Field: device.KeyBatteryTechnology, Rules: []Rule{line("technology")}},
		}},
		{Command: CmdEnv, Fields: []FieldSpec{
			{Field: device.KeyExternalStorage, Rules: []Rule{Search(`^EXTERNAL_STORAGE=(.+)$`, 1)}},
			{Field: device.KeySecondaryStorage, Rules: []Rule{Search(`^SECONDARY_STORAGE=(.+)$`, 1)},
				Transforms: []Step{Method("split", Lit(":"))}},
			{Field: device.KeyDataDir, Rules: []Rule{Search(`^ANDROID_DATA=(.+)$`, 1)}},
		}},
		{Command: CmdPackage, Fields: []FieldSpec{
			{
				Field:      device.KeyPackageCount,
				Rules:      []Rule{FindAll(`^package:(\S+)`, 1)},
				Transforms: []Step{Call("unique"), Call("len")},
			},
			{
				Field:      device.KeyPackages,
				Rules:      []Rule{FindAll(`^package:(\S+)`, 1)},
				Transforms: []Step{Call("sorted")},
			},
		}},
	}
}

// Default builds the built-in registry for schema.
func Default(schema *device.Schema) (*Registry, error) {
	return NewRegistry(schema, DefaultEntries()...)
}
