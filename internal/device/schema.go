package device

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Canonical field keys. The set is closed: extraction can only write keys
// that a Schema declares.
const (
	KeyModel         = "model"
	KeyManufacturer  = "manufacturer"
	KeyBrand         = "brand"
	KeyDeviceName    = "device_name"
	KeyProduct       = "product"
	KeyBoard         = "board"
	KeySerialNumber  = "serial_number"
	KeyAndroid       = "android_version"
	KeySDK           = "sdk_level"
	KeyBuildID       = "build_id"
	KeyBuildType     = "build_type"
	KeySecurityPatch = "security_patch"
	KeyFingerprint   = "fingerprint"
	KeyKernel        = "kernel_version"

	KeyChipset      = "chipset"
	KeyCPUArch      = "cpu_architecture"
	KeyCPUABIs      = "cpu_abis"
	KeyCPUCores     = "cpu_cores"
	KeyCPUFeatures  = "cpu_features"
	KeyGPUVendor    = "gpu_vendor"
	KeyGPUModel     = "gpu_model"
	KeyGLESVersion  = "gles_version"
	KeyGLExtensions = "gles_extension_count"

	KeyRAMTotal         = "ram_total"
	KeyExternalStorage  = "external_storage"
	KeySecondaryStorage = "secondary_storage"
	KeyDataDir          = "data_dir"

	KeyResolution  = "resolution"
	KeyDensity     = "density"
	KeyRefreshRate = "refresh_rate"

	KeyBatteryLevel       = "battery_level"
	KeyBatteryTemperature = "battery_temperature"
	KeyBatteryVoltage     = "battery_voltage"
	KeyBatteryTechnology  = "battery_technology"

	KeyPackageCount = "package_count"
	KeyPackages     = "packages"
)

// Entry is one displayed field: a human label and the canonical key it shows.
type Entry struct {
	Label string
	Key   string
}

// Subcategory is an ordered list of entries under a heading.
type Subcategory struct {
	Name    string
	Entries []Entry
}

// Category is a display section. Group is the identifier callers use to
// request extraction of just this section (e.g. "cpu").
type Category struct {
	Group         string
	Name          string
	Subcategories []Subcategory
}

// Schema is the closed set of canonical field keys plus their presentation.
//
// A Schema is immutable once built and safe for concurrent use.
type Schema struct {
	keys       []string
	known      map[string]bool
	groups     map[string]string
	categories []Category
}

// NewSchema builds a schema from the canonical key set and its presentation.
// It returns ErrInvalidSchema if the presentation and the key set disagree.
func NewSchema(keys []string, categories []Category) (*Schema, error) {
	s := &Schema{
		keys:       append([]string(nil), keys...),
		known:      make(map[string]bool, len(keys)),
		groups:     make(map[string]string, len(keys)),
		categories: categories,
	}
	for _, k := range keys {
		s.known[k] = true
	}
	for _, c := range categories {
		for _, sub := range c.Subcategories {
			for _, e := range sub.Entries {
				if _, seen := s.groups[e.Key]; !seen && s.known[e.Key] {
					s.groups[e.Key] = c.Group
				}
			}
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on error.
// Intended for package-level schema definitions.
func MustSchema(keys []string, categories []Category) *Schema {
	s, err := NewSchema(keys, categories)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks that every presented key is canonical, every canonical
// key is presented, and keys and groups are unique.
func (s *Schema) Validate() error {
	var errs []error

	seen := make(map[string]bool, len(s.keys))
	for _, k := range s.keys {
		if k == "" {
			errs = append(errs, fmt.Errorf("%w: empty key", ErrInvalidSchema))
			continue
		}
		if seen[k] {
			errs = append(errs, fmt.Errorf("%w: duplicate key %q", ErrInvalidSchema, k))
		}
		seen[k] = true
	}

	groups := make(map[string]bool, len(s.categories))
	for _, c := range s.categories {
		if c.Group == "" || strings.ToLower(c.Group) != c.Group {
			errs = append(errs, fmt.Errorf("%w: category %q needs a lower-case group", ErrInvalidSchema, c.Name))
		}
		if groups[c.Group] {
			errs = append(errs, fmt.Errorf("%w: duplicate group %q", ErrInvalidSchema, c.Group))
		}
		groups[c.Group] = true

		for _, sub := range c.Subcategories {
			for _, e := range sub.Entries {
				if !s.known[e.Key] {
					errs = append(errs, fmt.Errorf("%w: %s/%s shows %q", ErrUnknownField, c.Name, sub.Name, e.Key))
				}
			}
		}
	}

	for _, k := range s.keys {
		if _, ok := s.groups[k]; !ok {
			errs = append(errs, fmt.Errorf("%w: key %q is not presented in any category", ErrInvalidSchema, k))
		}
	}

	return errors.Join(errs...)
}

// Has reports whether key is a canonical field key.
func (s *Schema) Has(key string) bool {
	return s.known[key]
}

// Keys returns the canonical keys in definition order.
func (s *Schema) Keys() []string {
	return append([]string(nil), s.keys...)
}

// GroupOf returns the extraction group a key belongs to: the group of the
// first category that presents it.
func (s *Schema) GroupOf(key string) (string, bool) {
	g, ok := s.groups[key]
	return g, ok
}

// Groups returns all group identifiers in category order.
func (s *Schema) Groups() []string {
	out := make([]string, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c.Group)
	}
	return out
}

// HasGroup reports whether group names a category.
func (s *Schema) HasGroup(group string) bool {
	for _, c := range s.categories {
		if c.Group == group {
			return true
		}
	}
	return false
}

// Categories returns a copy of the presentation structure.
func (s *Schema) Categories() []Category {
	out := make([]Category, len(s.categories))
	for i, c := range s.categories {
		subs := make([]Subcategory, len(c.Subcategories))
		for j, sub := range c.Subcategories {
			subs[j] = Subcategory{Name: sub.Name, Entries: slices.Clone(sub.Entries)}
		}
		c.Subcategories = subs
		out[i] = c
	}
	return out
}

var defaultKeys = []string{
	KeyModel, KeyManufacturer, KeyBrand, KeyDeviceName, KeyProduct, KeyBoard, KeySerialNumber,
	KeyAndroid, KeySDK, KeyBuildID, KeyBuildType, KeySecurityPatch, KeyFingerprint, KeyKernel,
	KeyChipset, KeyCPUArch, KeyCPUABIs, KeyCPUCores, KeyCPUFeatures,
	KeyGPUVendor, KeyGPUModel, KeyGLESVersion, KeyGLExtensions,
	KeyRAMTotal, KeyExternalStorage, KeySecondaryStorage, KeyDataDir,
	KeyResolution, KeyDensity, KeyRefreshRate,
	KeyBatteryLevel, KeyBatteryTemperature, KeyBatteryVoltage, KeyBatteryTechnology,
	KeyPackageCount, KeyPackages,
}

var defaultCategories = []Category{
	{
		Group: "device",
		Name:  "Device",
		Subcategories: []Subcategory{
			{Name: "Identity", Entries: []Entry{
				{"Model", KeyModel},
				{"Manufacturer", KeyManufacturer},
				{"Brand", KeyBrand},
				{"Device", KeyDeviceName},
				{"Product", KeyProduct},
				{"Board", KeyBoard},
				{"Serial number", KeySerialNumber},
			}},
			{Name: "Build", Entries: []Entry{
				{"Android version", KeyAndroid},
				{"SDK level", KeySDK},
				{"Build ID", KeyBuildID},
				{"Build type", KeyBuildType},
				{"Security patch", KeySecurityPatch},
				{"Fingerprint", KeyFingerprint},
				{"Kernel", KeyKernel},
			}},
		},
	},
	{
		Group: "cpu",
		Name:  "CPU",
		Subcategories: []Subcategory{
			{Name: "Processor", Entries: []Entry{
				{"Chipset", KeyChipset},
				{"Architecture", KeyCPUArch},
				{"ABIs", KeyCPUABIs},
				{"Cores", KeyCPUCores},
			}},
			{Name: "Instruction set", Entries: []Entry{
				{"Features", KeyCPUFeatures},
			}},
		},
	},
	{
		Group: "gpu",
		Name:  "GPU",
		Subcategories: []Subcategory{
			{Name: "Renderer", Entries: []Entry{
				{"Vendor", KeyGPUVendor},
				{"Model", KeyGPUModel},
				{"OpenGL ES", KeyGLESVersion},
				{"Extensions", KeyGLExtensions},
			}},
		},
	},
	{
		Group: "memory",
		Name:  "Memory",
		Subcategories: []Subcategory{
			{Name: "RAM", Entries: []Entry{
				{"Total", KeyRAMTotal},
			}},
			{Name: "Storage", Entries: []Entry{
				{"External storage", KeyExternalStorage},
				{"Secondary storage", KeySecondaryStorage},
				{"Data directory", KeyDataDir},
			}},
		},
	},
	{
		Group: "display",
		Name:  "Display",
		Subcategories: []Subcategory{
			{Name: "Screen", Entries: []Entry{
				{"Resolution", KeyResolution},
				{"Density", KeyDensity},
				{"Refresh rate", KeyRefreshRate},
			}},
		},
	},
	{
		Group: "battery",
		Name:  "Battery",
		Subcategories: []Subcategory{
			{Name: "Status", Entries: []Entry{
				{"Level", KeyBatteryLevel},
				{"Temperature", KeyBatteryTemperature},
				{"Voltage", KeyBatteryVoltage},
				{"Technology", KeyBatteryTechnology},
			}},
		},
	},
	{
		Group: "packages",
		Name:  "Packages",
		Subcategories: []Subcategory{
			{Name: "Installed", Entries: []Entry{
				{"Count", KeyPackageCount},
				{"Packages", KeyPackages},
			}},
		},
	},
}

var defaultSchema = MustSchema(defaultKeys, defaultCategories)

// DefaultSchema returns the built-in Android device schema.
func DefaultSchema() *Schema {
	return defaultSchema
}
