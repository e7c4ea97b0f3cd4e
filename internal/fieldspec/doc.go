// Package fieldspec holds the declarative field catalogue and the small
// interpreter that turns raw command output into candidate values.
//
// A Registry maps each RawCommand to an ordered list of FieldSpecs. A spec
// names one schema field, a list of extraction rules (Search, FindAll,
// Identity), a transform pipeline of Call and Method steps, and two
// policies: how results of several rules combine (MultiPolicy) and how the
// result merges with the stored value (resolve.Policy).
//
// Steps dispatch through a closed table of named functions; arguments are
// literals or the Current placeholder. A rule that does not match, or a step
// that rejects its input, yields no candidate rather than an error. Only a
// malformed spec is an error, reported when the Registry is built.
//
// Specs can also be loaded from YAML with LoadFile and merged over the
// built-in catalogue:
//
//	reg, err := fieldspec.Default(schema)
//	extra, err := fieldspec.LoadFile("fields.yaml", schema)
//	reg, err = reg.Merge(extra...)
package fieldspec
