// Package device provides the device information model.
//
// # Key Types
//
//   - Schema: the closed set of canonical field keys and their presentation
//     as categories, subcategories and labelled entries. A category's Group
//     is the unit callers request extraction by.
//   - Info: the information record, a key to value map restricted to the
//     schema. Values are scalars or []any lists.
//   - Cache: raw command output memoised per device for one extraction pass.
//   - Device: serial, status, record, cache and the set of groups already
//     extracted.
//   - SQLiteRepository: snapshots of records and a table of seen devices.
//
// Status is only changed by SetStatus or RefreshStatus; reading it never
// talks to the device.
//
// # Usage
//
//	schema := device.DefaultSchema()
//	dev := device.New("emulator-5554", schema)
//	if _, err := dev.RefreshStatus(ctx, adb); err != nil {
//	    return err
//	}
//	fmt.Print(device.Dump(schema, dev.Info()))
package device
