// Package extraction runs extraction passes: it turns the raw output of the
// commands in a field-spec registry into values on a device's information
// record.
//
// A pass visits the registry's commands in order. Each command is fetched
// through the device's cache (the channel is only used on a miss), every
// field spec tied to it is evaluated, and the candidates are merged into the
// record by the resolution engine. The per-command result is committed as
// one atomic update.
//
// # Groups and idempotence
//
// Fields belong to groups (device, cpu, memory, ...). A pass may be limited
// to some groups, and groups already extracted for a device are skipped
// unless the pass is forced. Running a pass twice without Force therefore
// issues no commands the second time.
//
// # Failures
//
//   - A command that fails on the device (channel.ErrCommandFailed) leaves
//     its fields unchanged; the pass continues and the command's groups are
//     not marked extracted.
//   - An offline device, a fatal channel error or a cancelled context ends
//     the pass and is returned to the caller.
//   - Rules that do not match and transforms that fail simply produce no
//     candidate.
//
// # Thread Safety
//
// Orchestrator is safe for concurrent use. Passes on the same device are
// serialised through the device's extraction lock; passes on different
// devices run independently.
package extraction
