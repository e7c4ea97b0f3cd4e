// Package session owns the state of one droidprobe run: the command
// channel, the field-spec registry, the orchestrator and the set of known
// devices.
//
// There is no package-level state; every component that needs devices is
// handed a *Session. Devices are discovered with Scan ("adb devices -l"),
// extracted one at a time with Extract or in parallel with ExtractAll, and
// their status is only queried when RefreshStatus is called.
//
// Listeners registered with OnEvent are told when a device's information or
// status changes and when a device disappears.
package session
