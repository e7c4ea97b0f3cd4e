// Package resolve merges freshly extracted candidate values into a field's
// current value.
//
// Resolve is a pure function. The policy decides what happens when the field
// already holds something:
//
//   - Replace: the candidates become the value.
//   - Drop: a truthy existing value is never overwritten.
//   - Append / Prepend: both sides are treated as lists and the candidates
//     are de-duplicated against the existing entries with a case-insensitive,
//     whitespace-collapsed substring test. A candidate contained in an entry
//     is redundant and dropped; a candidate that contains an entry is more
//     specific and replaces that entry in place. Whatever is left is added
//     at the end (Append) or the front (Prepend).
//
// The substring rule exists because several Android properties report the
// same hardware at different levels of detail ("ARM Cortex" versus
// "ARM Cortex A53"); a plain append would show both.
package resolve
