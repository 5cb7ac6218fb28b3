// Package segments owns the named, typed time ranges a clinician marks on a
// session recording.
//
// Store keeps segments in creation order and is the only owner of segment
// values; callers receive copies. The package also carries the reference
// text parsers used by intelligibility segments, the time range validation
// messages shown to users, and the MM:SS formatting shared by the CLI.
package segments
