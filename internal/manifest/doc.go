// Package manifest loads TOML session manifests, the file-based stand-in for
// the upload form: which recording to submit, its session metadata and the
// ranges to analyze.
//
//	recording = "session.wav"
//	patient_id = "p-104"
//	date = "2026-10-01"
//
//	[[segment]]
//	type = "intelligibility"
//	start = 1.5
//	end = 4.0
//	reference_type = "sentences"
//	reference = "My new van. My daughter is a nurse."
//
// Relative recording paths resolve against the manifest's directory. When
// duration is omitted it is read from the WAV header.
package manifest
