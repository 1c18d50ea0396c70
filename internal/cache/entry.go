package cache

import "time"

// Entry records the last successful compile of one source file
type Entry struct {
	// Fingerprint is the content digest of the source at the time it was compiled
	Fingerprint string `json:"hash"`

	// Output is the object file produced by that compile
	Output string `json:"output"`

	// Timestamp when this entry was recorded
	Timestamp time.Time `json:"timestamp"`
}
