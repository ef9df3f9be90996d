// Package idgen provides ID generation for pagewatch records.
//
// Consumers accept a Generator, making the ID strategy a startup-time
// decision rather than a compile-time one. The default is UUIDv7 (RFC 9562):
// time-sortable, globally unique. Record-type prefixes ("cmp_", "snap_",
// "diff_", "alr_") are applied by the store.
package idgen

import "github.com/google/uuid"

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Default is the process-wide default generator.
var Default Generator = UUIDv7()
