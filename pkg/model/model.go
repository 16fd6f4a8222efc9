// Package model defines the core domain types for relaychat.
package model

import "strings"

// SystemSender is the sender name used for server-originated notices.
// It is reserved: ValidateUsername rejects it in any letter case.
const SystemSender = "System"

// IsReserved reports whether name collides with a server-owned identity.
func IsReserved(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), SystemSender)
}
