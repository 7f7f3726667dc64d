/*
Package randx generates the identifiers used across the system: message ids,
connection ids, and client-side temporary ids for optimistic entries.
*/
package randx

import (
	"strings"

	"github.com/google/uuid"
)

// TempIDPrefix marks client-generated placeholder ids that have not been
// confirmed by the server.
const TempIDPrefix = "temp-"

// MessageID generates a UUID v4 string used as a message identifier.
func MessageID() string {
	return uuid.New().String()
}

// ConnectionID generates a UUID v4 string identifying one live connection.
func ConnectionID() string {
	return uuid.New().String()
}

// TempID generates a client-local placeholder id for an optimistic entry.
func TempID() string {
	return TempIDPrefix + uuid.New().String()
}

// IsTempID reports whether id is a client-local placeholder id.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}
