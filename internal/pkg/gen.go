package pkg

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// GenerateSessionID - generates an id for a new game session.
func GenerateSessionID() string {
	return uuid.NewString()
}

// GenerateTicketID - generates a reference for a one-off ledger movement.
func GenerateTicketID() string {
	return uuid.NewString()
}

// GeneratePlayerID - generates an opaque id for an anonymous player.
func GeneratePlayerID() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return uuid.NewString()
	}

	return base64.RawURLEncoding.EncodeToString(b)
}

// GenerateSeed - draws a board seed from the system CSPRNG.
func GenerateSeed() (int64, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return 0, fmt.Errorf("failed to read random seed: %w", err)
	}

	// keep seeds non-negative so they read the same everywhere they are logged
	return int64(binary.BigEndian.Uint64(b) >> 1), nil
}
