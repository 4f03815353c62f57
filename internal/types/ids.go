// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type SessionID string
type MessageID string
type TurnID string
type DatasetID string
type ArtifactID string

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func NewTurnID() TurnID {
	return TurnID(uuid.New().String())
}

func NewDatasetID() DatasetID {
	return DatasetID(uuid.New().String())
}

func NewArtifactID() ArtifactID {
	return ArtifactID(uuid.New().String())
}

// IsUUID reports whether s parses as a UUID. Session IDs arriving over the
// chat transport are rejected before any store lookup when this fails.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
