package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewCheckpointID generates a checkpoint ID ("cp-<hex>").
func NewCheckpointID() string {
	return prefixedID("cp", 12)
}

// NewViolationID generates a violation ID ("vio-<hex>").
func NewViolationID() string {
	return prefixedID("vio", 12)
}

// NewEventID generates an audit event ID ("evt-<hex>").
func NewEventID() string {
	return prefixedID("evt", 12)
}

func prefixedID(prefix string, hexLen int) string {
	b := make([]byte, (hexLen+1)/2)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp-based ID if crypto/rand fails
		return fmt.Sprintf("%s-%x", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%s", prefix, hex.EncodeToString(b)[:hexLen])
}
