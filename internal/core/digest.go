package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

// StateDigest returns the sha256 hex digest of the RFC 8785 canonical JSON
// of a recovery state. Two replays of unchanged logs have equal digests.
func StateDigest(state *models.RecoveryState) (string, error) {
	if state == nil {
		return "", fmt.Errorf("recovery state is nil")
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("encoding recovery state: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalizing recovery state: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
