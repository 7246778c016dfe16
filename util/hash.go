package util

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// UnitID creates a deterministic id for a unit from its originating source,
// name, and start line. Qualifying by source keeps same-named units from
// different files apart.
func UnitID(source, name string, startLine int) string {
	input := fmt.Sprintf("%s:%s:%d", source, name, startLine)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:16])
}

// EdgeID creates a deterministic id for a dependency edge.
func EdgeID(sourceID, targetID, edgeType string) string {
	input := fmt.Sprintf("%s>%s:%s", sourceID, targetID, edgeType)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:16])
}
