// Package fileid provides a deterministic content ID from a file path for watched files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// idBytes is how much of the path hash the ID keeps.
const idBytes = 16

// ContentID returns a stable content ID for the given absolute path.
// Same path always yields the same ID. The ID is lower-case hex so it can be
// used in artifact file names.
func ContentID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:idBytes])
}
