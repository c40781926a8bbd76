// Package fileid derives stable document IDs for files ingested from watched
// directories. Uploads get random UUIDs; watched files need an ID that is a
// pure function of the path, so a rewrite replaces the earlier document and a
// delete can find it without a lookup table.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// prefix separates path-derived IDs from upload UUIDs.
const prefix = "file:"

// idBytes truncates the digest. 16 bytes keeps IDs short enough for URLs and
// is far beyond collision range for any corpus a watcher will see.
const idBytes = 16

// FileDocID returns the document ID for a file path. The path is cleaned
// first, so a trailing separator or "." segment does not change the ID.
// Callers should pass absolute paths; relative paths are hashed as given.
func FileDocID(path string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(path)))
	return prefix + hex.EncodeToString(sum[:idBytes])
}
