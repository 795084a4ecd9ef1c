package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/spaolacci/murmur3"
)

// Threshold is the file size, in bytes, at or below which Sum uses the
// cryptographic regime. Larger files use the fast regime instead.
const Threshold = 10 * 1024 * 1024 // 10 MiB

// Sum computes the content digest of the file at path. Files at or
// below Threshold are hashed with SHA-256 (32 bytes); larger files are
// hashed with murmur3's 128-bit variant (16 bytes). The file is
// streamed through the hash function via io.Copy, so memory use is
// constant regardless of file size.
//
// Digests from the two regimes are never mistaken for one another:
// their lengths differ, so a size crossing the threshold between two
// observations of the same path is itself detected as a content
// change by any byte-slice equality comparison.
func Sum(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s for hashing: %w", path, err)
	}

	if info.Size() <= Threshold {
		hasher := sha256.New()
		if _, err := io.Copy(hasher, file); err != nil {
			return nil, fmt.Errorf("hashing %s: %w", path, err)
		}
		return hasher.Sum(nil), nil
	}

	hasher := murmur3.New128()
	if _, err := io.Copy(hasher, file); err != nil {
		return nil, fmt.Errorf("hashing %s: %w", path, err)
	}
	h1, h2 := hasher.Sum128()
	digest := make([]byte, 16)
	binary.BigEndian.PutUint64(digest[0:8], h1)
	binary.BigEndian.PutUint64(digest[8:16], h2)
	return digest, nil
}
