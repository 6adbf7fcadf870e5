package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"git.home.luguber.info/inful/harnesscache/internal/foundation/errors"
)

// HashFile returns the hex SHA-256 of the file at path. The returned error
// wraps the underlying os error, so errors.Is(err, fs.ErrNotExist) works.
func HashFile(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- cache paths are derived from validated hashes
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryFileSystem, "open for hashing").
			WithContext("path", path).
			Build()
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.WrapError(err, errors.CategoryFileSystem, "hash file").
			WithContext("path", path).
			Build()
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// isDigest reports whether s looks like a lower-case hex SHA-256 digest. Only
// such names are joined onto the cache root, so a sidecar cannot point a cache
// path outside it.
func isDigest(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// parseSidecar extracts the digest from a ".sha256" sidecar body. Both the bare
// form and sha256sum's "<digest>  <name>" form are accepted.
func parseSidecar(body []byte) (string, bool) {
	fields := strings.Fields(string(body))
	if len(fields) == 0 {
		return "", false
	}
	digest := strings.ToLower(fields[0])
	return digest, isDigest(digest)
}
