package manifest

import (
	"fmt"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
)

// fingerprintSuffix names the sidecar file holding the digest of the last
// manifest this destination was populated from.
const fingerprintSuffix = ".xxh64"

// Fingerprint returns the XXH64 digest of the manifest bytes as hex.
func Fingerprint(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// CheckFingerprint compares the manifest bytes against the digest recorded
// beside manifestPath by a previous run and stores the current digest.
// It reports whether the manifest changed since that run, in which case any
// partially downloaded archives on disk may no longer line up with it.
// Purely diagnostic; storage failures are returned but never fatal.
func CheckFingerprint(fsys afero.Fs, manifestPath string, data []byte) (changed bool, err error) {
	sum := Fingerprint(data)
	sidecar := manifestPath + fingerprintSuffix

	prev, readErr := afero.ReadFile(fsys, sidecar)
	if readErr == nil {
		changed = strings.TrimSpace(string(prev)) != sum
	} else if !os.IsNotExist(readErr) {
		return false, fmt.Errorf("manifest: read fingerprint: %w", readErr)
	}

	if err := afero.WriteFile(fsys, sidecar, []byte(sum+"\n"), 0644); err != nil {
		return changed, fmt.Errorf("manifest: store fingerprint: %w", err)
	}
	return changed, nil
}
