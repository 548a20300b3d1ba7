package execmode

import (
	_ "embed"
	"os"

	"go.crosstest.dev/harness/errors"
)

//go:embed keystore/testkey.jks
var embeddedKeystore []byte

// extractKeystore writes the embedded test-signing keystore to dest,
// done once per Prepare call rather than requiring callers to carry an
// on-disk signing key of their own.
func extractKeystore(dest string) error {
	if err := os.WriteFile(dest, embeddedKeystore, 0600); err != nil {
		return errors.Wrapf(err, "failed to extract signing keystore to %s", dest)
	}
	return nil
}
