package execmode

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExtractKeystoreWritesEmbeddedBytes(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "testkey.jks")
	if err := extractKeystore(dest); err != nil {
		t.Fatalf("extractKeystore failed: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) == 0 {
		t.Error("extracted keystore is empty")
	}
	if string(got) != string(embeddedKeystore) {
		t.Error("extracted keystore does not match the embedded bytes")
	}
}
