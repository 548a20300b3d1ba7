package execmode

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteManifestContainsPackageAndActivity(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "AndroidManifest.xml")
	if err := writeManifest(dest, "pkg.Test"); err != nil {
		t.Fatalf("writeManifest failed: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	doc := string(data)
	if !strings.Contains(doc, `package="vogar.test.pkg.Test"`) {
		t.Errorf("manifest missing package attribute:\n%s", doc)
	}
	if !strings.Contains(doc, `android:name=".TargetMonitorActivity"`) {
		t.Errorf("manifest missing activity name:\n%s", doc)
	}
	if !strings.HasPrefix(doc, `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Errorf("manifest missing XML header:\n%s", doc)
	}
}
