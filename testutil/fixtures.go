package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteReferenceImage writes data as the reference image inside a fresh
// temporary directory and returns its path.
func WriteReferenceImage(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reference.png")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write reference image: %v", err)
	}
	return path
}
