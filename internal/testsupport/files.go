package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// SampleCatalog is a small kit, category, and packaging catalog used across tests.
const SampleCatalog = `kits:
  KIT-STARTER:
    - sku: MUG-01
      quantity: 1
    - sku: TEA-01
      quantity: 2
categories:
  MUG-01: drinkware
  TEA-01: consumable
  BOX-ART: print
packaging:
  - id: PKG-MAILER
    max_units: 2
    categories: [print, consumable]
  - id: PKG-SMALL
    max_units: 4
  - id: PKG-LARGE
    max_units: 0
`
