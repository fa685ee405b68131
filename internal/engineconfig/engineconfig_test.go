package engineconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/open-edge-platform/xorriso-engine/internal/diag"
)

func TestLoadFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	doc := `
addresses:
  whitelist:
    - "/dev/sr0"
  blacklist:
    - "/dev/sda"
  greylist:
    - "/dev/loop*"
writeStdioBanned: false
abortThreshold: SORRY
md5RingMemoryBudgetBytes: 1048576
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.AbortThreshold != diag.SORRY {
		t.Fatalf("expected SORRY, got %v", cfg.AbortThreshold)
	}
	if len(cfg.Addresses.Greylist) != 1 || cfg.Addresses.Greylist[0] != "/dev/loop*" {
		t.Fatalf("unexpected greylist: %+v", cfg.Addresses.Greylist)
	}
	if cfg.MD5RingMemoryBudgetBytes != 1048576 {
		t.Fatalf("unexpected ring budget: %d", cfg.MD5RingMemoryBudgetBytes)
	}
}

func TestLoadFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.json")
	doc := `{"addresses":{"blacklist":["/dev/sda"]},"abortThreshold":"FATAL"}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.AbortThreshold != diag.FATAL {
		t.Fatalf("expected FATAL, got %v", cfg.AbortThreshold)
	}
	if cfg.MD5RingMemoryBudgetBytes != defaultMD5RingBudget {
		t.Fatalf("expected default ring budget to be filled in, got %d", cfg.MD5RingMemoryBudgetBytes)
	}
}

func TestDefaultConfiguration(t *testing.T) {
	cfg := Default()
	if cfg.AbortThreshold != diag.FAILURE {
		t.Fatalf("expected default abort threshold FAILURE, got %v", cfg.AbortThreshold)
	}
	if cfg.MD5RingMemoryBudgetBytes != defaultMD5RingBudget {
		t.Fatalf("expected default ring budget %d, got %d", defaultMD5RingBudget, cfg.MD5RingMemoryBudgetBytes)
	}
}
