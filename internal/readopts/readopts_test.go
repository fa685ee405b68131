package readopts

import (
	"errors"
	"strings"
	"testing"

	"github.com/open-edge-platform/xorriso-engine/internal/diag"
	"github.com/open-edge-platform/xorriso-engine/internal/imagetree/memtree"
)

type fakeReader struct {
	data []byte
}

func (f *fakeReader) ReadAt(p []byte, off int64) (int, error) { return copy(p, f.data[off:]), nil }
func (f *fakeReader) Size() int64                             { return int64(len(f.data)) }

func TestBuildAppliesDefaultsAndFlags(t *testing.T) {
	f := Flags{DisableMD5: true, InputCharset: "UTF-8", DisplacementLBA: -16}
	opts := Build(f, nil)

	if opts.DefaultUID != 0 || opts.DefaultGID != 0 || opts.DefaultPerms != 0555 {
		t.Fatalf("expected default owner/perms, got %+v", opts)
	}
	if !opts.DisableMD5 || opts.InputCharset != "UTF-8" || opts.DisplacementLBA != -16 {
		t.Fatalf("expected flags carried through, got %+v", opts)
	}
}

func TestPacifierFiresEveryTenNodes(t *testing.T) {
	var ticks []int
	opts := Build(Flags{}, func(n int) { ticks = append(ticks, n) })

	for n := 0; n <= 30; n++ {
		opts.Pacifier(n)
	}
	if len(ticks) != 4 { // 0, 10, 20, 30
		t.Fatalf("expected 4 ticks, got %d: %v", len(ticks), ticks)
	}
}

func TestLoadRestoresAbortThresholdAfterLoad(t *testing.T) {
	sink := diag.NewSink(diag.FAILURE)
	l := New(sink)
	tree := memtree.New()
	r := &fakeReader{data: make([]byte, 4096)}

	origThreshold := sink.AbortThreshold
	if err := l.Load(tree, r, Flags{ImgReadErrorMode: 1}, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sink.AbortThreshold != origThreshold {
		t.Fatalf("expected abort threshold restored to %v after load, got %v", origThreshold, sink.AbortThreshold)
	}
}

func TestDiagnoseLoadFailureAddsHintForTreeCorrupted(t *testing.T) {
	l := New(nil)
	err := l.diagnoseLoadFailure(errors.New("tree corrupted: volume descriptor mismatch"))

	var de *diag.Error
	if !errors.As(err, &de) {
		t.Fatalf("expected *diag.Error, got %T", err)
	}
	if !strings.Contains(de.Hint, "best-effort") {
		t.Fatalf("expected best-effort hint, got %q", de.Hint)
	}
}

func TestDiagnoseLoadFailurePassesThroughOtherErrors(t *testing.T) {
	l := New(nil)
	err := l.diagnoseLoadFailure(errors.New("permission denied"))

	var de *diag.Error
	if !errors.As(err, &de) {
		t.Fatalf("expected *diag.Error, got %T", err)
	}
	if de.Hint != "" {
		t.Fatalf("expected no hint for unrelated errors, got %q", de.Hint)
	}
}

func TestPropagateHFSPlusCopiesRootAttributes(t *testing.T) {
	tree := memtree.New()
	tree.SetRootAttribute("isofs.hx", "ext-metadata")
	tree.SetRootAttribute("isofs.hb", "blessed")

	propagateHFSPlus(tree)

	hx, ok := tree.RootAttribute("isofs.hx")
	if !ok || hx != "ext-metadata" {
		t.Fatalf("expected isofs.hx preserved, got %q ok=%v", hx, ok)
	}
	hb, ok := tree.RootAttribute("isofs.hb")
	if !ok || hb != "blessed" {
		t.Fatalf("expected isofs.hb preserved, got %q ok=%v", hb, ok)
	}
}
