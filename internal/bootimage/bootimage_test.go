package bootimage

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/open-edge-platform/xorriso-engine/internal/diag"
	"github.com/open-edge-platform/xorriso-engine/internal/imagetree/memtree"
	"github.com/open-edge-platform/xorriso-engine/internal/utils/logger"
)

func TestStageEFIDefaultForcesNoEmulationAndLoadSize(t *testing.T) {
	m := New(nil)
	e := &Entry{BootFilePath: "/EFI/BOOT/BOOTX64.EFI", Platform: PlatformEFI, Emulation: EmulationNone}
	m.Stage(e, 1000)

	want := ceilDiv(1000, 512)
	if e.LoadSize512 != want {
		t.Fatalf("LoadSize512 = %d, want %d", e.LoadSize512, want)
	}
}

func TestStageClampsLoadSizeAndWarns(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	prev := logger.Logger()
	logger.SetLogger(zap.New(core).Sugar())
	defer logger.SetLogger(prev)

	sink := diag.NewSink(diag.FAILURE)
	m := New(sink)
	e := &Entry{BootFilePath: "/boot/big.img", Platform: PlatformEFI, Emulation: EmulationNone}
	// 40 MiB file => far more than 65535 * 512-byte units.
	m.Stage(e, 40*1024*1024)

	if e.LoadSize512 != maxLoadSize512Units {
		t.Fatalf("LoadSize512 = %d, want clamp to %d", e.LoadSize512, maxLoadSize512Units)
	}
	if n := logs.FilterMessageSnippet("65535 blocks").Len(); n != 1 {
		t.Fatalf("clamp warnings = %d, want 1", n)
	}
}

func TestAttachNextFirstRenamesEmptyCatalogPath(t *testing.T) {
	m := New(nil)
	m.Stage(&Entry{BootFilePath: "/boot/isolinux.bin"}, 100)

	tree := memtree.New()
	e, err := m.AttachNext(tree, false, false)
	if err != nil {
		t.Fatalf("AttachNext: %v", err)
	}
	if e.CatalogPath != "/boot/boot.cat" {
		t.Fatalf("CatalogPath = %q, want /boot/boot.cat", e.CatalogPath)
	}
	if m.AttachedCount() != 1 {
		t.Fatalf("AttachedCount = %d, want 1", m.AttachedCount())
	}
	first, ok := tree.FirstBootImage()
	if !ok || first.BootFile != "/boot/isolinux.bin" {
		t.Fatalf("expected first boot image to be set, got %+v ok=%v", first, ok)
	}
}

func TestAttachNextSecondIsAdditive(t *testing.T) {
	m := New(nil)
	m.Stage(&Entry{BootFilePath: "/boot/isolinux.bin"}, 100)
	m.Stage(&Entry{BootFilePath: "/EFI/BOOT/BOOTX64.EFI", Platform: PlatformEFI}, 100)

	tree := memtree.New()
	if _, err := m.AttachNext(tree, false, false); err != nil {
		t.Fatalf("first AttachNext: %v", err)
	}
	if _, err := m.AttachNext(tree, false, false); err != nil {
		t.Fatalf("second AttachNext: %v", err)
	}

	if m.AttachedCount() != 2 {
		t.Fatalf("AttachedCount = %d, want 2", m.AttachedCount())
	}
	if len(tree.BootImages()) != 2 {
		t.Fatalf("expected first + additive entries in BootImages(), got %d", len(tree.BootImages()))
	}
}

func TestAttachNextEmptyQueueIsProgramInvariant(t *testing.T) {
	m := New(nil)
	if _, err := m.AttachNext(memtree.New(), false, false); !diag.IsProgramInvariant(err) {
		t.Fatalf("expected ProgramInvariant error, got %v", err)
	}
}

func TestAttachNextRejectsExistingCatalogWithoutOverwrite(t *testing.T) {
	tree := memtree.New()
	tree.AddNode("/boot/boot.cat")

	m := New(nil)
	m.Stage(&Entry{BootFilePath: "/boot/isolinux.bin"}, 100)
	if _, err := m.AttachNext(tree, false, false); err == nil {
		t.Fatal("expected rejection when catalog node already exists")
	}
	if len(m.Pending()) != 1 {
		t.Fatalf("rejected entry must stay pending, got %d pending", len(m.Pending()))
	}

	// Same attachment with overwrite removes and re-creates the catalog.
	e, err := m.AttachNext(tree, false, true)
	if err != nil {
		t.Fatalf("AttachNext with overwrite: %v", err)
	}
	if !tree.HasNode(e.CatalogPath) {
		t.Fatalf("expected catalog node %q re-created", e.CatalogPath)
	}
}

func TestMIPSBootFileListOverflowIsBoundsError(t *testing.T) {
	tree := memtree.New()
	m := New(nil)
	for i := 0; i < 15; i++ {
		if err := m.AddMIPSBootFile(tree, "/boot/mips"); err != nil {
			t.Fatalf("AddMIPSBootFile %d: %v", i, err)
		}
	}
	if err := m.AddMIPSBootFile(tree, "/boot/one-too-many"); err == nil {
		t.Fatal("expected the 16th MIPS boot file to overflow the volume header")
	}
}

func TestSPARCDiscLabelCoexistsWithEltorito(t *testing.T) {
	tree := memtree.New()
	m := New(nil)
	m.Stage(&Entry{BootFilePath: "/boot/grub/core.img"}, 100)
	if _, err := m.AttachNext(tree, false, false); err != nil {
		t.Fatalf("AttachNext: %v", err)
	}
	m.SetSPARCDiscLabel(tree, "sparc-boot", "/boot/grub/sparc-core.img")

	label, core := tree.SPARCDiscLabel()
	if label != "sparc-boot" || core != "/boot/grub/sparc-core.img" {
		t.Fatalf("SPARC label/core = %q/%q", label, core)
	}
	if len(tree.BootImages()) != 1 {
		t.Fatalf("El Torito entry must survive SPARC label install, got %d", len(tree.BootImages()))
	}
}

func TestDetectIsohybridSignature(t *testing.T) {
	img := make([]byte, 128)
	copy(img[64:68], []byte{0xFB, 0xC0, 0x78, 0x70})
	if !DetectIsohybrid(img) {
		t.Fatal("expected isohybrid signature to be detected")
	}

	img2 := make([]byte, 128)
	if DetectIsohybrid(img2) {
		t.Fatal("expected no isohybrid signature in zeroed buffer")
	}
}

func TestDetectGRUB2IsolinuxPatchMatchesEncodedLBA(t *testing.T) {
	const lba = int64(200)
	img := make([]byte, 2560)
	word := uint32(lba*4 + 5)
	img[2548] = byte(word)
	img[2549] = byte(word >> 8)
	img[2550] = byte(word >> 16)
	img[2551] = byte(word >> 24)

	if !DetectGRUB2IsolinuxPatch(img, lba) {
		t.Fatal("expected GRUB2 isolinux patch word to match recorded LBA")
	}
	if DetectGRUB2IsolinuxPatch(img, lba+1) {
		t.Fatal("expected mismatch against a different LBA")
	}
}

func TestResolvePatchFlagsCombinesBits(t *testing.T) {
	img := make([]byte, 2560)
	copy(img[64:68], []byte{0xFB, 0xC0, 0x78, 0x70})

	e := &Entry{}
	e.SetRecordedLBA(0)
	flags := ResolvePatchFlags(e, img, true)

	if flags&PatchBootInfoTable == 0 {
		t.Fatal("expected boot-info-table bit set")
	}
	if flags&PatchIsohybridMBR == 0 {
		t.Fatal("expected isohybrid-MBR bit set")
	}
}
