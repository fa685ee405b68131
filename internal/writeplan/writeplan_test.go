package writeplan

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/ulikunitz/xz"

	"github.com/open-edge-platform/xorriso-engine/internal/burnbackend"
	"github.com/open-edge-platform/xorriso-engine/internal/diag"
)

func TestSelectWriteTypePrefersSAOOnBlankCD(t *testing.T) {
	wt, err := SelectWriteType(burnbackend.ProfileCDR, burnbackend.StatusBlank, false)
	if err != nil {
		t.Fatalf("SelectWriteType: %v", err)
	}
	if wt != WriteSAO {
		t.Fatalf("expected SAO on blank CD, got %v", wt)
	}
}

func TestSelectWriteTypeTAOOnAppendableCD(t *testing.T) {
	wt, err := SelectWriteType(burnbackend.ProfileCDR, burnbackend.StatusAppendable, false)
	if err != nil {
		t.Fatalf("SelectWriteType: %v", err)
	}
	if wt != WriteTAO {
		t.Fatalf("expected TAO on appendable CD, got %v", wt)
	}
}

func TestSelectWriteTypeRejectsMultiOnDVDRWSequential(t *testing.T) {
	_, err := SelectWriteType(burnbackend.ProfileDVDRWSeq, burnbackend.StatusAppendable, true)
	if err == nil {
		t.Fatal("expected an error rejecting -multi on DVD-RW sequential")
	}
}

func TestComputePaddingExtendsCDToMinimum300Sectors(t *testing.T) {
	res := ComputePadding(PaddingInput{Profile: burnbackend.ProfileCDR, ImageBlocks: 10, UserPaddingBytes: 0})
	if res.PaddingBlocks != 290 {
		t.Fatalf("expected padding=290 to reach 300 total, got %d", res.PaddingBlocks)
	}
}

func TestComputePaddingDelegationKeepsCountAndMarksOwner(t *testing.T) {
	res := ComputePadding(PaddingInput{Profile: burnbackend.ProfileDVDPlusRW, ImageBlocks: 1000, DelegateToLibrary: true})
	if res.PaddingBlocks != 0 || !res.DelegatedToLibrary {
		t.Fatalf("expected no padding needed but delegation marked, got %+v", res)
	}
}

func TestComputePaddingAlignmentHoldsUnderDelegation(t *testing.T) {
	res := ComputePadding(PaddingInput{
		Profile:           burnbackend.ProfileDVDPlusRW,
		ImageBlocks:       1000,
		NWA:               7,
		AlignmentBlocks:   16,
		DelegateToLibrary: true,
	})
	if !res.DelegatedToLibrary {
		t.Fatal("expected the padding count delegated to the library")
	}
	total := 7 + res.EffectiveImageBlocks + res.PaddingBlocks
	if total%16 != 0 {
		t.Fatalf("expected (nwa+image+padding) mod alignment == 0 under delegation, got total=%d", total)
	}
	if res.PaddingBlocks == 0 {
		t.Fatal("expected a nonzero alignment extension for nwa+image not divisible by 16")
	}
}

func TestComputePaddingAlignmentRule(t *testing.T) {
	res := ComputePadding(PaddingInput{
		Profile:         burnbackend.ProfileDVDPlusRW,
		ImageBlocks:     1000,
		NWA:             0,
		AlignmentBlocks: 16,
	})
	total := res.PaddingBlocks + res.EffectiveImageBlocks
	if total%16 != 0 {
		t.Fatalf("expected (nwa+image+padding) mod alignment == 0, got total=%d", total)
	}
}

func TestComputePaddingTOCEmulationForcesAlignment32AndBlankCountsPreNWA(t *testing.T) {
	res := ComputePadding(PaddingInput{
		Profile:            burnbackend.ProfileDVDPlusRW,
		ImageBlocks:        1000,
		NWA:                64,
		TOCEmulationActive: true,
		MediaBlank:         true,
	})
	if res.EffectiveImageBlocks != 1000+64 {
		t.Fatalf("expected blank media to count pre-NWA blocks as image blocks, got %d", res.EffectiveImageBlocks)
	}
	total := res.PaddingBlocks + res.EffectiveImageBlocks + 64
	if total%32 != 0 {
		t.Fatalf("expected forced alignment of 32, total=%d not aligned", total)
	}
}

func buildMBRBuffer(offsetBlocks, lengthBlocks uint32) [systemAreaSize]byte {
	var buf [systemAreaSize]byte
	binary.LittleEndian.PutUint32(buf[454:458], offsetBlocks*4)
	binary.LittleEndian.PutUint32(buf[458:462], lengthBlocks*4)
	return buf
}

func TestBuildSystemAreaLibraryReportedValidatesMBRExactTolerance(t *testing.T) {
	buf := buildMBRBuffer(0, 2000)
	req := SystemAreaRequest{
		Source:            SourceLibraryReported,
		LibraryReported:   buf,
		PatchingRequested: true,
		ImageTotalBlocks:  2000,
	}
	_, patching, err := BuildSystemArea(req, nil)
	if err != nil {
		t.Fatalf("BuildSystemArea: %v", err)
	}
	if !patching {
		t.Fatal("expected patching enabled when MBR lines up exactly")
	}
}

func TestBuildSystemAreaDisablesPatchingWhenMBRMisaligned(t *testing.T) {
	buf := buildMBRBuffer(0, 1000) // ends far short of image end
	req := SystemAreaRequest{
		Source:            SourceLibraryReported,
		LibraryReported:   buf,
		PatchingRequested: true,
		ImageTotalBlocks:  5000,
	}
	sink := diag.NewSink(diag.FAILURE)
	_, patching, err := BuildSystemArea(req, sink)
	if err != nil {
		t.Fatalf("BuildSystemArea: %v", err)
	}
	if patching {
		t.Fatal("expected patching disabled when MBR misaligned beyond tolerance")
	}
}

func TestBuildSystemAreaIsohybridWidenedTolerance(t *testing.T) {
	// Off by 100 blocks (400 sectors): exceeds exact tolerance but within 63*256 for isohybrid.
	buf := buildMBRBuffer(0, 1900)
	req := SystemAreaRequest{
		Source:            SourceLibraryReported,
		LibraryReported:   buf,
		PatchingRequested: true,
		ImageTotalBlocks:  2000,
		Isohybrid:         true,
	}
	_, patching, err := BuildSystemArea(req, nil)
	if err != nil {
		t.Fatalf("BuildSystemArea: %v", err)
	}
	if !patching {
		t.Fatal("expected isohybrid tolerance to allow patching")
	}
}

func TestBuildSystemAreaExplicitXZSourceDecompresses(t *testing.T) {
	payload := make([]byte, 512)
	for i := range payload {
		payload[i] = byte(i)
	}

	path := filepath.Join(t.TempDir(), "sysarea.img.xz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	xw, err := xz.NewWriter(f)
	if err != nil {
		t.Fatalf("xz.NewWriter: %v", err)
	}
	if _, err := xw.Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := xw.Close(); err != nil {
		t.Fatalf("close xz: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}

	buf, _, err := BuildSystemArea(SystemAreaRequest{Source: SourceExplicitFile, ExplicitPath: path}, nil)
	if err != nil {
		t.Fatalf("BuildSystemArea: %v", err)
	}
	for i, b := range payload {
		if buf[i] != b {
			t.Fatalf("byte %d = %#x, want %#x", i, buf[i], b)
		}
	}
}

func TestBuildSystemAreaDevZeroSource(t *testing.T) {
	buf, patching, err := BuildSystemArea(SystemAreaRequest{Source: SourceDevZero}, nil)
	if err != nil {
		t.Fatalf("BuildSystemArea: %v", err)
	}
	if patching {
		t.Fatal("expected no patching requested for /dev/zero source by default")
	}
	for _, b := range buf {
		if b != 0 {
			t.Fatal("expected all-zero buffer from /dev/zero source")
		}
	}
}
